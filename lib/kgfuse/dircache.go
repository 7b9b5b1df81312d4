// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kgfuse

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ontograph/ontofs/lib/clock"
)

// DefaultCacheTTL is how long a cached directory listing stays valid
// when the mount options leave it unset.
const DefaultCacheTTL = 30 * time.Second

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Ino  uint64
	Name string
	Type EntryType
}

type cachedListing struct {
	entries []DirEntry
	fetched time.Time
}

// DirectoryCache is a TTL-bounded cache of directory listings keyed
// by parent inode. A stale entry triggers one refetch before entries
// are emitted; concurrent refetches of the same parent coalesce
// through a single-flight group, which also serializes inode
// allocation for that parent (the fetch closure is the only place
// entries are discovered).
type DirectoryCache struct {
	ttl   time.Duration
	clock clock.Clock

	flight singleflight.Group

	mu       sync.Mutex
	listings map[uint64]*cachedListing
}

// NewDirectoryCache creates a cache with the given TTL. A
// non-positive TTL uses DefaultCacheTTL.
func NewDirectoryCache(ttl time.Duration, clk clock.Clock) *DirectoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &DirectoryCache{
		ttl:      ttl,
		clock:    clk,
		listings: map[uint64]*cachedListing{},
	}
}

// Entries returns the listing for parent, calling fetch when no
// listing is cached or the cached one has aged past the TTL. The
// fetch callback returns the fresh entries and whether they may be
// cached; returning cacheable=false stores nothing, so the next
// caller refetches immediately (used to eagerly invalidate a
// directory the moment a job transition is observed).
func (c *DirectoryCache) Entries(parent uint64, fetch func() (entries []DirEntry, cacheable bool, err error)) ([]DirEntry, error) {
	if entries, ok := c.cached(parent); ok {
		return entries, nil
	}

	result, err, _ := c.flight.Do(strconv.FormatUint(parent, 10), func() (any, error) {
		// A coalesced caller may arrive just after the winner stored
		// a fresh listing.
		if entries, ok := c.cached(parent); ok {
			return entries, nil
		}

		entries, cacheable, err := fetch()
		if err != nil {
			return nil, err
		}
		if cacheable {
			c.store(parent, entries)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]DirEntry), nil
}

func (c *DirectoryCache) cached(parent uint64) ([]DirEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	listing, ok := c.listings[parent]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(listing.fetched) >= c.ttl {
		return nil, false
	}
	return listing.entries, true
}

func (c *DirectoryCache) store(parent uint64, entries []DirEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[parent] = &cachedListing{
		entries: entries,
		fetched: c.clock.Now(),
	}
}
