// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kgfuse

import "sync"

// EntryType classifies a filesystem entry. The set is closed: entry
// dispatch switches on it, and IsDir is the single authority on which
// types are directories.
type EntryType int

const (
	// EntryRoot is the mount root, listing ontology directories.
	EntryRoot EntryType = iota
	// EntryOntology is an ontology directory, listing documents and
	// job placeholders.
	EntryOntology
	// EntryDocument is a document file.
	EntryDocument
	// EntryJobPlaceholder is a synthesized file standing in for an
	// in-flight ingestion job.
	EntryJobPlaceholder
)

// IsDir reports whether entries of this type are directories.
func (t EntryType) IsDir() bool {
	return t == EntryRoot || t == EntryOntology
}

func (t EntryType) String() string {
	switch t {
	case EntryRoot:
		return "root"
	case EntryOntology:
		return "ontology"
	case EntryDocument:
		return "document"
	case EntryJobPlaceholder:
		return "job-placeholder"
	}
	return "unknown"
}

// RootInode is the reserved inode number of the mount root.
const RootInode = 1

// firstDynamicInode is where dynamic allocation starts. Inodes below
// it are reserved.
const firstDynamicInode = 100

// Entry is one filesystem entry's identity and metadata.
type Entry struct {
	// Ino is the stable inode number, never reused within a mount's
	// lifetime.
	Ino uint64

	// Name is the entry name under its parent.
	Name string

	// Type classifies the entry.
	Type EntryType

	// Parent is the parent directory's inode number.
	Parent uint64

	// BackendID is the document or job identifier for file entries.
	// Empty for directories.
	BackendID string

	// Size is the best-effort content size in bytes. Until SizeKnown
	// is set by the first content fetch, it is a placeholder.
	Size uint64

	// SizeKnown marks Size as authoritative.
	SizeKnown bool
}

type childKey struct {
	parent uint64
	name   string
}

// InodeTable is the stable mapping from (parent, name) to inode
// number and entry metadata. Allocation is keyed by (parent, name), so
// repeated discovery of the same name is a no-op. The table only
// grows; visibility of entries is decided by directory listings, not
// by table membership, so a dropped placeholder keeps its inode
// forever without ever being listed again.
//
// InodeTable is safe for concurrent use.
type InodeTable struct {
	mu      sync.Mutex
	nextIno uint64
	byIno   map[uint64]*Entry
	byName  map[childKey]uint64
}

// NewInodeTable creates a table seeded with the root entry at inode 1.
func NewInodeTable() *InodeTable {
	root := &Entry{Ino: RootInode, Type: EntryRoot}
	return &InodeTable{
		nextIno: firstDynamicInode,
		byIno:   map[uint64]*Entry{RootInode: root},
		byName:  map[childKey]uint64{},
	}
}

// Get returns the entry for an inode number.
func (t *InodeTable) Get(ino uint64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.byIno[ino]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Child returns the entry registered under (parent, name).
func (t *InodeTable) Child(parent uint64, name string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ino, ok := t.byName[childKey{parent, name}]
	if !ok {
		return Entry{}, false
	}
	return *t.byIno[ino], true
}

// Ensure returns the entry for (parent, name), allocating a new inode
// from the monotonic counter only on first sight. The backend
// identifier is updated in place if the service reassigns it.
func (t *InodeTable) Ensure(parent uint64, name string, entryType EntryType, backendID string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := childKey{parent, name}
	if ino, ok := t.byName[key]; ok {
		entry := t.byIno[ino]
		if backendID != "" && entry.BackendID != backendID {
			entry.BackendID = backendID
		}
		return *entry
	}

	entry := &Entry{
		Ino:       t.nextIno,
		Name:      name,
		Type:      entryType,
		Parent:    parent,
		BackendID: backendID,
	}
	t.nextIno++
	t.byIno[entry.Ino] = entry
	t.byName[key] = entry.Ino
	return *entry
}

// SetContentSize records the authoritative content size for an inode
// after its content has been fetched.
func (t *InodeTable) SetContentSize(ino uint64, size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.byIno[ino]; ok {
		entry.Size = size
		entry.SizeKnown = true
	}
}
