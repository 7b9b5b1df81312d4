// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kgfuse

import (
	"context"
	"log/slog"
	"syscall"
	"time"

	"github.com/ontograph/ontofs/lib/clock"
	"github.com/ontograph/ontofs/lib/kg"
)

// Backend is the slice of the knowledge-graph client the filesystem
// consumes. *kg.Client satisfies it.
type Backend interface {
	ListOntologies(ctx context.Context) ([]string, error)
	ListDocuments(ctx context.Context, ontology string) ([]kg.DocumentRef, error)
	GetDocument(ctx context.Context, id string) (*kg.Document, error)
	ListJobs(ctx context.Context, ontology string) ([]kg.Job, error)
}

// View implements the filesystem-operation contract over the inode
// table, directory cache, and job overlay. It owns all process-scoped
// mount state: one View per mountpoint, initialized at mount start,
// torn down at unmount, never shared across mounts.
//
// Backend and auth failures are absorbed here and converted to the
// narrow error vocabulary the kernel understands: listings degrade to
// empty directories, content reads fail with EIO.
type View struct {
	table   *InodeTable
	cache   *DirectoryCache
	overlay *JobOverlay
	backend Backend
	logger  *slog.Logger
}

// NewView assembles the per-mount state.
func NewView(backend Backend, hideJobs bool, cacheTTL time.Duration, clk clock.Clock, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &View{
		table:   NewInodeTable(),
		cache:   NewDirectoryCache(cacheTTL, clk),
		overlay: NewJobOverlay(hideJobs),
		backend: backend,
		logger:  logger,
	}
}

// Attr returns the entry metadata for an inode.
func (v *View) Attr(ino uint64) (Entry, syscall.Errno) {
	entry, ok := v.table.Get(ino)
	if !ok {
		return Entry{}, syscall.ENOENT
	}
	return entry, 0
}

// Lookup resolves name under the parent directory. An unchanged name
// under an unchanged parent always resolves to the same inode for the
// life of the mount. Visibility follows the current listing: a name
// the listing no longer contains is ENOENT even though its inode is
// still in the table.
func (v *View) Lookup(ctx context.Context, parent uint64, name string) (Entry, syscall.Errno) {
	parentEntry, ok := v.table.Get(parent)
	if !ok {
		return Entry{}, syscall.ENOENT
	}
	if !parentEntry.Type.IsDir() {
		return Entry{}, syscall.ENOTDIR
	}

	entries, err := v.list(ctx, parentEntry)
	if err != nil {
		v.logger.Error("lookup listing failed",
			"parent", parentEntry.Name, "name", name, "error", err)
		// Degrade like List: an unreachable backend means the name
		// is not resolvable right now, not that I/O is broken.
		return Entry{}, syscall.ENOENT
	}

	for _, dirEntry := range entries {
		if dirEntry.Name != name {
			continue
		}
		entry, ok := v.table.Get(dirEntry.Ino)
		if !ok {
			return Entry{}, syscall.ENOENT
		}
		return entry, 0
	}
	return Entry{}, syscall.ENOENT
}

// List returns the directory listing for an inode. A backend listing
// failure yields an empty directory, not an error, so the mount stays
// usable under backend flakiness.
func (v *View) List(ctx context.Context, ino uint64) ([]DirEntry, syscall.Errno) {
	entry, ok := v.table.Get(ino)
	if !ok {
		return nil, syscall.ENOENT
	}
	if !entry.Type.IsDir() {
		return nil, syscall.ENOTDIR
	}

	entries, err := v.list(ctx, entry)
	if err != nil {
		v.logger.Error("directory listing failed",
			"directory", entry.Name, "inode", entry.Ino, "error", err)
		return nil, 0
	}
	return entries, 0
}

// OpenContent returns the full content snapshot for a file inode.
// Opening a directory for data I/O is a type mismatch. Placeholders
// read as empty files. A backend or auth failure surfaces as EIO —
// explicit failure for reads, rather than silently returning stale or
// partial content.
func (v *View) OpenContent(ctx context.Context, ino uint64) ([]byte, syscall.Errno) {
	entry, ok := v.table.Get(ino)
	if !ok {
		return nil, syscall.ENOENT
	}

	switch entry.Type {
	case EntryRoot, EntryOntology:
		return nil, syscall.EISDIR
	case EntryJobPlaceholder:
		return nil, 0
	case EntryDocument:
		document, err := v.backend.GetDocument(ctx, entry.BackendID)
		if err != nil {
			v.logger.Error("document fetch failed",
				"name", entry.Name, "id", entry.BackendID, "error", err)
			return nil, syscall.EIO
		}
		content := document.Content()
		v.table.SetContentSize(ino, uint64(len(content)))
		return content, 0
	}
	return nil, syscall.EIO
}

// list returns the listing for a directory entry, through the cache.
func (v *View) list(ctx context.Context, dir Entry) ([]DirEntry, error) {
	switch dir.Type {
	case EntryRoot:
		return v.cache.Entries(dir.Ino, func() ([]DirEntry, bool, error) {
			return v.fetchRoot(ctx)
		})
	case EntryOntology:
		return v.cache.Entries(dir.Ino, func() ([]DirEntry, bool, error) {
			return v.fetchOntology(ctx, dir)
		})
	}
	return nil, nil
}

func (v *View) fetchRoot(ctx context.Context) ([]DirEntry, bool, error) {
	ontologies, err := v.backend.ListOntologies(ctx)
	if err != nil {
		return nil, false, err
	}

	entries := make([]DirEntry, 0, len(ontologies))
	for _, name := range ontologies {
		entry := v.table.Ensure(RootInode, name, EntryOntology, "")
		entries = append(entries, DirEntry{Ino: entry.Ino, Name: name, Type: EntryOntology})
	}
	return entries, true, nil
}

func (v *View) fetchOntology(ctx context.Context, dir Entry) ([]DirEntry, bool, error) {
	documents, err := v.backend.ListDocuments(ctx, dir.Name)
	if err != nil {
		return nil, false, err
	}

	// A failed job listing must not feed the overlay: an empty report
	// would read as every tracked job having reached a terminal state.
	// The documents are still worth showing, so keep the placeholders
	// as they were and leave the listing uncached for a prompt retry.
	var placeholders []Placeholder
	cacheable := true
	jobs, err := v.backend.ListJobs(ctx, dir.Name)
	if err != nil {
		v.logger.Warn("job listing failed", "ontology", dir.Name, "error", err)
		placeholders = v.overlay.Current(dir.Name)
		cacheable = false
	} else {
		placeholders, cacheable = v.overlay.Reconcile(dir.Name, jobs)
	}

	entries := make([]DirEntry, 0, len(documents)+len(placeholders))
	for _, ref := range documents {
		entry := v.table.Ensure(dir.Ino, ref.Filename, EntryDocument, ref.ID)
		entries = append(entries, DirEntry{Ino: entry.Ino, Name: ref.Filename, Type: EntryDocument})
	}
	for _, placeholder := range placeholders {
		entry := v.table.Ensure(dir.Ino, placeholder.Name, EntryJobPlaceholder, placeholder.JobID)
		entries = append(entries, DirEntry{Ino: entry.Ino, Name: placeholder.Name, Type: EntryJobPlaceholder})
	}
	return entries, cacheable, nil
}

// readSlice returns the (offset, length) slice of a content snapshot.
// Reads past end-of-content return an empty result, not an error.
func readSlice(content []byte, offset int64, length int) []byte {
	if offset < 0 || offset >= int64(len(content)) {
		return nil
	}
	end := offset + int64(length)
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	return content[offset:end]
}
