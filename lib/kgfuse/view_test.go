// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kgfuse

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/ontograph/ontofs/lib/clock"
	"github.com/ontograph/ontofs/lib/kg"
)

// fakeBackend is an in-memory Backend with togglable failure.
type fakeBackend struct {
	mu         sync.Mutex
	ontologies []string
	documents  map[string][]kg.DocumentRef
	contents   map[string]*kg.Document
	jobs       map[string][]kg.Job
	down       bool
	jobsDown   bool

	ontologyLists atomic.Int64
	documentLists atomic.Int64
}

var errBackendDown = errors.New("backend unavailable")

func (b *fakeBackend) ListOntologies(ctx context.Context) ([]string, error) {
	b.ontologyLists.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, errBackendDown
	}
	return b.ontologies, nil
}

func (b *fakeBackend) ListDocuments(ctx context.Context, ontology string) ([]kg.DocumentRef, error) {
	b.documentLists.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, errBackendDown
	}
	return b.documents[ontology], nil
}

func (b *fakeBackend) GetDocument(ctx context.Context, id string) (*kg.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, errBackendDown
	}
	document, ok := b.contents[id]
	if !ok {
		return nil, kg.ErrNotFound
	}
	return document, nil
}

func (b *fakeBackend) ListJobs(ctx context.Context, ontology string) ([]kg.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down || b.jobsDown {
		return nil, errBackendDown
	}
	return b.jobs[ontology], nil
}

func (b *fakeBackend) setDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *fakeBackend) setJobsDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobsDown = down
}

func (b *fakeBackend) setJobs(ontology string, jobs []kg.Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.jobs == nil {
		b.jobs = map[string][]kg.Job{}
	}
	b.jobs[ontology] = jobs
}

func (b *fakeBackend) addDocument(ontology string, document *kg.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.documents == nil {
		b.documents = map[string][]kg.DocumentRef{}
	}
	if b.contents == nil {
		b.contents = map[string]*kg.Document{}
	}
	b.documents[ontology] = append(b.documents[ontology],
		kg.DocumentRef{ID: document.ID, Filename: document.Filename})
	b.contents[document.ID] = document
}

const testTTL = 30 * time.Second

func newTestView(backend *fakeBackend, hideJobs bool) (*View, *clock.FakeClock) {
	clk := clock.Fake(testStart)
	return NewView(backend, hideJobs, testTTL, clk, nil), clk
}

func TestRootListing(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha", "Beta"}}
	view, _ := newTestView(backend, false)

	entries, errno := view.List(context.Background(), RootInode)
	if errno != 0 {
		t.Fatalf("List: errno %v", errno)
	}
	if len(entries) != 2 || entries[0].Name != "Alpha" || entries[1].Name != "Beta" {
		t.Fatalf("entries = %v, want Alpha and Beta", entries)
	}

	for _, dirEntry := range entries {
		entry, errno := view.Attr(dirEntry.Ino)
		if errno != 0 {
			t.Fatalf("Attr(%d): errno %v", dirEntry.Ino, errno)
		}
		if !entry.Type.IsDir() {
			t.Errorf("%s: type %s is not a directory", entry.Name, entry.Type)
		}
	}
}

func TestLookupStableInodeAcrossRefetch(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha"}}
	view, clk := newTestView(backend, false)
	ctx := context.Background()

	first, errno := view.Lookup(ctx, RootInode, "Alpha")
	if errno != 0 {
		t.Fatalf("Lookup: errno %v", errno)
	}

	// Within the TTL and after it expires, the same name resolves to
	// the same inode.
	again, _ := view.Lookup(ctx, RootInode, "Alpha")
	if again.Ino != first.Ino {
		t.Errorf("inode changed within TTL: %d -> %d", first.Ino, again.Ino)
	}

	clk.Advance(testTTL + time.Second)
	after, errno := view.Lookup(ctx, RootInode, "Alpha")
	if errno != 0 {
		t.Fatalf("Lookup after TTL: errno %v", errno)
	}
	if after.Ino != first.Ino {
		t.Errorf("inode changed across refetch: %d -> %d", first.Ino, after.Ino)
	}
	if backend.ontologyLists.Load() != 2 {
		t.Errorf("ontology listings = %d, want 2", backend.ontologyLists.Load())
	}
}

func TestLookupUnknownName(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha"}}
	view, _ := newTestView(backend, false)

	if _, errno := view.Lookup(context.Background(), RootInode, "Missing"); errno != syscall.ENOENT {
		t.Errorf("errno = %v, want ENOENT", errno)
	}
}

func TestLookupOnFileIsNotADirectory(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha"}}
	backend.addDocument("Alpha", &kg.Document{ID: "doc-1", Filename: "notes.md", Ontology: "Alpha"})
	view, _ := newTestView(backend, false)
	ctx := context.Background()

	ontology, _ := view.Lookup(ctx, RootInode, "Alpha")
	document, errno := view.Lookup(ctx, ontology.Ino, "notes.md")
	if errno != 0 {
		t.Fatalf("Lookup document: errno %v", errno)
	}

	if _, errno := view.Lookup(ctx, document.Ino, "child"); errno != syscall.ENOTDIR {
		t.Errorf("errno = %v, want ENOTDIR", errno)
	}
}

func TestListFailureYieldsEmptyDirectory(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha"}}
	backend.setDown(true)
	view, _ := newTestView(backend, false)

	entries, errno := view.List(context.Background(), RootInode)
	if errno != 0 {
		t.Fatalf("List during outage: errno %v, want success with empty listing", errno)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}

	// Recovery: the failure was not cached.
	backend.setDown(false)
	entries, _ = view.List(context.Background(), RootInode)
	if len(entries) != 1 {
		t.Errorf("entries after recovery = %v, want Alpha", entries)
	}
}

func TestAttrUnknownInode(t *testing.T) {
	backend := &fakeBackend{}
	view, _ := newTestView(backend, false)

	if _, errno := view.Attr(12345); errno != syscall.ENOENT {
		t.Errorf("errno = %v, want ENOENT", errno)
	}
}

func TestOpenContentOnDirectory(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha"}}
	view, _ := newTestView(backend, false)
	ctx := context.Background()

	if _, errno := view.OpenContent(ctx, RootInode); errno != syscall.EISDIR {
		t.Errorf("errno = %v, want EISDIR", errno)
	}

	ontology, _ := view.Lookup(ctx, RootInode, "Alpha")
	if _, errno := view.OpenContent(ctx, ontology.Ino); errno != syscall.EISDIR {
		t.Errorf("ontology errno = %v, want EISDIR", errno)
	}
}

func TestOpenContentDocument(t *testing.T) {
	content := strings.Repeat("x", 100)
	backend := &fakeBackend{ontologies: []string{"Alpha"}}
	backend.addDocument("Alpha", &kg.Document{
		ID: "doc-1", Filename: "notes.md", Ontology: "Alpha",
		Segments: []string{content[:40], content[40:]},
	})
	view, _ := newTestView(backend, false)
	ctx := context.Background()

	ontology, _ := view.Lookup(ctx, RootInode, "Alpha")
	document, _ := view.Lookup(ctx, ontology.Ino, "notes.md")

	snapshot, errno := view.OpenContent(ctx, document.Ino)
	if errno != 0 {
		t.Fatalf("OpenContent: errno %v", errno)
	}
	if string(snapshot) != content {
		t.Errorf("content mismatch: %d bytes", len(snapshot))
	}

	// Size becomes authoritative after the first content fetch.
	updated, _ := view.Attr(document.Ino)
	if !updated.SizeKnown || updated.Size != 100 {
		t.Errorf("size=%d known=%v, want 100 true", updated.Size, updated.SizeKnown)
	}

	// Slicing a 100-byte snapshot.
	if got := readSlice(snapshot, 90, 50); len(got) != 10 {
		t.Errorf("readSlice(90, 50) = %d bytes, want 10", len(got))
	}
	if got := readSlice(snapshot, 200, 10); len(got) != 0 {
		t.Errorf("readSlice(200, 10) = %d bytes, want 0", len(got))
	}
	if got := readSlice(snapshot, 0, 100); string(got) != content {
		t.Error("readSlice(0, 100) differs from snapshot")
	}
}

func TestOpenContentBackendFailure(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha"}}
	backend.addDocument("Alpha", &kg.Document{ID: "doc-1", Filename: "notes.md", Ontology: "Alpha"})
	view, _ := newTestView(backend, false)
	ctx := context.Background()

	ontology, _ := view.Lookup(ctx, RootInode, "Alpha")
	document, _ := view.Lookup(ctx, ontology.Ino, "notes.md")

	backend.setDown(true)
	if _, errno := view.OpenContent(ctx, document.Ino); errno != syscall.EIO {
		t.Errorf("errno = %v, want EIO for failed content fetch", errno)
	}
}

func TestConcurrentListingsSingleFetch(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha", "Beta"}}
	view, _ := newTestView(backend, false)

	const listers = 20
	var wg sync.WaitGroup
	for range listers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view.List(context.Background(), RootInode)
		}()
	}
	wg.Wait()

	if got := backend.ontologyLists.Load(); got != 1 {
		t.Errorf("ontology listings = %d, want 1 for %d concurrent readdirs", got, listers)
	}
}

func TestPlaceholderLifecycle(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha"}}
	backend.setJobs("Alpha", []kg.Job{
		{ID: "job-1", Ontology: "Alpha", Filename: "notes.md", State: kg.JobProcessing},
	})
	view, clk := newTestView(backend, false)
	ctx := context.Background()

	ontology, _ := view.Lookup(ctx, RootInode, "Alpha")

	// Running: the placeholder is listed, no real document yet.
	entries, _ := view.List(ctx, ontology.Ino)
	if len(entries) != 1 || entries[0].Name != "notes.md.ingesting" {
		t.Fatalf("entries = %v, want the placeholder", entries)
	}
	placeholder := entries[0]

	placeholderEntry, errno := view.Lookup(ctx, ontology.Ino, "notes.md.ingesting")
	if errno != 0 {
		t.Fatalf("Lookup placeholder: errno %v", errno)
	}
	if snapshot, errno := view.OpenContent(ctx, placeholderEntry.Ino); errno != 0 || len(snapshot) != 0 {
		t.Errorf("placeholder content = %d bytes errno %v, want empty success", len(snapshot), errno)
	}

	// The job completes and the real document lands.
	backend.setJobs("Alpha", []kg.Job{
		{ID: "job-1", Ontology: "Alpha", Filename: "notes.md", State: kg.JobCompleted},
	})
	backend.addDocument("Alpha", &kg.Document{
		ID: "doc-1", Filename: "notes.md", Ontology: "Alpha", Segments: []string{"done"},
	})

	// Within the TTL the cached listing still shows the placeholder.
	entries, _ = view.List(ctx, ontology.Ino)
	if len(entries) != 1 || entries[0].Name != "notes.md.ingesting" {
		t.Fatalf("cached entries = %v, want just the placeholder", entries)
	}

	// First listing to observe the terminal state: placeholder and
	// real document are both present.
	clk.Advance(testTTL + time.Second)
	entries, _ = view.List(ctx, ontology.Ino)
	listed := map[string]bool{}
	for _, entry := range entries {
		listed[entry.Name] = true
	}
	if !listed["notes.md.ingesting"] || !listed["notes.md"] {
		t.Fatalf("transition listing = %v, want placeholder and document", entries)
	}

	// The transition listing was not cached: the very next listing
	// drops the placeholder without waiting for the TTL.
	entries, _ = view.List(ctx, ontology.Ino)
	if len(entries) != 1 || entries[0].Name != "notes.md" {
		t.Fatalf("final entries = %v, want only the document", entries)
	}

	// The dropped placeholder name no longer resolves; its inode was
	// never reused for the document.
	if _, errno := view.Lookup(ctx, ontology.Ino, "notes.md.ingesting"); errno != syscall.ENOENT {
		t.Errorf("dropped placeholder lookup errno = %v, want ENOENT", errno)
	}
	document, _ := view.Lookup(ctx, ontology.Ino, "notes.md")
	if document.Ino == placeholder.Ino {
		t.Error("placeholder inode was reused for the real document")
	}
}

func TestPlaceholderSurvivesJobListingFailure(t *testing.T) {
	backend := &fakeBackend{ontologies: []string{"Alpha"}}
	backend.setJobs("Alpha", []kg.Job{
		{ID: "job-1", Ontology: "Alpha", Filename: "notes.md", State: kg.JobProcessing},
	})
	view, clk := newTestView(backend, false)
	ctx := context.Background()

	ontology, _ := view.Lookup(ctx, RootInode, "Alpha")

	entries, _ := view.List(ctx, ontology.Ino)
	if len(entries) != 1 || entries[0].Name != "notes.md.ingesting" {
		t.Fatalf("entries = %v, want the placeholder", entries)
	}

	// The job endpoint alone goes down. The documents still list, the
	// placeholder stays, and the degraded listing is not cached.
	backend.setJobsDown(true)
	clk.Advance(testTTL + time.Second)
	entries, _ = view.List(ctx, ontology.Ino)
	if len(entries) != 1 || entries[0].Name != "notes.md.ingesting" {
		t.Fatalf("entries during job outage = %v, want the placeholder", entries)
	}
	documentLists := backend.documentLists.Load()
	view.List(ctx, ontology.Ino)
	if backend.documentLists.Load() != documentLists+1 {
		t.Error("degraded listing was cached")
	}

	// The endpoint recovers with the job still running, then the job
	// completes. The outage must not have counted as a terminal
	// observation: the completing listing still shows the placeholder,
	// and only the one after it drops it.
	backend.setJobsDown(false)
	entries, _ = view.List(ctx, ontology.Ino)
	if len(entries) != 1 || entries[0].Name != "notes.md.ingesting" {
		t.Fatalf("entries after recovery = %v, want the placeholder", entries)
	}

	backend.setJobs("Alpha", []kg.Job{
		{ID: "job-1", Ontology: "Alpha", Filename: "notes.md", State: kg.JobCompleted},
	})
	backend.addDocument("Alpha", &kg.Document{
		ID: "doc-1", Filename: "notes.md", Ontology: "Alpha", Segments: []string{"done"},
	})
	clk.Advance(testTTL + time.Second)
	entries, _ = view.List(ctx, ontology.Ino)
	listed := map[string]bool{}
	for _, entry := range entries {
		listed[entry.Name] = true
	}
	if !listed["notes.md.ingesting"] {
		t.Fatalf("transition listing = %v, placeholder dropped on its first terminal observation", entries)
	}

	entries, _ = view.List(ctx, ontology.Ino)
	if len(entries) != 1 || entries[0].Name != "notes.md" {
		t.Fatalf("final entries = %v, want only the document", entries)
	}
}
