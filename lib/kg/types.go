// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kg

// DocumentRef identifies one document in an ontology listing.
type DocumentRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// Document is a fully fetched document. Content is stored as the
// ordered text segments the service returns; Content() concatenates
// them.
type Document struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Ontology string   `json:"ontology"`
	Segments []string `json:"segments"`
}

// Content returns the document's file content: the deterministic
// concatenation of its segments. Identical backend data always
// produces identical bytes — the kernel page cache assumes stable
// content for a given offset range.
func (d *Document) Content() []byte {
	size := 0
	for _, segment := range d.Segments {
		size += len(segment)
	}
	content := make([]byte, 0, size)
	for _, segment := range d.Segments {
		content = append(content, segment...)
	}
	return content
}

// JobState is the lifecycle state of an ingestion job.
type JobState string

// Job states reported by the service. The last three are terminal: a
// job in one of them will not transition further.
const (
	JobPending          JobState = "pending"
	JobQueued           JobState = "queued"
	JobProcessing       JobState = "processing"
	JobAwaitingApproval JobState = "awaiting_approval"
	JobApproved         JobState = "approved"
	JobCompleted        JobState = "completed"
	JobFailed           JobState = "failed"
	JobCancelled        JobState = "cancelled"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Job is one in-flight (or recently finished) ingestion job.
type Job struct {
	ID       string   `json:"id"`
	Ontology string   `json:"ontology"`
	Filename string   `json:"filename"`
	State    JobState `json:"status"`
}
