// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kgfuse

import (
	"sort"
	"sync"

	"github.com/ontograph/ontofs/lib/kg"
)

// placeholderSuffix marks job placeholder entries. The suffix
// guarantees no collision with the eventual real filename.
const placeholderSuffix = ".ingesting"

// PlaceholderName returns the listing name for an in-flight ingestion
// job. With hideJobs the name gains a leading dot so plain directory
// listings skip it. An empty original name yields ".ingesting".
func PlaceholderName(originalName string, hideJobs bool) string {
	if hideJobs {
		return "." + originalName + placeholderSuffix
	}
	return originalName + placeholderSuffix
}

// TrackedJob is the overlay's record of one surfaced ingestion job.
type TrackedJob struct {
	ID       string
	Ontology string
	Filename string

	// SeenComplete is set the first time a listing observes the job
	// in a terminal state. The placeholder is only dropped on a
	// listing strictly after that: a caller holding the placeholder
	// name from an earlier listing must not see it vanish
	// mid-transition.
	SeenComplete bool
}

// Placeholder is one synthesized listing entry.
type Placeholder struct {
	JobID string
	Name  string
}

// JobOverlay synthesizes placeholder entries for in-flight ingestion
// jobs and reconciles them with real documents as jobs complete. It is
// safe for concurrent use.
type JobOverlay struct {
	hideJobs bool

	mu   sync.Mutex
	jobs map[string]*TrackedJob
}

// NewJobOverlay creates an empty overlay.
func NewJobOverlay(hideJobs bool) *JobOverlay {
	return &JobOverlay{
		hideJobs: hideJobs,
		jobs:     map[string]*TrackedJob{},
	}
}

// Reconcile folds the jobs the service reported for one ontology into
// the overlay and returns the placeholders the current listing should
// surface, sorted by name. cacheable is false when this listing is the
// first to observe a terminal state for any tracked job: the listing
// must not be cached, so the very next listing refetches and can drop
// the placeholder.
//
// A tracked job the service no longer reports is treated as a
// terminal-state observation and goes through the same two-step
// removal.
func (o *JobOverlay) Reconcile(ontology string, reported []kg.Job) (placeholders []Placeholder, cacheable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cacheable = true
	reportedIDs := make(map[string]bool, len(reported))

	for _, job := range reported {
		reportedIDs[job.ID] = true
		tracked, known := o.jobs[job.ID]

		if !known {
			if job.State.Terminal() {
				// Finished before any listing surfaced it. The real
				// document is already in the document listing; a
				// placeholder would only flicker into existence.
				continue
			}
			tracked = &TrackedJob{
				ID:       job.ID,
				Ontology: ontology,
				Filename: job.Filename,
			}
			o.jobs[job.ID] = tracked
			placeholders = append(placeholders, o.placeholderLocked(tracked))
			continue
		}

		if !job.State.Terminal() {
			// A live observation refutes any earlier terminal one:
			// the job window may have flickered. Removal restarts
			// from a fresh terminal observation.
			tracked.SeenComplete = false
			placeholders = append(placeholders, o.placeholderLocked(tracked))
			continue
		}

		if !tracked.SeenComplete {
			tracked.SeenComplete = true
			cacheable = false
			placeholders = append(placeholders, o.placeholderLocked(tracked))
			continue
		}

		delete(o.jobs, job.ID)
	}

	// Tracked jobs that fell out of the service's job window.
	for id, tracked := range o.jobs {
		if tracked.Ontology != ontology || reportedIDs[id] {
			continue
		}
		if !tracked.SeenComplete {
			tracked.SeenComplete = true
			cacheable = false
			placeholders = append(placeholders, o.placeholderLocked(tracked))
			continue
		}
		delete(o.jobs, id)
	}

	sort.Slice(placeholders, func(i, j int) bool {
		return placeholders[i].Name < placeholders[j].Name
	})
	return placeholders, cacheable
}

// Current returns the placeholders tracked for an ontology without
// folding in a new report. Used when a job listing fails: the absence
// of a report must not read as every job having reached a terminal
// state.
func (o *JobOverlay) Current(ontology string) []Placeholder {
	o.mu.Lock()
	defer o.mu.Unlock()

	var placeholders []Placeholder
	for _, tracked := range o.jobs {
		if tracked.Ontology != ontology {
			continue
		}
		placeholders = append(placeholders, o.placeholderLocked(tracked))
	}
	sort.Slice(placeholders, func(i, j int) bool {
		return placeholders[i].Name < placeholders[j].Name
	})
	return placeholders
}

func (o *JobOverlay) placeholderLocked(tracked *TrackedJob) Placeholder {
	return Placeholder{
		JobID: tracked.ID,
		Name:  PlaceholderName(tracked.Filename, o.hideJobs),
	}
}
