// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

// Package kgfuse projects the knowledge-graph service as a read-only
// FUSE filesystem: ontologies become directories, documents become
// files, and in-flight ingestion jobs appear as placeholder entries
// until the real document lands.
//
// The package owns inode identity itself (InodeTable) rather than
// delegating it to go-fuse: a (parent, name) pair resolves to the same
// inode number for the lifetime of the mount, and inode numbers are
// never reused. Directory listings are cached with a TTL
// (DirectoryCache) and refreshed through a single-flight group so
// concurrent listings of one directory coalesce into one backend
// fetch. JobOverlay synthesizes placeholder entries for ingestion jobs
// and reconciles them with real documents as jobs complete.
package kgfuse
