// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

// Package kg is the HTTP client for the knowledge-graph service. It
// covers the surface the filesystem needs: ontology and document
// listings, document content fetches, ingestion job status, and the
// client-credentials token exchange behind all of them.
package kg
