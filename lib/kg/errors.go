// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kg

import "errors"

// ErrNotFound reports that the service has no record of the requested
// ontology, document, or job. Callers map this to the filesystem's
// not-found error rather than a generic I/O failure.
var ErrNotFound = errors.New("not found")
