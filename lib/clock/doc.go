// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that cache TTLs,
// token expiry, and startup timeouts are deterministic under test.
package clock
