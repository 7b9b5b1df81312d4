// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon manages the lifecycle of ontofs mounts: resolving
// and persisting the per-mount run mode, starting the filesystem as a
// detached daemon with a readiness handshake or as a systemd user
// unit, and stopping it again.
//
// The manager and the running filesystem process share no memory or
// sockets. All coordination happens through the PID record and the
// kernel mount table (see lib/mountstate).
package daemon
