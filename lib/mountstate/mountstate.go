// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

// Package mountstate derives the status of ontofs mountpoints from two
// externally inspectable surfaces: per-mount PID records on disk and
// the kernel mount table. It never talks to a running filesystem
// process, so status checks cannot hang on a wedged mount.
package mountstate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ontograph/ontofs/lib/kgfuse"
)

// FSType is the filesystem type the kernel mount table shows for
// ontofs mounts.
const FSType = "fuse." + kgfuse.FSName

// State classifies a mountpoint.
type State string

const (
	// StateRunning means a live, verified owner process holds the
	// mount.
	StateRunning State = "running"

	// StateStopped means the mountpoint is not mounted and no owner
	// process is alive.
	StateStopped State = "stopped"

	// StateOrphaned means the kernel still shows the mountpoint active
	// but no live owning process can be found. Orphans require a
	// manual forced unmount and are never resolved automatically.
	StateOrphaned State = "orphaned"
)

// Record is the derived status of one mountpoint. It is recomputed on
// every query and never persisted.
type Record struct {
	Path  string
	PID   int // 0 when no live owner is known
	State State
}

// Store inspects PID records and the mount table.
type Store struct {
	dir           string
	mountinfoPath string
	procDir       string
	kill          func(pid int, sig syscall.Signal) error
	logger        *slog.Logger
}

// Options configures a Store. The kernel surfaces are overridable so
// tests can substitute fixtures for the live mount table and proc
// filesystem.
type Options struct {
	// StateDir is the directory holding the mounts/ record
	// directory.
	StateDir string

	// MountinfoPath is the kernel mount table. If empty,
	// /proc/self/mountinfo.
	MountinfoPath string

	// ProcDir is the proc filesystem root used for owner identity
	// checks. If empty, /proc.
	ProcDir string

	// Kill is the signal function used for liveness probes. If nil,
	// unix.Kill.
	Kill func(pid int, sig syscall.Signal) error

	// Logger receives diagnostic messages. If nil, a stderr handler
	// at error level is used.
	Logger *slog.Logger
}

// New creates a Store keeping PID records under StateDir/mounts.
func New(options Options) *Store {
	if options.MountinfoPath == "" {
		options.MountinfoPath = "/proc/self/mountinfo"
	}
	if options.ProcDir == "" {
		options.ProcDir = "/proc"
	}
	if options.Kill == nil {
		options.Kill = unix.Kill
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	return &Store{
		dir:           filepath.Join(options.StateDir, "mounts"),
		mountinfoPath: options.MountinfoPath,
		procDir:       options.ProcDir,
		kill:          options.Kill,
		logger:        options.Logger,
	}
}

// IsMounted reports whether the kernel mount table contains an ontofs
// entry at the given path.
func (s *Store) IsMounted(mountpoint string) (bool, error) {
	mounts, err := parseMountinfo(s.mountinfoPath)
	if err != nil {
		return false, fmt.Errorf("reading mount table: %w", err)
	}
	target := filepath.Clean(mountpoint)
	for _, m := range mounts {
		if m.fsType == FSType && m.mountpoint == target {
			return true, nil
		}
	}
	return false, nil
}

// Status derives the current state of a mountpoint.
//
// A PID record whose process is dead, or whose PID now belongs to a
// different binary, is stale: it is cleared silently as routine
// cleanup, so two consecutive calls with no external change return
// identical results.
func (s *Store) Status(mountpoint string) (Record, error) {
	record := Record{Path: mountpoint}

	pid, found, err := s.ReadPID(mountpoint)
	if err != nil {
		return record, err
	}
	if found {
		if s.ownerAlive(pid) {
			record.PID = pid
		} else {
			s.logger.Debug("clearing stale PID record",
				"mountpoint", mountpoint, "pid", pid)
			if err := s.ClearPID(mountpoint); err != nil {
				return record, fmt.Errorf("clearing stale PID record: %w", err)
			}
		}
	}

	mounted, err := s.IsMounted(mountpoint)
	if err != nil {
		return record, err
	}

	switch {
	case record.PID != 0:
		record.State = StateRunning
	case mounted:
		record.State = StateOrphaned
	default:
		record.State = StateStopped
	}
	return record, nil
}

// ownerAlive reports whether pid is a live process and still runs the
// ontofs binary. The identity check guards against PID reuse: a
// recycled PID belonging to an unrelated process must not count as a
// mount owner.
func (s *Store) ownerAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := s.kill(pid, 0); err != nil {
		return false
	}
	cmdline, err := os.ReadFile(filepath.Join(s.procDir, fmt.Sprintf("%d", pid), "cmdline"))
	if err != nil {
		return false
	}
	return cmdlineIsOntofs(cmdline)
}

// cmdlineIsOntofs checks the NUL-separated argv from /proc/<pid>/cmdline.
func cmdlineIsOntofs(cmdline []byte) bool {
	for i, b := range cmdline {
		if b == 0 {
			cmdline = cmdline[:i]
			break
		}
	}
	return filepath.Base(string(cmdline)) == "ontofs"
}
