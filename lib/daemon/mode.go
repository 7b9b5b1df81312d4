// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Mode selects how a mount's filesystem process is supervised.
type Mode string

const (
	// ModeDaemon runs the filesystem as a detached child process
	// supervised only through its PID record.
	ModeDaemon Mode = "daemon"

	// ModeSystemd delegates supervision to a systemd user unit.
	ModeSystemd Mode = "systemd"
)

func parseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeDaemon, ModeSystemd:
		return Mode(raw), nil
	}
	return "", fmt.Errorf("unknown run mode %q (want %q or %q)", raw, ModeDaemon, ModeSystemd)
}

// modePath maps a mountpoint to its persisted run-mode record,
// alongside the PID records so both lifecycle surfaces live in one
// directory.
func (m *Manager) modePath(mountpoint string) string {
	encoded := url.PathEscape(filepath.Clean(mountpoint))
	return filepath.Join(m.stateDir, "mounts", encoded+".mode")
}

// ResolveMode decides how a mount should run. An explicitly
// configured mode wins; otherwise a previously persisted per-mount
// choice is reused; otherwise init-system availability is probed once
// and the result persisted, so later invocations are deterministic
// without re-probing.
func (m *Manager) ResolveMode(mountpoint string) (Mode, error) {
	if raw := m.config.Daemon.Mode; raw != "" {
		mode, err := parseMode(raw)
		if err != nil {
			return "", err
		}
		return mode, nil
	}

	// A mangled record falls through to a fresh probe.
	if mode, ok := m.persistedMode(mountpoint); ok {
		return mode, nil
	}

	path := m.modePath(mountpoint)
	mode := ModeDaemon
	if m.systemdAvailable() {
		mode = ModeSystemd
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating run-mode directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(string(mode)+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persisting run mode: %w", err)
	}
	m.logger.Debug("probed and persisted run mode",
		"mountpoint", mountpoint, "mode", mode)
	return mode, nil
}

// persistedMode reads the per-mount run-mode record.
func (m *Manager) persistedMode(mountpoint string) (Mode, bool) {
	data, err := os.ReadFile(m.modePath(mountpoint))
	if err != nil {
		return "", false
	}
	mode, err := parseMode(strings.TrimSpace(string(data)))
	if err != nil {
		return "", false
	}
	return mode, true
}

// knownMode returns the run mode already decided for a mountpoint —
// explicit configuration or a persisted per-mount record — without
// probing or persisting anything. Used on read-only paths like status,
// which must not mint a mode for a mount that was never started.
func (m *Manager) knownMode(mountpoint string) (Mode, bool) {
	if raw := m.config.Daemon.Mode; raw != "" {
		mode, err := parseMode(raw)
		if err != nil {
			return "", false
		}
		return mode, true
	}
	return m.persistedMode(mountpoint)
}

// defaultSystemdProbe reports whether a systemd user session is
// usable: the runtime directory systemd populates exists and
// systemctl is on PATH.
func defaultSystemdProbe() bool {
	info, err := os.Stat("/run/systemd/system")
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = exec.LookPath("systemctl")
	return err == nil
}
