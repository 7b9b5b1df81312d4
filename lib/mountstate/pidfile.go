// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package mountstate

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// pidPath maps a mountpoint to its PID record file. The mountpoint
// path is escaped so it survives as a single filename; the record
// itself is plain text so operators can inspect it with cat.
func (s *Store) pidPath(mountpoint string) string {
	encoded := url.PathEscape(filepath.Clean(mountpoint))
	return filepath.Join(s.dir, encoded+".pid")
}

// WritePID records the owning process of a mountpoint. Called only
// after the mount is confirmed up, so a crash during startup leaves no
// record behind.
func (s *Store) WritePID(mountpoint string, pid int) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating PID record directory: %w", err)
	}
	path := s.pidPath(mountpoint)
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing PID record %s: %w", path, err)
	}
	return nil
}

// ReadPID returns the recorded PID for a mountpoint. found is false
// when no record exists.
func (s *Store) ReadPID(mountpoint string) (pid int, found bool, err error) {
	data, err := os.ReadFile(s.pidPath(mountpoint))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading PID record: %w", err)
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// A mangled record is treated like a stale one.
		return 0, false, nil
	}
	return pid, true, nil
}

// ClearPID removes a mountpoint's PID record. Removing an absent
// record is not an error.
func (s *Store) ClearPID(mountpoint string) error {
	err := os.Remove(s.pidPath(mountpoint))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID record: %w", err)
	}
	return nil
}

// ListMountpoints returns every mountpoint that has a PID record,
// sorted by the underlying filename. Used by status reporting when no
// explicit mountpoint is given.
func (s *Store) ListMountpoints() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing PID records: %w", err)
	}
	var mountpoints []string
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".pid")
		if !ok {
			continue
		}
		mountpoint, err := url.PathUnescape(name)
		if err != nil {
			continue
		}
		mountpoints = append(mountpoints, mountpoint)
	}
	return mountpoints, nil
}
