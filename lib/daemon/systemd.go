// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed systemd/ontofs.service
var systemdFiles embed.FS

// unitTemplate is the canonical user unit, embedded at compile time.
// A read or parse failure here is a build bug.
var unitTemplate = template.Must(template.New("ontofs.service").Parse(func() string {
	data, err := systemdFiles.ReadFile("systemd/ontofs.service")
	if err != nil {
		panic("embedded ontofs.service missing: " + err.Error())
	}
	return string(data)
}()))

// unitName derives the systemd unit name for a mountpoint. Slashes
// become dashes, matching systemd's own path-escaping convention
// closely enough to stay readable in systemctl output.
func unitName(mountpoint string) string {
	cleaned := strings.Trim(filepath.Clean(mountpoint), "/")
	cleaned = strings.ReplaceAll(cleaned, "/", "-")
	if cleaned == "" {
		cleaned = "root"
	}
	return "ontofs-" + cleaned + ".service"
}

// renderUnit produces the unit file content for a mountpoint.
func (m *Manager) renderUnit(mountpoint string) ([]byte, error) {
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, struct {
		Mountpoint string
		Executable string
		ConfigPath string
	}{
		Mountpoint: mountpoint,
		Executable: m.executable,
		ConfigPath: m.configPath,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// startSystemd installs the user unit for the mountpoint and enables
// it immediately. Supervision (restarts, readiness) is systemd's job
// from here on; no PID record is written.
func (m *Manager) startSystemd(ctx context.Context, mountpoint string) error {
	content, err := m.renderUnit(mountpoint)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(m.unitDir, 0o755); err != nil {
		return fmt.Errorf("creating systemd user unit directory: %w", err)
	}
	unit := unitName(mountpoint)
	unitPath := filepath.Join(m.unitDir, unit)
	if err := os.WriteFile(unitPath, content, 0o644); err != nil {
		return fmt.Errorf("writing unit %s: %w", unitPath, err)
	}

	if err := m.runCommand(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return fmt.Errorf("reloading systemd user units: %w", err)
	}
	if err := m.runCommand(ctx, "systemctl", "--user", "enable", "--now", unit); err != nil {
		return fmt.Errorf("enabling unit %s: %w", unit, err)
	}

	m.logger.Info("mount enabled as systemd user unit",
		"mountpoint", mountpoint, "unit", unit)
	return nil
}

// stopSystemd disables the mount's user unit and stops it.
func (m *Manager) stopSystemd(ctx context.Context, mountpoint string) error {
	unit := unitName(mountpoint)
	if err := m.runCommand(ctx, "systemctl", "--user", "disable", "--now", unit); err != nil {
		return fmt.Errorf("disabling unit %s: %w", unit, err)
	}
	m.logger.Info("systemd user unit disabled",
		"mountpoint", mountpoint, "unit", unit)
	return nil
}

// defaultUnitDir is where systemd looks for user units.
func defaultUnitDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/etc", "systemd", "user")
	}
	return filepath.Join(home, ".config", "systemd", "user")
}
