// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/ontograph/ontofs/lib/clock"
	"github.com/ontograph/ontofs/lib/config"
	"github.com/ontograph/ontofs/lib/mountstate"
)

var testStart = time.Unix(1767225600, 0) // 2026-01-01T00:00:00Z

// testEnv wires a Manager to fixture kernel surfaces and recording
// fakes for every process and init-system seam.
type testEnv struct {
	manager *Manager
	state   *mountstate.Store
	clock   *clock.FakeClock

	mountinfoPath string
	unitDir       string

	signals  []string // "pid:signal"
	commands []string // joined argv
}

func newTestEnv(t *testing.T, mountinfo string, livePIDs map[int]string) *testEnv {
	t.Helper()
	root := t.TempDir()

	mountinfoPath := filepath.Join(root, "mountinfo")
	if err := os.WriteFile(mountinfoPath, []byte(mountinfo), 0o600); err != nil {
		t.Fatalf("writing mountinfo fixture: %v", err)
	}

	procDir := filepath.Join(root, "proc")
	for pid, argv0 := range livePIDs {
		dir := filepath.Join(procDir, fmt.Sprintf("%d", pid))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("creating fake proc dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "cmdline"),
			append([]byte(argv0), 0), 0o644); err != nil {
			t.Fatalf("writing fake cmdline: %v", err)
		}
	}

	env := &testEnv{
		clock:         clock.Fake(testStart),
		mountinfoPath: mountinfoPath,
		unitDir:       filepath.Join(root, "systemd-user"),
	}

	kill := func(pid int, sig syscall.Signal) error {
		env.signals = append(env.signals, fmt.Sprintf("%d:%s", pid, sig))
		if sig == 0 {
			if _, ok := livePIDs[pid]; ok {
				return nil
			}
			return syscall.ESRCH
		}
		return nil
	}

	cfg := config.Default()
	cfg.Backend.URL = "https://kg.example.com"
	cfg.Backend.ClientID = "ontofs"
	cfg.Backend.ClientSecret = "secret"
	cfg.Paths.State = filepath.Join(root, "state")
	cfg.Daemon.MountTimeout = "5s"

	env.state = mountstate.New(mountstate.Options{
		StateDir:      cfg.Paths.State,
		MountinfoPath: mountinfoPath,
		ProcDir:       procDir,
		Kill:          kill,
	})

	manager, err := New(Options{
		Config:     cfg,
		State:      env.state,
		ConfigPath: "/etc/ontofs/ontofs.yaml",
		Executable: "/usr/local/bin/ontofs",
		Clock:      env.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	manager.unitDir = env.unitDir
	manager.kill = kill
	manager.runCommand = func(ctx context.Context, name string, args ...string) error {
		env.commands = append(env.commands, name+" "+strings.Join(args, " "))
		return nil
	}
	manager.systemdAvailable = func() bool { return false }

	env.manager = manager
	return env
}

func ontofsMountLine(mountpoint string) string {
	return fmt.Sprintf("36 25 0:32 / %s rw,nosuid - %s ontofs rw\n", mountpoint, mountstate.FSType)
}

func TestResolveModeExplicitConfig(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.manager.config.Daemon.Mode = "systemd"
	env.manager.systemdAvailable = func() bool {
		t.Fatal("explicit mode must not probe")
		return false
	}

	mode, err := env.manager.ResolveMode("/mnt/kg")
	if err != nil || mode != ModeSystemd {
		t.Fatalf("ResolveMode = %s, %v; want systemd", mode, err)
	}
}

func TestResolveModeProbesOnceAndPersists(t *testing.T) {
	env := newTestEnv(t, "", nil)
	probes := 0
	env.manager.systemdAvailable = func() bool {
		probes++
		return false
	}

	mode, err := env.manager.ResolveMode("/mnt/kg")
	if err != nil || mode != ModeDaemon {
		t.Fatalf("ResolveMode = %s, %v; want daemon", mode, err)
	}

	// The persisted choice wins over a changed probe result.
	env.manager.systemdAvailable = func() bool { return true }
	mode, err = env.manager.ResolveMode("/mnt/kg")
	if err != nil || mode != ModeDaemon {
		t.Fatalf("second ResolveMode = %s, %v; want persisted daemon", mode, err)
	}
	if probes != 1 {
		t.Errorf("probes = %d, want 1", probes)
	}

	// A different mountpoint gets its own probe.
	mode, _ = env.manager.ResolveMode("/mnt/other")
	if mode != ModeSystemd {
		t.Errorf("other mountpoint mode = %s, want systemd", mode)
	}
}

func TestResolveModeRejectsUnknown(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.manager.config.Daemon.Mode = "supervisord"

	if _, err := env.manager.ResolveMode("/mnt/kg"); err == nil {
		t.Error("unknown explicit mode accepted")
	}
}

func TestStartDaemonRecordsPIDAfterReadiness(t *testing.T) {
	env := newTestEnv(t, "", nil)
	var spawnedArgs []string
	env.manager.spawn = func(ctx context.Context, executable string, args []string, ready *os.File) (int, error) {
		spawnedArgs = args
		ready.Write([]byte{0})
		return 4242, nil
	}

	if err := env.manager.StartMount(context.Background(), "/mnt/kg"); err != nil {
		t.Fatalf("StartMount: %v", err)
	}

	pid, found, err := env.state.ReadPID("/mnt/kg")
	if err != nil || !found || pid != 4242 {
		t.Errorf("PID record = %d found=%v err=%v, want 4242", pid, found, err)
	}
	want := []string{"run", "--mountpoint", "/mnt/kg", "--ready-fd", "3"}
	if strings.Join(spawnedArgs, " ") != strings.Join(want, " ") {
		t.Errorf("spawn args = %v, want %v", spawnedArgs, want)
	}
}

func TestStartDaemonChildDiesBeforeReadiness(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.manager.spawn = func(ctx context.Context, executable string, args []string, ready *os.File) (int, error) {
		// Child exits without writing the readiness byte; its copy of
		// the pipe closes with the fake's return.
		return 4242, nil
	}

	err := env.manager.StartMount(context.Background(), "/mnt/kg")
	if err == nil {
		t.Fatal("StartMount succeeded without readiness")
	}
	if _, found, _ := env.state.ReadPID("/mnt/kg"); found {
		t.Error("PID record written for a child that never became ready")
	}
	if len(env.signals) == 0 || env.signals[len(env.signals)-1] != "4242:killed" {
		t.Errorf("signals = %v, want trailing SIGKILL of the child", env.signals)
	}
}

func TestStartDaemonReadinessTimeout(t *testing.T) {
	env := newTestEnv(t, "", nil)

	var held *os.File
	t.Cleanup(func() {
		if held != nil {
			held.Close()
		}
	})
	env.manager.spawn = func(ctx context.Context, executable string, args []string, ready *os.File) (int, error) {
		// Keep the write end open so the parent sees neither a byte
		// nor EOF, only the timeout.
		fd, err := syscall.Dup(int(ready.Fd()))
		if err != nil {
			t.Fatalf("dup: %v", err)
		}
		held = os.NewFile(uintptr(fd), "ready-held")
		return 4242, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- env.manager.StartMount(context.Background(), "/mnt/kg")
	}()

	for env.clock.PendingCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	env.clock.Advance(6 * time.Second)

	err := <-done
	if err == nil || !strings.Contains(err.Error(), "not ready") {
		t.Fatalf("err = %v, want readiness timeout", err)
	}
	if _, found, _ := env.state.ReadPID("/mnt/kg"); found {
		t.Error("PID record written despite readiness timeout")
	}
}

func TestStartMountAlreadyRunning(t *testing.T) {
	env := newTestEnv(t, ontofsMountLine("/mnt/kg"),
		map[int]string{4242: "/usr/local/bin/ontofs"})
	env.state.WritePID("/mnt/kg", 4242)

	err := env.manager.StartMount(context.Background(), "/mnt/kg")
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestStartMountOrphaned(t *testing.T) {
	env := newTestEnv(t, ontofsMountLine("/mnt/kg"), nil)

	err := env.manager.StartMount(context.Background(), "/mnt/kg")
	if !errors.Is(err, ErrOrphaned) {
		t.Errorf("err = %v, want ErrOrphaned", err)
	}
}

func TestStopDaemonSignalsAndClearsRecord(t *testing.T) {
	// The mount table is already empty, as if the daemon unmounted
	// the instant it received SIGTERM.
	env := newTestEnv(t, "", map[int]string{4242: "/usr/local/bin/ontofs"})
	env.state.WritePID("/mnt/kg", 4242)

	if err := env.manager.StopMount(context.Background(), "/mnt/kg"); err != nil {
		t.Fatalf("StopMount: %v", err)
	}

	var termed bool
	for _, s := range env.signals {
		if s == "4242:terminated" {
			termed = true
		}
	}
	if !termed {
		t.Errorf("signals = %v, want SIGTERM to 4242", env.signals)
	}
	if _, found, _ := env.state.ReadPID("/mnt/kg"); found {
		t.Error("PID record not cleared after stop")
	}
}

func TestStopMountNotRunning(t *testing.T) {
	env := newTestEnv(t, "", nil)

	err := env.manager.StopMount(context.Background(), "/mnt/kg")
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}
}

func TestStopMountOrphanedNeverAutoResolved(t *testing.T) {
	env := newTestEnv(t, ontofsMountLine("/mnt/kg"), nil)

	err := env.manager.StopMount(context.Background(), "/mnt/kg")
	if !errors.Is(err, ErrOrphaned) {
		t.Errorf("err = %v, want ErrOrphaned", err)
	}
	if len(env.signals) != 0 {
		t.Errorf("signals = %v, orphan handling must not signal anything", env.signals)
	}
}

func TestStatusSystemdActiveUnit(t *testing.T) {
	// A systemd-managed mount writes no PID record: mounted with an
	// active unit is running, not orphaned.
	env := newTestEnv(t, ontofsMountLine("/mnt/kg"), nil)
	env.manager.config.Daemon.Mode = "systemd"

	record, err := env.manager.Status(context.Background(), "/mnt/kg")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if record.State != mountstate.StateRunning {
		t.Errorf("state = %s, want running for an active unit", record.State)
	}
	want := "systemctl --user is-active --quiet ontofs-mnt-kg.service"
	if len(env.commands) != 1 || env.commands[0] != want {
		t.Errorf("commands = %v, want [%s]", env.commands, want)
	}
}

func TestStatusSystemdInactiveUnit(t *testing.T) {
	env := newTestEnv(t, ontofsMountLine("/mnt/kg"), nil)
	env.manager.config.Daemon.Mode = "systemd"
	env.manager.runCommand = func(ctx context.Context, name string, args ...string) error {
		return errors.New("inactive")
	}

	record, err := env.manager.Status(context.Background(), "/mnt/kg")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if record.State != mountstate.StateOrphaned {
		t.Errorf("state = %s, want orphaned when the unit is not active", record.State)
	}
}

func TestStatusSystemdPersistedMode(t *testing.T) {
	env := newTestEnv(t, ontofsMountLine("/mnt/kg"), nil)
	env.manager.systemdAvailable = func() bool { return true }
	if mode, err := env.manager.ResolveMode("/mnt/kg"); err != nil || mode != ModeSystemd {
		t.Fatalf("ResolveMode = %s, %v; want systemd", mode, err)
	}

	// No explicit config mode: the persisted per-mount record alone
	// identifies the mount as unit-managed.
	record, err := env.manager.Status(context.Background(), "/mnt/kg")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if record.State != mountstate.StateRunning {
		t.Errorf("state = %s, want running via persisted mode", record.State)
	}
}

func TestStatusDaemonOrphanNotUpgraded(t *testing.T) {
	env := newTestEnv(t, ontofsMountLine("/mnt/kg"), nil)
	env.manager.config.Daemon.Mode = "daemon"

	record, err := env.manager.Status(context.Background(), "/mnt/kg")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if record.State != mountstate.StateOrphaned {
		t.Errorf("state = %s, want orphaned", record.State)
	}
	if len(env.commands) != 0 {
		t.Errorf("commands = %v, daemon-mode status must not consult systemctl", env.commands)
	}
}

func TestStartSystemdInstallsAndEnablesUnit(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.manager.config.Daemon.Mode = "systemd"

	if err := env.manager.StartMount(context.Background(), "/mnt/kg"); err != nil {
		t.Fatalf("StartMount: %v", err)
	}

	unitPath := filepath.Join(env.unitDir, "ontofs-mnt-kg.service")
	content, err := os.ReadFile(unitPath)
	if err != nil {
		t.Fatalf("unit not installed: %v", err)
	}
	for _, want := range []string{
		"ExecStart=/usr/local/bin/ontofs run --mountpoint /mnt/kg",
		"Environment=ONTOFS_CONFIG=/etc/ontofs/ontofs.yaml",
	} {
		if !strings.Contains(string(content), want) {
			t.Errorf("unit missing %q:\n%s", want, content)
		}
	}

	wantCommands := []string{
		"systemctl --user daemon-reload",
		"systemctl --user enable --now ontofs-mnt-kg.service",
	}
	if strings.Join(env.commands, "; ") != strings.Join(wantCommands, "; ") {
		t.Errorf("commands = %v, want %v", env.commands, wantCommands)
	}
}

func TestStartSystemdAlreadyMounted(t *testing.T) {
	env := newTestEnv(t, ontofsMountLine("/mnt/kg"), nil)
	env.manager.config.Daemon.Mode = "systemd"

	err := env.manager.StartMount(context.Background(), "/mnt/kg")
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
	if len(env.commands) != 0 {
		t.Errorf("commands = %v, want none", env.commands)
	}
}

func TestStopSystemdDisablesUnit(t *testing.T) {
	env := newTestEnv(t, ontofsMountLine("/mnt/kg"), nil)
	env.manager.config.Daemon.Mode = "systemd"

	if err := env.manager.StopMount(context.Background(), "/mnt/kg"); err != nil {
		t.Fatalf("StopMount: %v", err)
	}
	want := "systemctl --user disable --now ontofs-mnt-kg.service"
	if len(env.commands) != 1 || env.commands[0] != want {
		t.Errorf("commands = %v, want [%s]", env.commands, want)
	}
}

func TestUnitName(t *testing.T) {
	cases := []struct {
		mountpoint string
		want       string
	}{
		{"/mnt/kg", "ontofs-mnt-kg.service"},
		{"/home/user/graph/", "ontofs-home-user-graph.service"},
		{"/", "ontofs-root.service"},
	}
	for _, c := range cases {
		if got := unitName(c.mountpoint); got != c.want {
			t.Errorf("unitName(%q) = %q, want %q", c.mountpoint, got, c.want)
		}
	}
}

func TestRenderUnitWithoutConfigPath(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.manager.configPath = ""

	content, err := env.manager.renderUnit("/mnt/kg")
	if err != nil {
		t.Fatalf("renderUnit: %v", err)
	}
	if strings.Contains(string(content), "ONTOFS_CONFIG") {
		t.Errorf("unit sets ONTOFS_CONFIG with no config path:\n%s", content)
	}
}
