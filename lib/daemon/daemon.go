// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ontograph/ontofs/lib/clock"
	"github.com/ontograph/ontofs/lib/config"
	"github.com/ontograph/ontofs/lib/mountstate"
)

var (
	// ErrAlreadyRunning is returned when starting a mount that is
	// already held by a live owner process.
	ErrAlreadyRunning = errors.New("mount already running")

	// ErrOrphaned is returned when a mountpoint is still present in
	// the kernel mount table but has no live owner. Orphans are never
	// resolved automatically; the operator must force-unmount.
	ErrOrphaned = errors.New("mountpoint is orphaned (mounted with no live owner, force-unmount required)")

	// ErrNotRunning is returned when stopping a mount that has no
	// live owner and no mount-table entry.
	ErrNotRunning = errors.New("mount not running")
)

// spawnFunc launches the detached filesystem process and returns its
// PID. ready is the write end of the readiness pipe, passed to the
// child as an inherited descriptor.
type spawnFunc func(ctx context.Context, executable string, args []string, ready *os.File) (int, error)

// Manager starts and stops ontofs mounts.
type Manager struct {
	config     *config.Config
	state      *mountstate.Store
	stateDir   string
	configPath string
	executable string
	unitDir    string
	clock      clock.Clock
	logger     *slog.Logger

	// Process and init-system seams, replaced in tests.
	spawn            spawnFunc
	runCommand       func(ctx context.Context, name string, args ...string) error
	kill             func(pid int, sig syscall.Signal) error
	systemdAvailable func() bool
}

// Options configures a Manager.
type Options struct {
	// Config supplies run mode, mount timeout, and backend settings.
	Config *config.Config

	// State inspects and records mount ownership.
	State *mountstate.Store

	// ConfigPath, when set, is propagated to spawned processes and
	// rendered units via ONTOFS_CONFIG.
	ConfigPath string

	// Executable is the ontofs binary to re-exec. If empty, the
	// current executable is used.
	Executable string

	// Clock provides time for timeouts. If nil, defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, a stderr handler
	// at error level is used.
	Logger *slog.Logger
}

// New creates a Manager.
func New(options Options) (*Manager, error) {
	if options.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if options.State == nil {
		return nil, fmt.Errorf("mount state store is required")
	}
	if options.Executable == "" {
		executable, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolving own executable: %w", err)
		}
		options.Executable = executable
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	manager := &Manager{
		config:           options.Config,
		state:            options.State,
		stateDir:         options.Config.Paths.State,
		configPath:       options.ConfigPath,
		executable:       options.Executable,
		unitDir:          defaultUnitDir(),
		clock:            options.Clock,
		logger:           options.Logger,
		runCommand:       defaultRunCommand,
		kill:             unix.Kill,
		systemdAvailable: defaultSystemdProbe,
	}
	manager.spawn = manager.defaultSpawn
	return manager, nil
}

// StartMount starts the filesystem for a mountpoint in its resolved
// run mode. Starting an already-running mount is rejected, not
// duplicated; an orphaned mountpoint is reported and never adopted.
func (m *Manager) StartMount(ctx context.Context, mountpoint string) error {
	mode, err := m.ResolveMode(mountpoint)
	if err != nil {
		return err
	}

	// Systemd-managed mounts have no PID record; the unit's process
	// is systemd's to track. Mount-table presence is the only
	// already-running signal.
	if mode == ModeSystemd {
		mounted, err := m.state.IsMounted(mountpoint)
		if err != nil {
			return err
		}
		if mounted {
			return fmt.Errorf("%w: %s", ErrAlreadyRunning, mountpoint)
		}
		return m.startSystemd(ctx, mountpoint)
	}

	record, err := m.state.Status(mountpoint)
	if err != nil {
		return err
	}
	switch record.State {
	case mountstate.StateRunning:
		return fmt.Errorf("%w: %s (PID %d)", ErrAlreadyRunning, mountpoint, record.PID)
	case mountstate.StateOrphaned:
		return fmt.Errorf("%w: %s", ErrOrphaned, mountpoint)
	}
	return m.startDaemon(ctx, mountpoint)
}

// startDaemon re-execs the ontofs binary as a detached child running
// the filesystem event loop, waits for its readiness byte, and only
// then records the child's PID. A child that dies or stalls before
// readiness leaves no record behind.
func (m *Manager) startDaemon(ctx context.Context, mountpoint string) error {
	readyRead, readyWrite, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating readiness pipe: %w", err)
	}
	defer readyRead.Close()

	args := []string{"run", "--mountpoint", mountpoint, "--ready-fd", "3"}
	pid, err := m.spawn(ctx, m.executable, args, readyWrite)
	readyWrite.Close()
	if err != nil {
		return fmt.Errorf("starting mount daemon: %w", err)
	}

	ready := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		n, err := readyRead.Read(buf)
		if n == 1 {
			ready <- nil
			return
		}
		if err == nil {
			err = errors.New("readiness pipe closed without signal")
		}
		ready <- err
	}()

	timeout := m.config.MountTimeout()
	select {
	case err := <-ready:
		if err != nil {
			m.kill(pid, syscall.SIGKILL)
			return fmt.Errorf("mount daemon for %s exited before readiness: %w", mountpoint, err)
		}
	case <-m.clock.After(timeout):
		m.kill(pid, syscall.SIGKILL)
		return fmt.Errorf("mount daemon for %s not ready after %s", mountpoint, timeout)
	case <-ctx.Done():
		m.kill(pid, syscall.SIGKILL)
		return ctx.Err()
	}

	if err := m.state.WritePID(mountpoint, pid); err != nil {
		return err
	}
	m.logger.Info("mount daemon started", "mountpoint", mountpoint, "pid", pid)
	return nil
}

// StopMount stops the filesystem owning a mountpoint. Daemon mode
// signals the recorded owner with SIGTERM and waits for the mount to
// disappear from the mount table; systemd mode disables the unit.
func (m *Manager) StopMount(ctx context.Context, mountpoint string) error {
	mode, err := m.ResolveMode(mountpoint)
	if err != nil {
		return err
	}
	if mode == ModeSystemd {
		return m.stopSystemd(ctx, mountpoint)
	}

	record, err := m.state.Status(mountpoint)
	if err != nil {
		return err
	}
	switch record.State {
	case mountstate.StateOrphaned:
		return fmt.Errorf("%w: %s", ErrOrphaned, mountpoint)
	case mountstate.StateStopped:
		return fmt.Errorf("%w: %s", ErrNotRunning, mountpoint)
	}

	if err := m.kill(record.PID, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signalling mount daemon (PID %d): %w", record.PID, err)
	}

	// The daemon unmounts on SIGTERM; wait for the mount-table entry
	// to disappear.
	deadline := m.clock.Now().Add(m.config.MountTimeout())
	for {
		mounted, err := m.state.IsMounted(mountpoint)
		if err != nil {
			return err
		}
		if !mounted {
			break
		}
		if m.clock.Now().After(deadline) {
			return fmt.Errorf("mount %s still present after %s; owner signalled but unmount pending",
				mountpoint, m.config.MountTimeout())
		}
		m.clock.Sleep(100 * time.Millisecond)
	}

	if err := m.state.ClearPID(mountpoint); err != nil {
		return err
	}
	m.logger.Info("mount daemon stopped", "mountpoint", mountpoint, "pid", record.PID)
	return nil
}

// Status reports the derived state of a mountpoint. A systemd-managed
// mount never writes a PID record, so the store alone would call its
// healthy mount-table entry orphaned; when the mount's known run mode
// is systemd and its unit is active, the mount is running.
func (m *Manager) Status(ctx context.Context, mountpoint string) (mountstate.Record, error) {
	record, err := m.state.Status(mountpoint)
	if err != nil {
		return record, err
	}
	if record.State != mountstate.StateOrphaned {
		return record, nil
	}
	if mode, ok := m.knownMode(mountpoint); !ok || mode != ModeSystemd {
		return record, nil
	}
	if err := m.runCommand(ctx, "systemctl", "--user", "is-active", "--quiet", unitName(mountpoint)); err != nil {
		return record, nil
	}
	record.State = mountstate.StateRunning
	return record, nil
}

// defaultSpawn launches the child fully detached: its own session, no
// controlling TTY, stdio on /dev/null. The readiness pipe rides on
// descriptor 3.
func (m *Manager) defaultSpawn(ctx context.Context, executable string, args []string, ready *os.File) (int, error) {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(executable, args...)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.ExtraFiles = []*os.File{ready}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// Reap the child when it eventually exits so it never lingers as
	// a zombie while this process is still alive.
	go cmd.Wait()

	return pid, nil
}

func defaultRunCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, output)
	}
	return nil
}
