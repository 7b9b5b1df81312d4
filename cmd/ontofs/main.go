// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

// Ontofs projects a remote knowledge-graph service as a read-only
// filesystem: ontologies appear as directories, their documents as
// files, and in-flight ingestion jobs as placeholder entries that
// disappear once the real document lands.
//
// The binary has two faces. The operator commands (mount, unmount,
// status) manage mount lifecycles through PID records and the kernel
// mount table; the run command is the filesystem event loop itself,
// started detached by mount or supervised by a systemd user unit.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ontograph/ontofs/lib/config"
	"github.com/ontograph/ontofs/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &command{
		Name:    "ontofs",
		Summary: "mount a knowledge graph as a read-only filesystem",
		Subcommands: []*command{
			mountCommand(),
			unmountCommand(),
			statusCommand(),
			jobCommand(),
			runCommand(),
			{
				Name:    "version",
				Summary: "print version information",
				Run: func(args []string) error {
					fmt.Println(version.Full())
					return nil
				},
			},
		},
	}
	return root.Execute(os.Args[1:])
}

// loadConfig loads and validates configuration from the --config flag
// value or, when empty, the ONTOFS_CONFIG environment variable. It
// returns the resolved path alongside the config so callers can
// propagate it to spawned processes and rendered units.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = os.Getenv("ONTOFS_CONFIG")
	}
	if path == "" {
		return nil, "", fmt.Errorf("no configuration: set ONTOFS_CONFIG or pass --config")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger. Operator commands default to
// warnings only; --verbose switches to debug.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
