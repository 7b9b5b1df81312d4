// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/ontograph/ontofs/lib/daemon"
	"github.com/ontograph/ontofs/lib/mountstate"
)

func mountCommand() *command {
	var (
		configPath string
		verbose    bool
	)
	return &command{
		Name:    "mount",
		Summary: "start the filesystem for a mountpoint",
		Description: "Mount resolves the run mode for the mountpoint (detached\n" +
			"daemon or systemd user unit), starts the filesystem, and waits\n" +
			"for it to signal readiness before returning.",
		Usage: "ontofs mount <mountpoint> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("mount", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to ontofs.yaml (default: $ONTOFS_CONFIG)")
			flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one mountpoint required")
			}
			mountpoint, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving mountpoint: %w", err)
			}

			cfg, resolvedPath, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if err := cfg.EnsurePaths(); err != nil {
				return err
			}
			logger := newLogger(verbose)

			manager, err := daemon.New(daemon.Options{
				Config: cfg,
				State: mountstate.New(mountstate.Options{
					StateDir: cfg.Paths.State,
					Logger:   logger,
				}),
				ConfigPath: resolvedPath,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			if err := manager.StartMount(context.Background(), mountpoint); err != nil {
				return err
			}
			fmt.Printf("mounted %s\n", mountpoint)
			return nil
		},
	}
}
