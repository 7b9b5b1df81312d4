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

func unmountCommand() *command {
	var (
		configPath string
		verbose    bool
	)
	return &command{
		Name:    "unmount",
		Summary: "stop the filesystem owning a mountpoint",
		Usage:   "ontofs unmount <mountpoint> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("unmount", pflag.ContinueOnError)
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
			if err := manager.StopMount(context.Background(), mountpoint); err != nil {
				return err
			}
			fmt.Printf("unmounted %s\n", mountpoint)
			return nil
		},
	}
}
