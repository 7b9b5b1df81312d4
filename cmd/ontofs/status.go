// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/ontograph/ontofs/lib/daemon"
	"github.com/ontograph/ontofs/lib/mountstate"
)

func statusCommand() *command {
	var (
		configPath string
		verbose    bool
	)
	return &command{
		Name:    "status",
		Summary: "report mount states from PID records and the mount table",
		Description: "Status inspects the PID records, the kernel mount table, and\n" +
			"(for systemd-managed mounts) the unit's active state; it never\n" +
			"talks to running filesystem processes. With no arguments, every\n" +
			"recorded mountpoint is reported.",
		Usage: "ontofs status [mountpoint...] [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to ontofs.yaml (default: $ONTOFS_CONFIG)")
			flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
			return flags
		},
		Run: func(args []string) error {
			cfg, resolvedPath, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(verbose)
			state := mountstate.New(mountstate.Options{
				StateDir: cfg.Paths.State,
				Logger:   logger,
			})
			manager, err := daemon.New(daemon.Options{
				Config:     cfg,
				State:      state,
				ConfigPath: resolvedPath,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			mountpoints := make([]string, 0, len(args))
			for _, arg := range args {
				mountpoint, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolving mountpoint %s: %w", arg, err)
				}
				mountpoints = append(mountpoints, mountpoint)
			}
			if len(mountpoints) == 0 {
				mountpoints, err = state.ListMountpoints()
				if err != nil {
					return err
				}
				if len(mountpoints) == 0 {
					fmt.Println("no recorded mounts")
					return nil
				}
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "MOUNTPOINT\tSTATE\tPID")
			for _, mountpoint := range mountpoints {
				record, err := manager.Status(context.Background(), mountpoint)
				if err != nil {
					return err
				}
				pid := "-"
				if record.PID != 0 {
					pid = fmt.Sprint(record.PID)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", record.Path, record.State, pid)
			}
			return tw.Flush()
		},
	}
}
