// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ontograph/ontofs/lib/kg"
	"github.com/ontograph/ontofs/lib/kgfuse"
)

func runCommand() *command {
	var (
		configPath string
		mountpoint string
		readyFD    int
		verbose    bool
	)
	return &command{
		Name:    "run",
		Summary: "run the filesystem event loop in the foreground",
		Description: "Run mounts the filesystem and serves kernel requests until\n" +
			"SIGINT or SIGTERM. The mount command and the systemd user unit\n" +
			"both start this; it can also be run directly for debugging.",
		Usage: "ontofs run --mountpoint <dir> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to ontofs.yaml (default: $ONTOFS_CONFIG)")
			flags.StringVar(&mountpoint, "mountpoint", "", "directory to mount the filesystem at (required)")
			flags.IntVar(&readyFD, "ready-fd", 0, "descriptor to signal readiness on once mounted")
			flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
			return flags
		},
		Run: func(args []string) error {
			if mountpoint == "" {
				return fmt.Errorf("--mountpoint is required")
			}

			cfg, _, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(verbose)

			client, err := kg.New(kg.Options{
				BaseURL:      cfg.Backend.URL,
				ClientID:     cfg.Backend.ClientID,
				ClientSecret: cfg.Backend.ClientSecret,
				Timeout:      cfg.RequestTimeout(),
				PageLimit:    cfg.Backend.PageLimit,
				Logger:       logger,
			})
			if err != nil {
				return err
			}

			server, err := kgfuse.Mount(kgfuse.Options{
				Mountpoint: mountpoint,
				Backend:    client,
				HideJobs:   cfg.Mount.HideJobs,
				CacheTTL:   cfg.CacheTTL(),
				AllowOther: cfg.Mount.AllowOther,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			// Readiness is signalled only after the kernel mount
			// succeeded: the parent writes the PID record on this byte.
			if readyFD > 0 {
				ready := os.NewFile(uintptr(readyFD), "ready")
				if ready != nil {
					ready.Write([]byte{0})
					ready.Close()
				}
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-signals
				logger.Info("shutting down", "signal", sig)
				if err := server.Unmount(); err != nil {
					logger.Error("unmount failed", "error", err)
				}
			}()

			server.Wait()
			return nil
		},
	}
}
