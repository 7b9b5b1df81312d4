// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/ontograph/ontofs/lib/kg"
)

func jobCommand() *command {
	var (
		configPath string
		verbose    bool
	)
	return &command{
		Name:    "job",
		Summary: "show the status of an ingestion job",
		Description: "Job queries the backend for one ingestion job by ID. Useful\n" +
			"for checking why a placeholder entry is still present.",
		Usage: "ontofs job <job-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("job", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to ontofs.yaml (default: $ONTOFS_CONFIG)")
			flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one job ID required")
			}

			cfg, _, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			client, err := kg.New(kg.Options{
				BaseURL:      cfg.Backend.URL,
				ClientID:     cfg.Backend.ClientID,
				ClientSecret: cfg.Backend.ClientSecret,
				Timeout:      cfg.RequestTimeout(),
				PageLimit:    cfg.Backend.PageLimit,
				Logger:       newLogger(verbose),
			})
			if err != nil {
				return err
			}

			job, err := client.GetJob(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("job:      %s\n", job.ID)
			fmt.Printf("ontology: %s\n", job.Ontology)
			fmt.Printf("filename: %s\n", job.Filename)
			fmt.Printf("status:   %s", job.State)
			if job.State.Terminal() {
				fmt.Print(" (terminal)")
			}
			fmt.Println()
			return nil
		},
	}
}
