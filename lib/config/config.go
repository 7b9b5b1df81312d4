// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for ontofs.
//
// Configuration is loaded from a single YAML file specified by:
//   - ONTOFS_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides. The
// only expansion performed is ${HOME} and similar path variables for
// portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for ontofs.
type Config struct {
	// Backend configures the knowledge-graph service connection.
	Backend BackendConfig `yaml:"backend"`

	// Mount configures filesystem behavior.
	Mount MountConfig `yaml:"mount"`

	// Daemon configures mount process supervision.
	Daemon DaemonConfig `yaml:"daemon"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`
}

// BackendConfig configures the knowledge-graph service connection.
type BackendConfig struct {
	// URL is the base URL of the knowledge-graph service.
	URL string `yaml:"url"`

	// ClientID is the OAuth client-credentials client ID.
	ClientID string `yaml:"client_id"`

	// ClientSecret is the OAuth client-credentials client secret.
	ClientSecret string `yaml:"client_secret"`

	// RequestTimeout bounds every backend request. A slow backend
	// call blocks the corresponding filesystem operation until this
	// elapses, then fails rather than retrying silently.
	// Default: 30s
	RequestTimeout string `yaml:"request_timeout"`

	// PageLimit is the page size for document listings.
	// Default: 100
	PageLimit int `yaml:"page_limit"`
}

// MountConfig configures filesystem behavior.
type MountConfig struct {
	// CacheTTL is how long a cached directory listing stays valid.
	// Default: 30s
	CacheTTL string `yaml:"cache_ttl"`

	// HideJobs prefixes in-flight ingestion placeholders with a dot
	// so that plain directory listings do not show them.
	HideJobs bool `yaml:"hide_jobs"`

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`
}

// DaemonConfig configures mount process supervision.
type DaemonConfig struct {
	// Mode selects how mounts are supervised: "daemon" for a
	// detached forked process, "systemd" for an init-system unit.
	// Empty means probe once and persist the choice per mountpoint.
	Mode string `yaml:"mode"`

	// MountTimeout is how long to wait for a started mount to
	// signal readiness before giving up.
	// Default: 30s
	MountTimeout string `yaml:"mount_timeout"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// State is where PID records, run-mode records, and daemon logs
	// are stored.
	State string `yaml:"state"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback — the
// config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Backend: BackendConfig{
			RequestTimeout: "30s",
			PageLimit:      100,
		},
		Mount: MountConfig{
			CacheTTL: "30s",
		},
		Daemon: DaemonConfig{
			MountTimeout: "30s",
		},
		Paths: PathsConfig{
			State: filepath.Join(homeDir, ".local", "state", "ontofs"),
		},
	}
}

// Load loads configuration from the ONTOFS_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults — if ONTOFS_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("ONTOFS_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("ONTOFS_CONFIG environment variable not set; " +
			"set it to the path of your ontofs.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.State = expandVars(c.Paths.State, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Backend.URL == "" {
		errs = append(errs, fmt.Errorf("backend.url is required"))
	}
	if c.Backend.ClientID == "" {
		errs = append(errs, fmt.Errorf("backend.client_id is required"))
	}
	if c.Backend.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("backend.client_secret is required"))
	}
	if c.Backend.PageLimit <= 0 {
		errs = append(errs, fmt.Errorf("backend.page_limit must be positive"))
	}
	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}

	if _, err := parseDuration(c.Backend.RequestTimeout, "backend.request_timeout"); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration(c.Mount.CacheTTL, "mount.cache_ttl"); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration(c.Daemon.MountTimeout, "daemon.mount_timeout"); err != nil {
		errs = append(errs, err)
	}

	if c.Daemon.Mode != "" && c.Daemon.Mode != "daemon" && c.Daemon.Mode != "systemd" {
		errs = append(errs, fmt.Errorf("daemon.mode must be empty, \"daemon\", or \"systemd\""))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// RequestTimeout returns the parsed backend request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return mustDuration(c.Backend.RequestTimeout, 30*time.Second)
}

// CacheTTL returns the parsed directory-cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return mustDuration(c.Mount.CacheTTL, 30*time.Second)
}

// MountTimeout returns the parsed mount readiness timeout.
func (c *Config) MountTimeout() time.Duration {
	return mustDuration(c.Daemon.MountTimeout, 30*time.Second)
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive", field)
	}
	return d, nil
}

// mustDuration parses a duration that Validate has already checked,
// falling back to a default for the empty string.
func mustDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	if c.Paths.State == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.State, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.State, err)
	}
	return nil
}
