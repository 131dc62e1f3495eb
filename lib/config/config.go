// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Cloister
// server.
//
// Configuration is loaded from a single YAML file specified by:
//   - CLOISTER_CONFIG environment variable, or
//   - --config flag passed to the server
//
// There are no fallbacks or automatic discovery. The config file is the
// single source of truth; environment variables never override values.
// The only expansion performed is ${VAR} and ${VAR:-default} in paths,
// for portability across machines.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloister-systems/cloister/lib/sealed"
)

// Config is the master configuration for the Cloister server.
type Config struct {
	// Listen configures the control socket.
	Listen ListenConfig `yaml:"listen"`

	// Keys configures where identity public keys are loaded from.
	Keys KeysConfig `yaml:"keys"`

	// Datastore configures dataset persistence.
	Datastore DatastoreConfig `yaml:"datastore"`

	// Auth configures challenge and session lifetimes.
	Auth AuthConfig `yaml:"auth"`

	// Review configures the release review workflow.
	Review ReviewConfig `yaml:"review"`
}

// ListenConfig configures the control socket.
type ListenConfig struct {
	// SocketPath is the Unix socket the server listens on.
	// Default: /run/cloister/cloister.sock
	SocketPath string `yaml:"socket_path"`
}

// KeysConfig configures identity loading.
type KeysConfig struct {
	// Directory holds the registered public keys: owners/*.pem for data
	// owners, users/*.pem for data scientists. Keys are loaded once at
	// startup; registration is an offline act of placing a PEM file.
	Directory string `yaml:"directory"`
}

// DatastoreConfig configures dataset persistence.
type DatastoreConfig struct {
	// Path is the SQLite database file holding sealed dataset frames
	// and their policies. Default: ${CLOISTER_ROOT}/datasets.db
	Path string `yaml:"path"`

	// SealingRecipients are age public keys (age1...) that dataset
	// frames are sealed to at rest. At least one is required.
	SealingRecipients []string `yaml:"sealing_recipients"`

	// SealingIdentityFile is the age identity the server unseals
	// frames with when materializing released results. Its public key
	// should be among SealingRecipients. "-" reads from stdin.
	SealingIdentityFile string `yaml:"sealing_identity_file"`

	// PoolSize is the number of SQLite connections kept open.
	// Default: 4.
	PoolSize int `yaml:"pool_size"`
}

// AuthConfig configures challenge and session lifetimes. Durations use
// Go syntax ("30s", "10m").
type AuthConfig struct {
	// ChallengeTTL is how long an issued challenge stays redeemable.
	// Default: 30s.
	ChallengeTTL string `yaml:"challenge_ttl"`

	// SessionTTL is the session lifetime, also granted anew on each
	// refresh. Default: 10m.
	SessionTTL string `yaml:"session_ttl"`
}

// ReviewConfig configures the release review workflow.
type ReviewConfig struct {
	// DecisionTimeout is how long a release request blocks waiting for
	// an owner verdict before timing out. Default: 5m.
	DecisionTimeout string `yaml:"decision_timeout"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible values before the config file is merged in; the
// config file itself is still required.
func Default() *Config {
	root := defaultRoot()

	return &Config{
		Listen: ListenConfig{
			SocketPath: "/run/cloister/cloister.sock",
		},
		Keys: KeysConfig{
			Directory: filepath.Join(root, "keys"),
		},
		Datastore: DatastoreConfig{
			Path:     filepath.Join(root, "datasets.db"),
			PoolSize: 4,
		},
		Auth: AuthConfig{
			ChallengeTTL: "30s",
			SessionTTL:   "10m",
		},
		Review: ReviewConfig{
			DecisionTimeout: "5m",
		},
	}
}

func defaultRoot() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "cloister")
}

// Load loads configuration from the CLOISTER_CONFIG environment
// variable. If CLOISTER_CONFIG is not set, this fails; there is no
// search path.
func Load() (*Config, error) {
	configPath := os.Getenv("CLOISTER_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CLOISTER_CONFIG environment variable not set; " +
			"set it to the path of your cloister.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging over
// the defaults and expanding ${VAR} patterns in paths.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CLOISTER_ROOT": defaultRoot(),
		"HOME":          os.Getenv("HOME"),
	}

	c.Listen.SocketPath = expandVars(c.Listen.SocketPath, vars)
	c.Keys.Directory = expandVars(c.Keys.Directory, vars)
	c.Datastore.Path = expandVars(c.Datastore.Path, vars)
	c.Datastore.SealingIdentityFile = expandVars(c.Datastore.SealingIdentityFile, vars)
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

// Validate checks the configuration for errors. All problems are
// reported together rather than one at a time.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.SocketPath == "" {
		errs = append(errs, fmt.Errorf("listen.socket_path is required"))
	}
	if c.Keys.Directory == "" {
		errs = append(errs, fmt.Errorf("keys.directory is required"))
	}
	if c.Datastore.Path == "" {
		errs = append(errs, fmt.Errorf("datastore.path is required"))
	}
	if len(c.Datastore.SealingRecipients) == 0 {
		errs = append(errs, fmt.Errorf("datastore.sealing_recipients must list at least one age public key"))
	}
	if c.Datastore.SealingIdentityFile == "" {
		errs = append(errs, fmt.Errorf("datastore.sealing_identity_file is required"))
	}
	for _, recipient := range c.Datastore.SealingRecipients {
		if err := sealed.ValidateRecipient(recipient); err != nil {
			errs = append(errs, fmt.Errorf("datastore.sealing_recipients: %w", err))
		}
	}
	if c.Datastore.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("datastore.pool_size must be positive"))
	}

	if _, err := parsePositiveDuration(c.Auth.ChallengeTTL); err != nil {
		errs = append(errs, fmt.Errorf("auth.challenge_ttl: %w", err))
	}
	if _, err := parsePositiveDuration(c.Auth.SessionTTL); err != nil {
		errs = append(errs, fmt.Errorf("auth.session_ttl: %w", err))
	}
	if _, err := parsePositiveDuration(c.Review.DecisionTimeout); err != nil {
		errs = append(errs, fmt.Errorf("review.decision_timeout: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ChallengeTTL returns the parsed challenge lifetime. Call Validate
// first; parse errors here fall back to the default.
func (c *Config) ChallengeTTL() time.Duration {
	return durationOrDefault(c.Auth.ChallengeTTL, 30*time.Second)
}

// SessionTTL returns the parsed session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return durationOrDefault(c.Auth.SessionTTL, 10*time.Minute)
}

// ReviewTimeout returns the parsed review decision timeout.
func (c *Config) ReviewTimeout() time.Duration {
	return durationOrDefault(c.Review.DecisionTimeout, 5*time.Minute)
}

func durationOrDefault(raw string, fallback time.Duration) time.Duration {
	parsed, err := parsePositiveDuration(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, fmt.Errorf("duration is required")
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", raw)
	}
	return parsed, nil
}

// EnsurePaths creates the directories the server writes into: the
// socket's parent directory and the datastore's parent directory.
func (c *Config) EnsurePaths() error {
	for _, dir := range []string{
		filepath.Dir(c.Listen.SocketPath),
		filepath.Dir(c.Datastore.Path),
	} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
