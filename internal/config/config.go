// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for wave.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides.
//
// Configuration file locations (in order of precedence):
//   - The path in WAVE_CONFIG, when set
//   - ~/.wave/config.toml
//   - Built-in defaults
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete wave configuration.
type Config struct {
	// ServerURL is the websocket chat endpoint.
	ServerURL string `toml:"server_url"`

	// APIURL is the REST endpoint used for account registration.
	APIURL string `toml:"api_url"`

	// DataDir holds per-account message databases and the log file.
	// Empty means ~/.wave.
	DataDir string `toml:"data_dir"`

	// RequestTimeoutSecs bounds each request/response round trip.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// UIConfig contains display settings.
type UIConfig struct {
	// ShowTimestamps prefixes each message with its send time.
	ShowTimestamps bool `toml:"show_timestamps"`

	// TimeFormat is the Go layout for message timestamps.
	TimeFormat string `toml:"time_format"`

	// RecipientPaneWidth is the width of the recipient list in columns.
	RecipientPaneWidth int `toml:"recipient_pane_width"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		ServerURL:          "ws://localhost:8080/chat",
		APIURL:             "http://localhost:8080",
		DataDir:            "",
		RequestTimeoutSecs: 10,
		UI: UIConfig{
			ShowTimestamps:     true,
			TimeFormat:         "15:04",
			RecipientPaneWidth: 24,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the wave configuration directory (~/.wave).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".wave"), nil
}

// ConfigPath returns the path to the TOML configuration file.
func ConfigPath() (string, error) {
	if p := os.Getenv("WAVE_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir creates the configuration directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration file, falls back to defaults when it does
// not exist, applies environment overrides, and validates the result.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file. A missing file is
// not an error; defaults apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults resolves fields whose default depends on the environment.
func (c *Config) fillDefaults() {
	if c.DataDir == "" {
		if dir, err := ConfigDir(); err == nil {
			c.DataDir = dir
		} else {
			c.DataDir = "."
		}
	}
	if c.RequestTimeoutSecs <= 0 {
		c.RequestTimeoutSecs = Default().RequestTimeoutSecs
	}
	if c.UI.TimeFormat == "" {
		c.UI.TimeFormat = Default().UI.TimeFormat
	}
	if c.UI.RecipientPaneWidth <= 0 {
		c.UI.RecipientPaneWidth = Default().UI.RecipientPaneWidth
	}
}

// Save writes the configuration to its canonical path.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies WAVE_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("WAVE_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("WAVE_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("WAVE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("WAVE_REQUEST_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RequestTimeoutSecs = n
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return ValidationError{Field: "server_url", Message: "not a valid URL"}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return ValidationError{Field: "server_url", Message: "scheme must be ws or wss"}
	}

	a, err := url.Parse(c.APIURL)
	if err != nil || a.Host == "" {
		return ValidationError{Field: "api_url", Message: "not a valid URL"}
	}
	if a.Scheme != "http" && a.Scheme != "https" {
		return ValidationError{Field: "api_url", Message: "scheme must be http or https"}
	}

	if c.RequestTimeoutSecs <= 0 {
		return ValidationError{Field: "request_timeout_secs", Message: "must be positive"}
	}
	return nil
}
