// Package config loads the application configuration from a YAML file and
// applies defaults and validation.
// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the sync subsystem.
type Config struct {
	// BaseURL of the cloud calibration service.
	BaseURL string `yaml:"base_url"`
	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"database_path"`
	// HTTPTimeout bounds each remote call at the transport layer.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// ProbeTimeout bounds the connectivity health probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig holds the backoff parameters for remote calls.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// Default returns the configuration used when no file overrides anything.
func Default() *Config {
	return &Config{
		DatabasePath: "calsync.db",
		HTTPTimeout:  30 * time.Second,
		ProbeTimeout: 3 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 600 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2,
		},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML bytes into a Config, applying defaults and
// validating the result.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	def := Default()
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = def.HTTPTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = def.Retry.InitialDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if c.Retry.Multiplier <= 1 {
		c.Retry.Multiplier = def.Retry.Multiplier
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not a valid URL", c.BaseURL)
	}
	if c.Retry.InitialDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry initial_delay %s exceeds max_delay %s", c.Retry.InitialDelay, c.Retry.MaxDelay)
	}
	return nil
}
