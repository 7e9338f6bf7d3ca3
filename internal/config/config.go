// Package config loads server settings from YAML.
//
// A file only needs the keys it changes. Load decodes over Default, so
// anything left out keeps its default value. Unknown keys are rejected to
// catch typos.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lightmode/internal/lifecycle"
	"github.com/roach88/lightmode/internal/transport"
)

// Config is the full server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Database is the journal path. Empty disables the journal.
	Database string `yaml:"database"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	RateLimit RateLimit         `yaml:"rate_limit"`
	Lifecycle lifecycle.Options `yaml:"lifecycle"`
}

// RateLimit is the per-client token bucket. RequestsPerSecond of zero
// disables limiting.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Enabled reports whether requests should be limited.
func (r RateLimit) Enabled() bool { return r.RequestsPerSecond > 0 }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:       "127.0.0.1:8080",
		Database:     "lightmode.db",
		MaxBodyBytes: transport.DefaultMaxBodyBytes,
		RateLimit: RateLimit{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Lifecycle: lifecycle.DefaultOptions(),
	}
}

// Load reads path and merges it over Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping fields the document does not set.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes %d must be positive", c.MaxBodyBytes)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit %v is negative", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.Enabled() && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit burst %d must be at least 1", c.RateLimit.Burst)
	}
	if err := c.Lifecycle.Validate(); err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}
	return nil
}
