// Package config holds runtime configuration for patchbay, loadable from
// PATCHBAY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds configuration for patch generation.
type Config struct {
	// Engine selects the diff engine ("bsdiff" or "xdelta").
	Engine string

	// MinMatchLength is the lower bound on match lengths the engine will
	// consider exploiting.
	MinMatchLength int

	// MaxInputBytes caps the size of a single input file; 0 means the
	// platform's addressable limit applies.
	MaxInputBytes int64

	// Compression selects the emitted patch codec ("none", "zstd" or "xz").
	Compression string

	// CacheDir, when set, enables the content-addressed patch cache.
	CacheDir string

	// MetricsAddr, when set, serves Prometheus metrics in watch mode.
	MetricsAddr string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine:         "bsdiff",
		MinMatchLength: 16,
		MaxInputBytes:  0,
		Compression:    "none",
	}
}

// LoadFromEnv loads configuration from environment variables, starting from
// the defaults.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if engine := os.Getenv("PATCHBAY_ENGINE"); engine != "" {
		cfg.Engine = engine
	}

	if minMatch := os.Getenv("PATCHBAY_MIN_MATCH"); minMatch != "" {
		if m, err := strconv.Atoi(minMatch); err == nil {
			cfg.MinMatchLength = m
		}
	}

	if maxInput := os.Getenv("PATCHBAY_MAX_INPUT_MB"); maxInput != "" {
		if m, err := strconv.Atoi(maxInput); err == nil {
			cfg.MaxInputBytes = int64(m) * 1024 * 1024
		}
	}

	if compression := os.Getenv("PATCHBAY_COMPRESSION"); compression != "" {
		cfg.Compression = compression
	}

	if cacheDir := os.Getenv("PATCHBAY_CACHE_DIR"); cacheDir != "" {
		cfg.CacheDir = cacheDir
	}

	if addr := os.Getenv("PATCHBAY_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Engine != "bsdiff" && c.Engine != "xdelta" {
		return fmt.Errorf("invalid diff engine: %s (must be 'bsdiff' or 'xdelta')", c.Engine)
	}

	if c.MinMatchLength <= 0 {
		return fmt.Errorf("minimum match length must be positive, got: %d", c.MinMatchLength)
	}

	if c.MaxInputBytes < 0 {
		return fmt.Errorf("max input bytes must not be negative, got: %d", c.MaxInputBytes)
	}

	switch c.Compression {
	case "none", "zstd", "xz":
	default:
		return fmt.Errorf("invalid compression codec: %s (must be 'none', 'zstd' or 'xz')", c.Compression)
	}

	return nil
}
