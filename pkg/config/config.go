// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-xmss.
//
// go-xmss is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads go-xmss settings from YAML with environment
// overrides and builds the stores, loggers and key options they describe.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-xmss/pkg/adapters/logger"
	"github.com/jeremyhahn/go-xmss/pkg/ratelimit"
	"github.com/jeremyhahn/go-xmss/pkg/storage/badger"
	"github.com/jeremyhahn/go-xmss/pkg/storage/redis"
	"github.com/jeremyhahn/go-xmss/pkg/storage/vault"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// Store backend names
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendVault  = "vault"
)

// Config represents the complete configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Key     KeyConfig     `yaml:"key"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
	Driver string `yaml:"driver"` // slog, zap

	// File enables rotated file output instead of stderr
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// KeyConfig describes the key handle
type KeyConfig struct {
	Name         string `yaml:"name"`
	ParameterSet string `yaml:"parameter_set"`
	Partitions   int    `yaml:"partitions"` // 0 = one per CPU

	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// StoreConfig selects and configures the state store backend
type StoreConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	Badger  badger.Config `yaml:"badger"`
	Redis   redis.Config  `yaml:"redis"`
	Vault   vault.Config  `yaml:"vault"`
}

// MetricsConfig controls Prometheus metrics
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// Default returns a configuration for an in-memory store with text logs.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Driver:     "slog",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Key: KeyConfig{
			Name:         "default",
			ParameterSet: types.XMSS_SHA2_10_256.String(),
		},
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			CollectInterval: 15 * time.Second,
		},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Logging
	if level := os.Getenv("XMSS_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("XMSS_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Key
	if ps := os.Getenv("XMSS_PARAMETER_SET"); ps != "" {
		cfg.Key.ParameterSet = ps
	}
	if partitions := os.Getenv("XMSS_PARTITIONS"); partitions != "" {
		n, err := strconv.Atoi(partitions)
		if err != nil || n < 0 {
			log.Printf("Warning: invalid XMSS_PARTITIONS value %q, using %d", partitions, cfg.Key.Partitions)
		} else {
			cfg.Key.Partitions = n
		}
	}

	// Store
	if backend := os.Getenv("XMSS_STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}
	if path := os.Getenv("XMSS_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}

	// Redis settings
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Store.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Store.Redis.Password = password
	}

	// Vault settings
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		cfg.Store.Vault.Address = addr
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		cfg.Store.Vault.Token = token
	}
	if namespace := os.Getenv("VAULT_NAMESPACE"); namespace != "" {
		cfg.Store.Vault.Namespace = namespace
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	validDrivers := map[string]bool{"": true, "slog": true, "zap": true}
	if !validDrivers[strings.ToLower(c.Logging.Driver)] {
		return fmt.Errorf("invalid log driver: %s (must be slog or zap)", c.Logging.Driver)
	}

	if _, err := c.Key.Parameters(); err != nil {
		return err
	}
	if c.Key.Partitions < 0 {
		return fmt.Errorf("key partitions cannot be negative: %d", c.Key.Partitions)
	}
	if c.Key.RateLimit.Enabled && c.Key.RateLimit.SignaturesPerMinute <= 0 {
		return fmt.Errorf("rate limit signatures_per_minute must be positive when enabled")
	}

	return c.Store.Validate()
}

// Validate checks the settings required by the selected backend.
func (s *StoreConfig) Validate() error {
	switch strings.ToLower(s.Backend) {
	case BackendMemory:
	case BackendFile:
		if s.Path == "" {
			return fmt.Errorf("store path must be specified for the file backend")
		}
	case BackendBadger:
		if s.Path == "" && s.Badger.Dir == "" && !s.Badger.InMemory {
			return fmt.Errorf("store path must be specified for the badger backend")
		}
	case BackendRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	case BackendVault:
		if s.Vault.Address == "" {
			return fmt.Errorf("vault address is required")
		}
		if s.Vault.Token == "" {
			return fmt.Errorf("vault token is required")
		}
	case "":
		return fmt.Errorf("store backend must be specified")
	default:
		return fmt.Errorf("unknown store backend: %s", s.Backend)
	}
	return nil
}

// Parameters returns the configured parameter set. An empty name means
// XMSS-SHA2_10_256.
func (k *KeyConfig) Parameters() (types.ParameterSet, error) {
	if k.ParameterSet == "" {
		return types.XMSS_SHA2_10_256, nil
	}
	return types.ParseParameterSet(k.ParameterSet)
}
