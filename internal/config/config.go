// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	qerrors "easyquote/internal/errors"
	"easyquote/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Pricing configures the remote pricing engine client
	Pricing PricingConfig `json:"pricing"`

	// Sync configures the line-item synchronizer
	Sync SyncConfig `json:"sync"`

	// Storage selects the quote-item persistence backend
	Storage StorageConfig `json:"storage"`

	// Metrics contains metrics exposition settings
	Metrics MetricsConfig `json:"metrics"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// PricingConfig contains pricing client settings
type PricingConfig struct {
	// BaseURL is the root of the pricing API
	BaseURL string `json:"base_url"`

	// Token is the bearer credential; usually supplied through the environment
	Token string `json:"token,omitempty"`

	// TimeoutSeconds bounds a single HTTP exchange
	TimeoutSeconds int `json:"timeout_seconds"`

	// RateLimit is the sustained outbound request rate (requests/second)
	RateLimit float64 `json:"rate_limit"`

	// Burst is the outbound burst size
	Burst int `json:"burst"`

	// DescribeCacheSize is the number of products whose describe response is cached
	DescribeCacheSize int `json:"describe_cache_size"`

	// DescribeCacheTTLSeconds is how long a describe response stays valid
	DescribeCacheTTLSeconds int `json:"describe_cache_ttl_seconds"`
}

// SyncConfig contains synchronizer settings
type SyncConfig struct {
	// QuiescenceMillis is the debounce window
	QuiescenceMillis int `json:"quiescence_ms"`

	// MaxQuantities caps the multi-quantity list
	MaxQuantities int `json:"max_quantities"`
}

// StorageConfig contains persistence settings
type StorageConfig struct {
	// Backend is one of memory, postgres, redis
	Backend string `json:"backend"`

	// DatabaseURL is the Postgres DSN
	DatabaseURL string `json:"database_url,omitempty"`

	// RedisAddr is the Redis host:port
	RedisAddr string `json:"redis_addr,omitempty"`

	// RedisDB selects the Redis logical database
	RedisDB int `json:"redis_db,omitempty"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	// Address is the listen address for /metrics; empty disables exposition
	Address string `json:"address"`
}

// Timeout returns the HTTP timeout as a duration
func (p PricingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// DescribeCacheTTL returns the describe cache TTL as a duration
func (p PricingConfig) DescribeCacheTTL() time.Duration {
	return time.Duration(p.DescribeCacheTTLSeconds) * time.Second
}

// Quiescence returns the debounce window as a duration
func (s SyncConfig) Quiescence() time.Duration {
	return time.Duration(s.QuiescenceMillis) * time.Millisecond
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version: "1.0",
		Pricing: PricingConfig{
			BaseURL:                 "https://api.easyquote.cloud",
			TimeoutSeconds:          30,
			RateLimit:               10,
			Burst:                   10,
			DescribeCacheSize:       256,
			DescribeCacheTTLSeconds: 300,
		},
		Sync: SyncConfig{
			QuiescenceMillis: 350,
			MaxQuantities:    10,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate checks the configuration for values the synchronizer cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Pricing.BaseURL) == "" {
		return qerrors.New(qerrors.TypeConfig, "pricing.base_url is required")
	}
	if c.Sync.QuiescenceMillis < 0 {
		return qerrors.New(qerrors.TypeConfig, "sync.quiescence_ms must not be negative")
	}
	if c.Sync.MaxQuantities <= 0 {
		return qerrors.New(qerrors.TypeConfig, "sync.max_quantities must be positive")
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return qerrors.New(qerrors.TypeConfig, "storage.database_url is required for the postgres backend")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return qerrors.New(qerrors.TypeConfig, "storage.redis_addr is required for the redis backend")
		}
	default:
		return qerrors.Newf(qerrors.TypeConfig, "unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// Load loads configuration from a JSON or HCL file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Default(), nil
		}
		return loadHCL(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, qerrors.Wrapf(qerrors.TypeConfig, err, "failed to parse %s", path)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
