package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file configuration
const (
	EnvAPIURL   = "EASYQUOTE_API_URL"
	EnvToken    = "EASYQUOTE_TOKEN"
	EnvStorage  = "EASYQUOTE_STORAGE"
	EnvLogLevel = "EASYQUOTE_LOG_LEVEL"
	EnvDatabase = "DATABASE_URL"
	EnvRedis    = "REDIS_ADDR"
)

// LoadEnvFiles loads .env files into the process environment. Missing files are ignored;
// variables already set in the environment win.
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// ApplyEnv overlays environment variables onto cfg
func ApplyEnv(cfg *Config) {
	if v := env(EnvAPIURL); v != "" {
		cfg.Pricing.BaseURL = v
	}
	if v := env(EnvToken); v != "" {
		cfg.Pricing.Token = v
	}
	if v := env(EnvStorage); v != "" {
		cfg.Storage.Backend = v
	}
	if v := env(EnvDatabase); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := env(EnvRedis); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := env(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
