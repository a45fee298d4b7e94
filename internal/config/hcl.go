package config

import (
	"github.com/hashicorp/hcl/v2/hclsimple"

	qerrors "easyquote/internal/errors"
)

// hclFile mirrors Config for HCL decoding. Every block and attribute is optional;
// zero values leave the defaults in place.
type hclFile struct {
	Version string      `hcl:"version,optional"`
	Pricing *hclPricing `hcl:"pricing,block"`
	Sync    *hclSync    `hcl:"sync,block"`
	Storage *hclStorage `hcl:"storage,block"`
	Metrics *hclMetrics `hcl:"metrics,block"`
	Logging *hclLogging `hcl:"logging,block"`
}

type hclPricing struct {
	BaseURL                 string  `hcl:"base_url,optional"`
	Token                   string  `hcl:"token,optional"`
	TimeoutSeconds          int     `hcl:"timeout_seconds,optional"`
	RateLimit               float64 `hcl:"rate_limit,optional"`
	Burst                   int     `hcl:"burst,optional"`
	DescribeCacheSize       int     `hcl:"describe_cache_size,optional"`
	DescribeCacheTTLSeconds int     `hcl:"describe_cache_ttl_seconds,optional"`
}

type hclSync struct {
	QuiescenceMillis int `hcl:"quiescence_ms,optional"`
	MaxQuantities    int `hcl:"max_quantities,optional"`
}

type hclStorage struct {
	Backend     string `hcl:"backend,optional"`
	DatabaseURL string `hcl:"database_url,optional"`
	RedisAddr   string `hcl:"redis_addr,optional"`
	RedisDB     int    `hcl:"redis_db,optional"`
}

type hclMetrics struct {
	Address string `hcl:"address,optional"`
}

type hclLogging struct {
	Level       string `hcl:"level,optional"`
	Format      string `hcl:"format,optional"`
	Output      string `hcl:"output,optional"`
	Development bool   `hcl:"development,optional"`
}

func loadHCL(path string) (*Config, error) {
	var file hclFile
	if err := hclsimple.DecodeFile(path, nil, &file); err != nil {
		return nil, qerrors.Wrapf(qerrors.TypeConfig, err, "failed to parse %s", path)
	}

	cfg := Default()
	file.applyTo(cfg)
	return cfg, nil
}

func (f *hclFile) applyTo(cfg *Config) {
	setString(&cfg.Version, f.Version)

	if p := f.Pricing; p != nil {
		setString(&cfg.Pricing.BaseURL, p.BaseURL)
		setString(&cfg.Pricing.Token, p.Token)
		setInt(&cfg.Pricing.TimeoutSeconds, p.TimeoutSeconds)
		if p.RateLimit > 0 {
			cfg.Pricing.RateLimit = p.RateLimit
		}
		setInt(&cfg.Pricing.Burst, p.Burst)
		setInt(&cfg.Pricing.DescribeCacheSize, p.DescribeCacheSize)
		setInt(&cfg.Pricing.DescribeCacheTTLSeconds, p.DescribeCacheTTLSeconds)
	}
	if s := f.Sync; s != nil {
		setInt(&cfg.Sync.QuiescenceMillis, s.QuiescenceMillis)
		setInt(&cfg.Sync.MaxQuantities, s.MaxQuantities)
	}
	if s := f.Storage; s != nil {
		setString(&cfg.Storage.Backend, s.Backend)
		setString(&cfg.Storage.DatabaseURL, s.DatabaseURL)
		setString(&cfg.Storage.RedisAddr, s.RedisAddr)
		setInt(&cfg.Storage.RedisDB, s.RedisDB)
	}
	if m := f.Metrics; m != nil {
		setString(&cfg.Metrics.Address, m.Address)
	}
	if l := f.Logging; l != nil {
		setString(&cfg.Logging.Level, l.Level)
		setString(&cfg.Logging.Format, l.Format)
		setString(&cfg.Logging.Output, l.Output)
		cfg.Logging.Development = cfg.Logging.Development || l.Development
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
