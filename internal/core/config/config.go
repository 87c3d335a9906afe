package config

import (
	"time"

	"github.com/vietddude/seedscan/internal/infra/backend"
	redisclient "github.com/vietddude/seedscan/internal/infra/redis"
	"github.com/vietddude/seedscan/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Provider ProviderConfig     `yaml:"provider"`
	Stream   StreamConfig       `yaml:"stream"`
	Backend  backend.Config     `yaml:"backend"`
	Health   HealthConfig       `yaml:"health"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Results  ResultsConfig      `yaml:"results"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ProviderConfig holds settings for the Blockchair balance provider.
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	RatePerSecond  float64       `yaml:"rate_per_second"` // 0 = unlimited
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	UseXpub        bool          `yaml:"use_xpub"` // default discovery mode when a request names none
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	MaxRequests            uint32        `yaml:"max_requests"` // allowed while half-open
	MaxConsecutiveFailures uint32        `yaml:"max_consecutive_failures"`
	MinRequests            uint32        `yaml:"min_requests"`
	FailureRatio           float64       `yaml:"failure_ratio"`
	OpenTimeout            time.Duration `yaml:"open_timeout"`
}

// StreamConfig holds random stream settings.
type StreamConfig struct {
	CheckURL string `yaml:"check_url"` // empty = internal enrichment only
	Depth    int    `yaml:"depth"`
}

// HealthConfig holds the backend health prober settings.
type HealthConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// ResultsConfig holds stored result settings.
type ResultsConfig struct {
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}
