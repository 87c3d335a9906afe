package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/seedscan/internal/infra/backend"
	"github.com/vietddude/seedscan/internal/infra/probe"
	"github.com/vietddude/seedscan/internal/infra/provider"
	"github.com/vietddude/seedscan/internal/scan/stream"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*AppConfig, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Parse(nil)
	}
	return cfg, err
}

// Parse decodes YAML content, applies environment overrides and fills defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv lets the well-known deployment variables win over the file.
func applyEnv(cfg *AppConfig) error {
	str := map[string]*string{
		"BLOCKCHAIR_API_KEY":   &cfg.Provider.APIKey,
		"RANDOM_CHECK_URL":     &cfg.Stream.CheckURL,
		"BACKEND_INTERNAL_URL": &cfg.Backend.URL,
		"REDIS_URL":            &cfg.Redis.URL,
		"DATABASE_URL":         &cfg.Database.URL,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RANDOM_DEPTH":               &cfg.Stream.Depth,
		"BLOCKCHAIR_MAX_CONCURRENCY": &cfg.Provider.MaxConcurrency,
		"PORT":                       &cfg.Server.Port,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = n
	}

	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL_SECONDS: %w", err)
		}
		cfg.Provider.CacheTTL = time.Duration(n) * time.Second
	}
	if v := os.Getenv("CIRCUIT_FAIL_MAX"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid CIRCUIT_FAIL_MAX: %w", err)
		}
		cfg.Provider.Breaker.MaxConsecutiveFailures = uint32(n)
	}
	if v := os.Getenv("CIRCUIT_RESET_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CIRCUIT_RESET_TIMEOUT: %w", err)
		}
		cfg.Provider.Breaker.OpenTimeout = time.Duration(n) * time.Second
	}
	if v := os.Getenv("BLOCKCHAIR_USE_XPUB"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BLOCKCHAIR_USE_XPUB: %w", err)
		}
		cfg.Provider.UseXpub = b
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	guard := provider.DefaultGuardConfig()
	p := &cfg.Provider
	if p.BaseURL == "" {
		p.BaseURL = provider.DefaultBlockchairURL
	}
	if p.Timeout == 0 {
		p.Timeout = 30 * time.Second
	}
	if p.MaxConcurrency == 0 {
		p.MaxConcurrency = int(guard.MaxConcurrency)
	}
	if p.CacheTTL == 0 {
		p.CacheTTL = provider.DefaultCacheTTL
	}
	if p.Breaker.MaxRequests == 0 {
		p.Breaker.MaxRequests = guard.HalfOpenMax
	}
	if p.Breaker.MaxConsecutiveFailures == 0 {
		p.Breaker.MaxConsecutiveFailures = guard.MaxConsecutiveFailures
	}
	if p.Breaker.MinRequests == 0 {
		p.Breaker.MinRequests = guard.MinRequests
	}
	if p.Breaker.FailureRatio == 0 {
		p.Breaker.FailureRatio = guard.FailureRatio
	}
	if p.Breaker.OpenTimeout == 0 {
		p.Breaker.OpenTimeout = guard.OpenTimeout
	}

	if cfg.Stream.Depth == 0 {
		cfg.Stream.Depth = stream.DefaultDepth
	}
	cfg.Stream.Depth = stream.ClampDepth(cfg.Stream.Depth)

	if cfg.Backend.URL == "" {
		cfg.Backend.URL = backend.DefaultURL
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}

	if cfg.Health.Attempts == 0 {
		cfg.Health.Attempts = probe.DefaultConfig.MaxAttempts
	}
	if cfg.Health.BaseDelay == 0 {
		cfg.Health.BaseDelay = probe.DefaultConfig.BaseDelay
	}
	if cfg.Health.MaxDelay == 0 {
		cfg.Health.MaxDelay = probe.DefaultConfig.MaxDelay
	}

	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
}

// GuardConfig maps the provider section onto the guard decorator settings.
func (p ProviderConfig) GuardConfig() provider.GuardConfig {
	g := provider.DefaultGuardConfig()
	g.RatePerSecond = p.RatePerSecond
	g.MaxConcurrency = int64(p.MaxConcurrency)
	g.MaxConsecutiveFailures = p.Breaker.MaxConsecutiveFailures
	g.MinRequests = p.Breaker.MinRequests
	g.FailureRatio = p.Breaker.FailureRatio
	g.OpenTimeout = p.Breaker.OpenTimeout
	g.HalfOpenMax = p.Breaker.MaxRequests
	return g
}

// ProbeConfig maps the health section onto the prober settings.
func (h HealthConfig) ProbeConfig() probe.Config {
	return probe.Config{
		Name:        probe.DefaultConfig.Name,
		MaxAttempts: h.Attempts,
		BaseDelay:   h.BaseDelay,
		MaxDelay:    h.MaxDelay,
	}
}
