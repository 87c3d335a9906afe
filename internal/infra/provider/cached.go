package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/infra/cache"
	"github.com/vietddude/seedscan/internal/metrics"
)

// DefaultCacheTTL is how long provider answers are reused.
const DefaultCacheTTL = 300 * time.Second

const cacheNetwork = "bitcoin"

// AddressKey is the cache key of one address record.
func AddressKey(address string) string {
	return fmt.Sprintf("scan:btc:%s:addr:%s", cacheNetwork, address)
}

// XpubKey is the cache key of one xpub discovery.
func XpubKey(xpub string, limit int) string {
	return fmt.Sprintf("scan:btc:%s:xpub:%s:%d", cacheNetwork, xpub, limit)
}

// Cached serves provider answers from a cache. Cache failures are logged and
// bypassed; they never fail a lookup.
type Cached struct {
	next   AddressProvider
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps next with c. A non-positive ttl uses DefaultCacheTTL.
func NewCached(next AddressProvider, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: c, ttl: ttl, logger: logger}
}

func (c *Cached) FetchAddresses(
	ctx context.Context,
	addrs []string,
) (map[string]domain.AddressInfo, error) {
	out := make(map[string]domain.AddressInfo, len(addrs))
	var misses []string

	for _, addr := range addrs {
		var info domain.AddressInfo
		if c.load(ctx, AddressKey(addr), &info) {
			out[addr] = info
			metrics.ProviderCacheTotal.WithLabelValues("addr", "hit").Inc()
			continue
		}
		metrics.ProviderCacheTotal.WithLabelValues("addr", "miss").Inc()
		misses = append(misses, addr)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.next.FetchAddresses(ctx, misses)
	if err != nil {
		if len(out) == 0 {
			return nil, err
		}
		return out, err
	}
	for addr, info := range fetched {
		out[addr] = info
		c.store(ctx, AddressKey(addr), info)
	}
	return out, nil
}

func (c *Cached) FetchXpub(ctx context.Context, xpub string, limit int) (*domain.XpubResult, error) {
	limit = ClampXpubLimit(limit)
	key := XpubKey(xpub, limit)

	var res domain.XpubResult
	if c.load(ctx, key, &res) {
		metrics.ProviderCacheTotal.WithLabelValues("xpub", "hit").Inc()
		return &res, nil
	}
	metrics.ProviderCacheTotal.WithLabelValues("xpub", "miss").Inc()

	fetched, err := c.next.FetchXpub(ctx, xpub, limit)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, fetched)
	return fetched, nil
}

func (c *Cached) load(ctx context.Context, key string, dst any) bool {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}
