// Package provider talks to the external balance provider and decorates it
// with caching, rate limiting and a circuit breaker.
package provider

import (
	"context"
	"fmt"

	"github.com/vietddude/seedscan/internal/core/domain"
)

const (
	// MaxAddressesPerCall is the provider's batch limit for address dashboards.
	MaxAddressesPerCall = 100

	// MaxXpubLimit is the largest address count the xpub dashboard returns.
	MaxXpubLimit = 10000
)

// AddressProvider resolves balances and activity for addresses and xpubs.
type AddressProvider interface {
	// FetchAddresses returns one record per address the provider knows about.
	// Any failed batch fails the whole call. A non-nil map returned with an
	// error holds records that are still valid (cache hits).
	FetchAddresses(ctx context.Context, addrs []string) (map[string]domain.AddressInfo, error)

	// FetchXpub runs the provider's gap-limited discovery. limit is clamped to [1, MaxXpubLimit].
	FetchXpub(ctx context.Context, xpub string, limit int) (*domain.XpubResult, error)
}

// ClampXpubLimit bounds n to [1, MaxXpubLimit].
func ClampXpubLimit(n int) int {
	return min(MaxXpubLimit, max(1, n))
}

// Chunk splits addrs into consecutive slices of at most size elements.
func Chunk(addrs []string, size int) [][]string {
	if size <= 0 {
		size = MaxAddressesPerCall
	}
	chunks := make([][]string, 0, (len(addrs)+size-1)/size)
	for i := 0; i < len(addrs); i += size {
		chunks = append(chunks, addrs[i:min(i+size, len(addrs))])
	}
	return chunks
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return domain.ErrProviderUnavailable
}
