// Package probe retries an operation with exponential backoff.
package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vietddude/seedscan/internal/metrics"
)

// ErrRetriesExhausted is matched by every error Probe returns after giving up.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetriesExhaustedError carries the attempt count and the last failure.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// Config defines retry behavior.
type Config struct {
	// Name labels attempt metrics. Empty disables them.
	Name string

	MaxAttempts int
	BaseDelay   time.Duration

	// MaxDelay caps a single wait. 0 leaves the backoff uncapped.
	MaxDelay time.Duration
}

// DefaultConfig is used for the backend health check.
var DefaultConfig = Config{
	Name:        "backend_health",
	MaxAttempts: 5,
	BaseDelay:   400 * time.Millisecond,
	MaxDelay:    10 * time.Second,
}

// Probe calls fn until it succeeds or MaxAttempts is reached. The wait before
// attempt k+1 is BaseDelay * 2^(k-1). Cancelling ctx ends the current wait and
// returns immediately; an attempt already in flight is given ctx and decides
// for itself how to react.
func Probe[T any](ctx context.Context, fn func(ctx context.Context) (T, error), cfg Config) (T, error) {
	var zero T
	attempts := max(1, cfg.MaxAttempts)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		record(cfg.Name, err)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(Backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &RetriesExhaustedError{Attempts: attempt, Last: lastErr}
		case <-timer.C:
		}
	}

	return zero, &RetriesExhaustedError{Attempts: attempts, Last: lastErr}
}

// Backoff returns the wait after the given 1-based attempt.
func Backoff(attempt int, cfg Config) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

func record(name string, err error) {
	if name == "" {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ProbeAttemptsTotal.WithLabelValues(name, outcome).Inc()
}
