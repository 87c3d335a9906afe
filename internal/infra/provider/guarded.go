package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/metrics"
)

// GuardConfig configures the Guarded decorator.
type GuardConfig struct {
	Name string

	// RatePerSecond is the shared request budget. 0 disables limiting.
	RatePerSecond float64
	Burst         int

	// MaxConcurrency bounds in-flight provider calls. 0 disables the cap.
	MaxConcurrency int64

	// Breaker trips after MaxConsecutiveFailures failures in a row, or once
	// more than MinRequests calls were seen and the failure ratio reaches
	// FailureRatio.
	MaxConsecutiveFailures uint32
	MinRequests            uint32
	FailureRatio           float64
	OpenTimeout            time.Duration
	HalfOpenMax            uint32
}

// DefaultGuardConfig mirrors the backend's circuit and concurrency settings.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Name:                   "blockchair",
		MaxConcurrency:         8,
		MaxConsecutiveFailures: 5,
		MinRequests:            20,
		FailureRatio:           0.6,
		OpenTimeout:            60 * time.Second,
		HalfOpenMax:            1,
	}
}

// Guarded wraps an AddressProvider with a process-wide rate limiter, a
// concurrency cap and a circuit breaker. One instance is meant to be shared
// by every scan and stream in the process.
type Guarded struct {
	next    AddressProvider
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// NewGuarded creates the decorator.
func NewGuarded(next AddressProvider, cfg GuardConfig, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "provider"
	}

	g := &Guarded{next: next, logger: logger}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	if cfg.MaxConcurrency > 0 {
		g.sem = semaphore.NewWeighted(cfg.MaxConcurrency)
	}
	g.cb = newCircuitBreaker(cfg, logger)
	return g
}

func newCircuitBreaker(cfg GuardConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	minRequests := cfg.MinRequests
	maxConsecutive := cfg.MaxConsecutiveFailures
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMax,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if maxConsecutive > 0 && counts.ConsecutiveFailures >= maxConsecutive {
				return true
			}
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests > minRequests && failureRatio >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			switch {
			case to == gobreaker.StateOpen:
				logger.Warn("provider seems down, stop allowing requests", "name", name)
			case from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen:
				logger.Info("checking provider status", "name", name)
			case from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed:
				logger.Info("provider seems ok, restart allowing requests", "name", name)
			}
		},
	})
}

// State returns the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}

func (g *Guarded) FetchAddresses(
	ctx context.Context,
	addrs []string,
) (map[string]domain.AddressInfo, error) {
	return guard(ctx, g, func() (map[string]domain.AddressInfo, error) {
		return g.next.FetchAddresses(ctx, addrs)
	})
}

func (g *Guarded) FetchXpub(ctx context.Context, xpub string, limit int) (*domain.XpubResult, error) {
	return guard(ctx, g, func() (*domain.XpubResult, error) {
		return g.next.FetchXpub(ctx, xpub, limit)
	})
}

func guard[T any](ctx context.Context, g *Guarded, fn func() (T, error)) (T, error) {
	var zero T

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return zero, fmt.Errorf("acquire provider slot: %w", err)
		}
		defer g.sem.Release(1)
	}

	// A call that failed because the caller went away says nothing about the
	// provider; it is reported to the caller but counted as a success.
	var callerErr error
	res, err := g.cb.Execute(func() (interface{}, error) {
		v, err := fn()
		if err != nil && ctx.Err() != nil {
			callerErr = err
			return nil, nil
		}
		return v, err
	})
	if callerErr != nil {
		return zero, callerErr
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: circuit %v", domain.ErrProviderUnavailable, err)
		}
		return zero, err
	}
	return res.(T), nil
}
