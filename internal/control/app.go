// Package control wires configuration into a running service.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vietddude/seedscan/internal/api"
	"github.com/vietddude/seedscan/internal/core/config"
	"github.com/vietddude/seedscan/internal/core/worker"
	"github.com/vietddude/seedscan/internal/infra/backend"
	"github.com/vietddude/seedscan/internal/infra/cache"
	"github.com/vietddude/seedscan/internal/infra/provider"
	redisclient "github.com/vietddude/seedscan/internal/infra/redis"
	"github.com/vietddude/seedscan/internal/infra/storage"
	"github.com/vietddude/seedscan/internal/infra/storage/memory"
	"github.com/vietddude/seedscan/internal/infra/storage/postgres"
	"github.com/vietddude/seedscan/internal/scan/aggregate"
	"github.com/vietddude/seedscan/internal/scan/stream"
)

const cacheSweepInterval = time.Minute

// App is the scanner service: HTTP server plus the shared provider stack.
type App struct {
	cfg         *config.AppConfig
	server      *api.Server
	memCache    *cache.Memory
	db          *postgres.DB
	redisClient *redisclient.Client
	pruner      *worker.Pruner
	log         *slog.Logger
}

// ProviderStack is the decorated balance provider shared by every request.
type ProviderStack struct {
	Client   *provider.BlockchairClient
	Guarded  *provider.Guarded
	Provider provider.AddressProvider
}

// NewProviderStack builds Blockchair -> Cached -> Guarded. Cache hits skip the
// limiter and the breaker.
func NewProviderStack(cfg config.ProviderConfig, c cache.Cache, logger *slog.Logger) *ProviderStack {
	client := provider.NewBlockchairClient(provider.BlockchairConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}, logger)
	guarded := provider.NewGuarded(client, cfg.GuardConfig(), logger)
	return &ProviderStack{
		Client:   client,
		Guarded:  guarded,
		Provider: provider.NewCached(guarded, c, cfg.CacheTTL, logger),
	}
}

// NewApp creates the service with all dependencies initialized. Redis and
// PostgreSQL are optional; without them an in-process cache and result store
// are used.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default()
	a := &App{cfg: cfg, log: log}

	// 1. Cache
	var c cache.Cache
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, using memory cache", "error", err)
		} else {
			a.redisClient = rc
			c = rc
			log.Info("Using Redis cache")
		}
	}
	if c == nil {
		a.memCache = cache.NewMemory()
		c = a.memCache
	}

	// 2. Result storage
	var results storage.ResultRepository
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			a.closeRedis()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			a.closeRedis()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		a.db = db
		results = postgres.NewResultRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		results = memory.NewResultRepo()
		log.Info("Using Memory storage")
	}

	if cfg.Results.Retention > 0 {
		a.pruner = worker.NewPruner(cfg.Results.Retention, results, log)
	}

	// 3. Provider stack and aggregator
	stack := NewProviderStack(cfg.Provider, c, log)
	agg := aggregate.New(stack.Provider, log)

	// 4. Stream checker; a nil interface selects internal enrichment
	var checker stream.Checker
	if cfg.Stream.CheckURL != "" {
		checker = stream.NewHTTPChecker(cfg.Stream.CheckURL)
	}

	defaultMode := aggregate.ModeAddress
	if cfg.Provider.UseXpub {
		defaultMode = aggregate.ModeXpub
	}

	a.server = api.NewServer(cfg.Server.Port, api.Deps{
		Expander:    agg,
		Provider:    stack.Provider,
		Results:     results,
		Backend:     backend.NewClient(cfg.Backend),
		Checker:     checker,
		CheckURL:    cfg.Stream.CheckURL,
		StreamDepth: cfg.Stream.Depth,
		DefaultMode: defaultMode,
		HealthProbe: cfg.Health.ProbeConfig(),
		Components:  a.components(stack),
		Logger:      log,
	})
	return a, nil
}

func (a *App) components(stack *ProviderStack) []api.Component {
	comps := []api.Component{{
		Name: "provider",
		Check: func(context.Context) error {
			if st := stack.Guarded.State(); st == gobreaker.StateOpen {
				return errors.New("circuit open")
			}
			switch st := stack.Client.Monitor.CheckStatus(); st {
			case provider.StatusThrottled, provider.StatusBlocked:
				return fmt.Errorf("%s, retry after %s", st, stack.Client.Monitor.RetryAfter())
			}
			return nil
		},
	}}
	if a.redisClient != nil {
		comps = append(comps, api.Component{Name: "cache", Check: a.redisClient.Ping})
	}
	if a.db != nil {
		comps = append(comps, api.Component{Name: "database", Check: a.db.Health})
	}
	return comps
}

// Handler exposes the HTTP routes without starting a listener.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Start starts the HTTP server and background tasks.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	if a.memCache != nil {
		go a.memCache.RunSweeper(ctx, cacheSweepInterval)
	}
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}
	if a.pruner != nil {
		go a.pruner.Start(ctx)
	}

	a.log.Info("Seedscan listening", "port", a.cfg.Server.Port)
	return nil
}

// Stop stops the server and closes connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping seedscan...")

	err := a.server.Stop(ctx)

	a.closeRedis()
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			a.log.Warn("Failed to close database", "error", cerr)
		}
	}
	return err
}

func (a *App) closeRedis() {
	if a.redisClient == nil {
		return
	}
	if err := a.redisClient.Close(); err != nil {
		a.log.Warn("Failed to close Redis", "error", err)
	}
}
