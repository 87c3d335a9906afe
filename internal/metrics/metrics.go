package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderCallsTotal tracks balance provider calls per operation and outcome
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedscan_provider_calls_total",
			Help: "Total number of balance provider calls",
		},
		[]string{"provider", "op", "outcome"},
	)

	// ProviderLatency tracks balance provider call latency
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seedscan_provider_latency_seconds",
			Help:    "Balance provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "op"},
	)

	// ProviderErrorsSwallowed counts provider failures absorbed by the aggregator
	ProviderErrorsSwallowed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedscan_provider_errors_swallowed_total",
			Help: "Provider failures recovered into partial results",
		},
		[]string{"mode"},
	)

	// ProviderCacheTotal tracks provider cache hits and misses
	ProviderCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedscan_provider_cache_total",
			Help: "Provider cache lookups",
		},
		[]string{"kind", "result"},
	)

	// BreakerState tracks the provider circuit breaker (0 closed, 1 half-open, 2 open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seedscan_provider_breaker_state",
			Help: "Circuit breaker state of the balance provider",
		},
		[]string{"name"},
	)

	// StreamItemsTotal tracks items emitted on the random stream
	StreamItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedscan_stream_items_total",
			Help: "Total number of random stream items emitted",
		},
		[]string{"check"},
	)

	// StreamOpen tracks currently open stream connections
	StreamOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seedscan_stream_open",
			Help: "Number of open random stream connections",
		},
	)

	// EnrichmentLatency tracks per-item enrichment latency
	EnrichmentLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seedscan_stream_enrichment_seconds",
			Help:    "Stream enrichment latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
		},
		[]string{"mode", "ok"},
	)

	// ExpansionsTotal tracks expansion requests by mode and status
	ExpansionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedscan_expansions_total",
			Help: "Total number of seed expansion requests",
		},
		[]string{"mode", "status"},
	)

	// ProbeAttemptsTotal tracks retrying prober attempts
	ProbeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedscan_probe_attempts_total",
			Help: "Total number of probe attempts",
		},
		[]string{"target", "outcome"},
	)

	// DBConnectionPoolUsage tracks the usage percentage of the DB connection pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seedscan_db_connection_pool_usage_percent",
			Help: "Usage percentage of the database connection pool",
		},
	)
)
