// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Music service client
	MusicAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "music_api_requests_total",
			Help: "Total number of music service API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: "success", "not_found", "rate_limited", "unavailable"
	)

	MusicAPITokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "music_api_token_refreshes_total",
			Help: "Total number of upstream access token requests",
		},
		[]string{"outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Aggregation
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "link_metrics_aggregation_duration_seconds",
			Help:    "Duration of link metrics aggregation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AggregationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "link_metrics_aggregation_failures_total",
			Help: "Total number of link metrics computations that failed for reasons other than caller cancellation",
		},
	)

	OverviewZeroedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "link_overview_zeroed_entries_total",
			Help: "Total number of overview entries rendered with zeroed metrics and clicks",
		},
	)

	PlaylistFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playlist_placeholder_fallbacks_total",
			Help: "Total number of playlists created or previewed with placeholder metadata",
		},
	)

	// Metrics result cache
	MetricsCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "link_metrics_cache_hits_total",
			Help: "Total number of link metrics cache hits",
		},
	)

	MetricsCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "link_metrics_cache_misses_total",
			Help: "Total number of link metrics cache misses",
		},
	)
)
