// Package observability exposes Prometheus metrics for the tile proxy.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tileRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_requests_total",
			Help: "Total number of tile requests by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	tileRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_request_duration_seconds",
			Help:    "Duration of tile requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"source", "outcome"},
	)

	upstreamFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_fetch_duration_seconds",
			Help:    "Latency of upstream tile and metadata fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"kind"},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_cache_operations_total",
			Help: "Cache operations by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_cache_op_duration_seconds",
			Help:    "Duration of cache operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_cache_hits_total",
			Help: "Tile cache hits by tier.",
		},
		[]string{"tier"},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tile_cache_misses_total",
			Help: "Tile cache misses.",
		},
	)

	invalidationEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_invalidation_events_total",
			Help: "Invalidation events by result.",
		},
		[]string{"result"},
	)

	invalidationPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tile_invalidation_purged_total",
			Help: "Cached tiles purged by invalidation events.",
		},
	)
)

func ObserveTileRequest(source, outcome string, seconds float64) {
	tileRequestsTotal.WithLabelValues(source, outcome).Inc()
	tileRequestDurationSeconds.WithLabelValues(source, outcome).Observe(seconds)
}

func ObserveUpstreamFetch(kind string, seconds float64) {
	upstreamFetchDurationSeconds.WithLabelValues(kind).Observe(seconds)
}

func ObserveCacheOp(op string, err error, seconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cacheOpsTotal.WithLabelValues(op, outcome).Inc()
	cacheOpDurationSeconds.WithLabelValues(op).Observe(seconds)
}

func IncCacheHit(tier string) { cacheHitsTotal.WithLabelValues(tier).Inc() }
func IncCacheMiss()           { cacheMissesTotal.Inc() }

func IncInvalidationEvent(result string) { invalidationEventsTotal.WithLabelValues(result).Inc() }
func AddInvalidationPurged(n int) {
	if n > 0 {
		invalidationPurgedTotal.Add(float64(n))
	}
}
