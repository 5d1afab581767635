// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package metrics exposes Prometheus instruments for the tree cache and
// the invalidation pipeline. Recording is best-effort: callers must never
// let a metrics failure interrupt the operation being measured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tree cache metrics
var (
	// CacheHitsTotal counts read-through cache hits by query scope.
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tree_cache_hits_total",
			Help: "Total tree cache hits by query scope",
		},
		[]string{"scope"},
	)

	// CacheMissesTotal counts read-through cache misses by query scope.
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tree_cache_misses_total",
			Help: "Total tree cache misses by query scope",
		},
		[]string{"scope"},
	)

	// CacheErrorsTotal counts cache backend failures by operation.
	CacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tree_cache_errors_total",
			Help: "Total tree cache backend errors by operation",
		},
		[]string{"operation"},
	)

	// QueryDuration tracks how long cache-missed tree queries take against
	// the store.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tree_query_duration_seconds",
			Help:    "Tree query duration on cache miss in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"scope"},
	)
)

// Invalidation metrics
var (
	// ShardClearsTotal counts targeted shard invalidations by outcome.
	ShardClearsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tree_shard_clears_total",
			Help: "Total targeted shard invalidations by outcome",
		},
		[]string{"outcome"},
	)

	// FlushJobsTotal counts debounced full-flush jobs by stage.
	FlushJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tree_flush_jobs_total",
			Help: "Total debounced full-flush jobs by stage (scheduled, suppressed, executed)",
		},
		[]string{"stage"},
	)
)
