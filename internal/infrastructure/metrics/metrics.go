// Package metrics exposes Prometheus collectors for the scoring pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScoringDuration tracks end-to-end pipeline latency per outcome
	// (fresh, cache, degraded).
	ScoringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraud",
			Subsystem: "scoring",
			Name:      "duration_seconds",
			Help:      "End-to-end scoring latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"source"},
	)

	ScoringRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud",
			Subsystem: "scoring",
			Name:      "requests_total",
			Help:      "Scoring requests by outcome",
		},
		[]string{"source", "risk_level"},
	)

	ModelInvocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fraud",
			Subsystem: "model",
			Name:      "invocations_total",
			Help:      "Number of model predict calls",
		},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	DegradedResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud",
			Subsystem: "scoring",
			Name:      "degraded_total",
			Help:      "Degraded responses by trigger",
		},
		[]string{"reason"},
	)

	PersistRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fraud",
			Subsystem: "store",
			Name:      "persist_retries_total",
			Help:      "Asynchronous persistence retry attempts",
		},
	)

	PersistQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fraud",
			Subsystem: "store",
			Name:      "persist_queue_depth",
			Help:      "Pending scored transactions awaiting persistence",
		},
	)

	VelocityQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fraud",
			Subsystem: "store",
			Name:      "velocity_query_duration_seconds",
			Help:      "Latency of the windowed velocity aggregate query",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)
)
