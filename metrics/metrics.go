// Package metrics exposes Prometheus instruments for the question pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	// QueriesTotal counts answered questions by routing strategy.
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdb",
			Name:      "queries_total",
			Help:      "Questions processed, labeled by strategy.",
		},
		[]string{"strategy"},
	)

	// QueryDuration observes end-to-end answer latency by strategy.
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "askdb",
			Name:      "query_duration_seconds",
			Help:      "End-to-end question latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)

	// RouterConfidence observes classifier confidence per chosen strategy.
	RouterConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "askdb",
			Name:      "router_confidence",
			Help:      "Classifier confidence at decision time, labeled by strategy.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"strategy"},
	)

	// HybridTimeouts counts hybrid dispatches that fell back to retrieval.
	HybridTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "askdb",
			Name:      "hybrid_timeouts_total",
			Help:      "Hybrid dispatches that timed out and used the retrieval fallback.",
		},
	)

	// ActiveSessions tracks live conversation sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "askdb",
			Name:      "active_sessions",
			Help:      "Sessions currently held in the store.",
		},
	)

	// FeedbackRatings counts user feedback submissions by rating.
	FeedbackRatings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdb",
			Name:      "feedback_ratings_total",
			Help:      "Feedback submissions, labeled by rating.",
		},
		[]string{"rating"},
	)

	// CacheHits counts retrieval answer cache hits and misses.
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdb",
			Name:      "retrieval_cache_total",
			Help:      "Retrieval answer cache lookups, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register installs every instrument on the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueriesTotal,
			QueryDuration,
			RouterConfidence,
			HybridTimeouts,
			ActiveSessions,
			FeedbackRatings,
			CacheHits,
		)
	})
}
