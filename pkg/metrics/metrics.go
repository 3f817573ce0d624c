// Package metrics provides Prometheus metrics for the matching engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal tracks scan runs by final status
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of scan runs by status",
		},
		[]string{"status"},
	)

	// ScanDuration tracks scan run duration in seconds
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Duration of scan runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// CandidatesCreated tracks candidates created by scans
	CandidatesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "scan",
			Name:      "candidates_created_total",
			Help:      "Total number of match candidates created",
		},
	)

	// CandidatesUpdated tracks candidates that gained a variant or score change
	CandidatesUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "scan",
			Name:      "candidates_updated_total",
			Help:      "Total number of match candidates updated",
		},
	)

	// ImportsTotal tracks candidate imports by path and outcome
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "import",
			Name:      "candidates_total",
			Help:      "Total number of candidate imports by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	// ImportDuration tracks per-candidate import duration
	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Duration of per-candidate imports in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"path"},
	)

	// RequestsTotal tracks API requests by route, method and status class
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration tracks API request duration by route
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route"},
	)

	// ReconcilerCalls tracks AI reconciler invocations by outcome
	ReconcilerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "reconciler",
			Name:      "calls_total",
			Help:      "Total number of AI reconciler calls by outcome",
		},
		[]string{"outcome"},
	)
)
