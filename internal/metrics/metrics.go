// Package metrics provides Prometheus metrics for the pay-in service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SheetTransitions counts state changes of sheets and summaries.
	SheetTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payin",
			Subsystem: "capture",
			Name:      "transitions_total",
			Help:      "Total number of capture sheet and summary state transitions",
		},
		[]string{"kind", "state"},
	)

	// LinesAggregated counts capture lines pushed into history.
	LinesAggregated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "payin",
			Subsystem: "aggregation",
			Name:      "lines_total",
			Help:      "Total number of capture lines aggregated into history",
		},
	)

	// AggregationDuration tracks how long one sheet aggregation takes.
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "payin",
			Subsystem: "aggregation",
			Name:      "duration_seconds",
			Help:      "Duration of sheet aggregation in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// IntegrityWarnings counts broken hierarchy references met while aggregating.
	IntegrityWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payin",
			Subsystem: "aggregation",
			Name:      "integrity_warnings_total",
			Help:      "Total number of dangling or cyclic hierarchy references skipped",
		},
		[]string{"relation"},
	)

	// RulesEvaluated counts promotion rule evaluations by genealogy level.
	RulesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payin",
			Subsystem: "promotion",
			Name:      "evaluations_total",
			Help:      "Total number of promotion rule evaluations",
		},
		[]string{"genealogy"},
	)

	// GenealogyChanges counts promotions, demotions and moves.
	GenealogyChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payin",
			Subsystem: "promotion",
			Name:      "changes_total",
			Help:      "Total number of genealogy changes by kind",
		},
		[]string{"kind"},
	)

	// ActiveStatusUpdates counts members whose activity bucket was recomputed.
	ActiveStatusUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payin",
			Subsystem: "active_status",
			Name:      "updates_total",
			Help:      "Total number of active status updates by resulting status",
		},
		[]string{"status"},
	)

	// PrintsRejected counts prints refused by the print ceiling.
	PrintsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payin",
			Subsystem: "print",
			Name:      "rejected_total",
			Help:      "Total number of prints refused by the print limit",
		},
		[]string{"kind"},
	)

	// NotificationsPublished tracks post-capture messages by outcome.
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payin",
			Subsystem: "notifier",
			Name:      "messages_total",
			Help:      "Total number of sale notifications by status",
		},
		[]string{"status"},
	)

	// HTTPRequestDuration tracks inbound request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payin",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "status"},
	)
)
