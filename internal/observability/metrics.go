package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsTotal counts scheduler passes by result
	// (scheduled, skipped_cooldown, skipped_quiet_hours, skipped_budget,
	// lock_busy, error).
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "scheduler",
			Name:      "evaluations_total",
			Help:      "Total number of notification scheduler passes by result",
		},
		[]string{"result"},
	)

	// NotificationsScheduledTotal counts notifications handed to delivery.
	NotificationsScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "scheduler",
			Name:      "notifications_scheduled_total",
			Help:      "Total number of notifications scheduled by urgency and rule",
		},
		[]string{"urgency", "rule"},
	)

	// DeliveryFailuresTotal counts hand-offs the delivery collaborator rejected.
	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "scheduler",
			Name:      "delivery_failures_total",
			Help:      "Total number of notification deliveries that failed",
		},
	)

	// SuggestionsGeneratedTotal counts generator output by rule.
	SuggestionsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "suggest",
			Name:      "generated_total",
			Help:      "Total number of suggestions generated by rule",
		},
		[]string{"rule"},
	)

	// SuggestionsDismissedTotal counts dismissals by rule.
	SuggestionsDismissedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "suggest",
			Name:      "dismissed_total",
			Help:      "Total number of dismissed suggestions by rule",
		},
		[]string{"rule"},
	)

	// OutcomesMeasuredTotal counts outcome scan results
	// (measured, not_ready, error).
	OutcomesMeasuredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "outcome",
			Name:      "measured_total",
			Help:      "Total number of pending outcomes examined by result",
		},
		[]string{"result"},
	)

	// EffectivenessRatio observes measured effectiveness ratios.
	EffectivenessRatio = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tether",
			Subsystem: "outcome",
			Name:      "effectiveness_ratio",
			Help:      "Measured actual/expected impact ratio by category",
			Buckets:   []float64{-1, 0, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 2, 3},
		},
		[]string{"category"},
	)

	// HTTPRequestsTotal counts API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration observes API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tether",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)
