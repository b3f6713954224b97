// Package metrics holds the Prometheus collectors of the ledger. They are registered on the
// default registry and served by the HTTP API under /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LockAcquired = "acquired"
	LockTimeout  = "timeout"
	LockError    = "error"
)

var (
	TransactionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_transactions_recorded_total",
			Help: "Ledger entries appended, by type and result",
		},
		[]string{"type", "result"},
	)

	LockAcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tally_lock_acquire_duration_seconds",
			Help:    "Time spent waiting for an account lock, by outcome",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"outcome"},
	)

	LockHeldDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tally_lock_held_duration_seconds",
			Help:    "Time an account lock was held by the protected operation",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 5, 15},
		},
	)

	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_event_publish_errors_total",
			Help: "Ledger events that could not be handed to the message bus",
		},
	)

	ProjectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_projection_errors_total",
			Help: "Ledger events the projection worker failed to apply, by worker",
		},
		[]string{"worker"},
	)
)

// ObserveLockAcquire records how long an acquisition attempt took.
func ObserveLockAcquire(outcome string, start time.Time) {
	LockAcquireDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
