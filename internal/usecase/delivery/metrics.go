package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for channel workers
var (
	// deliveryAttemptsTotal tracks provider attempts per channel and result
	deliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Total number of provider delivery attempts",
		},
		[]string{"channel", "result"}, // result: delivered|failed|retry
	)

	// deliveryDuration tracks provider send duration
	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_seconds",
			Help:    "Provider send duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// deliverySkippedTotal tracks redeliveries that did not reach the provider
	deliverySkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_skipped_total",
			Help: "Total number of deliveries skipped without a provider call",
		},
		[]string{"channel", "reason"}, // reason: terminal|retry_pending|claim_lost
	)

	// deadLetteredTotal tracks messages routed to the dead-letter queue by workers
	deadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_dead_lettered_total",
			Help: "Total number of messages routed to the dead-letter queue",
		},
		[]string{"channel", "reason"},
	)

	// retriesScheduledTotal tracks scheduled redeliveries
	retriesScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_retries_scheduled_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"channel"},
	)

	// retriesRepublishedTotal tracks retries re-published by the timer or the sweeper
	retriesRepublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_retries_republished_total",
			Help: "Total number of retries re-published to the channel queue",
		},
		[]string{"channel", "source"}, // source: timer|sweeper
	)

	// pendingRetryTimers tracks armed in-process retry timers
	pendingRetryTimers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_retry_timers_pending",
			Help: "Number of armed in-process retry timers",
		},
		[]string{"channel"},
	)

	// statusReportFailuresTotal tracks status reports that did not reach the reconciler
	statusReportFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_status_report_failures_total",
			Help: "Total number of failed status reports",
		},
		[]string{"channel"},
	)
)

// RecordAttempt records the result of one provider attempt.
func RecordAttempt(channel, result string, duration time.Duration) {
	deliveryAttemptsTotal.WithLabelValues(channel, result).Inc()
	deliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordSkipped records a redelivery acknowledged without a provider call.
func RecordSkipped(channel, reason string) {
	deliverySkippedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordDeadLettered records a message routed to the dead-letter queue.
func RecordDeadLettered(channel, reason string) {
	deadLetteredTotal.WithLabelValues(channel, reason).Inc()
}

// RecordRetryScheduled records a retry persisted with a next_retry_at.
func RecordRetryScheduled(channel string) {
	retriesScheduledTotal.WithLabelValues(channel).Inc()
}

// RecordRetryRepublished records a retry re-published to the channel queue.
func RecordRetryRepublished(channel, source string) {
	retriesRepublishedTotal.WithLabelValues(channel, source).Inc()
}

// RecordReportFailure records a status report that failed to reach the reconciler.
func RecordReportFailure(channel string) {
	statusReportFailuresTotal.WithLabelValues(channel).Inc()
}

// setPendingTimers sets the gauge of armed retry timers.
func setPendingTimers(channel string, n int) {
	pendingRetryTimers.WithLabelValues(channel).Set(float64(n))
}
