package worker

import (
	"notification-pipeline/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for a channel worker.
// It embeds the standard ConfigMetrics for configuration monitoring and adds
// metrics for the recovery sweep.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp: Unix timestamp of last configuration load
//   - worker_config_validation_errors_total: Total validation errors by field
//   - worker_config_fallbacks_total: Total fallback operations by field
//   - worker_config_fallback_active: 1 if any fallback active, 0 otherwise
//
// Sweep metrics:
//   - worker_sweep_runs_total: Sweep runs by channel and status (success/failure)
//   - worker_sweep_duration_seconds: Duration histogram of one sweep
//   - worker_sweep_republished_total: Overdue retries re-published by the sweep
//   - worker_sweep_reported_total: Terminal rows whose status report was retried
//   - worker_sweep_last_success_timestamp: Unix timestamp of last successful sweep
//
// Example usage:
//
//	metrics := NewWorkerMetrics()
//	start := time.Now()
//	result, err := sweeper.Run(ctx)
//	metrics.RecordSweep("email", result.Republished, result.Reported, time.Since(start).Seconds(), err)
type WorkerMetrics struct {
	*config.ConfigMetrics

	// SweepRunsTotal counts sweep runs.
	// Labels: channel, status (success, failure)
	SweepRunsTotal *prometheus.CounterVec

	// SweepDurationSeconds measures one sweep.
	// Buckets: 10ms .. 2m
	SweepDurationSeconds *prometheus.HistogramVec

	// SweepRepublishedTotal counts overdue retries put back on the queue.
	SweepRepublishedTotal *prometheus.CounterVec

	// SweepReportedTotal counts terminal rows reported to the status reconciler.
	SweepReportedTotal *prometheus.CounterVec

	// SweepLastSuccessTimestamp is set when a sweep completes without error.
	SweepLastSuccessTimestamp *prometheus.GaugeVec
}

// NewWorkerMetrics creates and registers the worker metrics via promauto.
// Calling it twice in one process panics on duplicate registration.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		SweepRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_sweep_runs_total",
			Help: "Total number of recovery sweep runs by channel and status",
		}, []string{"channel", "status"}),

		SweepDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_sweep_duration_seconds",
			Help:    "Duration of one recovery sweep in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 30, 120},
		}, []string{"channel"}),

		SweepRepublishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_sweep_republished_total",
			Help: "Total number of overdue retries re-published by the sweep",
		}, []string{"channel"}),

		SweepReportedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_sweep_reported_total",
			Help: "Total number of terminal outcomes re-reported by the sweep",
		}, []string{"channel"}),

		SweepLastSuccessTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_sweep_last_success_timestamp",
			Help: "Unix timestamp of the last successful sweep",
		}, []string{"channel"}),
	}
}

// RecordSweep records one sweep run. republished and reported are added even
// when err is set because a sweep can fail halfway.
func (m *WorkerMetrics) RecordSweep(channel string, republished, reported int, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.SweepRunsTotal.WithLabelValues(channel, status).Inc()
	m.SweepDurationSeconds.WithLabelValues(channel).Observe(seconds)
	m.SweepRepublishedTotal.WithLabelValues(channel).Add(float64(republished))
	m.SweepReportedTotal.WithLabelValues(channel).Add(float64(reported))
	if err == nil {
		m.SweepLastSuccessTimestamp.WithLabelValues(channel).SetToCurrentTime()
	}
}
