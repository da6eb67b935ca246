package worker

import (
	"fmt"
	"log/slog"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/usecase/delivery"
	"notification-pipeline/pkg/config"
)

// WorkerConfig holds the operational parameters of a channel worker and the
// dead-letter consumer.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// Invalid values never stop the process: each field falls back to its default,
// the fallback is logged and counted in the config metrics.
type WorkerConfig struct {
	// SweepSchedule is the cron expression for the recovery sweep.
	// Format: "minute hour day month weekday"
	// Default: "* * * * *" (every minute)
	SweepSchedule string

	// Timezone is the IANA timezone name for cron scheduling.
	// Default: "UTC"
	Timezone string

	// Prefetch bounds unacknowledged deliveries per consumer.
	// Range: 1-50
	// Default: 1
	Prefetch int

	// BackoffBase is the delay before the first retry; later retries double it.
	// Range: 1s-1h
	// Default: 1 minute
	BackoffBase time.Duration

	// BackoffCap bounds every retry delay.
	// Range: 1m-24h
	// Default: 1 hour
	BackoffCap time.Duration

	// SweepGrace is how long a retry may be overdue before the sweeper re-publishes it.
	// Range: 1s-1h
	// Default: 30 seconds
	SweepGrace time.Duration

	// SweepBatchSize bounds the rows handled per sweep and kind.
	// Range: 1-1000
	// Default: 100
	SweepBatchSize int

	// SweepTimeout is the maximum duration of one sweep.
	// Range: 1s-30m
	// Default: 2 minutes
	SweepTimeout time.Duration

	// HealthPort is the port of the health, metrics and delivery query server.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with default values.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		SweepSchedule:  "* * * * *",
		Timezone:       "UTC",
		Prefetch:       1,
		BackoffBase:    delivery.DefaultBackoffBase,
		BackoffCap:     delivery.DefaultBackoffCap,
		SweepGrace:     delivery.DefaultSweepGrace,
		SweepBatchSize: delivery.DefaultSweepBatch,
		SweepTimeout:   2 * time.Minute,
		HealthPort:     9091,
	}
}

// Validate checks every field and returns all failures together.
func (c *WorkerConfig) Validate() error {
	var errors []error

	if err := config.ValidateCronSchedule(c.SweepSchedule); err != nil {
		errors = append(errors, fmt.Errorf("sweep schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errors = append(errors, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.Prefetch, 1, 50); err != nil {
		errors = append(errors, fmt.Errorf("prefetch: %w", err))
	}
	if err := config.ValidateDurationRange(c.BackoffBase, time.Second, time.Hour); err != nil {
		errors = append(errors, fmt.Errorf("backoff base: %w", err))
	}
	if err := config.ValidateDurationRange(c.BackoffCap, time.Minute, 24*time.Hour); err != nil {
		errors = append(errors, fmt.Errorf("backoff cap: %w", err))
	}
	if c.BackoffCap < c.BackoffBase {
		errors = append(errors, fmt.Errorf("backoff cap %v is below backoff base %v", c.BackoffCap, c.BackoffBase))
	}
	if err := config.ValidateDurationRange(c.SweepGrace, time.Second, time.Hour); err != nil {
		errors = append(errors, fmt.Errorf("sweep grace: %w", err))
	}
	if err := config.ValidateIntRange(c.SweepBatchSize, 1, 1000); err != nil {
		errors = append(errors, fmt.Errorf("sweep batch size: %w", err))
	}
	if err := config.ValidateDurationRange(c.SweepTimeout, time.Second, 30*time.Minute); err != nil {
		errors = append(errors, fmt.Errorf("sweep timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errors = append(errors, fmt.Errorf("health port: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}
	return nil
}

// ChannelFromEnv reads WORKER_CHANNEL. Unlike the tunables it has no default:
// a worker without a channel cannot start.
func ChannelFromEnv() (entity.Channel, error) {
	raw := config.GetEnvString("WORKER_CHANNEL", "")
	if raw == "" {
		return entity.ChannelUnknown, fmt.Errorf("WORKER_CHANNEL is required (email or push)")
	}
	return entity.ParseChannel(raw)
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with validation and automatic fallback to default values on failure.
//
// Environment variables:
//   - SWEEP_SCHEDULE: Cron expression (default: "* * * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "UTC")
//   - WORKER_PREFETCH: Integer 1-50 (default: 1)
//   - RETRY_BACKOFF_BASE: Duration 1s-1h (default: 1m)
//   - RETRY_BACKOFF_CAP: Duration 1m-24h (default: 1h)
//   - SWEEP_GRACE: Duration 1s-1h (default: 30s)
//   - SWEEP_BATCH_SIZE: Integer 1-1000 (default: 100)
//   - SWEEP_TIMEOUT: Duration 1s-30m (default: 2m)
//   - WORKER_HEALTH_PORT: Integer 1024-65535 (default: 9091)
//
// The returned error is always nil (fail-open strategy).
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	warn := func(field, metric, warning string) {
		if warning == "" {
			return
		}
		fallbackApplied = true
		metrics.RecordFallback(metric)
		logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}
	durationIn := func(min, max time.Duration) func(time.Duration) error {
		return func(d time.Duration) error { return config.ValidateDurationRange(d, min, max) }
	}
	intIn := func(min, max int) func(int) error {
		return func(v int) error { return config.ValidateIntRange(v, min, max) }
	}

	schedule := config.LoadString("SWEEP_SCHEDULE", cfg.SweepSchedule, config.ValidateCronSchedule)
	cfg.SweepSchedule = schedule.Value
	warn("SweepSchedule", "sweep_schedule", schedule.Warning)

	tz := config.LoadString("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = tz.Value
	warn("Timezone", "timezone", tz.Warning)

	prefetch := config.LoadInt("WORKER_PREFETCH", cfg.Prefetch, intIn(1, 50))
	cfg.Prefetch = prefetch.Value
	warn("Prefetch", "prefetch", prefetch.Warning)

	base := config.LoadDuration("RETRY_BACKOFF_BASE", cfg.BackoffBase, durationIn(time.Second, time.Hour))
	cfg.BackoffBase = base.Value
	warn("BackoffBase", "backoff_base", base.Warning)

	// 上限は読み込み済みの base 以上でなければならない
	backoffCap := config.LoadDuration("RETRY_BACKOFF_CAP", cfg.BackoffCap, func(d time.Duration) error {
		if err := config.ValidateDurationRange(d, time.Minute, 24*time.Hour); err != nil {
			return err
		}
		if d < cfg.BackoffBase {
			return fmt.Errorf("must not be below RETRY_BACKOFF_BASE (%v)", cfg.BackoffBase)
		}
		return nil
	})
	cfg.BackoffCap = backoffCap.Value
	warn("BackoffCap", "backoff_cap", backoffCap.Warning)

	grace := config.LoadDuration("SWEEP_GRACE", cfg.SweepGrace, durationIn(time.Second, time.Hour))
	cfg.SweepGrace = grace.Value
	warn("SweepGrace", "sweep_grace", grace.Warning)

	batch := config.LoadInt("SWEEP_BATCH_SIZE", cfg.SweepBatchSize, intIn(1, 1000))
	cfg.SweepBatchSize = batch.Value
	warn("SweepBatchSize", "sweep_batch_size", batch.Warning)

	timeout := config.LoadDuration("SWEEP_TIMEOUT", cfg.SweepTimeout, durationIn(time.Second, 30*time.Minute))
	cfg.SweepTimeout = timeout.Value
	warn("SweepTimeout", "sweep_timeout", timeout.Warning)

	port := config.LoadInt("WORKER_HEALTH_PORT", cfg.HealthPort, intIn(1024, 65535))
	cfg.HealthPort = port.Value
	warn("HealthPort", "health_port", port.Warning)

	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordLoadTimestamp()

	// Always return valid config (fail-open strategy)
	return &cfg, nil
}
