// Package retry runs bounded exponential backoff loops for broker publishes,
// broker reconnects and calls to peer services.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"

	"notification-pipeline/internal/observability/metrics"
)

// Result labels recorded in retry_attempts_total.
const (
	ResultRetry     = "retry"
	ResultRecovered = "recovered"
	ResultExhausted = "exhausted"
	ResultAborted   = "aborted"
)

// Config describes one backoff loop.
type Config struct {
	// Operation names the loop in logs and metrics.
	Operation string

	// MaxAttempts includes the first call.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFraction adds up to this share of the delay on top of each wait (0.0 to 1.0).
	JitterFraction float64

	// RetryIf overrides IsRetryable when set.
	RetryIf func(err error) bool
}

// Named returns a copy of c labelled with operation.
func (c Config) Named(operation string) Config {
	c.Operation = operation
	return c
}

// PublishConfig is used for broker publishes: three attempts starting at 2s.
// Everything but cancellation is retried since the publisher reconnects between attempts.
func PublishConfig() Config {
	return Config{
		Operation:    "broker_publish",
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		RetryIf:      notCanceled,
	}
}

// ReconnectConfig is used when (re)dialling RabbitMQ.
func ReconnectConfig() Config {
	return Config{
		Operation:      "broker_connect",
		MaxAttempts:    5,
		InitialDelay:   time.Second,
		MaxDelay:       15 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		RetryIf:        notCanceled,
	}
}

// HTTPClientConfig is used for calls to the user directory, the template
// service and the status endpoint. Callers label it with Named.
func HTTPClientConfig() Config {
	return Config{
		Operation:      "http_client",
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// WithBackoff calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done. Non-retryable errors are returned unwrapped,
// as is the error of an attempt that failed after ctx was done.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	retryable := cfg.RetryIf
	if retryable == nil {
		retryable = IsRetryable
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := slog.With(slog.String("operation", cfg.Operation))

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				metrics.RecordRetry(cfg.Operation, ResultRecovered)
				logger.Info("operation succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}
		// 呼び出し元の ctx が終わっていればタイムアウトでも再試行しない
		if ctx.Err() != nil || !retryable(err) {
			if attempt > 1 {
				metrics.RecordRetry(cfg.Operation, ResultAborted)
			}
			return err
		}
		if attempt >= attempts {
			break
		}

		wait := addJitter(delay, cfg.JitterFraction)
		metrics.RecordRetry(cfg.Operation, ResultRetry)
		logger.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", wait),
			slog.Any("error", err))

		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-timer.C:
		case <-ctx.Done():
			metrics.RecordRetry(cfg.Operation, ResultAborted)
			return fmt.Errorf("%s: retry aborted after attempt %d: %w", operationName(cfg), attempt, ctx.Err())
		}
		delay = nextDelay(delay, cfg)
	}

	metrics.RecordRetry(cfg.Operation, ResultExhausted)
	return fmt.Errorf("%s: gave up after %d attempts: %w", operationName(cfg), attempts, err)
}

func nextDelay(delay time.Duration, cfg Config) time.Duration {
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	next := time.Duration(float64(delay) * mult)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func operationName(cfg Config) string {
	if cfg.Operation == "" {
		return "retry"
	}
	return cfg.Operation
}

// Backoff returns the delay before delivery retry number attempt (1-based):
// base * 2^(attempt-1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// IsRetryable reports whether err looks transient: timeouts, refused or reset
// connections, 5xx, 408 and 429. Cancellation never is.
//
// A deadline error counts as a timeout since an http.Client timeout wraps
// context.DeadlineExceeded. WithBackoff stops anyway once its own ctx is done.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500 && httpErr.StatusCode < 600:
			return true
		case httpErr.StatusCode == http.StatusTooManyRequests, httpErr.StatusCode == http.StatusRequestTimeout:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

func notCanceled(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// HTTPError is a non-2xx answer from a peer service.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func addJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	if fraction > 1.0 {
		fraction = 1.0
	}
	// #nosec G404 -- jitter does not need cryptographic randomness
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
