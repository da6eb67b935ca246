// Package deadletter drains the dead-letter queue. It is a terminal sink:
// messages are recorded as failed and acknowledged, never re-published.
package deadletter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
	"notification-pipeline/internal/usecase/status"
)

// ServiceName identifies the dead-letter consumer in status reports.
const ServiceName = "dead_letter_service"

// Fixed reasons recorded for dead-lettered notifications.
const (
	ReasonExhausted = "exceeded delivery guarantees"
	ReasonMalformed = "malformed payload"
)

var deadLettersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dead_letters_processed_total",
		Help: "Total number of dead-lettered messages processed",
	},
	[]string{"reason", "result"}, // result: recorded|uncorrelated|requeued
)

// StatusSink applies a failure report to the authoritative notification record.
// *status.Reconciler satisfies it.
type StatusSink interface {
	Report(ctx context.Context, report *entity.StatusReport) (*status.Outcome, error)
}

// Handler records dead-lettered messages.
type Handler struct {
	Notifications repository.ChannelNotificationRepository
	Status        StatusSink
	Now           func() time.Time
}

// Handle marks the correlated notification failed and acknowledges the message.
// Only persistence failures requeue; anything that cannot be correlated is dropped after logging.
func (h *Handler) Handle(ctx context.Context, body []byte, headers map[string]string) entity.Outcome {
	reason := Reason(body, headers)
	id := entity.CorrelationID(body)
	logger := slog.With(
		slog.String("notification_id", id),
		slog.String("reason", reason),
		slog.String("origin_channel", headers["x-origin-channel"]))

	if id == "" {
		logger.Error("dead-lettered message has no correlation id, dropping",
			slog.Int("body_bytes", len(body)))
		deadLettersTotal.WithLabelValues(reason, "uncorrelated").Inc()
		return entity.OutcomeAck
	}

	retryCount := 0
	n, err := h.Notifications.Get(ctx, id)
	if err != nil {
		logger.Error("failed to load channel notification", slog.Any("error", err))
		deadLettersTotal.WithLabelValues(reason, "requeued").Inc()
		return entity.OutcomeRequeue
	}
	if n != nil {
		retryCount = n.RetryCount
		if !n.Status.IsTerminal() {
			n.Status = entity.StatusFailed
			n.LastError = reason
			n.LastErrorCode = entity.ErrorCodeDeadLetter
			n.NextRetryAt = nil
			if err := h.Notifications.Save(ctx, n); err != nil {
				logger.Error("failed to mark channel notification failed", slog.Any("error", err))
				deadLettersTotal.WithLabelValues(reason, "requeued").Inc()
				return entity.OutcomeRequeue
			}
		}
	}

	report := entity.NewFailedReport(id, ServiceName, entity.ErrorCodeDeadLetter, reason, retryCount)
	out, err := h.Status.Report(ctx, report)
	switch {
	case errors.Is(err, status.ErrNotificationNotFound):
		logger.Warn("dead-lettered notification unknown to the gateway")
		deadLettersTotal.WithLabelValues(reason, "uncorrelated").Inc()
		return entity.OutcomeAck
	case err != nil:
		logger.Error("failed to record dead-lettered notification", slog.Any("error", err))
		deadLettersTotal.WithLabelValues(reason, "requeued").Inc()
		return entity.OutcomeRequeue
	}

	if n != nil && n.NeedsReport() {
		if err := h.Notifications.MarkReported(ctx, id, h.now()); err != nil {
			logger.Warn("failed to mark notification reported", slog.Any("error", err))
		}
	}
	logger.Info("dead-lettered notification recorded",
		slog.String("result", out.Result),
		slog.String("status", string(out.Status)))
	deadLettersTotal.WithLabelValues(reason, "recorded").Inc()
	return entity.OutcomeAck
}

// Reason maps the x-failure-reason header to the recorded reason. Without the header
// a payload that still parses is assumed to have exhausted its delivery guarantees.
func Reason(body []byte, headers map[string]string) string {
	switch headers[entity.HeaderFailureReason] {
	case entity.FailureReasonMalformed:
		return ReasonMalformed
	case entity.FailureReasonExhausted:
		return ReasonExhausted
	}
	if _, err := entity.ParseMessage(body); err != nil {
		return ReasonMalformed
	}
	return ReasonExhausted
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
