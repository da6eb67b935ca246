// Package delivery runs the per-channel delivery state machine:
// received → processing → delivered | pending(retry) → processing → … | failed.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/observability/logging"
	"notification-pipeline/internal/observability/tracing"
	"notification-pipeline/internal/repository"
	"notification-pipeline/internal/resilience/retry"
	"notification-pipeline/internal/usecase/template"
)

const (
	// DefaultBackoffBase is the delay before the first retry.
	DefaultBackoffBase = time.Minute
	// DefaultBackoffCap bounds every retry delay.
	DefaultBackoffCap = time.Hour

	// HeaderRetryAttempt is set on re-published retries.
	HeaderRetryAttempt = "x-retry-attempt"
	// HeaderOriginChannel names the worker that dead-lettered a message.
	HeaderOriginChannel = "x-origin-channel"
)

// Provider sends rendered content to a channel destination.
type Provider interface {
	Send(ctx context.Context, destination string, content *entity.RenderedContent, data map[string]any) (*entity.Receipt, error)
}

// Reporter forwards status reports to the status reconciler.
type Reporter interface {
	Report(ctx context.Context, report *entity.StatusReport) error
}

// Publisher publishes to the notifications exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, headers map[string]string) error
}

// RetryScheduler arms a redelivery for a notification whose next_retry_at is persisted.
type RetryScheduler interface {
	Schedule(n *entity.ChannelNotification, delay time.Duration)
}

// Worker handles the messages of one channel queue.
type Worker struct {
	Channel   entity.Channel
	Repo      repository.ChannelNotificationRepository
	Logs      repository.DeliveryLogRepository
	Templates template.Resolver
	Provider  Provider
	Reporter  Reporter
	Publisher Publisher
	Scheduler RetryScheduler

	BackoffBase time.Duration
	BackoffCap  time.Duration
	Now         func() time.Time
}

// Handle processes one queue message. The returned outcome is Ack only once the
// result of the attempt (or the decision to skip it) is durably recorded.
func (w *Worker) Handle(ctx context.Context, body []byte, headers map[string]string) entity.Outcome {
	msg, err := entity.ParseMessage(body)
	if err != nil {
		return w.deadLetter(ctx, body, err)
	}

	ctx, span := tracing.GetTracer().Start(ctx, "delivery."+w.Channel.String(),
		trace.WithAttributes(
			attribute.String("notification.id", msg.NotificationID),
			attribute.String("notification.channel", w.Channel.String()),
			attribute.String("notification.retry_attempt", headers[HeaderRetryAttempt]),
		))
	defer span.End()

	logger := logging.WithCorrelationID(ctx, slog.With(
		slog.String("channel", w.Channel.String()),
		slog.String("notification_id", msg.NotificationID),
		slog.String("request_id", msg.RequestID)))

	n, err := w.Repo.Upsert(ctx, entity.NewChannelNotification(w.Channel, msg))
	if err != nil {
		logger.Error("failed to upsert channel notification", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return entity.OutcomeRequeue
	}

	if n.Status.IsTerminal() {
		logger.Info("notification already terminal, skipping",
			slog.String("status", string(n.Status)))
		RecordSkipped(w.Channel.String(), "terminal")
		if n.NeedsReport() {
			reportTerminal(ctx, w.Channel, w.Repo, w.Reporter, n, w.now())
		}
		return entity.OutcomeAck
	}

	if n.NextRetryAt != nil {
		if n.NextRetryAt.After(w.now()) {
			// 予約済みリトライより前の重複配信
			logger.Info("retry already scheduled, skipping",
				slog.Time("next_retry_at", *n.NextRetryAt))
			RecordSkipped(w.Channel.String(), "retry_pending")
			return entity.OutcomeAck
		}
		won, err := w.Repo.ClaimRetry(ctx, n.NotificationID, w.now().Add(-ClaimLease))
		if err != nil {
			logger.Error("failed to claim due retry", slog.Any("error", err))
			return entity.OutcomeRequeue
		}
		if !won {
			RecordSkipped(w.Channel.String(), "claim_lost")
			return entity.OutcomeAck
		}
		n.NextRetryAt = nil
	}

	outcome := w.attempt(ctx, logger, n)
	span.SetAttributes(
		attribute.String("notification.status", string(n.Status)),
		attribute.Int("notification.retry_count", n.RetryCount))
	if n.Status != entity.StatusDelivered {
		span.SetStatus(codes.Error, n.LastError)
	}
	return outcome
}

// attempt runs one delivery attempt for a non-terminal notification.
func (w *Worker) attempt(ctx context.Context, logger *slog.Logger, n *entity.ChannelNotification) entity.Outcome {
	first := n.RetryCount == 0
	n.Status = entity.StatusProcessing
	if err := w.Repo.Save(ctx, n); err != nil {
		logger.Error("failed to mark notification processing", slog.Any("error", err))
		return entity.OutcomeRequeue
	}
	if first {
		report := &entity.StatusReport{
			NotificationID: n.NotificationID,
			Status:         entity.StatusProcessing,
			ServiceName:    w.Channel.ServiceName(),
		}
		if err := w.Reporter.Report(ctx, report); err != nil {
			logger.Warn("failed to report processing status", slog.Any("error", err))
		}
	}

	start := time.Now()
	content, err := w.Templates.Resolve(ctx, n.TemplateCode, n.Language, n.Variables)
	if err != nil {
		return w.fail(ctx, logger, n, entity.ErrorCodeTemplate, fmt.Errorf("resolve template %s: %w", n.TemplateCode, err), time.Since(start))
	}
	if err := entity.ValidateDestination(w.Channel, n.Destination); err != nil {
		return w.fail(ctx, logger, n, entity.ErrorCodeNoDestination, &permanentError{code: entity.ErrorCodeNoDestination, err: err}, time.Since(start))
	}

	receipt, err := w.Provider.Send(ctx, n.Destination, content, sendData(n))
	if err != nil {
		return w.fail(ctx, logger, n, entity.ErrorCodeSendFailed, err, time.Since(start))
	}
	return w.succeed(ctx, logger, n, content, receipt, time.Since(start))
}

func (w *Worker) succeed(ctx context.Context, logger *slog.Logger, n *entity.ChannelNotification,
	content *entity.RenderedContent, receipt *entity.Receipt, elapsed time.Duration) entity.Outcome {
	now := w.now()
	n.Status = entity.StatusDelivered
	n.DeliveredAt = &now
	n.NextRetryAt = nil
	n.ProcessedSubject = content.Subject
	n.ProcessedBody = content.Body
	if err := w.Repo.Save(ctx, n); err != nil {
		// 送信済みだが記録できない: 再配信で重複送信となり得る
		logger.Error("failed to record delivered notification", slog.Any("error", err))
		return entity.OutcomeRequeue
	}
	RecordAttempt(w.Channel.String(), "delivered", elapsed)

	entry := &entity.DeliveryLog{
		NotificationID: n.NotificationID,
		Channel:        w.Channel,
		Attempt:        n.RetryCount + 1,
		Status:         entity.StatusDelivered,
		CreatedAt:      now,
	}
	if receipt != nil {
		entry.MessageID = receipt.MessageID
		entry.ProviderResponse = receipt.Response
	}
	if err := w.Logs.Append(ctx, entry); err != nil {
		logger.Warn("failed to append delivery log", slog.Any("error", err))
	}

	logger.Info("notification delivered",
		slog.String("message_id", entry.MessageID),
		slog.Int("attempt", entry.Attempt),
		slog.Duration("duration", elapsed))
	reportTerminal(ctx, w.Channel, w.Repo, w.Reporter, n, now)
	return entity.OutcomeAck
}

// fail records a failed attempt and either schedules a retry or finalizes the notification.
func (w *Worker) fail(ctx context.Context, logger *slog.Logger, n *entity.ChannelNotification,
	code string, cause error, elapsed time.Duration) entity.Outcome {
	now := w.now()
	n.RetryCount++
	n.LastError = cause.Error()
	n.LastErrorCode = errorCode(cause, code)

	entry := &entity.DeliveryLog{
		NotificationID: n.NotificationID,
		Channel:        w.Channel,
		Attempt:        n.RetryCount,
		Status:         entity.StatusFailed,
		ErrorCode:      n.LastErrorCode,
		ErrorMessage:   n.LastError,
		CreatedAt:      now,
	}

	retryable := !isPermanent(cause) && n.RetriesLeft()
	var delay time.Duration
	if retryable {
		delay = retry.Backoff(n.RetryCount, w.backoffBase(), w.backoffCap())
		next := now.Add(delay)
		n.Status = entity.StatusPending
		n.NextRetryAt = &next
	} else {
		n.Status = entity.StatusFailed
		n.NextRetryAt = nil
	}

	if err := w.Logs.Append(ctx, entry); err != nil {
		logger.Error("failed to append delivery log", slog.Any("error", err))
		return entity.OutcomeRequeue
	}
	if err := w.Repo.Save(ctx, n); err != nil {
		logger.Error("failed to record failed attempt", slog.Any("error", err))
		return entity.OutcomeRequeue
	}

	if retryable {
		RecordAttempt(w.Channel.String(), "retry", elapsed)
		RecordRetryScheduled(w.Channel.String())
		w.Scheduler.Schedule(n, delay)
		logger.Warn("delivery attempt failed, retry scheduled",
			slog.Int("retry_count", n.RetryCount),
			slog.Int("max_retries", n.MaxRetries),
			slog.Duration("delay", delay),
			slog.String("error_code", n.LastErrorCode),
			slog.Any("error", cause))
		return entity.OutcomeAck
	}

	RecordAttempt(w.Channel.String(), "failed", elapsed)
	terminal := &entity.TerminalDeliveryError{
		NotificationID: n.NotificationID,
		Code:           n.FailureCode(),
		Attempts:       n.RetryCount,
		Err:            cause,
	}
	logger.Error("notification failed", slog.Any("error", terminal))
	reportTerminal(ctx, w.Channel, w.Repo, w.Reporter, n, now)
	return entity.OutcomeAck
}

// deadLetter routes a payload that can never be processed to the dead-letter queue.
func (w *Worker) deadLetter(ctx context.Context, body []byte, cause error) entity.Outcome {
	logger := slog.With(
		slog.String("channel", w.Channel.String()),
		slog.String("notification_id", entity.CorrelationID(body)))
	logger.Warn("malformed message, routing to dead-letter queue", slog.Any("error", cause))

	headers := map[string]string{
		entity.HeaderFailureReason: entity.FailureReasonMalformed,
		HeaderOriginChannel:        w.Channel.String(),
	}
	if err := w.Publisher.Publish(ctx, entity.DeadLetterRoutingKey, body, headers); err != nil {
		logger.Error("failed to dead-letter malformed message", slog.Any("error", err))
		return entity.OutcomeRequeue
	}
	RecordDeadLettered(w.Channel.String(), entity.FailureReasonMalformed)
	return entity.OutcomeAck
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Worker) backoffBase() time.Duration {
	if w.BackoffBase > 0 {
		return w.BackoffBase
	}
	return DefaultBackoffBase
}

func (w *Worker) backoffCap() time.Duration {
	if w.BackoffCap > 0 {
		return w.BackoffCap
	}
	return DefaultBackoffCap
}

// sendData is the provider data payload: metadata plus correlation fields.
func sendData(n *entity.ChannelNotification) map[string]any {
	data := make(map[string]any, len(n.Metadata)+2)
	for k, v := range n.Metadata {
		data[k] = v
	}
	data["notification_id"] = n.NotificationID
	if link, ok := n.Variables["link"]; ok && link != nil {
		data["link"] = link
	}
	return data
}

// permanentError marks a failure that no retry can fix.
type permanentError struct {
	code string
	err  error
}

func (e *permanentError) Error() string     { return e.err.Error() }
func (e *permanentError) Unwrap() error     { return e.err }
func (e *permanentError) Permanent() bool   { return true }
func (e *permanentError) ErrorCode() string { return e.code }

func isPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

// errorCode prefers the code carried by err over fallback.
func errorCode(err error, fallback string) string {
	var c interface{ ErrorCode() string }
	if errors.As(err, &c) && c.ErrorCode() != "" {
		return c.ErrorCode()
	}
	return fallback
}
