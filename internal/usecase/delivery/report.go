package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

// TerminalReport builds the upstream report for a terminal notification.
func TerminalReport(n *entity.ChannelNotification) *entity.StatusReport {
	if n.Status == entity.StatusDelivered {
		return entity.NewDeliveredReport(n.NotificationID, n.Channel.ServiceName())
	}
	return entity.NewFailedReport(n.NotificationID, n.Channel.ServiceName(), n.FailureCode(), n.LastError, n.RetryCount)
}

// reportTerminal sends the terminal report and stamps reported_at.
// It returns false when the reconciler could not be reached; the sweeper retries those.
func reportTerminal(ctx context.Context, ch entity.Channel, repo repository.ChannelNotificationRepository,
	reporter Reporter, n *entity.ChannelNotification, now time.Time) bool {
	err := reporter.Report(ctx, TerminalReport(n))
	switch {
	case errors.Is(err, entity.ErrNotFound):
		// 上流に記録がないため再送しても無意味
		slog.Warn("notification unknown to the reconciler, not retrying report",
			slog.String("notification_id", n.NotificationID))
	case err != nil:
		RecordReportFailure(ch.String())
		slog.Warn("failed to report terminal status",
			slog.String("notification_id", n.NotificationID),
			slog.String("status", string(n.Status)),
			slog.Any("error", err))
		return false
	}
	if err := repo.MarkReported(ctx, n.NotificationID, now); err != nil {
		slog.Warn("failed to mark notification reported",
			slog.String("notification_id", n.NotificationID),
			slog.Any("error", err))
		return false
	}
	n.ReportedAt = &now
	return true
}
