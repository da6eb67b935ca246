package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

var statusReportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "status_reports_total",
		Help: "Total number of status reports received by the reconciler",
	},
	[]string{"status", "result"}, // result: applied|duplicate|ignored
)

// Result values for a report.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
)

// EventPublisher receives a StatusEvent after each applied report.
type EventPublisher interface {
	Publish(ctx context.Context, event *entity.StatusEvent) error
}

// Reconciler applies worker status reports to notification requests.
type Reconciler struct {
	Requests repository.NotificationRequestRepository
	Errors   repository.ErrorLogRepository
	Events   EventPublisher
	Now      func() time.Time
}

// Outcome describes what a report changed.
type Outcome struct {
	Result         string
	Status         entity.Status
	NotificationID string
}

// View is a notification request with its failure history.
type View struct {
	Request *entity.NotificationRequest
	Errors  []*entity.ErrorRecord
}

// Report applies a status report. Terminal statuses are final: repeating the same
// terminal status is a no-op, a conflicting one is ignored.
func (r *Reconciler) Report(ctx context.Context, report *entity.StatusReport) (*Outcome, error) {
	if err := report.Validate(); err != nil {
		return nil, err
	}

	req, err := r.Requests.GetByNotificationID(ctx, report.NotificationID)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if req == nil {
		return nil, ErrNotificationNotFound
	}

	logger := slog.With(
		slog.String("notification_id", report.NotificationID),
		slog.String("request_id", req.RequestID),
		slog.String("service_name", report.ServiceName),
		slog.String("reported_status", string(report.Status)))
	out := &Outcome{Status: req.Status, NotificationID: report.NotificationID}

	switch {
	case req.Status == report.Status:
		logger.Info("duplicate status report")
		out.Result = ResultDuplicate
	case req.Status.IsTerminal():
		logger.Warn("status report after terminal status ignored",
			slog.String("current_status", string(req.Status)))
		out.Result = ResultIgnored
	default:
		if err := r.apply(ctx, req, report); err != nil {
			return nil, err
		}
		logger.Info("status report applied",
			slog.String("previous_status", string(out.Status)))
		out.Result = ResultApplied
		out.Status = report.Status
	}
	statusReportsTotal.WithLabelValues(string(report.Status), out.Result).Inc()

	if out.Result == ResultApplied && r.Events != nil {
		event := &entity.StatusEvent{
			NotificationID: report.NotificationID,
			RequestID:      req.RequestID,
			Status:         report.Status,
			ServiceName:    report.ServiceName,
			ErrorCode:      report.Code(),
			OccurredAt:     r.now(),
		}
		if err := r.Events.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish status event", slog.Any("error", err))
		}
	}
	return out, nil
}

func (r *Reconciler) apply(ctx context.Context, req *entity.NotificationRequest, report *entity.StatusReport) error {
	switch report.Status {
	case entity.StatusFailed:
		rec := &entity.ErrorRecord{
			NotificationID: report.NotificationID,
			ServiceName:    report.ServiceName,
			ErrorCode:      report.Code(),
			ErrorMessage:   report.Message(),
			RetryCount:     report.RetryCount,
			CreatedAt:      r.now(),
		}
		// 失敗記録を先に残す (状態更新に失敗しても再報告で補える)
		if err := r.Errors.Append(ctx, rec); err != nil {
			return fmt.Errorf("append error record: %w", err)
		}
		if err := r.Requests.UpdateStatus(ctx, req.NotificationID, entity.StatusFailed, report.Message()); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
	default:
		if err := r.Requests.UpdateStatus(ctx, req.NotificationID, report.Status, ""); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
	}
	return nil
}

// Get returns the request with its error records, most recent first.
func (r *Reconciler) Get(ctx context.Context, requestID string) (*View, error) {
	req, err := r.Requests.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if req == nil {
		return nil, ErrNotificationNotFound
	}
	errs, err := r.Errors.ListByNotification(ctx, req.NotificationID)
	if err != nil {
		return nil, fmt.Errorf("list error records: %w", err)
	}
	return &View{Request: req, Errors: errs}, nil
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
