package repository

import (
	"context"
	"time"

	"notification-pipeline/internal/domain/entity"
)

// NotificationRequestRepository persists gateway-side requests.
type NotificationRequestRepository interface {
	// Create inserts req. It returns entity.ErrDuplicateRequest when request_id already exists.
	Create(ctx context.Context, req *entity.NotificationRequest) error
	// GetByRequestID and GetByNotificationID return nil, nil when nothing matches.
	GetByRequestID(ctx context.Context, requestID string) (*entity.NotificationRequest, error)
	GetByNotificationID(ctx context.Context, notificationID string) (*entity.NotificationRequest, error)
	UpdateStatus(ctx context.Context, notificationID string, status entity.Status, errorMessage string) error
}

// ChannelNotificationRepository persists worker-side delivery state.
type ChannelNotificationRepository interface {
	// Upsert inserts n when absent and returns the stored record either way.
	Upsert(ctx context.Context, n *entity.ChannelNotification) (*entity.ChannelNotification, error)
	// Get returns nil, nil for an unknown notification.
	Get(ctx context.Context, notificationID string) (*entity.ChannelNotification, error)
	Save(ctx context.Context, n *entity.ChannelNotification) error
	// ClaimRetry clears next_retry_at of a pending notification, reporting whether the caller won the claim.
	// A claim whose attempt never started expires once updated_at is older than staleBefore and can be claimed again.
	ClaimRetry(ctx context.Context, notificationID string, staleBefore time.Time) (bool, error)
	// ListDueRetries returns pending notifications whose next_retry_at is not after before,
	// plus claimed ones whose claim went stale before staleBefore.
	ListDueRetries(ctx context.Context, channel entity.Channel, before, staleBefore time.Time, limit int) ([]*entity.ChannelNotification, error)
	ListUnreported(ctx context.Context, channel entity.Channel, limit int) ([]*entity.ChannelNotification, error)
	MarkReported(ctx context.Context, notificationID string, at time.Time) error
}

// DeliveryLogRepository is the append-only attempt audit trail.
type DeliveryLogRepository interface {
	Append(ctx context.Context, log *entity.DeliveryLog) error
	// ListByNotification returns entries most recent first.
	ListByNotification(ctx context.Context, notificationID string) ([]*entity.DeliveryLog, error)
}

// ErrorLogRepository stores reconciler failure records.
type ErrorLogRepository interface {
	Append(ctx context.Context, rec *entity.ErrorRecord) error
	ListByNotification(ctx context.Context, notificationID string) ([]*entity.ErrorRecord, error)
}

// TemplateRepository reads versioned templates.
type TemplateRepository interface {
	// LatestActive returns the highest active version for code and language, or nil when none exists.
	LatestActive(ctx context.Context, code, language string) (*entity.Template, error)
}
