package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

type ChannelNotificationRepo struct{ db *sql.DB }

func NewChannelNotificationRepo(db *sql.DB) repository.ChannelNotificationRepository {
	return &ChannelNotificationRepo{db: db}
}

const channelNotificationColumns = `notification_id, channel, request_id, user_id, destination, template_code, language,
variables, priority, metadata, status, retry_count, max_retries, last_error, last_error_code, processed_subject, processed_body,
next_retry_at, reported_at, delivered_at, created_at, updated_at`

func scanChannelNotification(row rowScanner) (*entity.ChannelNotification, error) {
	var (
		n         entity.ChannelNotification
		channel   string
		status    string
		variables []byte
		metadata  []byte
		lastError sql.NullString
		errCode   sql.NullString
		subject   sql.NullString
		body      sql.NullString
	)
	if err := row.Scan(
		&n.NotificationID, &channel, &n.RequestID, &n.UserID, &n.Destination, &n.TemplateCode, &n.Language,
		&variables, &n.Priority, &metadata, &status, &n.RetryCount, &n.MaxRetries, &lastError, &errCode, &subject, &body,
		&n.NextRetryAt, &n.ReportedAt, &n.DeliveredAt, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}

	ch, err := entity.ParseChannel(channel)
	if err != nil {
		return nil, err
	}
	n.Channel = ch
	n.Status = entity.Status(status)
	n.LastError = lastError.String
	n.LastErrorCode = errCode.String
	n.ProcessedSubject = subject.String
	n.ProcessedBody = body.String
	if n.Variables, err = decodeJSONMap(variables); err != nil {
		return nil, err
	}
	if n.Metadata, err = decodeJSONMap(metadata); err != nil {
		return nil, err
	}
	return &n, nil
}

// Upsert inserts n unless a record with the same notification_id exists, then returns the stored row.
func (repo *ChannelNotificationRepo) Upsert(ctx context.Context, n *entity.ChannelNotification) (*entity.ChannelNotification, error) {
	const insert = `
INSERT INTO channel_notifications
	(notification_id, channel, request_id, user_id, destination, template_code, language, variables, priority, metadata,
	 status, retry_count, max_retries)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (notification_id) DO NOTHING`

	variables, err := encodeJSONMap(n.Variables)
	if err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}
	metadata, err := encodeJSONMap(n.Metadata)
	if err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}

	if _, err := repo.db.ExecContext(ctx, insert,
		n.NotificationID, n.Channel.String(), n.RequestID, n.UserID, n.Destination, n.TemplateCode, n.Language,
		variables, n.Priority, metadata, string(n.Status), n.RetryCount, n.MaxRetries,
	); err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}

	stored, err := repo.Get(ctx, n.NotificationID)
	if err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}
	if stored == nil {
		return nil, fmt.Errorf("Upsert: %s vanished after insert", n.NotificationID)
	}
	return stored, nil
}

// Get returns nil, nil when the notification is unknown.
func (repo *ChannelNotificationRepo) Get(ctx context.Context, notificationID string) (*entity.ChannelNotification, error) {
	query := `SELECT ` + channelNotificationColumns + ` FROM channel_notifications WHERE notification_id = $1 LIMIT 1`
	n, err := scanChannelNotification(repo.db.QueryRowContext(ctx, query, notificationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return n, nil
}

func (repo *ChannelNotificationRepo) Save(ctx context.Context, n *entity.ChannelNotification) error {
	const query = `
UPDATE channel_notifications
SET status = $1, retry_count = $2, last_error = NULLIF($3, ''), last_error_code = NULLIF($4, ''),
    processed_subject = NULLIF($5, ''), processed_body = NULLIF($6, ''), next_retry_at = $7, delivered_at = $8,
    updated_at = now()
WHERE notification_id = $9`
	res, err := repo.db.ExecContext(ctx, query,
		string(n.Status), n.RetryCount, n.LastError, n.LastErrorCode, n.ProcessedSubject, n.ProcessedBody,
		n.NextRetryAt, n.DeliveredAt, n.NotificationID,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// ClaimRetry wins when next_retry_at is set, or when an earlier claim is older than staleBefore
// and its attempt never moved the row out of pending.
func (repo *ChannelNotificationRepo) ClaimRetry(ctx context.Context, notificationID string, staleBefore time.Time) (bool, error) {
	const query = `
UPDATE channel_notifications
SET next_retry_at = NULL, updated_at = now()
WHERE notification_id = $1 AND status = 'pending'
  AND (next_retry_at IS NOT NULL OR (retry_count > 0 AND updated_at <= $2))`
	res, err := repo.db.ExecContext(ctx, query, notificationID, staleBefore)
	if err != nil {
		return false, fmt.Errorf("ClaimRetry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ClaimRetry: RowsAffected: %w", err)
	}
	return rows == 1, nil
}

func (repo *ChannelNotificationRepo) ListDueRetries(ctx context.Context, channel entity.Channel, before, staleBefore time.Time, limit int) ([]*entity.ChannelNotification, error) {
	// 取得済みで送信前に止まった行 (next_retry_at IS NULL) も拾う
	query := `SELECT ` + channelNotificationColumns + `
FROM channel_notifications
WHERE channel = $1 AND status = 'pending'
  AND ((next_retry_at IS NOT NULL AND next_retry_at <= $2)
    OR (next_retry_at IS NULL AND retry_count > 0 AND updated_at <= $3))
ORDER BY COALESCE(next_retry_at, updated_at) ASC
LIMIT $4`
	return repo.list(ctx, "ListDueRetries", query, channel.String(), before, staleBefore, limit)
}

func (repo *ChannelNotificationRepo) ListUnreported(ctx context.Context, channel entity.Channel, limit int) ([]*entity.ChannelNotification, error) {
	query := `SELECT ` + channelNotificationColumns + `
FROM channel_notifications
WHERE channel = $1 AND status IN ('delivered', 'failed') AND reported_at IS NULL
ORDER BY updated_at ASC
LIMIT $2`
	return repo.list(ctx, "ListUnreported", query, channel.String(), limit)
}

func (repo *ChannelNotificationRepo) MarkReported(ctx context.Context, notificationID string, at time.Time) error {
	const query = `UPDATE channel_notifications SET reported_at = $1 WHERE notification_id = $2`
	if _, err := repo.db.ExecContext(ctx, query, at, notificationID); err != nil {
		return fmt.Errorf("MarkReported: %w", err)
	}
	return nil
}

func (repo *ChannelNotificationRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.ChannelNotification, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.ChannelNotification
	for rows.Next() {
		n, err := scanChannelNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
