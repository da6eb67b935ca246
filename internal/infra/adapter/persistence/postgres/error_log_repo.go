package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

type ErrorLogRepo struct{ db *sql.DB }

func NewErrorLogRepo(db *sql.DB) repository.ErrorLogRepository {
	return &ErrorLogRepo{db: db}
}

func (repo *ErrorLogRepo) Append(ctx context.Context, rec *entity.ErrorRecord) error {
	const query = `
INSERT INTO error_logs (notification_id, service_name, error_code, error_message, retry_count)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`
	err := repo.db.QueryRowContext(ctx, query,
		rec.NotificationID, rec.ServiceName, rec.ErrorCode, rec.ErrorMessage, rec.RetryCount,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

func (repo *ErrorLogRepo) ListByNotification(ctx context.Context, notificationID string) ([]*entity.ErrorRecord, error) {
	const query = `
SELECT id, notification_id, service_name, error_code, error_message, retry_count, created_at
FROM error_logs
WHERE notification_id = $1
ORDER BY created_at DESC, id DESC`
	rows, err := repo.db.QueryContext(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("ListByNotification: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*entity.ErrorRecord
	for rows.Next() {
		var r entity.ErrorRecord
		if err := rows.Scan(&r.ID, &r.NotificationID, &r.ServiceName, &r.ErrorCode, &r.ErrorMessage,
			&r.RetryCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByNotification: Scan: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByNotification: %w", err)
	}
	return records, nil
}
