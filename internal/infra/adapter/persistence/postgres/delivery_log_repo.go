package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

type DeliveryLogRepo struct{ db *sql.DB }

func NewDeliveryLogRepo(db *sql.DB) repository.DeliveryLogRepository {
	return &DeliveryLogRepo{db: db}
}

func (repo *DeliveryLogRepo) Append(ctx context.Context, log *entity.DeliveryLog) error {
	const query = `
INSERT INTO delivery_logs
	(notification_id, channel, attempt, status, message_id, provider_response, error_code, error_message)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
RETURNING id, created_at`
	err := repo.db.QueryRowContext(ctx, query,
		log.NotificationID, log.Channel.String(), log.Attempt, string(log.Status),
		log.MessageID, log.ProviderResponse, log.ErrorCode, log.ErrorMessage,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

func (repo *DeliveryLogRepo) ListByNotification(ctx context.Context, notificationID string) ([]*entity.DeliveryLog, error) {
	const query = `
SELECT id, notification_id, channel, attempt, status, message_id, provider_response, error_code, error_message, created_at
FROM delivery_logs
WHERE notification_id = $1
ORDER BY created_at DESC, id DESC`
	rows, err := repo.db.QueryContext(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("ListByNotification: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []*entity.DeliveryLog
	for rows.Next() {
		var (
			l                                        entity.DeliveryLog
			channel, status                          string
			messageID, response, errCode, errMessage sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.NotificationID, &channel, &l.Attempt, &status,
			&messageID, &response, &errCode, &errMessage, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByNotification: Scan: %w", err)
		}
		if l.Channel, err = entity.ParseChannel(channel); err != nil {
			return nil, fmt.Errorf("ListByNotification: %w", err)
		}
		l.Status = entity.Status(status)
		l.MessageID = messageID.String
		l.ProviderResponse = response.String
		l.ErrorCode = errCode.String
		l.ErrorMessage = errMessage.String
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByNotification: %w", err)
	}
	return logs, nil
}
