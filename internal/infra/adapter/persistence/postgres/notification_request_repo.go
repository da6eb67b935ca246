package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

type NotificationRequestRepo struct{ db *sql.DB }

func NewNotificationRequestRepo(db *sql.DB) repository.NotificationRequestRepository {
	return &NotificationRequestRepo{db: db}
}

const requestColumns = `id, request_id, notification_id, notification_type, user_id, template_code, language,
variables, priority, metadata, status, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*entity.NotificationRequest, error) {
	var (
		req        entity.NotificationRequest
		channel    string
		status     string
		variables  []byte
		metadata   []byte
		errMessage sql.NullString
	)
	if err := row.Scan(
		&req.ID, &req.RequestID, &req.NotificationID, &channel, &req.UserID, &req.TemplateCode, &req.Language,
		&variables, &req.Priority, &metadata, &status, &errMessage, &req.CreatedAt, &req.UpdatedAt,
	); err != nil {
		return nil, err
	}

	ch, err := entity.ParseChannel(channel)
	if err != nil {
		return nil, err
	}
	req.Channel = ch
	req.Status = entity.Status(status)
	req.ErrorMessage = errMessage.String
	if req.Variables, err = decodeJSONMap(variables); err != nil {
		return nil, err
	}
	if req.Metadata, err = decodeJSONMap(metadata); err != nil {
		return nil, err
	}
	return &req, nil
}

// Create inserts the request; a conflicting request_id yields entity.ErrDuplicateRequest.
func (repo *NotificationRequestRepo) Create(ctx context.Context, req *entity.NotificationRequest) error {
	const query = `
INSERT INTO notification_requests
	(request_id, notification_id, notification_type, user_id, template_code, language, variables, priority, metadata, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (request_id) DO NOTHING
RETURNING id, created_at, updated_at`

	variables, err := encodeJSONMap(req.Variables)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	metadata, err := encodeJSONMap(req.Metadata)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}

	err = repo.db.QueryRowContext(ctx, query,
		req.RequestID, req.NotificationID, req.Channel.String(), req.UserID, req.TemplateCode, req.Language,
		variables, req.Priority, metadata, string(req.Status),
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetByRequestID returns nil, nil when no request matches.
func (repo *NotificationRequestRepo) GetByRequestID(ctx context.Context, requestID string) (*entity.NotificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM notification_requests WHERE request_id = $1 LIMIT 1`
	req, err := scanRequest(repo.db.QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByRequestID: %w", err)
	}
	return req, nil
}

// GetByNotificationID returns nil, nil when no request matches.
func (repo *NotificationRequestRepo) GetByNotificationID(ctx context.Context, notificationID string) (*entity.NotificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM notification_requests WHERE notification_id = $1 LIMIT 1`
	req, err := scanRequest(repo.db.QueryRowContext(ctx, query, notificationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByNotificationID: %w", err)
	}
	return req, nil
}

func (repo *NotificationRequestRepo) UpdateStatus(ctx context.Context, notificationID string, status entity.Status, errorMessage string) error {
	const query = `
UPDATE notification_requests
SET status = $1, error_message = NULLIF($2, ''), updated_at = now()
WHERE notification_id = $3`
	res, err := repo.db.ExecContext(ctx, query, string(status), errorMessage, notificationID)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}
