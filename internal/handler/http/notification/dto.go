// Package notification provides the gateway HTTP handlers for submitting
// notification requests and polling their status.
package notification

import (
	"time"

	"notification-pipeline/internal/domain/entity"
)

// CreateRequest is the wire body of POST /api/v1/notifications.
type CreateRequest struct {
	RequestID        string         `json:"request_id"`
	UserID           string         `json:"user_id"`
	NotificationType string         `json:"notification_type"`
	TemplateCode     string         `json:"template_code"`
	Language         string         `json:"language"`
	Variables        map[string]any `json:"variables"`
	Priority         int            `json:"priority"`
	Metadata         map[string]any `json:"metadata"`
}

// DTO represents a stored notification request.
type DTO struct {
	RequestID        string         `json:"request_id"`
	NotificationID   string         `json:"notification_id"`
	NotificationType string         `json:"notification_type"`
	UserID           string         `json:"user_id"`
	TemplateCode     string         `json:"template_code"`
	Language         string         `json:"language"`
	Variables        map[string]any `json:"variables"`
	Priority         int            `json:"priority"`
	Metadata         map[string]any `json:"metadata"`
	Status           string         `json:"status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Errors           []ErrorDTO     `json:"errors,omitempty"`
}

// ErrorDTO is one failure record reported by a worker.
type ErrorDTO struct {
	ServiceName  string    `json:"service_name"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RetryCount   int       `json:"retry_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func toDTO(n *entity.NotificationRequest) DTO {
	return DTO{
		RequestID:        n.RequestID,
		NotificationID:   n.NotificationID,
		NotificationType: n.Channel.String(),
		UserID:           n.UserID,
		TemplateCode:     n.TemplateCode,
		Language:         n.Language,
		Variables:        n.Variables,
		Priority:         n.Priority,
		Metadata:         n.Metadata,
		Status:           string(n.Status),
		ErrorMessage:     n.ErrorMessage,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func toErrorDTOs(records []*entity.ErrorRecord) []ErrorDTO {
	out := make([]ErrorDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, ErrorDTO{
			ServiceName:  rec.ServiceName,
			ErrorCode:    rec.ErrorCode,
			ErrorMessage: rec.ErrorMessage,
			RetryCount:   rec.RetryCount,
			CreatedAt:    rec.CreatedAt,
		})
	}
	return out
}
