// Package delivery exposes a channel worker's delivery state over HTTP.
package delivery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/handler/http/pathutil"
	"notification-pipeline/internal/handler/http/respond"
)

// PathPrefix is followed by the notification_id.
const PathPrefix = "/api/v1/deliveries/"

// Notifications reads channel notifications.
type Notifications interface {
	Get(ctx context.Context, notificationID string) (*entity.ChannelNotification, error)
}

// Logs reads the attempt audit trail.
type Logs interface {
	ListByNotification(ctx context.Context, notificationID string) ([]*entity.DeliveryLog, error)
}

// DTO is a channel notification with its attempts, most recent first.
type DTO struct {
	NotificationID   string     `json:"notification_id"`
	Channel          string     `json:"channel"`
	RequestID        string     `json:"request_id"`
	UserID           string     `json:"user_id"`
	TemplateCode     string     `json:"template_code"`
	Language         string     `json:"language"`
	Status           string     `json:"status"`
	RetryCount       int        `json:"retry_count"`
	MaxRetries       int        `json:"max_retries"`
	LastError        string     `json:"last_error,omitempty"`
	LastErrorCode    string     `json:"last_error_code,omitempty"`
	ProcessedSubject string     `json:"processed_subject,omitempty"`
	ProcessedBody    string     `json:"processed_body,omitempty"`
	NextRetryAt      *time.Time `json:"next_retry_at,omitempty"`
	ReportedAt       *time.Time `json:"reported_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Attempts         []LogDTO   `json:"attempts"`
}

// LogDTO is one delivery attempt.
type LogDTO struct {
	Attempt          int       `json:"attempt"`
	Status           string    `json:"status"`
	MessageID        string    `json:"message_id,omitempty"`
	ProviderResponse string    `json:"provider_response,omitempty"`
	ErrorCode        string    `json:"error_code,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type GetHandler struct {
	Notifications Notifications
	Logs          Logs
}

// ServeHTTP 配信状態の取得
func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := pathutil.ExtractID(r.URL.Path, PathPrefix)
	if err != nil {
		respond.Fail(w, http.StatusBadRequest, respond.MsgValidationError, "invalid notification_id")
		return
	}

	n, err := h.Notifications.Get(r.Context(), id)
	if err != nil {
		respond.SafeError(w, fmt.Errorf("get channel notification: %w", err))
		return
	}
	if n == nil {
		respond.Fail(w, http.StatusNotFound, "delivery_not_found", "delivery not found")
		return
	}
	logs, err := h.Logs.ListByNotification(r.Context(), id)
	if err != nil {
		respond.SafeError(w, fmt.Errorf("list delivery logs: %w", err))
		return
	}

	out := DTO{
		NotificationID:   n.NotificationID,
		Channel:          n.Channel.String(),
		RequestID:        n.RequestID,
		UserID:           n.UserID,
		TemplateCode:     n.TemplateCode,
		Language:         n.Language,
		Status:           string(n.Status),
		RetryCount:       n.RetryCount,
		MaxRetries:       n.MaxRetries,
		LastError:        n.LastError,
		LastErrorCode:    n.LastErrorCode,
		ProcessedSubject: n.ProcessedSubject,
		ProcessedBody:    n.ProcessedBody,
		NextRetryAt:      n.NextRetryAt,
		ReportedAt:       n.ReportedAt,
		DeliveredAt:      n.DeliveredAt,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
		Attempts:         make([]LogDTO, 0, len(logs)),
	}
	for _, l := range logs {
		out.Attempts = append(out.Attempts, LogDTO{
			Attempt:          l.Attempt,
			Status:           string(l.Status),
			MessageID:        l.MessageID,
			ProviderResponse: l.ProviderResponse,
			ErrorCode:        l.ErrorCode,
			ErrorMessage:     l.ErrorMessage,
			CreatedAt:        l.CreatedAt,
		})
	}

	respond.OK(w, http.StatusOK, "delivery_found", out)
}

// Register registers the delivery query endpoint with the given mux.
func Register(mux *http.ServeMux, notifications Notifications, logs Logs) {
	mux.Handle("GET "+PathPrefix, GetHandler{Notifications: notifications, Logs: logs})
}
