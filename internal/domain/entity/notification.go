package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLanguage is used when a request or message omits language.
	DefaultLanguage = "en"
	// DefaultPriority is used when a request omits priority.
	DefaultPriority = 1

	maxRequestIDLength = 255
)

// notificationNamespace scopes the UUIDv5 derivation of notification ids.
var notificationNamespace = uuid.MustParse("6f1c9a3e-5b7d-4c1e-9a0f-2d8e4b6c7a10")

// NotificationRequest is the unit of work as seen by the gateway.
// RequestID is the idempotency boundary.
type NotificationRequest struct {
	ID             int64
	RequestID      string
	NotificationID string
	Channel        Channel
	UserID         string
	TemplateCode   string
	Language       string
	Variables      map[string]any
	Priority       int
	Metadata       map[string]any
	Status         Status
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ErrorRecord is the structured failure history appended by the status reconciler.
type ErrorRecord struct {
	ID             int64
	NotificationID string
	ServiceName    string
	ErrorCode      string
	ErrorMessage   string
	RetryCount     int
	CreatedAt      time.Time
}

// requiredVariables lists the variable keys each channel needs to render its templates.
var requiredVariables = map[Channel][]string{
	ChannelEmail: {"name"},
	ChannelPush:  {"name"},
}

// RequiredVariables returns the minimum variable keys for the channel.
func RequiredVariables(c Channel) []string {
	return requiredVariables[c]
}

// Validate checks required fields and fills defaults for optional ones.
func (n *NotificationRequest) Validate() error {
	if n.Channel == ChannelUnknown {
		return &ValidationError{Field: "notification_type", Message: "is required"}
	}
	if n.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "is required"}
	}
	if _, err := uuid.Parse(n.UserID); err != nil {
		return &ValidationError{Field: "user_id", Message: "must be a valid UUID"}
	}
	if strings.TrimSpace(n.TemplateCode) == "" {
		return &ValidationError{Field: "template_code", Message: "is required"}
	}
	if len(n.RequestID) > maxRequestIDLength {
		return &ValidationError{
			Field:   "request_id",
			Message: fmt.Sprintf("must not exceed %d characters", maxRequestIDLength),
		}
	}
	if len(n.Variables) == 0 {
		return &ValidationError{Field: "variables", Message: "is required"}
	}
	for _, key := range RequiredVariables(n.Channel) {
		v, ok := n.Variables[key]
		if !ok || v == nil || fmt.Sprint(v) == "" {
			return &ValidationError{Field: "variables." + key, Message: "is required"}
		}
	}
	if link, ok := n.Variables["link"].(string); ok && link != "" {
		if err := ValidateLink(link); err != nil {
			return err
		}
	}

	if n.Language == "" {
		n.Language = DefaultLanguage
	}
	if n.Priority == 0 {
		n.Priority = DefaultPriority
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	return nil
}

// NewRequestID returns a random request id for callers that supply no natural key.
func NewRequestID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// DeriveNotificationID maps a request id onto its cross-service notification id.
// The mapping is deterministic so redeliveries and the dead-letter consumer agree on it.
func DeriveNotificationID(requestID string) string {
	return uuid.NewSHA1(notificationNamespace, []byte(requestID)).String()
}
