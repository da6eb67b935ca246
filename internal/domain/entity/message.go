package entity

import (
	"encoding/json"
	"fmt"
)

// Message is the JSON payload published to a channel queue.
type Message struct {
	NotificationID string         `json:"notification_id"`
	RequestID      string         `json:"request_id"`
	UserID         string         `json:"user_id"`
	Destination    string         `json:"destination"`
	TemplateCode   string         `json:"template_code"`
	Language       string         `json:"language"`
	Variables      map[string]any `json:"variables"`
	Priority       int            `json:"priority"`
	Metadata       map[string]any `json:"metadata"`
}

// NewMessage builds the wire message for an accepted request.
func NewMessage(req *NotificationRequest, destination string) *Message {
	return &Message{
		NotificationID: req.NotificationID,
		RequestID:      req.RequestID,
		UserID:         req.UserID,
		Destination:    destination,
		TemplateCode:   req.TemplateCode,
		Language:       req.Language,
		Variables:      req.Variables,
		Priority:       req.Priority,
		Metadata:       req.Metadata,
	}
}

// ParseMessage decodes and validates a queue payload. Defaults are applied for
// language, priority and metadata. Any error returned means the payload can never
// be processed and belongs in the dead-letter queue.
func ParseMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks the keys every consumer relies on.
func (m *Message) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"notification_id", m.NotificationID},
		{"request_id", m.RequestID},
		{"user_id", m.UserID},
		{"destination", m.Destination},
		{"template_code", m.TemplateCode},
	}
	for _, r := range required {
		if r.value == "" {
			return &ValidationError{Field: r.field, Message: "is required"}
		}
	}
	if m.NotificationID != DeriveNotificationID(m.RequestID) {
		return &ValidationError{Field: "notification_id", Message: "does not match request_id"}
	}

	if m.Language == "" {
		m.Language = DefaultLanguage
	}
	if m.Priority == 0 {
		m.Priority = DefaultPriority
	}
	if m.Variables == nil {
		m.Variables = map[string]any{}
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	return nil
}

// Encode marshals the message for publishing.
func (m *Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// CorrelationID extracts whatever identifier a possibly malformed payload still carries.
// It returns the notification id, derived from request_id when only that is present.
func CorrelationID(body []byte) string {
	var probe struct {
		NotificationID string `json:"notification_id"`
		RequestID      string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	if probe.NotificationID != "" {
		return probe.NotificationID
	}
	if probe.RequestID != "" {
		return DeriveNotificationID(probe.RequestID)
	}
	return ""
}
