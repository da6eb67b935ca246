package entity

import "time"

// DefaultMaxRetries is the per-notification attempt budget.
const DefaultMaxRetries = 3

// ChannelNotification is the worker-side projection of a NotificationRequest.
// NotificationID is stable across redeliveries.
type ChannelNotification struct {
	NotificationID   string
	Channel          Channel
	RequestID        string
	UserID           string
	Destination      string
	TemplateCode     string
	Language         string
	Variables        map[string]any
	Priority         int
	Metadata         map[string]any
	Status           Status
	RetryCount       int
	MaxRetries       int
	LastError        string
	LastErrorCode    string
	ProcessedSubject string
	ProcessedBody    string
	NextRetryAt      *time.Time
	ReportedAt       *time.Time
	DeliveredAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewChannelNotification builds the record for a first dequeue of msg.
func NewChannelNotification(c Channel, msg *Message) *ChannelNotification {
	return &ChannelNotification{
		NotificationID: msg.NotificationID,
		Channel:        c,
		RequestID:      msg.RequestID,
		UserID:         msg.UserID,
		Destination:    msg.Destination,
		TemplateCode:   msg.TemplateCode,
		Language:       msg.Language,
		Variables:      msg.Variables,
		Priority:       msg.Priority,
		Metadata:       msg.Metadata,
		Status:         StatusReceived,
		MaxRetries:     DefaultMaxRetries,
	}
}

// RetriesLeft reports whether another attempt is allowed after the current retry count.
func (n *ChannelNotification) RetriesLeft() bool {
	return n.RetryCount < n.MaxRetries
}

// NeedsReport reports whether a terminal outcome has not reached the reconciler yet.
func (n *ChannelNotification) NeedsReport() bool {
	return n.Status.IsTerminal() && n.ReportedAt == nil
}

// FailureCode is the error code sent upstream for a failed notification.
// Generic send failures map to the channel code (EMAIL_SEND_FAILED, PUSH_SEND_FAILED).
func (n *ChannelNotification) FailureCode() string {
	if n.LastErrorCode == "" || n.LastErrorCode == ErrorCodeSendFailed {
		return n.Channel.FailureCode()
	}
	return n.LastErrorCode
}

// Message rebuilds the wire message, used when re-publishing a retry.
func (n *ChannelNotification) Message() *Message {
	return &Message{
		NotificationID: n.NotificationID,
		RequestID:      n.RequestID,
		UserID:         n.UserID,
		Destination:    n.Destination,
		TemplateCode:   n.TemplateCode,
		Language:       n.Language,
		Variables:      n.Variables,
		Priority:       n.Priority,
		Metadata:       n.Metadata,
	}
}

// DeliveryLog is one append-only audit entry per delivery attempt.
type DeliveryLog struct {
	ID               int64
	NotificationID   string
	Channel          Channel
	Attempt          int
	Status           Status
	MessageID        string
	ProviderResponse string
	ErrorCode        string
	ErrorMessage     string
	CreatedAt        time.Time
}

// Delivery log error codes.
const (
	ErrorCodeSendFailed    = "SEND_FAILED"
	ErrorCodeTemplate      = "TEMPLATE_ERROR"
	ErrorCodeNoDestination = "NO_DESTINATION"
	ErrorCodeBounced       = "EMAIL_BOUNCED"
	ErrorCodeDeadLetter    = "DEAD_LETTERED"
	ErrorCodeInvalidToken  = "PUSH_TOKEN_INVALID"
)
