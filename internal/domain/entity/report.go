package entity

import "time"

// StatusReport is the body a worker sends to the status reconciler.
type StatusReport struct {
	NotificationID string  `json:"notification_id"`
	Status         Status  `json:"status"`
	ServiceName    string  `json:"service_name"`
	ErrorCode      *string `json:"error_code"`
	ErrorMessage   *string `json:"error_message"`
	RetryCount     int     `json:"retry_count,omitempty"`
}

// Validate checks a report before it touches the notification record.
func (r *StatusReport) Validate() error {
	if r.NotificationID == "" {
		return &ValidationError{Field: "notification_id", Message: "is required"}
	}
	if _, err := ParseReportStatus(string(r.Status)); err != nil {
		return err
	}
	if r.ServiceName == "" {
		return &ValidationError{Field: "service_name", Message: "is required"}
	}
	return nil
}

// Code returns the error code or an empty string.
func (r *StatusReport) Code() string {
	if r.ErrorCode == nil {
		return ""
	}
	return *r.ErrorCode
}

// Message returns the error message or an empty string.
func (r *StatusReport) Message() string {
	if r.ErrorMessage == nil {
		return ""
	}
	return *r.ErrorMessage
}

// NewDeliveredReport builds a success report.
func NewDeliveredReport(notificationID, serviceName string) *StatusReport {
	return &StatusReport{NotificationID: notificationID, Status: StatusDelivered, ServiceName: serviceName}
}

// NewFailedReport builds a failure report carrying code and message.
func NewFailedReport(notificationID, serviceName, code, message string, retryCount int) *StatusReport {
	return &StatusReport{
		NotificationID: notificationID,
		Status:         StatusFailed,
		ServiceName:    serviceName,
		ErrorCode:      &code,
		ErrorMessage:   &message,
		RetryCount:     retryCount,
	}
}

// StatusEvent is emitted to the event stream after the reconciler applies a report.
type StatusEvent struct {
	NotificationID string    `json:"notification_id"`
	RequestID      string    `json:"request_id"`
	Status         Status    `json:"status"`
	ServiceName    string    `json:"service_name"`
	ErrorCode      string    `json:"error_code,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
