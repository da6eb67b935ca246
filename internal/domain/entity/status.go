package entity

// Status is the lifecycle state shared by NotificationRequest and ChannelNotification.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// ParseReportStatus validates a status carried by a status report.
// Only terminal statuses and the interim processing status are accepted.
func ParseReportStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDelivered, StatusFailed, StatusProcessing:
		return Status(s), nil
	default:
		return "", &ValidationError{Field: "status", Message: "must be delivered, failed or processing"}
	}
}
