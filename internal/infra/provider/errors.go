// Package provider contains the outbound transports: SMTP for email and an
// HTTP push gateway for device notifications.
package provider

import (
	"errors"
	"fmt"
	"time"

	"notification-pipeline/internal/domain/entity"
)

// Receipt is an accepted send.
type Receipt = entity.Receipt

// RateLimitError represents a 429 from the push gateway.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError represents a 4xx response.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx response.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// BounceError is a permanent SMTP rejection of the recipient (5xx on RCPT).
type BounceError struct {
	Recipient string
	Code      int
	Message   string
}

func (e *BounceError) Error() string {
	return fmt.Sprintf("recipient %s rejected: %d %s", e.Recipient, e.Code, e.Message)
}

// Permanent marks the failure as not worth retrying.
func (e *BounceError) Permanent() bool { return true }

// ErrorCode is the code reported upstream for a bounce.
func (e *BounceError) ErrorCode() string { return entity.ErrorCodeBounced }

// InvalidTokenError is returned when the push gateway no longer recognises a device token.
type InvalidTokenError struct {
	Reason string
}

func (e *InvalidTokenError) Error() string {
	return "push token rejected: " + e.Reason
}

// Permanent marks the failure as not worth retrying.
func (e *InvalidTokenError) Permanent() bool { return true }

// ErrorCode is the code reported upstream for a rejected token.
func (e *InvalidTokenError) ErrorCode() string { return entity.ErrorCodeInvalidToken }

// IsPermanent reports whether err carries a non-retryable provider verdict.
func IsPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

// IsBounce reports whether err is an SMTP bounce.
func IsBounce(err error) bool {
	var b *BounceError
	return errors.As(err, &b)
}
