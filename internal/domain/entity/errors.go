package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateRequest indicates that a request_id was already accepted.
	// It is not a failure: callers return the existing record instead.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrUserNotFound is returned by the user directory for unknown users.
	ErrUserNotFound = errors.New("user not found")

	// ErrTemplateNotFound is returned by template resolvers when no active template matches.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrPreferenceDisabled indicates the recipient opted out of the requested channel.
	ErrPreferenceDisabled = errors.New("preference disabled")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// DependencyError reports that a collaborating service (user directory, template
// service, broker, provider) could not be reached or answered with a transient failure.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// AuthorizationError is returned when service credentials are missing or wrong.
type AuthorizationError struct {
	Service string
	Reason  string
}

func (e *AuthorizationError) Error() string {
	if e.Service == "" {
		return "unauthorized: " + e.Reason
	}
	return fmt.Sprintf("unauthorized service %q: %s", e.Service, e.Reason)
}

// TerminalDeliveryError is recorded once a notification exhausted its retry budget
// or hit a non-retryable provider failure.
type TerminalDeliveryError struct {
	NotificationID string
	Code           string
	Attempts       int
	Err            error
}

func (e *TerminalDeliveryError) Error() string {
	return fmt.Sprintf("delivery of %s failed after %d attempt(s) [%s]: %v", e.NotificationID, e.Attempts, e.Code, e.Err)
}

func (e *TerminalDeliveryError) Unwrap() error {
	return e.Err
}

// IsDependencyError reports whether err is (or wraps) a DependencyError.
func IsDependencyError(err error) bool {
	var depErr *DependencyError
	return errors.As(err, &depErr)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
