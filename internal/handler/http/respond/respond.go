// Package respond writes the JSON response envelope shared by every service.
// Errors are sanitized before logging and internal details never reach the client.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

// Message codes shared across handlers.
const (
	MsgValidationError = "validation_error"
	MsgUnauthorized    = "unauthorized"
	MsgNotFound        = "not_found"
	MsgInternalError   = "internal_error"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// ヘッダー送信済みのためログのみ
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// OK writes a successful envelope.
func OK(w http.ResponseWriter, code int, message string, data any) {
	JSON(w, code, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes an unsuccessful envelope with a user-facing error detail.
func Fail(w http.ResponseWriter, code int, message, detail string) {
	JSON(w, code, Envelope{Success: false, Message: message, Error: detail})
}

// AppError carries the HTTP status, message code and user-facing text for an error.
type AppError struct {
	Code    int    // HTTP status code
	Message string // message code, e.g. "user_not_found"
	UserMsg string // text returned in the error field
	Err     error  // internal error (logged, never returned)
}

// Error returns the internal error text, implementing the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.UserMsg
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError.
func NewAppError(code int, message, userMsg string, err error) *AppError {
	return &AppError{Code: code, Message: message, UserMsg: userMsg, Err: err}
}

// SafeError writes err as an envelope. An AppError decides its own status and
// message; anything else is reported as an internal error with a generic text.
func SafeError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Code >= http.StatusInternalServerError && appErr.Err != nil {
			// 機密情報をマスクしてログ出力
			slog.Default().Error("application error",
				slog.Int("code", appErr.Code),
				slog.String("message", appErr.Message),
				slog.String("error", SanitizeError(appErr.Err)))
		}
		Fail(w, appErr.Code, appErr.Message, appErr.UserMsg)
		return
	}

	slog.Default().Error("internal server error",
		slog.String("error", SanitizeError(err)))
	Fail(w, http.StatusInternalServerError, MsgInternalError, "internal server error")
}
