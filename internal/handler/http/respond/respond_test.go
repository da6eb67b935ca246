package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return env
}

func TestJSON(t *testing.T) {
	tests := []struct {
		name         string
		code         int
		data         any
		expectedBody string
	}{
		{"map", http.StatusOK, map[string]string{"message": "success"}, `{"message":"success"}`},
		{"struct", http.StatusCreated, struct{ ID int }{ID: 123}, `{"ID":123}`},
		{"nil", http.StatusNoContent, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, tt.code, tt.data)

			if w.Code != tt.code {
				t.Errorf("Code = %v, want %v", w.Code, tt.code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %v, want application/json", ct)
			}
			if body := strings.TrimSpace(w.Body.String()); body != tt.expectedBody {
				t.Errorf("Body = %v, want %v", body, tt.expectedBody)
			}
		})
	}
}

func TestJSON_EncodingError(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, make(chan int))

	if w.Code != http.StatusOK {
		t.Errorf("Code = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestOK(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, http.StatusCreated, "notification_queued", map[string]string{"request_id": "req_1"})

	if w.Code != http.StatusCreated {
		t.Fatalf("Code = %v, want %v", w.Code, http.StatusCreated)
	}
	body := w.Body.String()
	env := decode(t, w)
	if !env.Success || env.Message != "notification_queued" {
		t.Errorf("envelope = %+v", env)
	}
	if strings.Contains(body, `"error"`) {
		t.Errorf("success body should omit error: %s", body)
	}
}

func TestSafeError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
		wantDetail  string
	}{
		{
			name:        "app error",
			err:         NewAppError(http.StatusNotFound, "user_not_found", "user not found", errors.New("lookup 404")),
			wantCode:    http.StatusNotFound,
			wantMessage: "user_not_found",
			wantDetail:  "user not found",
		},
		{
			name:        "wrapped app error",
			err:         fmt.Errorf("submit: %w", NewAppError(http.StatusConflict, "request_in_progress", "try again", nil)),
			wantCode:    http.StatusConflict,
			wantMessage: "request_in_progress",
			wantDetail:  "try again",
		},
		{
			name:        "app error hides internal detail",
			err:         NewAppError(http.StatusServiceUnavailable, "queue_failed", "could not queue", errors.New("amqp://guest:guest@mq closed")),
			wantCode:    http.StatusServiceUnavailable,
			wantMessage: "queue_failed",
			wantDetail:  "could not queue",
		},
		{
			name:        "plain error",
			err:         errors.New("pq: relation does not exist"),
			wantCode:    http.StatusInternalServerError,
			wantMessage: MsgInternalError,
			wantDetail:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SafeError(w, tt.err)

			if w.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", w.Code, tt.wantCode)
			}
			env := decode(t, w)
			if env.Success {
				t.Error("Success = true, want false")
			}
			if env.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", env.Message, tt.wantMessage)
			}
			if env.Error != tt.wantDetail {
				t.Errorf("Error = %q, want %q", env.Error, tt.wantDetail)
			}
		})
	}
}

func TestSafeError_Nil(t *testing.T) {
	w := httptest.NewRecorder()
	SafeError(w, nil)
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", w.Body.String())
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewAppError(http.StatusBadRequest, MsgValidationError, "bad", inner)
	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
	if err.Error() != "boom" {
		t.Errorf("Error() = %q, want boom", err.Error())
	}
	if NewAppError(http.StatusBadRequest, MsgValidationError, "bad", nil).Error() != "bad" {
		t.Error("Error() without inner should fall back to UserMsg")
	}
}
