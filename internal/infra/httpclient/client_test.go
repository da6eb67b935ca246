package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-pipeline/internal/resilience/retry"
)

type payload struct {
	Name string `json:"name"`
}

func TestClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/users/42/", r.URL.Path)
		assert.Equal(t, "gateway", r.Header.Get(HeaderServiceName))
		assert.Equal(t, "secret", r.Header.Get(HeaderServiceKey))
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":{"name":"Ana"},"meta":{}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", ServiceName: "gateway", ServiceKey: "secret"})

	var got payload
	require.NoError(t, c.GetJSON(context.Background(), "/api/v1/users/42/", &got))
	assert.Equal(t, "Ana", got.Name)
}

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"success":true,"data":{"name":"` + in.Name + `!"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})

	var got payload
	require.NoError(t, c.PostJSON(context.Background(), "/echo", payload{Name: "Bo"}, &got))
	assert.Equal(t, "Bo!", got.Name)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		retryable bool
	}{
		{"not found envelope", http.StatusNotFound, `{"success":false,"error":"user_not_found"}`, "user_not_found", false},
		{"server error", http.StatusBadGateway, `upstream down`, "upstream down", true},
		{"too many requests", http.StatusTooManyRequests, `{"message":"slow down"}`, "slow down", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := New(Config{BaseURL: srv.URL}).GetJSON(context.Background(), "/x", &payload{})

			var httpErr *retry.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantMsg, httpErr.Message)
			assert.Equal(t, tt.retryable, retry.IsRetryable(err))
		})
	}
}

func TestClient_UnsuccessfulEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"processing_error"}`))
	}))
	defer srv.Close()

	err := New(Config{BaseURL: srv.URL}).GetJSON(context.Background(), "/x", &payload{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "processing_error")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	err := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}).GetJSON(context.Background(), "/slow", nil)

	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err), "client timeouts are transient")
}
