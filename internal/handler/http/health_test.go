package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type healthBody struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    HealthData `json:"data"`
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) healthBody {
	t.Helper()
	var body healthBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func newPingDB(t *testing.T, pingErr error) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	if pingErr != nil {
		mock.ExpectPing().WillReturnError(pingErr)
	} else {
		mock.ExpectPing()
	}
	return db, mock
}

func ok(context.Context) error { return nil }

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		pingErr        error
		deps           []Dependency
		expectedStatus int
		expectMessage  string
		expectChecks   map[string]string
	}{
		{
			name:           "all healthy",
			deps:           []Dependency{{Name: "rabbitmq", Ping: ok}, {Name: "redis", Ping: ok, Optional: true}},
			expectedStatus: http.StatusOK,
			expectMessage:  "gateway_healthy",
			expectChecks:   map[string]string{"rabbitmq": StatusHealthy, "redis": StatusHealthy},
		},
		{
			name:           "database down",
			pingErr:        sql.ErrConnDone,
			deps:           []Dependency{{Name: "rabbitmq", Ping: ok}},
			expectedStatus: http.StatusServiceUnavailable,
			expectMessage:  "gateway_unhealthy",
			expectChecks:   map[string]string{"database": StatusUnhealthy, "rabbitmq": StatusHealthy},
		},
		{
			name: "broker down",
			deps: []Dependency{{Name: "rabbitmq", Ping: func(context.Context) error {
				return errors.New("amqp://guest:guest@mq: not connected")
			}}},
			expectedStatus: http.StatusServiceUnavailable,
			expectMessage:  "gateway_unhealthy",
			expectChecks:   map[string]string{"rabbitmq": StatusUnhealthy},
		},
		{
			name:           "redis not configured",
			deps:           []Dependency{{Name: "rabbitmq", Ping: ok}, {Name: "redis", Optional: true}},
			expectedStatus: http.StatusOK,
			expectMessage:  "gateway_healthy",
			expectChecks:   map[string]string{"redis": StatusNotConfigured},
		},
		{
			name: "optional redis down",
			deps: []Dependency{{Name: "redis", Optional: true, Ping: func(context.Context) error {
				return errors.New("connection refused")
			}}},
			expectedStatus: http.StatusOK,
			expectMessage:  "gateway_healthy",
			expectChecks:   map[string]string{"redis": StatusUnhealthy},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newPingDB(t, tt.pingErr)
			handler := &HealthHandler{Service: "gateway", Version: "test-version", DB: db, Dependencies: tt.deps}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			body := decodeHealth(t, rec)
			assert.Equal(t, tt.expectedStatus == http.StatusOK, body.Success)
			assert.Equal(t, tt.expectMessage, body.Message)
			assert.Equal(t, "gateway", body.Data.Service)
			assert.Equal(t, "test-version", body.Data.Version)
			assert.NotEmpty(t, body.Data.Timestamp)
			assert.Contains(t, body.Data.Checks, "database")
			for name, status := range tt.expectChecks {
				assert.Equal(t, status, body.Data.Checks[name].Status, name)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHealthHandler_SanitizesDependencyErrors(t *testing.T) {
	db, _ := newPingDB(t, nil)
	handler := &HealthHandler{Service: "worker", DB: db, Dependencies: []Dependency{{
		Name: "rabbitmq",
		Ping: func(context.Context) error { return errors.New("dial amqp://guest:secret@mq:5672") },
	}}}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	body := decodeHealth(t, rec)
	assert.NotContains(t, body.Data.Checks["rabbitmq"].Message, "secret")
}

func TestHealthHandler_NoDatabaseConfigured(t *testing.T) {
	handler := &HealthHandler{Service: "gateway"}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeHealth(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "not configured", body.Data.Checks["database"].Message)
}

func TestHealthHandler_PoolStatistics(t *testing.T) {
	t.Run("max open connections unset", func(t *testing.T) {
		db, _ := newPingDB(t, nil)
		handler := &HealthHandler{Service: "gateway", DB: db}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code, "degraded is not a failure")
		body := decodeHealth(t, rec)
		assert.Equal(t, StatusDegraded, body.Data.Checks["database"].Status)
	})

	t.Run("configured pool", func(t *testing.T) {
		db, _ := newPingDB(t, nil)
		db.SetMaxOpenConns(10)
		handler := &HealthHandler{Service: "gateway", DB: db}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		body := decodeHealth(t, rec)
		check := body.Data.Checks["database"]
		assert.Equal(t, StatusHealthy, check.Status)
		assert.Contains(t, check.Details, "utilization_percent")
	})
}

func TestHealthHandler_CacheControl(t *testing.T) {
	db, _ := newPingDB(t, nil)
	handler := &HealthHandler{Service: "gateway", DB: db}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReadyHandler_ServeHTTP(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		db, mock := newPingDB(t, nil)
		ready := &atomic.Bool{}
		ready.Store(true)

		rec := httptest.NewRecorder()
		(&ReadyHandler{DB: db, Ready: ready}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("still starting", func(t *testing.T) {
		db, _ := newPingDB(t, nil)

		rec := httptest.NewRecorder()
		(&ReadyHandler{DB: db, Ready: &atomic.Bool{}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("database down", func(t *testing.T) {
		db, _ := newPingDB(t, sql.ErrConnDone)

		rec := httptest.NewRecorder()
		(&ReadyHandler{DB: db}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("no database", func(t *testing.T) {
		rec := httptest.NewRecorder()
		(&ReadyHandler{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestLiveHandler_ServeHTTP(t *testing.T) {
	rec := httptest.NewRecorder()
	(&LiveHandler{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", rec.Body.String())
}
