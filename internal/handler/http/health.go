// Package http provides the HTTP handlers and middleware shared by the gateway,
// channel workers and dead-letter consumer: health endpoints, request logging,
// metrics, timeouts and rate limiting.
package http

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"notification-pipeline/internal/handler/http/respond"
	"notification-pipeline/internal/observability/metrics"
)

// Check states.
const (
	StatusHealthy       = "healthy"
	StatusDegraded      = "degraded"
	StatusUnhealthy     = "unhealthy"
	StatusNotConfigured = "not_configured"
)

// HealthData is the data field of a health response.
type HealthData struct {
	Service   string                 `json:"service"`
	Version   string                 `json:"version,omitempty"`
	Timestamp string                 `json:"timestamp"` // ISO 8601 format
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Dependency is a collaborator probed by the health endpoint.
type Dependency struct {
	Name string
	// Ping reports reachability. A nil Ping is reported as not_configured.
	Ping func(ctx context.Context) error
	// Optional dependencies never make the service unhealthy.
	Optional bool
}

// HealthHandler reports the database and every configured dependency.
// It answers 503 when a mandatory check fails.
type HealthHandler struct {
	Service      string
	Version      string
	DB           *sql.DB
	Dependencies []Dependency
}

// ServeHTTP runs all checks and writes {success, message, data:{service, checks}}.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckStatus)
	allHealthy := true

	// データベース接続チェック
	if h.DB != nil {
		dbCheck := h.checkDatabase(ctx)
		checks["database"] = dbCheck
		if dbCheck.Status == StatusUnhealthy {
			allHealthy = false
		}
	} else {
		checks["database"] = CheckStatus{Status: StatusUnhealthy, Message: "not configured"}
		allHealthy = false
	}

	for _, dep := range h.Dependencies {
		check := probe(ctx, dep)
		checks[dep.Name] = check
		if check.Status == StatusUnhealthy && !dep.Optional {
			allHealthy = false
		}
	}

	message := h.Service + "_healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		message = h.Service + "_unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, statusCode, respond.Envelope{
		Success: allHealthy,
		Message: message,
		Data: HealthData{
			Service:   h.Service,
			Version:   h.Version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		},
	})
}

func probe(ctx context.Context, dep Dependency) CheckStatus {
	if dep.Ping == nil {
		return CheckStatus{Status: StatusNotConfigured}
	}
	if err := dep.Ping(ctx); err != nil {
		return CheckStatus{Status: StatusUnhealthy, Message: respond.SanitizeError(err)}
	}
	return CheckStatus{Status: StatusHealthy}
}

// checkDatabase checks database connectivity and returns connection pool statistics.
func (h *HealthHandler) checkDatabase(ctx context.Context) CheckStatus {
	if err := h.DB.PingContext(ctx); err != nil {
		return CheckStatus{
			Status:  StatusUnhealthy,
			Message: respond.SanitizeError(err),
		}
	}

	stats := h.DB.Stats()
	metrics.UpdateDBConnectionStats(stats.InUse, stats.Idle)
	details := map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}

	// MaxOpenConnections が 0 の場合はゼロ除算を避ける
	if stats.MaxOpenConnections == 0 {
		return CheckStatus{
			Status:  StatusDegraded,
			Message: "connection pool max connections not configured",
			Details: details,
		}
	}

	utilizationPercent := float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	details["utilization_percent"] = utilizationPercent

	if utilizationPercent >= 80.0 {
		return CheckStatus{
			Status:  StatusDegraded,
			Message: "connection pool utilization above 80%",
			Details: details,
		}
	}

	return CheckStatus{
		Status:  StatusHealthy,
		Details: details,
	}
}

// ReadyHandler handles Kubernetes readiness probe requests.
// It is ready once Ready is set (topology declared, consumers started) and the
// database answers.
type ReadyHandler struct {
	DB    *sql.DB
	Ready *atomic.Bool
}

// ServeHTTP returns 200 when ready, 503 otherwise.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.Ready != nil && !h.Ready.Load() {
		respond.Fail(w, http.StatusServiceUnavailable, "not_ready", "starting")
		return
	}
	if h.DB == nil {
		respond.Fail(w, http.StatusServiceUnavailable, "not_ready", "database not configured")
		return
	}
	if err := h.DB.PingContext(ctx); err != nil {
		respond.Fail(w, http.StatusServiceUnavailable, "not_ready", "database not ready")
		return
	}

	respond.OK(w, http.StatusOK, "ready", nil)
}

// LiveHandler handles Kubernetes liveness probe requests.
type LiveHandler struct{}

// ServeHTTP always returns 200 OK while the process can respond.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("alive")); err != nil {
		log.Printf("alive: failed to write response: %v", err)
	}
}
