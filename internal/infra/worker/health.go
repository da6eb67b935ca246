package worker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notification-pipeline/internal/handler/http/respond"
)

// HealthServer is the side HTTP server of the channel workers and the
// dead-letter consumer. Out of the box it serves:
//   - GET /health/live: Liveness probe (always 200)
//   - GET /health/ready: Readiness probe (200 once SetReady(true), 503 before)
//   - GET /metrics: Prometheus exposition
//
// Callers add routes with Handle before Start, e.g. the dependency health
// check on /health and the delivery query API. A route registered for one of
// the default patterns replaces the default.
//
// Example usage:
//
//	hs := NewHealthServer(":9091", logger)
//	hs.Handle("GET /health", healthHandler)
//	go func() {
//	    if err := hs.Start(ctx); err != nil && err != http.ErrServerClosed {
//	        logger.Error("health server failed", slog.Any("error", err))
//	    }
//	}()
//	hs.SetReady(true)
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	isReady *atomic.Bool
	routes  []route
	wrap    func(http.Handler) http.Handler
	server  *http.Server
}

type route struct {
	pattern string
	handler http.Handler
}

// NewHealthServer creates a server listening on addr. It is not started and not ready.
func NewHealthServer(addr string, logger *slog.Logger) *HealthServer {
	isReady := &atomic.Bool{}
	isReady.Store(false)

	return &HealthServer{
		addr:    addr,
		logger:  logger,
		isReady: isReady,
	}
}

// Handle registers an additional route. It must be called before Start.
func (h *HealthServer) Handle(pattern string, handler http.Handler) {
	h.routes = append(h.routes, route{pattern: pattern, handler: handler})
}

// Wrap sets the middleware chain applied to every route.
func (h *HealthServer) Wrap(mw func(http.Handler) http.Handler) {
	h.wrap = mw
}

// ReadyFlag exposes the readiness flag so a richer readiness handler can share it.
func (h *HealthServer) ReadyFlag() *atomic.Bool {
	return h.isReady
}

// SetReady sets the readiness state reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

// Handler builds the routing table.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	registered := make(map[string]bool, len(h.routes))
	for _, r := range h.routes {
		mux.Handle(r.pattern, r.handler)
		registered[r.pattern] = true
	}

	defaults := []route{
		{"GET /health/live", http.HandlerFunc(h.handleLiveness)},
		{"GET /health/ready", http.HandlerFunc(h.handleReadiness)},
		{"GET /metrics", promhttp.Handler()},
	}
	for _, r := range defaults {
		if !registered[r.pattern] {
			mux.Handle(r.pattern, r.handler)
		}
	}

	if h.wrap != nil {
		return h.wrap(mux)
	}
	return mux
}

// Start serves until ctx is cancelled, then shuts down with a 5-second grace period.
// It returns http.ErrServerClosed after a graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:              h.addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return err
		}
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, http.StatusOK, "alive", nil)
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.isReady.Load() {
		respond.OK(w, http.StatusOK, "ready", nil)
		return
	}
	respond.Fail(w, http.StatusServiceUnavailable, "not_ready", "starting")
}
