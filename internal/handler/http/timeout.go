package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"notification-pipeline/internal/handler/http/pathutil"
	"notification-pipeline/internal/handler/http/respond"
)

// Timeout bounds each request by d. When d elapses before the handler has
// written anything, the client gets a 504 envelope and later writes from the
// handler are discarded with http.ErrHandlerTimeout. The handler's context is
// cancelled either way, so downstream calls (directory lookup, publish) stop.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			gw := &guardedWriter{w: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if gw.expire() {
					httpRequestTimeoutsTotal.WithLabelValues(r.Method, pathutil.NormalizePath(r.URL.Path)).Inc()
					respond.Fail(w, http.StatusGatewayTimeout, "request_timeout", "request timeout")
				}
			}
		})
	}
}

// guardedWriter lets exactly one side, handler or timeout, own the response.
// The handler writes headers into its own map, copied out when it starts the response.
type guardedWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	header  http.Header
	started bool
	expired bool
}

func (g *guardedWriter) Header() http.Header {
	if g.header == nil {
		g.header = make(http.Header)
	}
	return g.header
}

// start must hold mu.
func (g *guardedWriter) start(code int) {
	g.started = true
	dst := g.w.Header()
	for k, v := range g.header {
		dst[k] = v
	}
	g.w.WriteHeader(code)
}

func (g *guardedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired || g.started {
		return
	}
	g.start(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired {
		return 0, http.ErrHandlerTimeout
	}
	if !g.started {
		g.start(http.StatusOK)
	}
	return g.w.Write(b)
}

// expire marks the response as timed out. It reports false when the handler
// already started writing, in which case its response stands.
func (g *guardedWriter) expire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = true
	return !g.started
}
