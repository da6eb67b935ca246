// Package correlation carries a correlation ID from the gateway's HTTP edge through
// the broker to the channel workers, so one submission can be followed across logs.
//
// It is distinct from a notification's request_id, which is the caller's
// idempotency key and is never generated here.
package correlation

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey struct{}

const (
	// Header is the HTTP header carrying the correlation ID.
	Header = "X-Correlation-ID"
	// MessageHeader is the AMQP header carrying the correlation ID.
	MessageHeader = "x-correlation-id"

	maxLen = 128
)

// FromContext returns the correlation ID, or "" when none is set.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// WithID stores id in ctx. An empty id leaves ctx unchanged.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// FromHeaders restores the correlation ID of a consumed message into ctx.
// Invalid values are dropped rather than trusted.
func FromHeaders(ctx context.Context, headers map[string]string) context.Context {
	if id := headers[MessageHeader]; valid(id) {
		return WithID(ctx, id)
	}
	return ctx
}

// Middleware propagates a well-formed inbound X-Correlation-ID or generates a
// UUID v4, then echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !valid(id) {
			id = uuid.NewString()
		}

		// クライアントが追跡できるようレスポンスにも返す
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}

// valid accepts short IDs made of [A-Za-z0-9._:-] only (ログインジェクション対策).
func valid(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
