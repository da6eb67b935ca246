// Package auth authenticates service-to-service calls with a shared-secret
// header pair checked against a per-service key table.
package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/handler/http/respond"
	"notification-pipeline/internal/observability/correlation"
)

type ctxKey string

const ctxService ctxKey = "service"

// Credential headers.
const (
	HeaderServiceName = "X-Service-Name"
	HeaderServiceKey  = "X-Service-Key"
)

// Middleware rejects requests whose X-Service-Name / X-Service-Key pair does not
// match keys. Public endpoints pass through. The authenticated service name is
// stored in the request context.
func Middleware(keys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			service, err := authenticate(keys, r.Header.Get(HeaderServiceName), r.Header.Get(HeaderServiceKey))
			RecordAuthDuration(time.Since(start).Seconds())
			if err != nil {
				RecordAuthRequest(metricLabel(keys, service), "failure")
				slog.Warn("service authentication failed",
					slog.String("correlation_id", correlation.FromContext(r.Context())),
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				respond.Fail(w, http.StatusUnauthorized, respond.MsgUnauthorized, "invalid service credentials")
				return
			}
			RecordAuthRequest(service, "success")

			ctx := context.WithValue(r.Context(), ctxService, service)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceFromContext returns the authenticated caller, or "" outside the middleware.
func ServiceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxService).(string); ok {
		return s
	}
	return ""
}

func authenticate(keys map[string]string, service, key string) (string, error) {
	if service == "" || key == "" {
		return service, &entity.AuthorizationError{Service: service, Reason: "missing credentials"}
	}
	expected, ok := keys[service]
	if !ok {
		return service, &entity.AuthorizationError{Service: service, Reason: "unknown service"}
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
		return service, &entity.AuthorizationError{Service: service, Reason: "key mismatch"}
	}
	return service, nil
}

func metricLabel(keys map[string]string, service string) string {
	if _, ok := keys[service]; ok {
		return service
	}
	return "unknown"
}
