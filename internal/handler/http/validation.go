package http

import (
	"net/http"

	"notification-pipeline/internal/handler/http/auth"
	"notification-pipeline/internal/handler/http/respond"
)

// Input limits enforced by InputValidation.
const (
	maxCredentialHeaderBytes = 1024
	maxPathBytes             = 2048
	maxBodyBytes             = 1 << 20
)

// InputValidation returns middleware that rejects oversized credential headers
// and paths and caps the request body at 1MB.
func InputValidation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.Header.Get(auth.HeaderServiceName)) > maxCredentialHeaderBytes ||
				len(r.Header.Get(auth.HeaderServiceKey)) > maxCredentialHeaderBytes {
				respond.Fail(w, http.StatusBadRequest, respond.MsgValidationError, "credential header too large")
				return
			}

			if len(r.URL.Path) > maxPathBytes {
				respond.Fail(w, http.StatusRequestURITooLong, respond.MsgValidationError, "URI too long")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			next.ServeHTTP(w, r)
		})
	}
}
