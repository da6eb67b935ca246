package notification

import "net/http"

// Register registers the notification endpoints with the given mux.
// Authentication is applied by the caller around the whole mux.
func Register(mux *http.ServeMux, submitter Submitter, viewer Viewer) {
	mux.Handle("POST /api/v1/notifications", CreateHandler{submitter})
	mux.Handle("GET  "+PathPrefix, GetHandler{viewer})
}
