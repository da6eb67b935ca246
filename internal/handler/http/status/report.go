// Package status provides the gateway endpoint through which channel workers
// report delivery outcomes.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/handler/http/respond"
	statusUC "notification-pipeline/internal/usecase/status"
)

// Message codes returned by the status endpoint.
const (
	MsgRecorded             = "status_recorded"
	MsgNotificationNotFound = "notification_not_found"
)

// Reporter applies status reports.
type Reporter interface {
	Report(ctx context.Context, report *entity.StatusReport) (*statusUC.Outcome, error)
}

// OutcomeDTO tells the worker what its report changed.
type OutcomeDTO struct {
	Result         string `json:"result"`
	Status         string `json:"status"`
	NotificationID string `json:"notification_id"`
}

type ReportHandler struct{ Svc Reporter }

// ServeHTTP ステータス報告の受付
// 重複・終端後の報告も 200 status_recorded を返す
func (h ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var report entity.StatusReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		respond.Fail(w, http.StatusBadRequest, respond.MsgValidationError, "request body must be a JSON object")
		return
	}

	out, err := h.Svc.Report(r.Context(), &report)
	if err != nil {
		var vErr *entity.ValidationError
		switch {
		case errors.As(err, &vErr):
			respond.Fail(w, http.StatusBadRequest, respond.MsgValidationError, vErr.Error())
		case errors.Is(err, statusUC.ErrNotificationNotFound):
			respond.Fail(w, http.StatusNotFound, MsgNotificationNotFound, "notification not found")
		default:
			respond.SafeError(w, err)
		}
		return
	}

	respond.OK(w, http.StatusOK, MsgRecorded, OutcomeDTO{
		Result:         out.Result,
		Status:         string(out.Status),
		NotificationID: out.NotificationID,
	})
}

// Register registers the status endpoint with the given mux.
func Register(mux *http.ServeMux, svc Reporter) {
	mux.Handle("POST /api/v1/status", ReportHandler{svc})
}
