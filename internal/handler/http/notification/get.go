package notification

import (
	"context"
	"net/http"

	"notification-pipeline/internal/handler/http/pathutil"
	"notification-pipeline/internal/handler/http/respond"
	"notification-pipeline/internal/usecase/status"
)

// PathPrefix is the collection path; the request_id follows it.
const PathPrefix = "/api/v1/notifications/"

// Viewer reads a request together with its failure history.
type Viewer interface {
	Get(ctx context.Context, requestID string) (*status.View, error)
}

type GetHandler struct{ Svc Viewer }

// ServeHTTP 通知ステータス取得
func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathutil.ExtractID(r.URL.Path, PathPrefix)
	if err != nil {
		respond.Fail(w, http.StatusBadRequest, respond.MsgValidationError, "invalid request_id")
		return
	}

	view, err := h.Svc.Get(r.Context(), requestID)
	if err != nil {
		respond.SafeError(w, toAppError(err))
		return
	}

	out := toDTO(view.Request)
	out.Errors = toErrorDTOs(view.Errors)
	respond.OK(w, http.StatusOK, MsgFound, out)
}
