package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/handler/http/respond"
	"notification-pipeline/internal/usecase/ingest"
)

// Submitter accepts notification requests.
type Submitter interface {
	Submit(ctx context.Context, req *entity.NotificationRequest) (*ingest.Result, error)
}

type CreateHandler struct{ Svc Submitter }

// ServeHTTP 通知リクエストの受付
// 201 notification_queued / 200 notification_already_exists
func (h CreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.Fail(w, http.StatusBadRequest, respond.MsgValidationError, "request body must be a JSON object")
		return
	}

	channel, err := entity.ParseChannel(body.NotificationType)
	if err != nil {
		respond.SafeError(w, toAppError(err))
		return
	}

	res, err := h.Svc.Submit(r.Context(), &entity.NotificationRequest{
		RequestID:    body.RequestID,
		Channel:      channel,
		UserID:       body.UserID,
		TemplateCode: body.TemplateCode,
		Language:     body.Language,
		Variables:    body.Variables,
		Priority:     body.Priority,
		Metadata:     body.Metadata,
	})
	if err != nil {
		respond.SafeError(w, toAppError(err))
		return
	}

	if res.Outcome == ingest.OutcomeAlreadyExists {
		respond.OK(w, http.StatusOK, MsgAlreadyExists, toDTO(res.Request))
		return
	}
	respond.OK(w, http.StatusCreated, MsgQueued, toDTO(res.Request))
}
