package notification

import (
	"errors"
	"net/http"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/handler/http/respond"
	"notification-pipeline/internal/usecase/ingest"
	"notification-pipeline/internal/usecase/status"
)

// Message codes returned by the notification endpoints.
const (
	MsgQueued                 = "notification_queued"
	MsgAlreadyExists          = "notification_already_exists"
	MsgFound                  = "notification_found"
	MsgPreferenceDisabled     = "preference_disabled"
	MsgNoDestination          = "no_destination"
	MsgUserNotFound           = "user_not_found"
	MsgNotificationNotFound   = "notification_not_found"
	MsgRequestInProgress      = "request_in_progress"
	MsgUserServiceUnreachable = "user_service_unreachable"
	MsgQueueFailed            = "queue_failed"
)

// toAppError maps a use case error onto its HTTP status and message code.
// Unknown errors pass through and are reported as internal errors.
func toAppError(err error) error {
	var vErr *entity.ValidationError
	switch {
	case errors.As(err, &vErr):
		return respond.NewAppError(http.StatusBadRequest, respond.MsgValidationError, vErr.Error(), err)
	case errors.Is(err, entity.ErrPreferenceDisabled):
		return respond.NewAppError(http.StatusBadRequest, MsgPreferenceDisabled,
			"the user has disabled this notification channel", err)
	case errors.Is(err, ingest.ErrNoDestination):
		return respond.NewAppError(http.StatusBadRequest, MsgNoDestination,
			"the user has no destination for this notification channel", err)
	case errors.Is(err, entity.ErrUserNotFound):
		return respond.NewAppError(http.StatusNotFound, MsgUserNotFound, "user not found", err)
	case errors.Is(err, status.ErrNotificationNotFound):
		return respond.NewAppError(http.StatusNotFound, MsgNotificationNotFound, "notification not found", err)
	case errors.Is(err, ingest.ErrRequestInProgress):
		return respond.NewAppError(http.StatusConflict, MsgRequestInProgress,
			"a submission with this request_id is in progress", err)
	case errors.Is(err, ingest.ErrQueueFailed):
		return respond.NewAppError(http.StatusServiceUnavailable, MsgQueueFailed,
			"the notification could not be queued", err)
	case entity.IsDependencyError(err):
		return respond.NewAppError(http.StatusServiceUnavailable, MsgUserServiceUnreachable,
			"the user service is unreachable", err)
	default:
		return err
	}
}
