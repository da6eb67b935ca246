package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

// DefaultLockTTL bounds how long a crashed submission can block its request_id.
const DefaultLockTTL = 30 * time.Second

// HeaderRequestID is set on every published message.
const HeaderRequestID = "x-request-id"

var submissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_submissions_total",
		Help: "Total number of notification submissions by outcome",
	},
	[]string{"channel", "outcome"},
)

// Directory looks up recipients in the user directory.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*entity.Contact, error)
}

// Locker serializes concurrent submissions of the same request_id.
type Locker interface {
	Lock(ctx context.Context, requestID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, requestID string) error
}

// Publisher publishes to the notifications exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, headers map[string]string) error
}

// Outcome of an accepted submission.
type Outcome string

const (
	OutcomeQueued        Outcome = "queued"
	OutcomeAlreadyExists Outcome = "already_exists"
)

// Result is an accepted submission and the stored record it refers to.
type Result struct {
	Outcome Outcome
	Request *entity.NotificationRequest
}

// Service implements submit(request) → queued | already_exists | rejected.
// Rejections are returned as errors.
type Service struct {
	Requests  repository.NotificationRequestRepository
	Directory Directory
	Locks     Locker
	Publisher Publisher
	LockTTL   time.Duration
}

// Submit validates req, checks the recipient, persists it as queued and publishes it
// to its channel queue. A repeated request_id returns the stored record unchanged.
func (s *Service) Submit(ctx context.Context, req *entity.NotificationRequest) (*Result, error) {
	res, err := s.submit(ctx, req)
	outcome := outcomeLabel(res, err)
	submissionsTotal.WithLabelValues(req.Channel.String(), outcome).Inc()
	return res, err
}

func (s *Service) submit(ctx context.Context, req *entity.NotificationRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	spec, ok := channelSpecs[req.Channel]
	if !ok {
		return nil, &entity.ValidationError{Field: "notification_type", Message: "unsupported channel"}
	}
	if req.RequestID == "" {
		req.RequestID = entity.NewRequestID()
	}

	logger := slog.With(
		slog.String("request_id", req.RequestID),
		slog.String("channel", req.Channel.String()),
		slog.String("user_id", req.UserID))

	if s.Locks != nil {
		acquired, err := s.Locks.Lock(ctx, req.RequestID, s.lockTTL())
		switch {
		case err != nil:
			// DBの一意制約が最終防衛線
			logger.Warn("idempotency lock unavailable, continuing without it", slog.Any("error", err))
		case !acquired:
			return nil, ErrRequestInProgress
		default:
			defer func() {
				if err := s.Locks.Unlock(context.WithoutCancel(ctx), req.RequestID); err != nil {
					logger.Warn("failed to release idempotency lock", slog.Any("error", err))
				}
			}()
		}
	}

	existing, err := s.Requests.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if existing != nil {
		logger.Info("duplicate request, returning existing record",
			slog.String("status", string(existing.Status)))
		return &Result{Outcome: OutcomeAlreadyExists, Request: existing}, nil
	}

	contact, err := s.Directory.Lookup(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) || entity.IsDependencyError(err) {
			return nil, err
		}
		return nil, &entity.DependencyError{Dependency: "user_service", Err: err}
	}
	if !contact.Allows(req.Channel) {
		return nil, fmt.Errorf("%w: %s notifications disabled for user", entity.ErrPreferenceDisabled, req.Channel)
	}
	destination, err := spec.ResolveDestination(contact)
	if err != nil {
		return nil, err
	}

	req.NotificationID = entity.DeriveNotificationID(req.RequestID)
	req.Status = entity.StatusQueued
	if err := s.Requests.Create(ctx, req); err != nil {
		if errors.Is(err, entity.ErrDuplicateRequest) {
			existing, getErr := s.Requests.GetByRequestID(ctx, req.RequestID)
			if getErr != nil || existing == nil {
				return nil, fmt.Errorf("reload duplicate request: %w", errors.Join(err, getErr))
			}
			return &Result{Outcome: OutcomeAlreadyExists, Request: existing}, nil
		}
		return nil, fmt.Errorf("create request: %w", err)
	}

	body, err := spec.BuildPayload(req, destination, contact).Encode()
	if err == nil {
		err = s.Publisher.Publish(ctx, req.Channel.RoutingKey(), body, map[string]string{HeaderRequestID: req.RequestID})
	}
	if err != nil {
		logger.Error("failed to publish notification", slog.Any("error", err))
		req.Status = entity.StatusFailed
		req.ErrorMessage = ErrQueueFailed.Error()
		if updErr := s.Requests.UpdateStatus(context.WithoutCancel(ctx), req.NotificationID, entity.StatusFailed, req.ErrorMessage); updErr != nil {
			logger.Error("failed to mark unpublished request failed", slog.Any("error", updErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrQueueFailed, err)
	}

	logger.Info("notification queued", slog.String("notification_id", req.NotificationID))
	return &Result{Outcome: OutcomeQueued, Request: req}, nil
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return DefaultLockTTL
}

func outcomeLabel(res *Result, err error) string {
	switch {
	case err == nil:
		return string(res.Outcome)
	case entity.IsValidationError(err):
		return "validation_error"
	case errors.Is(err, entity.ErrPreferenceDisabled):
		return "preference_disabled"
	case errors.Is(err, entity.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrRequestInProgress):
		return "in_progress"
	case errors.Is(err, ErrQueueFailed):
		return "queue_failed"
	default:
		return "error"
	}
}
