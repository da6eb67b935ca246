package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

const (
	// DefaultSweepGrace is how long a retry may be overdue before the sweeper takes it over from the timer.
	DefaultSweepGrace = 30 * time.Second
	// DefaultSweepBatch bounds the rows handled per sweep and kind.
	DefaultSweepBatch = 100
)

// Redeliverer re-publishes a scheduled retry. *Scheduler satisfies it.
type Redeliverer interface {
	Redeliver(ctx context.Context, notificationID, source string) (bool, error)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Republished int
	Reported    int
}

// Sweeper recovers work the in-process path could not finish. It re-publishes overdue
// retries, including claims that never reached the broker, and reports terminal
// statuses that never reached the reconciler.
type Sweeper struct {
	Channel     entity.Channel
	Repo        repository.ChannelNotificationRepository
	Reporter    Reporter
	Redeliverer Redeliverer
	Grace       time.Duration
	BatchSize   int
	Now         func() time.Time
}

// Run performs one sweep. Errors of individual rows are joined; the sweep continues past them.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	var errs []error
	now := s.now()

	due, err := s.Repo.ListDueRetries(ctx, s.Channel, now.Add(-s.grace()), now.Add(-ClaimLease), s.batch())
	if err != nil {
		errs = append(errs, fmt.Errorf("list due retries: %w", err))
	}
	for _, n := range due {
		ok, err := s.Redeliverer.Redeliver(ctx, n.NotificationID, SourceSweeper)
		if err != nil {
			errs = append(errs, fmt.Errorf("redeliver %s: %w", n.NotificationID, err))
			continue
		}
		if ok {
			result.Republished++
		}
	}

	unreported, err := s.Repo.ListUnreported(ctx, s.Channel, s.batch())
	if err != nil {
		errs = append(errs, fmt.Errorf("list unreported: %w", err))
	}
	for _, n := range unreported {
		if reportTerminal(ctx, s.Channel, s.Repo, s.Reporter, n, now) {
			result.Reported++
		}
	}

	if result.Republished > 0 || result.Reported > 0 {
		slog.Info("sweep completed",
			slog.String("channel", s.Channel.String()),
			slog.Int("republished", result.Republished),
			slog.Int("reported", result.Reported))
	}
	return result, errors.Join(errs...)
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sweeper) grace() time.Duration {
	if s.Grace > 0 {
		return s.Grace
	}
	return DefaultSweepGrace
}

func (s *Sweeper) batch() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return DefaultSweepBatch
}
