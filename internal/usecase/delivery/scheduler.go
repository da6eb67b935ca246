package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

const (
	// SourceTimer and SourceSweeper label who re-published a retry.
	SourceTimer   = "timer"
	SourceSweeper = "sweeper"

	redeliverTimeout = 30 * time.Second
	// restoreDelay postpones a retry whose re-publish failed so the sweeper picks it up.
	restoreDelay = time.Minute
	// ClaimLease is how long a claimed retry may stay pending before it can be claimed again.
	ClaimLease = 5 * time.Minute
)

// Scheduler re-publishes retries when their backoff elapses. Timers live in memory only;
// next_retry_at is persisted, so the sweeper recovers retries lost with the process.
type Scheduler struct {
	channel   entity.Channel
	repo      repository.ChannelNotificationRepository
	publisher Publisher
	now       func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewScheduler creates a scheduler re-publishing to the channel's routing key.
func NewScheduler(ch entity.Channel, repo repository.ChannelNotificationRepository, pub Publisher) *Scheduler {
	return &Scheduler{
		channel:   ch,
		repo:      repo,
		publisher: pub,
		now:       time.Now,
		timers:    make(map[string]*time.Timer),
	}
}

// Schedule arms a timer for n. A later call for the same notification replaces the timer.
func (s *Scheduler) Schedule(n *entity.ChannelNotification, delay time.Duration) {
	id := n.NotificationID

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id) })
	setPendingTimers(s.channel.String(), len(s.timers))
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer. Scheduled retries stay persisted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	setPendingTimers(s.channel.String(), 0)
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	delete(s.timers, id)
	setPendingTimers(s.channel.String(), len(s.timers))
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redeliverTimeout)
	defer cancel()
	if _, err := s.Redeliver(ctx, id, SourceTimer); err != nil {
		slog.Warn("scheduled retry not re-published",
			slog.String("notification_id", id),
			slog.Any("error", err))
	}
}

// Redeliver claims the scheduled retry of a notification and re-publishes its message.
// It returns false without error when there is nothing to claim, e.g. because another
// instance already did. A claim that is older than ClaimLease and whose attempt never
// started is claimed again, so a crash between claim and publish does not strand the row.
func (s *Scheduler) Redeliver(ctx context.Context, notificationID, source string) (bool, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return false, fmt.Errorf("get notification: %w", err)
	}
	if n == nil || n.Status != entity.StatusPending {
		return false, nil
	}

	won, err := s.repo.ClaimRetry(ctx, notificationID, s.now().Add(-ClaimLease))
	if err != nil {
		return false, fmt.Errorf("claim retry: %w", err)
	}
	if !won {
		return false, nil
	}

	body, err := n.Message().Encode()
	if err == nil {
		headers := map[string]string{HeaderRetryAttempt: strconv.Itoa(n.RetryCount)}
		err = s.publisher.Publish(ctx, s.channel.RoutingKey(), body, headers)
	}
	if err != nil {
		next := s.now().Add(restoreDelay)
		n.NextRetryAt = &next
		if saveErr := s.repo.Save(ctx, n); saveErr != nil {
			return false, fmt.Errorf("publish retry: %w (restore next_retry_at: %v)", err, saveErr)
		}
		return false, fmt.Errorf("publish retry: %w", err)
	}

	RecordRetryRepublished(s.channel.String(), source)
	slog.Info("retry re-published",
		slog.String("notification_id", notificationID),
		slog.Int("retry_count", n.RetryCount),
		slog.String("source", source))
	return true, nil
}
