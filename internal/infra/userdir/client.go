// Package userdir resolves recipients through the user directory service.
package userdir

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/infra/cache"
	"notification-pipeline/internal/infra/httpclient"
	"notification-pipeline/internal/resilience/circuitbreaker"
	"notification-pipeline/internal/resilience/retry"
)

const dependencyName = "user_service"

// DefaultCacheTTL is how long a resolved contact is reused.
const DefaultCacheTTL = 5 * time.Minute

type getter interface {
	GetJSON(ctx context.Context, path string, result any) error
}

// Client looks up contacts with retries, a circuit breaker and a Redis cache.
type Client struct {
	http     getter
	breaker  *circuitbreaker.CircuitBreaker
	retry    retry.Config
	cache    *cache.Store
	cacheTTL time.Duration
}

// New creates a Client. store may be nil or unconfigured.
func New(hc *httpclient.Client, store *cache.Store) *Client {
	cbCfg := circuitbreaker.UserDirectoryConfig()
	cbCfg.IsSuccessful = func(err error) bool { return errors.Is(err, entity.ErrUserNotFound) }

	return &Client{
		http:     hc,
		breaker:  circuitbreaker.New(cbCfg),
		retry:    retry.HTTPClientConfig().Named("user_directory"),
		cache:    store,
		cacheTTL: DefaultCacheTTL,
	}
}

// Lookup returns the contact for userID.
// Errors are entity.ErrUserNotFound or an *entity.DependencyError.
func (c *Client) Lookup(ctx context.Context, userID string) (*entity.Contact, error) {
	var cached entity.Contact
	if found, err := c.cache.GetJSON(ctx, cache.ContactKey(userID), &cached); err != nil {
		slog.Warn("contact cache read failed", slog.String("user_id", userID), slog.Any("error", err))
	} else if found {
		return &cached, nil
	}

	var contact entity.Contact
	err := c.breaker.Do(func() error {
		return retry.WithBackoff(ctx, c.retry, func() error {
			err := c.http.GetJSON(ctx, "/api/v1/users/"+url.PathEscape(userID)+"/", &contact)
			var httpErr *retry.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
				return entity.ErrUserNotFound
			}
			return err
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, entity.ErrUserNotFound):
		return nil, entity.ErrUserNotFound
	default:
		return nil, &entity.DependencyError{Dependency: dependencyName, Err: err}
	}

	if contact.UserID == "" {
		contact.UserID = userID
	}
	if err := c.cache.SetJSON(ctx, cache.ContactKey(userID), &contact, c.cacheTTL); err != nil {
		slog.Warn("contact cache write failed", slog.String("user_id", userID), slog.Any("error", err))
	}
	return &contact, nil
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}
