// Package cache holds the Redis-backed pieces of the pipeline: the ingestion
// idempotency lock and JSON caches for contacts and templates.
//
// A Store built without a client is valid and behaves as "not configured":
// reads miss, writes are dropped and locks are always granted, leaving the
// database unique constraint as the only duplicate guard.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotConfigured is returned by Ping when no Redis URL was provided.
var ErrNotConfigured = errors.New("redis not configured")

// Open parses url, connects and pings. An empty url returns (nil, nil).
func Open(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Store wraps a Redis client with key prefixing and JSON helpers.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore creates a store. client may be nil.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Configured reports whether a client is attached.
func (s *Store) Configured() bool {
	return s != nil && s.client != nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// GetJSON loads key into dest. found is false on a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !s.Configured() {
		return false, nil
	}
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores value under key for ttl. Non-positive ttl is a no-op.
func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !s.Configured() || ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), data, ttl).Err()
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !s.Configured() {
		return nil
	}
	return s.client.Del(ctx, s.key(key)).Err()
}

// Acquire sets key only if absent (SET NX) and reports whether this caller won.
func (s *Store) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !s.Configured() {
		return true, nil
	}
	ok, err := s.client.SetNX(ctx, s.key(key), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Ping checks connectivity; ErrNotConfigured when no client is attached.
func (s *Store) Ping(ctx context.Context) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	return s.client.Ping(ctx).Err()
}
