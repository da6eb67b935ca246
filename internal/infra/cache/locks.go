package cache

import (
	"context"
	"time"
)

// RequestLocks adapts a Store to the ingestion request_id lock.
type RequestLocks struct {
	Store *Store
}

// Lock acquires the lock for requestID. Without Redis every caller wins.
func (l RequestLocks) Lock(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	return l.Store.Acquire(ctx, IdempotencyKey(requestID), ttl)
}

// Unlock releases the lock for requestID.
func (l RequestLocks) Unlock(ctx context.Context, requestID string) error {
	return l.Store.Delete(ctx, IdempotencyKey(requestID))
}
