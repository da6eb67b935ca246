// Package ingest accepts notification requests and routes them to channel queues.
package ingest

import "errors"

// Sentinel errors for ingestion.
var (
	// ErrRequestInProgress indicates that a concurrent submission holds the request_id lock.
	ErrRequestInProgress = errors.New("request in progress")

	// ErrQueueFailed indicates that the request was persisted but could not be published.
	// The stored record is marked failed so the caller never sees a false "queued".
	ErrQueueFailed = errors.New("queue publish failed")

	// ErrNoDestination indicates that the recipient has no address for the requested channel.
	ErrNoDestination = errors.New("recipient has no destination for channel")
)
