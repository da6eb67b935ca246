// Package status reconciles worker status reports into the authoritative
// notification record and serves it back to polling clients.
package status

import "errors"

// Sentinel errors for status use case operations.
var (
	// ErrNotificationNotFound indicates that no notification matches the given id.
	ErrNotificationNotFound = errors.New("notification not found")
)
