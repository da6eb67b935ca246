package pathutil

import (
	"errors"
	"strings"
)

// ErrInvalidID is returned when the ID in the URL path is invalid.
var ErrInvalidID = errors.New("invalid id")

const maxIDLength = 255

// ExtractID returns the single path segment that follows prefix.
//
// Example:
//
//	id, err := ExtractID("/api/v1/notifications/req_1a2b", "/api/v1/notifications/")
//	// Returns: "req_1a2b", nil
func ExtractID(path, prefix string) (string, error) {
	if !strings.HasPrefix(path, prefix) {
		return "", ErrInvalidID
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/")
	if id == "" || len(id) > maxIDLength || strings.ContainsAny(id, "/ \t") {
		return "", ErrInvalidID
	}
	return id, nil
}
