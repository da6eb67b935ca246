package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern represents a regex pattern and its corresponding normalized template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

// pathPatterns defines the dynamic routes, most specific first.
var pathPatterns = []*PathPattern{
	{Pattern: regexp.MustCompile(`^/api/v1/notifications/[^/]+$`), Template: "/api/v1/notifications/:request_id"},
	{Pattern: regexp.MustCompile(`^/api/v1/deliveries/[^/]+$`), Template: "/api/v1/deliveries/:notification_id"},
}

// NormalizePath normalizes dynamic URL paths to prevent metrics label cardinality explosion.
// Static paths are returned unchanged.
//
// Examples:
//
//	NormalizePath("/api/v1/notifications/req_1a2b")   // "/api/v1/notifications/:request_id"
//	NormalizePath("/api/v1/deliveries/6f1c9a3e-...")  // "/api/v1/deliveries/:notification_id"
//	NormalizePath("/api/v1/notifications")            // "/api/v1/notifications" (unchanged)
//	NormalizePath("/health/ready")                    // "/health/ready" (unchanged)
//	NormalizePath("/unknown/path/123")                // "/unknown/path/123" (no match, return original)
//
// Query parameters and trailing slashes are stripped first.
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}

	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}
	return path
}

// GetExpectedCardinality returns the expected number of unique path labels
// after normalization.
func GetExpectedCardinality() int {
	// /api/v1/notifications, /api/v1/status, /health, /health/ready, /health/live, /metrics
	staticCount := 6
	return len(pathPatterns) + staticCount
}
