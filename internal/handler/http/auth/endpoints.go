package auth

import "strings"

// PublicEndpoints are reachable without service credentials.
// Orchestrators and Prometheus do not carry a service key.
var PublicEndpoints = []string{
	"/health",
	"/health/ready",
	"/health/live",
	"/metrics",
}

// IsPublicEndpoint checks if a given path is a public endpoint.
//
// Matching is exact, with an optional trailing slash or query string:
//
//	IsPublicEndpoint("/health")          // true
//	IsPublicEndpoint("/health?x=1")      // true
//	IsPublicEndpoint("/health/ready")    // true
//	IsPublicEndpoint("/healthcheck")     // false
//	IsPublicEndpoint("/api/v1/status")   // false
func IsPublicEndpoint(path string) bool {
	for _, endpoint := range PublicEndpoints {
		if path == endpoint || path == endpoint+"/" || strings.HasPrefix(path, endpoint+"?") {
			return true
		}
	}
	return false
}
