// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the infrastructure metrics shared by every process:
//   - Broker publish, consume and reconnect metrics
//   - Database query and connection pool metrics
//   - Retry decisions of bounded backoff loops
//
// Use-case specific metrics (submissions, delivery attempts, dead letters) live
// next to the code that records them. HTTP metrics live in the http handler package.
//
// All metrics are registered with the Prometheus default registry and exposed via
// the /metrics endpoint.
//
// Example usage:
//
//	import "notification-pipeline/internal/observability/metrics"
//
//	func publish(ctx context.Context, key string, body []byte) error {
//	    start := time.Now()
//	    err := pub.Publish(ctx, key, body, nil)
//	    metrics.RecordPublish(key, err, time.Since(start))
//	    return err
//	}
package metrics
