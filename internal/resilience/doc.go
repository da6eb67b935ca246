// Package resilience groups the fault tolerance helpers used by the gateway and the workers.
//
//   - circuitbreaker: consecutive-failure breakers around the user directory,
//     template service and push gateway clients
//   - retry: bounded exponential backoff for broker publishes and peer HTTP calls,
//     plus the Backoff schedule used for delivery retries
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.UserDirectoryConfig())
//	err := cb.Do(func() error {
//	    return callUserDirectory()
//	})
//
//	err = retry.WithBackoff(ctx, retry.PublishConfig(), func() error {
//	    return publish()
//	})
package resilience
