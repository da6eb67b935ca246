// Package observability groups what every pipeline process shares for
// following a notification end to end.
//
//   - correlation: X-Correlation-ID on HTTP and x-correlation-id on AMQP messages
//   - logging: slog JSON logger with rotation, correlation-aware helpers
//   - metrics: Prometheus collectors for HTTP, broker, delivery and the database
//   - tracing: server spans, the shared tracer, trace context in message headers
//
// A request accepted by the gateway keeps its correlation ID and trace through
// the channel queue, the worker attempt and the status callback:
//
//	ctx = correlation.WithID(ctx, id)
//	headers = tracing.InjectHeaders(ctx, headers)
//	// ... consumer side ...
//	ctx = tracing.ExtractHeaders(correlation.FromHeaders(ctx, headers), headers)
//	logger := logging.WithCorrelationID(ctx, slog.Default())
package observability
