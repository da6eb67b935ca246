// Package tracing provides OpenTelemetry tracing integration.
//
// Middleware continues inbound W3C trace context on the gateway. The publisher
// writes the active span context into AMQP headers with InjectHeaders and the
// consumer restores it with ExtractHeaders, so the delivery attempt spans of the
// channel workers join the trace of the submission that queued them.
//
//	handler := tracing.Middleware(mux)
//
//	ctx = tracing.ExtractHeaders(ctx, delivery.Headers)
//	ctx, span := tracing.GetTracer().Start(ctx, "delivery.email")
//	defer span.End()
package tracing
