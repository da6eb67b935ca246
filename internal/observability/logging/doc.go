// Package logging builds the slog logger every process starts with.
//
// LOG_LEVEL picks the level, LOG_FORMAT switches between JSON and text, and
// LOG_FILE adds a rotated file sink next to stdout. WithCorrelationID tags a
// logger with the correlation ID carried in a request or message context.
//
//	logger := logging.NewLogger().With(slog.String("service", "gateway"))
//	slog.SetDefault(logger)
//
//	logging.WithCorrelationID(ctx, logger).Info("notification queued")
package logging
