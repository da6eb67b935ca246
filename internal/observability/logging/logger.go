package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"notification-pipeline/internal/observability/correlation"
	"notification-pipeline/pkg/config"
)

// Rotation settings for the optional LOG_FILE sink.
const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 5
	logFileMaxAgeDays = 14
)

// NewLogger builds the process logger from LOG_LEVEL, LOG_FORMAT and LOG_FILE.
// JSON is the default format; LOG_FORMAT=text is meant for local runs.
func NewLogger() *slog.Logger {
	opts := handlerOptions(ParseLevel(os.Getenv("LOG_LEVEL")))
	w := output()

	if strings.EqualFold(config.GetEnvString("LOG_FORMAT", "json"), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a LOG_LEVEL value onto a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		// warn 以上はソース位置を付ける
		AddSource: level >= slog.LevelWarn,
	}
}

func output() io.Writer {
	path := config.GetEnvString("LOG_FILE", "")
	if path == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, NewRotatingFile(path))
}

// NewRotatingFile returns a size-rotated, compressed log file writer.
func NewRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
		Compress:   true,
	}
}

// WithCorrelationID tags logger with the correlation ID and, when a span is
// active, the trace ID found in ctx. The logger is returned as is otherwise.
func WithCorrelationID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	var args []any
	if id := correlation.FromContext(ctx); id != "" {
		args = append(args, slog.String("correlation_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		args = append(args, slog.String("trace_id", sc.TraceID().String()))
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
