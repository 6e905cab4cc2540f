package segdag

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with segdag-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogAddHeads logs an add-heads operation.
func (l *Logger) LogAddHeads(ctx context.Context, heads, assigned int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add heads failed",
			"heads", heads,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "add heads completed",
			"heads", heads,
			"assigned", assigned,
		)
	}
}

// LogFlush logs a flush operation.
func (l *Logger) LogFlush(ctx context.Context, masterHeads int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"master_heads", masterHeads,
			"duration", duration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"master_heads", masterHeads,
			"duration", duration,
		)
	}
}

// LogRemoteRoundTrip logs one protocol round trip.
func (l *Logger) LogRemoteRoundTrip(ctx context.Context, method string, requested, resolved int, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "remote round trip failed",
			"method", method,
			"requested", requested,
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "remote round trip completed",
			"method", method,
			"requested", requested,
			"resolved", resolved,
			"duration", duration,
		)
	}
}

// LogImport logs a clone or pull import.
func (l *Logger) LogImport(ctx context.Context, kind string, segments, bindings int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "import failed",
			"kind", kind,
			"segments", segments,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "import completed",
			"kind", kind,
			"segments", segments,
			"bindings", bindings,
		)
	}
}
