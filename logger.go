package imageds

import (
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with imageds-specific context.
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

// WithDataset adds the dataset identity to the logger.
func (l *Logger) WithDataset(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dataset", id),
	}
}

// WithIndex adds an item index field to the logger.
func (l *Logger) WithIndex(index int) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", index),
	}
}

// WithField adds a sample field name to the logger.
func (l *Logger) WithField(field string) *Logger {
	return &Logger{
		Logger: l.Logger.With("field", field),
	}
}

// LogGet logs an item access.
func (l *Logger) LogGet(index int, err error) {
	if err != nil {
		l.Error("get failed",
			"index", index,
			"error", err,
		)
	} else {
		l.Debug("get completed",
			"index", index,
		)
	}
}

// LogWarm logs a cache warm-up run.
func (l *Logger) LogWarm(total int, elapsed time.Duration, err error) {
	if err != nil {
		l.Error("cache warm-up failed",
			"total", total,
			"elapsed", elapsed,
			"error", err,
		)
	} else {
		l.Info("cache warm-up completed",
			"total", total,
			"elapsed", elapsed,
		)
	}
}
