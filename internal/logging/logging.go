package logging

import (
	"log/slog"
	"os"
)

// Logger is the application logger. It wraps slog so the same handler can be
// shared with the workflow engine via backend.WithLogger.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a text logger writing to stdout at the given level.
func NewLogger(level string) *Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return &Logger{Logger: slog.New(handler)}
}

// With returns a logger carrying the given attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}
