package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log is the global logger instance
var Log *slog.Logger

// level is the dynamic log level, changeable at runtime via SetLevel.
// Uses slog.LevelVar, so SetLevel is safe for concurrent use.
var level slog.LevelVar

// Init initializes the global logger with the specified level, writing
// text records to stderr so stdout stays free for the run summary.
func Init(levelStr string) {
	InitWithFormat(levelStr, "text", os.Stderr)
}

// InitWithFormat initializes the global logger with an explicit format
// ("text" or "json") and destination. A nil writer means stderr.
func InitWithFormat(levelStr, format string, w io.Writer) {
	SetLevel(levelStr)
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: &level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	Log = slog.New(handler)
}

// SetLevel changes the log level at runtime. Valid values: debug, info, warn, error.
// Invalid values fall back to info.
func SetLevel(levelStr string) {
	var lvl slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	level.Set(lvl)
}

// Enabled reports whether records at lvl would currently be emitted.
func Enabled(lvl slog.Level) bool {
	return Log != nil && level.Level() <= lvl
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	if Log != nil {
		Log.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...any) {
	if Log != nil {
		Log.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	if Log != nil {
		Log.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...any) {
	if Log != nil {
		Log.Error(msg, args...)
	}
}
