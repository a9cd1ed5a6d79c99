package node

import (
	"io"
	"log/slog"

	"avaneesh/lorawan-node/pkg/internal/logger"
)

// Logger is the logging interface accepted in Config
type Logger = logger.Logger

// LogLevel represents logging level
type LogLevel = logger.Level

const (
	// LevelDebug shows all log messages (most verbose)
	LevelDebug = logger.LevelDebug
	// LevelInfo shows info, warn, and error messages (default)
	LevelInfo = logger.LevelInfo
	// LevelWarn shows warn and error messages
	LevelWarn = logger.LevelWarn
	// LevelError shows only error messages
	LevelError = logger.LevelError
)

// SetLogLevel replaces the package default logger with one at level
func SetLogLevel(level LogLevel) {
	logger.SetDefault(logger.NewDefaultLogger(level))
}

// SetLogger replaces the package default logger
func SetLogger(l Logger) {
	logger.SetDefault(l)
}

// ParseLogLevel converts "debug", "info", "warn" or "error" to a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	return logger.ParseLevel(s)
}

// NewTextLogger returns a logger writing slog text records to w
func NewTextLogger(w io.Writer, level LogLevel) Logger {
	return logger.NewWriterLogger(w, level)
}

// NewSlogLogger adapts a host slog.Logger
func NewSlogLogger(l *slog.Logger) Logger {
	return logger.NewSlogLogger(l)
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger {
	return logger.NewNoOpLogger()
}
