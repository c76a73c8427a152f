// Package logging provides structured logging for echoprobe.
//
// Logs always go to stderr; stdout carries only the reply lines.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Levels and formats accepted by NewLogger.
var (
	Levels  = []string{"debug", "info", "warn", "error"}
	Formats = []string{"text", "json"}
)

// NewLogger creates a new structured logger on stderr with the specified
// level and format.
func NewLogger(level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a new structured logger with a custom writer.
func NewLoggerWithWriter(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level. Unknown levels fall
// back to warn so that a misconfigured logger stays quiet.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// IsValidLevel reports whether level is one of Levels.
func IsValidLevel(level string) bool {
	return contains(Levels, level)
}

// IsValidFormat reports whether format is one of Formats.
func IsValidFormat(format string) bool {
	return contains(Formats, format)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// NopLogger returns a logger that discards all output.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Common attribute keys for consistent logging.
const (
	KeyComponent   = "component"
	KeyDestination = "destination"
	KeySource      = "source"
	KeyIdentifier  = "identifier"
	KeySequence    = "sequence"
	KeyKind        = "kind"
	KeyReason      = "reason"
	KeyElapsed     = "elapsed"
	KeyInterval    = "interval"
	KeyCount       = "count"
	KeySize        = "size"
	KeyError       = "error"
)
