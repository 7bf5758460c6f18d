package observability

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLevel maps a configured level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger. "json" writes slog JSON lines; any
// other format writes human-readable colored lines through tint.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
		})
	}

	return slog.New(handler)
}
