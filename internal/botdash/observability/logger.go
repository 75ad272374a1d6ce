// Package observability configures structured logging for botdash.
//
// All packages log through the global slog logger; WithTrace adds the
// trace_id of the operation in flight so every line of one deploy can be
// grepped together.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/trace"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// NewLogger returns a logger writing to w in format "json" or "text".
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup installs a stderr logger as the slog default. stdout is left to
// command output.
func Setup(level, format string) {
	slog.SetDefault(NewLogger(os.Stderr, level, format))
}

// WithTrace returns the default logger with the trace_id carried by ctx, if
// any.
func WithTrace(ctx context.Context) *slog.Logger {
	if id := trace.From(ctx); id != "" {
		return slog.Default().With("trace_id", id)
	}
	return slog.Default()
}
