package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/trace"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "info", "json")
	log.Debug("hidden")
	log.Info("shown", "bot_id", "b1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["bot_id"] != "b1" {
		t.Errorf("record = %v", rec)
	}
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(NewLogger(&buf, "info", "text"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	WithTrace(trace.With(context.Background(), "abc123")).Info("hello")
	if !strings.Contains(buf.String(), "trace_id=abc123") {
		t.Errorf("log = %q", buf.String())
	}

	buf.Reset()
	WithTrace(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log = %q", buf.String())
	}
}
