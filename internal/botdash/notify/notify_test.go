package notify_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/trace"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/notify"
)

// fakeSender records notices for assertion.
type fakeSender struct {
	mu      sync.Mutex
	rooms   []string
	notices []string
	err     error
}

func (f *fakeSender) SendNotice(_ context.Context, room, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, room)
	f.notices = append(f.notices, msg)
	return f.err
}

func TestMatrixNotifier_SendsNotice(t *testing.T) {
	sender := &fakeSender{}
	n := notify.NewMatrixNotifier(sender, "!ops:example.com")

	n.Notify(context.Background(), notify.Event{
		Kind:    notify.KindDeployFailed,
		BotID:   "b1",
		Actor:   "u42",
		Message: "start instance: exec format error",
		TraceID: "t_abc123",
	})

	if len(sender.notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(sender.notices))
	}
	if sender.rooms[0] != "!ops:example.com" {
		t.Errorf("room = %q", sender.rooms[0])
	}
	msg := sender.notices[0]
	for _, want := range []string{"b1", "exec format error", "t_abc123", "u42", "🚨"} {
		if !strings.Contains(msg, want) {
			t.Errorf("notice missing %q: %q", want, msg)
		}
	}
}

func TestMatrixNotifier_TraceFromContext(t *testing.T) {
	sender := &fakeSender{}
	n := notify.NewMatrixNotifier(sender, "!ops:example.com")
	ctx := trace.With(context.Background(), "t_fromctx")

	n.Notify(ctx, notify.Event{Kind: notify.KindBotStarted, BotID: "b1", Message: "started"})
	if !strings.Contains(sender.notices[0], "t_fromctx") {
		t.Errorf("notice should carry the context trace: %q", sender.notices[0])
	}
}

func TestMatrixNotifier_KindFilter(t *testing.T) {
	sender := &fakeSender{}
	n := notify.NewMatrixNotifier(sender, "!ops:example.com", notify.KindDeployFailed, notify.KindOrphaned)

	n.Notify(context.Background(), notify.Event{Kind: notify.KindBotStarted, Message: "started"})
	n.Notify(context.Background(), notify.Event{Kind: notify.KindOrphaned, Message: "bot-x"})
	if len(sender.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(sender.notices))
	}
}

func TestMatrixNotifier_NoopWhenEmptyRoom(t *testing.T) {
	sender := &fakeSender{}
	notify.NewMatrixNotifier(sender, "").Notify(context.Background(), notify.Event{Kind: notify.KindBotDeleted})
	if len(sender.notices) != 0 {
		t.Fatalf("expected no notices for empty room, got %d", len(sender.notices))
	}
}

func TestMatrixNotifier_SendErrorSwallowed(t *testing.T) {
	sender := &fakeSender{err: errors.New("M_FORBIDDEN")}
	// Must not panic or block.
	notify.NewMatrixNotifier(sender, "!r:x").Notify(context.Background(), notify.Event{Kind: notify.KindError, Message: "x"})
}

func TestFormat(t *testing.T) {
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	got := notify.Format(notify.Event{Kind: notify.KindOrphaned, Message: "bot-old has no record", Timestamp: ts})
	want := "👻 [instance.orphaned] bot-old has no record\n  at: 2026-05-01T10:00:00Z"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMulti(t *testing.T) {
	a, b := &fakeSender{}, &fakeSender{}
	m := notify.Multi{
		notify.NewMatrixNotifier(a, "!a:x"),
		notify.NewMatrixNotifier(b, "!b:x"),
		notify.Log{},
		notify.Noop{},
	}
	m.Notify(context.Background(), notify.Event{Kind: notify.KindBotCreated, BotID: "b1", Message: "created"})
	if len(a.notices) != 1 || len(b.notices) != 1 {
		t.Fatalf("fan-out: %d/%d", len(a.notices), len(b.notices))
	}
}
