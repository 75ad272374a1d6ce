// Package notify posts operator notices about bot lifecycle events.
//
// With a Matrix room configured (BOTDASH_MATRIX_ROOM), botdash posts a short
// notice for deploys, failures, unexpected status changes found by the
// reconciler and orphaned instances, so operators see problems without
// tailing logs. Every notice carries the trace ID of the operation that
// produced it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/trace"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindBotCreated    Kind = "bot.created"
	KindBotDeployed   Kind = "bot.deployed"
	KindDeployFailed  Kind = "bot.deploy_failed"
	KindBotStarted    Kind = "bot.started"
	KindBotStopped    Kind = "bot.stopped"
	KindBotRestarted  Kind = "bot.restarted"
	KindBotDeleted    Kind = "bot.deleted"
	KindStatusChanged Kind = "bot.status_changed"
	KindOrphaned      Kind = "instance.orphaned"
	KindCleanupFailed Kind = "instance.cleanup_failed"
	KindError         Kind = "error"
)

// Event is what the notifier formats and sends.
type Event struct {
	Kind Kind
	// BotID is the bot the event is about, if any.
	BotID string
	// Actor is whoever triggered the event; empty for the reconciler.
	Actor   string
	Message string
	// TraceID defaults to the one carried by the context.
	TraceID   string
	Timestamp time.Time
}

// Notifier sends lifecycle notices. Implementations must not block the
// caller for long; send failures are logged, not returned.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Sender is the slice of a chat client MatrixNotifier needs.
type Sender interface {
	SendNotice(ctx context.Context, roomID, message string) error
}

// MatrixNotifier posts notices to one Matrix room.
type MatrixNotifier struct {
	sender  Sender
	roomID  string
	timeout time.Duration
	// kinds limits which events are sent; nil sends all.
	kinds map[Kind]bool
}

// NewMatrixNotifier returns a notifier posting to roomID via sender. When
// kinds is non-empty only those kinds are sent.
func NewMatrixNotifier(sender Sender, roomID string, kinds ...Kind) *MatrixNotifier {
	n := &MatrixNotifier{sender: sender, roomID: roomID, timeout: 5 * time.Second}
	if len(kinds) > 0 {
		n.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			n.kinds[k] = true
		}
	}
	return n
}

// Notify formats evt and posts it.
func (n *MatrixNotifier) Notify(ctx context.Context, evt Event) {
	if n.roomID == "" {
		return
	}
	if n.kinds != nil && !n.kinds[evt.Kind] {
		return
	}
	if evt.TraceID == "" {
		evt.TraceID = trace.From(ctx)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	msg := Format(evt)
	if err := n.sender.SendNotice(ctx, n.roomID, msg); err != nil {
		slog.Warn("notify: send failed", "room", n.roomID, "kind", evt.Kind, "err", err)
		return
	}
	slog.Debug("notify: sent notice", "room", n.roomID, "kind", evt.Kind)
}

// Format renders evt as plain text.
func Format(evt Event) string {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	var b strings.Builder
	icon := kindIcon(evt.Kind)
	if evt.BotID != "" {
		fmt.Fprintf(&b, "%s %s: %s", icon, evt.BotID, evt.Message)
	} else {
		fmt.Fprintf(&b, "%s [%s] %s", icon, evt.Kind, evt.Message)
	}
	if evt.Actor != "" {
		fmt.Fprintf(&b, "\n  by: %s", evt.Actor)
	}
	if evt.TraceID != "" {
		fmt.Fprintf(&b, "\n  trace: %s", evt.TraceID)
	}
	fmt.Fprintf(&b, "\n  at: %s", evt.Timestamp.UTC().Format(time.RFC3339))
	return b.String()
}

// Noop drops every event.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, Event) {}

// Log writes events to the default slog logger. It is used when no room
// is configured.
type Log struct{}

// Notify logs evt at a level matching its kind.
func (Log) Notify(ctx context.Context, evt Event) {
	tid := evt.TraceID
	if tid == "" {
		tid = trace.From(ctx)
	}
	level := slog.LevelInfo
	switch evt.Kind {
	case KindDeployFailed, KindStatusChanged, KindOrphaned, KindCleanupFailed, KindError:
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "lifecycle event", "kind", evt.Kind, "bot_id", evt.BotID,
		"actor", evt.Actor, "message", evt.Message, "trace_id", tid)
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

// Notify sends evt to every notifier in order.
func (m Multi) Notify(ctx context.Context, evt Event) {
	for _, n := range m {
		n.Notify(ctx, evt)
	}
}

func kindIcon(k Kind) string {
	switch k {
	case KindBotCreated:
		return "🟢"
	case KindBotDeployed:
		return "🚀"
	case KindBotStarted:
		return "▶️"
	case KindBotStopped:
		return "⏹️"
	case KindBotRestarted:
		return "🔄"
	case KindBotDeleted:
		return "🗑️"
	case KindStatusChanged:
		return "⚠️"
	case KindOrphaned:
		return "👻"
	case KindDeployFailed, KindCleanupFailed, KindError:
		return "🚨"
	default:
		return "ℹ️"
	}
}
