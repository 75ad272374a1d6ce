package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/trace"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/metrics"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/notify"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/observability"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/store"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 30 * time.Second

// Config configures the reconciliation loop.
type Config struct {
	// Interval between passes. Defaults to DefaultInterval.
	Interval time.Duration
	// Notifier receives unexpected transitions and orphans. Defaults to
	// notify.Log.
	Notifier notify.Notifier
	// Metrics is optional.
	Metrics *metrics.Collectors
}

// BotStore is the slice of the store the reconciler reads and writes.
type BotStore interface {
	ListBots(ctx context.Context, ownerID string) ([]*store.Bot, error)
	UpdateStatusFrom(ctx context.Context, id string, from lifecycle.Status, instanceID string,
		to lifecycle.Status, message string) (bool, error)
	AppendEvent(ctx context.Context, botID, level, action, message, traceID string) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Report summarizes one pass.
type Report struct {
	Checked int
	Changed int
	Stale   int
	Orphans []runtime.InstanceSummary
}

// Reconciler periodically folds engine state into the stored bot statuses.
type Reconciler struct {
	manager *lifecycle.Manager
	store   BotStore
	cfg     Config

	mu       sync.Mutex
	reported map[string]bool // orphan instance IDs already notified
	last     Report
	lastAt   time.Time
}

// New returns a Reconciler.
func New(manager *lifecycle.Manager, s BotStore, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}
	return &Reconciler{manager: manager, store: s, cfg: cfg, reported: make(map[string]bool)}
}

// Run reconciles every Interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.Info("reconciler starting", "interval", r.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopping")
			return
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil {
				slog.Warn("reconcile pass failed", "err", err)
			}
		}
	}
}

// Last returns the most recent report and when it was produced.
func (r *Reconciler) Last() (Report, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.lastAt
}

// Reconcile runs one pass: every bot with a bound instance is inspected and
// its status corrected, and labelled instances no bot is bound to are
// reported as orphans.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	ctx, _ = trace.Ensure(ctx)
	log := observability.WithTrace(ctx)

	rep, err := r.pass(ctx, log)
	r.cfg.Metrics.ObserveReconcile(err)
	if err != nil {
		return rep, err
	}

	r.cfg.Metrics.SetOrphans(len(rep.Orphans))
	if counts, err := r.store.CountByStatus(ctx); err == nil {
		r.cfg.Metrics.SetBotCounts(counts)
	}

	r.mu.Lock()
	r.last, r.lastAt = rep, time.Now()
	r.mu.Unlock()

	if rep.Changed > 0 || len(rep.Orphans) > 0 {
		log.Info("reconcile pass", "checked", rep.Checked, "changed", rep.Changed,
			"stale", rep.Stale, "orphans", len(rep.Orphans))
	}
	return rep, nil
}

func (r *Reconciler) pass(ctx context.Context, log *slog.Logger) (Report, error) {
	var rep Report

	bots, err := r.store.ListBots(ctx, "")
	if err != nil {
		return rep, fmt.Errorf("list bots: %w", err)
	}

	bound := make(map[string]string, len(bots)) // instance ID -> bot ID
	for _, bot := range bots {
		id := bot.InstanceID()
		if id != "" {
			bound[id] = bot.ID
		}

		view, statusErr := lifecycle.StatusView{}, error(nil)
		if id != "" && bot.Status != lifecycle.StatusDeploying {
			view, statusErr = r.manager.Status(ctx, id)
		}
		res := Resolve(bot.Status, id, Observe(view, statusErr))
		rep.Checked++
		if res.Stale {
			rep.Stale++
			log.Debug("bot status unverified", "bot_id", bot.ID, "err", statusErr)
			continue
		}
		if !res.Changed(bot.Status) {
			continue
		}

		// A deploy or an operator action may have moved the bot since the
		// list was read; their write wins.
		applied, err := r.store.UpdateStatusFrom(ctx, bot.ID, bot.Status, id, res.Status, res.Reason)
		if err != nil {
			log.Warn("persist corrected status", "bot_id", bot.ID, "err", err)
			continue
		}
		if !applied {
			log.Debug("bot changed during pass", "bot_id", bot.ID)
			continue
		}
		rep.Changed++
		log.Info("bot status corrected", "bot_id", bot.ID, "from", bot.Status, "to", res.Status, "reason", res.Reason)
		level := store.LevelInfo
		if res.Status == lifecycle.StatusError {
			level = store.LevelError
		}
		msg := fmt.Sprintf("%s → %s: %s", bot.Status, res.Status, res.Reason)
		if err := r.store.AppendEvent(ctx, bot.ID, level, "reconcile", msg, trace.From(ctx)); err != nil {
			log.Warn("record reconcile event", "bot_id", bot.ID, "err", err)
		}
		if res.Unexpected(bot.Status) {
			r.cfg.Notifier.Notify(ctx, notify.Event{Kind: notify.KindStatusChanged, BotID: bot.ID, Message: msg})
		}
	}

	instances, err := r.manager.Engine().ListInstances(ctx)
	if err != nil {
		return rep, fmt.Errorf("list instances: %w", err)
	}
	seen := make(map[string]bool, len(instances))
	for _, inst := range instances {
		seen[inst.ID] = true
		if _, ok := bound[inst.ID]; ok {
			continue
		}
		rep.Orphans = append(rep.Orphans, inst)
		if r.markReported(inst.ID) {
			log.Warn("orphaned instance", "instance", inst.Name, "bot_id", inst.BotID, "state", inst.State)
			r.cfg.Notifier.Notify(ctx, notify.Event{
				Kind:    notify.KindOrphaned,
				BotID:   inst.BotID,
				Message: fmt.Sprintf("instance %s (%s) is not bound to any stored bot", inst.Name, inst.State),
			})
		}
	}
	r.forgetGone(seen)
	return rep, nil
}

// markReported returns true the first time id is seen.
func (r *Reconciler) markReported(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reported[id] {
		return false
	}
	r.reported[id] = true
	return true
}

func (r *Reconciler) forgetGone(present map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.reported {
		if !present[id] {
			delete(r.reported, id)
		}
	}
}
