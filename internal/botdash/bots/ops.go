package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/trace"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/metrics"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/notify"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/observability"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/reconcile"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/store"
)

// deployed loads the bot and checks it has an instance to act on. A bot
// that was never deployed is KindPreconditionFailed; one that is deploying
// is KindConflict.
func (s *Service) deployed(ctx context.Context, op, id string) (*store.Bot, error) {
	bot, err := s.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if bot.Status == lifecycle.StatusDeploying {
		return nil, lifecycle.Errorf(lifecycle.KindConflict, op, id, "a deploy is in progress")
	}
	if bot.InstanceID() == "" {
		return nil, lifecycle.Errorf(lifecycle.KindPreconditionFailed, op, id, "bot not deployed yet, deploy first")
	}
	return bot, nil
}

// transition runs one instance operation and, when it succeeds, persists
// the status the bot lands in.
func (s *Service) transition(ctx context.Context, op, id, actor string, to lifecycle.Status, kind notify.Kind,
	call func(context.Context, string) error,
) error {
	ctx, tid := trace.Ensure(ctx)
	bot, err := s.deployed(ctx, op, id)
	if err != nil {
		return err
	}

	err = call(ctx, bot.InstanceID())
	s.metrics.ObserveOp(op, err)
	if err != nil {
		s.event(ctx, id, store.LevelError, op, err.Error())
		return withBot(err, id)
	}

	applied, err := s.store.UpdateStatusFrom(ctx, id, bot.Status, bot.InstanceID(), to, "")
	if err != nil {
		return fmt.Errorf("%s %s: persist status: %w", op, id, err)
	}
	if !applied {
		return lifecycle.Errorf(lifecycle.KindConflict, op, id, "bot changed while the %s ran, status left as is", op)
	}
	s.event(ctx, id, store.LevelInfo, op, fmt.Sprintf("%s by %s", op, actorOr(actor)))
	s.notifier.Notify(ctx, notify.Event{Kind: kind, BotID: id, Actor: actor, Message: string(bot.Status) + " → " + string(to), TraceID: tid})
	slog.Info("bot "+op, "bot_id", id, "from", bot.Status, "to", to, "trace_id", tid)
	return nil
}

// Start starts the bot's existing instance. No new instance is provisioned.
func (s *Service) Start(ctx context.Context, id, actor string) error {
	return s.transition(ctx, "start", id, actor, lifecycle.StatusRunning, notify.KindBotStarted, s.manager.Start)
}

// Stop stops the bot's instance. The instance and its volume are kept.
func (s *Service) Stop(ctx context.Context, id, actor string) error {
	return s.transition(ctx, "stop", id, actor, lifecycle.StatusStopped, notify.KindBotStopped, s.manager.Stop)
}

// Restart restarts the bot's instance in one engine request. It also clears
// error.
func (s *Service) Restart(ctx context.Context, id, actor string) error {
	return s.transition(ctx, "restart", id, actor, lifecycle.StatusRunning, notify.KindBotRestarted, s.manager.Restart)
}

// Logs returns the last tail lines of the bot's output.
func (s *Service) Logs(ctx context.Context, id string, tail int) (string, error) {
	bot, err := s.deployedAnyStatus(ctx, "logs", id)
	if err != nil {
		return "", err
	}
	out, err := s.manager.Logs(ctx, bot.InstanceID(), tail)
	if err != nil {
		return "", withBot(err, id)
	}
	return out, nil
}

// Stats samples the bot's resource usage once.
func (s *Service) Stats(ctx context.Context, id string) (metrics.View, error) {
	bot, err := s.deployedAnyStatus(ctx, "stats", id)
	if err != nil {
		return metrics.View{}, err
	}
	view, snap, err := s.manager.Stats(ctx, bot.InstanceID())
	if err != nil {
		return metrics.View{}, withBot(err, id)
	}
	s.metrics.ObserveStats(id, view, snap.MemoryUsage)
	return view, nil
}

func (s *Service) deployedAnyStatus(ctx context.Context, op, id string) (*store.Bot, error) {
	bot, err := s.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if bot.InstanceID() == "" {
		return nil, lifecycle.Errorf(lifecycle.KindPreconditionFailed, op, id, "bot not deployed yet, deploy first")
	}
	return bot, nil
}

// StatusReport is the reconciled status of one bot.
type StatusReport struct {
	BotID        string               `json:"bot_id"`
	Status       lifecycle.Status     `json:"status"`
	Message      string               `json:"message,omitempty"`
	InstanceID   string               `json:"instance_id,omitempty"`
	InstanceName string               `json:"instance_name,omitempty"`
	Instance     lifecycle.StatusView `json:"instance"`
	// Stale is true when the engine could not be asked and Status is the
	// last persisted value.
	Stale     bool      `json:"stale,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status inspects the bot's instance, folds the result into the persisted
// status and returns the reconciled view. A correction is persisted.
func (s *Service) Status(ctx context.Context, id string) (*StatusReport, error) {
	const op = "status"
	bot, err := s.get(ctx, op, id)
	if err != nil {
		return nil, err
	}

	instanceID := bot.InstanceID()
	view := lifecycle.StatusView{Status: lifecycle.InstanceNotFound}
	var statusErr error
	if instanceID != "" && bot.Status != lifecycle.StatusDeploying {
		view, statusErr = s.manager.Status(ctx, instanceID)
	}
	res := reconcile.Resolve(bot.Status, instanceID, reconcile.Observe(view, statusErr))

	rep := &StatusReport{
		BotID:        id,
		Status:       res.Status,
		Message:      bot.StatusMessage,
		InstanceID:   instanceID,
		InstanceName: bot.ContainerName.String,
		Instance:     view,
		Stale:        res.Stale,
		UpdatedAt:    bot.UpdatedAt,
	}
	if res.Stale {
		rep.Message = statusErr.Error()
		return rep, nil
	}
	if res.Changed(bot.Status) {
		applied, err := s.store.UpdateStatusFrom(ctx, id, bot.Status, instanceID, res.Status, res.Reason)
		if err != nil {
			return nil, fmt.Errorf("%s %s: persist status: %w", op, id, err)
		}
		if !applied {
			// Another writer moved the bot; report what it left.
			fresh, err := s.get(ctx, op, id)
			if err != nil {
				return nil, err
			}
			rep.Status, rep.Message, rep.UpdatedAt = fresh.Status, fresh.StatusMessage, fresh.UpdatedAt
			rep.InstanceID, rep.InstanceName = fresh.InstanceID(), fresh.ContainerName.String
			return rep, nil
		}
		s.event(ctx, id, store.LevelInfo, "reconcile", fmt.Sprintf("%s → %s: %s", bot.Status, res.Status, res.Reason))
		rep.Message = res.Reason
		rep.UpdatedAt = time.Now().UTC()
	}
	return rep, nil
}

// DeleteResult reports how a delete went. Warning is set when the instance
// or volume could not be removed; the bot record is gone either way.
type DeleteResult struct {
	Warning string `json:"warning,omitempty"`
}

// Delete removes the bot's instance and then the bot record with its
// settings and history. Instance removal is best effort: a failure is
// returned as a warning and does not keep the record. The data volume stays.
func (s *Service) Delete(ctx context.Context, id, actor string) (DeleteResult, error) {
	return s.delete(ctx, "delete", id, actor, false)
}

// Purge is Delete that also removes the bot's data volume.
func (s *Service) Purge(ctx context.Context, id, actor string) (DeleteResult, error) {
	return s.delete(ctx, "purge", id, actor, true)
}

func (s *Service) delete(ctx context.Context, op, id, actor string, purge bool) (DeleteResult, error) {
	ctx, tid := trace.Ensure(ctx)
	log := observability.WithTrace(ctx).With("bot_id", id)

	bot, err := s.get(ctx, op, id)
	if err != nil {
		return DeleteResult{}, err
	}

	var warnings []error
	if err := s.manager.Remove(ctx, bot.InstanceID()); err != nil {
		warnings = append(warnings, fmt.Errorf("remove instance %s: %w", bot.ContainerName.String, err))
	}
	s.metrics.ObserveOp("remove", errors.Join(warnings...))

	if err := s.store.DeleteBot(ctx, id); err != nil {
		return DeleteResult{}, storeErr(op, id, err)
	}
	s.metrics.ForgetBot(id)

	if purge {
		err := s.manager.RemoveVolume(ctx, id)
		s.metrics.ObserveOp("remove_volume", err)
		if err != nil {
			warnings = append(warnings, err)
		}
	}

	var res DeleteResult
	if len(warnings) > 0 {
		res.Warning = errors.Join(warnings...).Error()
		log.Warn("bot deleted with leftovers", "warning", res.Warning)
		s.notifier.Notify(ctx, notify.Event{Kind: notify.KindCleanupFailed, BotID: id, Actor: actor, Message: res.Warning, TraceID: tid})
	}
	s.notifier.Notify(ctx, notify.Event{Kind: notify.KindBotDeleted, BotID: id, Actor: actor, Message: op + "d", TraceID: tid})
	log.Info("bot deleted", "purge", purge, "by", actorOr(actor))
	return res, nil
}

// withBot fills in the bot ID on a lifecycle error that lacks one.
func withBot(err error, id string) error {
	var le *lifecycle.Error
	if errors.As(err, &le) && le.BotID == "" {
		cp := *le
		cp.BotID = id
		return &cp
	}
	return err
}
