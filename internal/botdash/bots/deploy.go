package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/redact"
	"github.com/IDKDeadXD/DiscordBotDashboard/common/trace"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/metrics"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/notify"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/observability"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/store"
)

// Deploy provisions a fresh instance for the bot and starts it. The bot goes
// through deploying and ends running, or error with the failure recorded in
// its deployment history. A bot already deploying is rejected with
// KindConflict.
func (s *Service) Deploy(ctx context.Context, id, actor string) (*store.Bot, error) {
	const op = "deploy"
	ctx, tid := trace.Ensure(ctx)
	log := observability.WithTrace(ctx).With("bot_id", id)

	bot, err := s.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	acquired, err := s.store.TryMarkDeploying(ctx, id)
	if err != nil {
		return nil, storeErr(op, id, err)
	}
	if !acquired {
		return nil, lifecycle.Errorf(lifecycle.KindConflict, op, id, "a deploy is already in progress")
	}
	log.Info("deploy started", "triggered_by", actorOr(actor))

	timer := metrics.NewTimer()
	settings, err := s.store.Settings().List(ctx, id)
	if err != nil {
		err = &lifecycle.Error{Kind: lifecycle.KindProvisioningFailed, Op: op, BotID: id, Err: err}
		return nil, s.failDeploy(ctx, log, bot, actor, err)
	}

	ref, err := s.manager.Deploy(ctx, lifecycle.Bot{
		ID:          bot.ID,
		Name:        bot.Name,
		Secret:      bot.Secret,
		OwnerID:     bot.OwnerID,
		AutoRestart: bot.AutoRestart,
		Settings:    lifecycle.SettingsFromMap(settings),
	})
	timer.ObserveDeploy(s.metrics)
	s.metrics.ObserveOp(op, err)
	if err != nil {
		return nil, s.failDeploy(ctx, log, bot, actor, err)
	}

	if err := s.store.SetInstance(ctx, id, ref.InstanceID, ref.InstanceName, lifecycle.StatusRunning); err != nil {
		// The instance runs but could not be bound; remove it so no
		// unbound instance outlives the failed deploy.
		if rmErr := s.manager.Remove(ctx, ref.InstanceID); rmErr != nil {
			log.Warn("remove unbound instance", "err", rmErr)
		}
		bot.ContainerID.Valid = false
		return nil, s.failDeploy(ctx, log, bot, actor, fmt.Errorf("persist instance: %w", err))
	}

	s.history(ctx, &store.Deployment{
		BotID:       id,
		TriggeredBy: actorOr(actor),
		Outcome:     store.OutcomeSuccess,
		Message:     fmt.Sprintf("deployed in %s", timer.Duration().Round(time.Millisecond)),
		InstanceID:  ref.InstanceID,
		TraceID:     tid,
	})
	s.event(ctx, id, store.LevelInfo, op, "deployed instance "+ref.InstanceName)
	s.notifier.Notify(ctx, notify.Event{Kind: notify.KindBotDeployed, BotID: id, Actor: actor, Message: "deployed", TraceID: tid})
	log.Info("deploy finished", "duration", timer.Duration())
	return s.get(ctx, op, id)
}

// failDeploy moves the bot to error and records the failed attempt. The bot
// keeps its previous instance binding only while that instance still exists.
// The returned error carries the original kind; failures with no kind are
// reported as KindProvisioningFailed.
func (s *Service) failDeploy(ctx context.Context, log *slog.Logger, bot *store.Bot, actor string, cause error) error {
	tid := trace.From(ctx)
	cause = redact.Error(cause, bot.Secret)
	msg := cause.Error()

	keep := false
	if prev := bot.InstanceID(); prev != "" {
		view, err := s.manager.Status(ctx, prev)
		keep = err != nil || view.Status != lifecycle.InstanceNotFound
	}
	var err error
	if keep {
		err = s.store.UpdateStatus(ctx, bot.ID, lifecycle.StatusError, msg)
	} else {
		err = s.store.ClearInstance(ctx, bot.ID, lifecycle.StatusError, msg)
	}
	if err != nil {
		log.Error("persist failed deploy", "err", err)
	}

	s.history(ctx, &store.Deployment{
		BotID:       bot.ID,
		TriggeredBy: actorOr(actor),
		Outcome:     store.OutcomeFailed,
		Message:     msg,
		TraceID:     tid,
	})
	s.event(ctx, bot.ID, store.LevelError, "deploy", msg)
	s.notifier.Notify(ctx, notify.Event{Kind: notify.KindDeployFailed, BotID: bot.ID, Actor: actor, Message: msg, TraceID: tid})
	log.Warn("deploy failed", "err", msg)

	var le *lifecycle.Error
	if errors.As(cause, &le) {
		return cause
	}
	return &lifecycle.Error{Kind: lifecycle.KindProvisioningFailed, Op: "deploy", BotID: bot.ID, Err: cause}
}

func (s *Service) history(ctx context.Context, d *store.Deployment) {
	if err := s.store.AppendDeployment(ctx, d); err != nil {
		slog.Error("append deployment history", "bot_id", d.BotID, "outcome", d.Outcome, "err", err)
	}
}

// RecoverInterrupted moves bots left in deploying by a previous process to
// error. Only locks older than the deploy lease are released, so a deploy
// another process has in flight against the same database keeps its lock.
// It runs at startup, before any deploy is accepted.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	bots, err := s.store.ListBots(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("recover interrupted deploys: %w", err)
	}
	cutoff := time.Now().Add(-s.lease)
	n := 0
	for _, bot := range bots {
		if bot.Status != lifecycle.StatusDeploying {
			continue
		}
		if bot.UpdatedAt.After(cutoff) {
			slog.Info("deploy in progress, lock kept", "bot_id", bot.ID, "since", bot.UpdatedAt)
			continue
		}
		const msg = "deploy interrupted by a restart of botdash"
		applied, err := s.store.UpdateStatusFrom(ctx, bot.ID, lifecycle.StatusDeploying, bot.InstanceID(), lifecycle.StatusError, msg)
		if err != nil {
			return n, fmt.Errorf("recover %s: %w", bot.ID, err)
		}
		if !applied {
			continue
		}
		s.history(ctx, &store.Deployment{
			BotID:       bot.ID,
			TriggeredBy: "system",
			Outcome:     store.OutcomeFailed,
			Message:     msg,
			TraceID:     trace.From(ctx),
		})
		s.event(ctx, bot.ID, store.LevelWarn, "recover", msg)
		slog.Warn("interrupted deploy recovered", "bot_id", bot.ID)
		n++
	}
	return n, nil
}
