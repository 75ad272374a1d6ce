// Package bots is the caller layer over the lifecycle manager. It owns the
// logical state machine of a bot:
//
//	stopped --deploy--> deploying --ok--> running
//	                    deploying --failure--> error
//	running --stop--> stopped
//	stopped|error --start--> running   (needs a deployed instance)
//	* --restart--> running
//	* --delete--> gone
//
// Every transition is persisted before the call returns, every deploy
// attempt is appended to the bot's deployment history, and the persisted
// deploying status doubles as a per-bot deploy lock.
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
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/store"
)

// Options holds the optional collaborators of a Service.
type Options struct {
	// Notifier defaults to notify.Log.
	Notifier notify.Notifier
	// Metrics may be nil.
	Metrics *metrics.Collectors
	// DeployLease is how long a deploying lock is honoured before
	// RecoverInterrupted may release it. Zero uses DefaultDeployLease.
	DeployLease time.Duration
}

// DefaultDeployLease bounds how long a deploy may hold its lock.
const DefaultDeployLease = 10 * time.Minute

// Service drives bots through their lifecycle.
type Service struct {
	store    *store.Store
	manager  *lifecycle.Manager
	notifier notify.Notifier
	metrics  *metrics.Collectors
	lease    time.Duration
}

// New returns a Service.
func New(s *store.Store, m *lifecycle.Manager, opts Options) *Service {
	if opts.Notifier == nil {
		opts.Notifier = notify.Log{}
	}
	if opts.DeployLease <= 0 {
		opts.DeployLease = DefaultDeployLease
	}
	return &Service{store: s, manager: m, notifier: opts.Notifier, metrics: opts.Metrics, lease: opts.DeployLease}
}

// Manager returns the lifecycle manager the service drives.
func (s *Service) Manager() *lifecycle.Manager { return s.manager }

// CreateRequest describes a new bot.
type CreateRequest struct {
	ID          string
	Name        string
	Description string
	Secret      string
	OwnerID     string
	AutoRestart bool
	Settings    map[string]string
}

// Create stores a new bot with status stopped and no instance. A taken ID
// is KindConflict.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor string) (*store.Bot, error) {
	const op = "create"
	ctx, tid := trace.Ensure(ctx)

	if err := runtime.ValidateBotID(req.ID); err != nil {
		return nil, &lifecycle.Error{Kind: lifecycle.KindInvalid, Op: op, BotID: req.ID, Err: err}
	}
	if req.Secret == "" {
		return nil, lifecycle.Errorf(lifecycle.KindInvalid, op, req.ID, "secret is required")
	}
	if err := lifecycle.ValidateSettings(lifecycle.SettingsFromMap(req.Settings)); err != nil {
		return nil, &lifecycle.Error{Kind: lifecycle.KindInvalid, Op: op, BotID: req.ID, Err: err}
	}
	name := req.Name
	if name == "" {
		name = req.ID
	}

	bot := &store.Bot{
		ID:          req.ID,
		Name:        name,
		Description: req.Description,
		Secret:      req.Secret,
		OwnerID:     req.OwnerID,
		AutoRestart: req.AutoRestart,
	}
	if err := s.store.CreateBotWithSettings(ctx, bot, req.Settings); err != nil {
		return nil, storeErr(op, req.ID, redact.Error(err, req.Secret))
	}

	s.event(ctx, req.ID, store.LevelInfo, op, "bot created by "+actorOr(actor))
	s.notifier.Notify(ctx, notify.Event{Kind: notify.KindBotCreated, BotID: req.ID, Actor: actor, Message: "created", TraceID: tid})
	slog.Info("bot created", "bot_id", req.ID, "owner_id", req.OwnerID, "trace_id", tid)
	return bot, nil
}

// Get returns one bot.
func (s *Service) Get(ctx context.Context, id string) (*store.Bot, error) {
	return s.get(ctx, "get", id)
}

// List returns the bots of ownerID, or every bot when ownerID is empty.
func (s *Service) List(ctx context.Context, ownerID string) ([]*store.Bot, error) {
	bots, err := s.store.ListBots(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	return bots, nil
}

// Update edits the descriptive fields of a bot. Changes reach the instance
// on the next deploy.
func (s *Service) Update(ctx context.Context, id string, u store.BotUpdate, actor string) (*store.Bot, error) {
	const op = "update"
	if u.Secret != nil && *u.Secret == "" {
		return nil, lifecycle.Errorf(lifecycle.KindInvalid, op, id, "secret must not be empty")
	}
	if err := s.store.UpdateBot(ctx, id, u); err != nil {
		return nil, storeErr(op, id, err)
	}
	s.event(ctx, id, store.LevelInfo, op, "bot updated by "+actorOr(actor))
	return s.get(ctx, op, id)
}

// SetSetting sets one setting after validating it.
func (s *Service) SetSetting(ctx context.Context, id, key, value string) error {
	const op = "set setting"
	if err := lifecycle.ValidateSetting(key, value); err != nil {
		return &lifecycle.Error{Kind: lifecycle.KindInvalid, Op: op, BotID: id, Err: err}
	}
	if _, err := s.get(ctx, op, id); err != nil {
		return err
	}
	if err := s.store.Settings().Set(ctx, id, key, value); err != nil {
		return fmt.Errorf("%s %s/%s: %w", op, id, key, err)
	}
	s.event(ctx, id, store.LevelInfo, op, "setting "+key+" set")
	return nil
}

// UnsetSetting deletes one setting. Unsetting a missing key succeeds.
func (s *Service) UnsetSetting(ctx context.Context, id, key string) error {
	const op = "unset setting"
	if _, err := s.get(ctx, op, id); err != nil {
		return err
	}
	if err := s.store.Settings().Delete(ctx, id, key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.event(ctx, id, store.LevelInfo, op, "setting "+key+" removed")
	return nil
}

// Settings returns the settings of a bot.
func (s *Service) Settings(ctx context.Context, id string) (map[string]string, error) {
	if _, err := s.get(ctx, "settings", id); err != nil {
		return nil, err
	}
	return s.store.Settings().List(ctx, id)
}

// ReplaceSettings swaps the whole settings map of a bot.
func (s *Service) ReplaceSettings(ctx context.Context, id string, values map[string]string) error {
	const op = "replace settings"
	if err := lifecycle.ValidateSettings(lifecycle.SettingsFromMap(values)); err != nil {
		return &lifecycle.Error{Kind: lifecycle.KindInvalid, Op: op, BotID: id, Err: err}
	}
	if _, err := s.get(ctx, op, id); err != nil {
		return err
	}
	if err := s.store.Settings().Replace(ctx, id, values); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}

// History returns the newest deploy attempts of a bot.
func (s *Service) History(ctx context.Context, id string, limit int) ([]*store.Deployment, error) {
	if _, err := s.get(ctx, "history", id); err != nil {
		return nil, err
	}
	return s.store.ListDeployments(ctx, id, limit)
}

// Events returns the newest lifecycle events of a bot.
func (s *Service) Events(ctx context.Context, id string, limit int) ([]*store.Event, error) {
	if _, err := s.get(ctx, "events", id); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, id, limit)
}

func (s *Service) get(ctx context.Context, op, id string) (*store.Bot, error) {
	bot, err := s.store.GetBot(ctx, id)
	if err != nil {
		return nil, storeErr(op, id, err)
	}
	return bot, nil
}

// event records a lifecycle event. Failures are logged only.
func (s *Service) event(ctx context.Context, botID, level, action, message string) {
	if err := s.store.AppendEvent(ctx, botID, level, action, message, trace.From(ctx)); err != nil {
		slog.Warn("record bot event", "bot_id", botID, "action", action, "err", err)
	}
}

func storeErr(op, botID string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &lifecycle.Error{Kind: lifecycle.KindNotFound, Op: op, BotID: botID, Err: err}
	case errors.Is(err, store.ErrDuplicate):
		return &lifecycle.Error{Kind: lifecycle.KindConflict, Op: op, BotID: botID, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, botID, err)
}

func actorOr(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
