package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/bots"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/store"
)

// Action is what Apply did with one manifest entry.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Outcome is the result of applying one entry.
type Outcome struct {
	BotID    string
	Action   Action
	Deployed bool
	Err      error
}

// ApplyOptions tunes Apply.
type ApplyOptions struct {
	// Actor is recorded as the trigger of deploys and events.
	Actor string
	// LookupEnv resolves secret_env. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// NoDeploy skips deploy even for entries asking for it.
	NoDeploy bool
}

// Apply creates the bots missing from the service and updates the others:
// name, description, auto_restart and secret are overwritten and settings are
// replaced wholesale. Entries are applied independently; the returned error
// joins the failed ones.
func Apply(ctx context.Context, svc *bots.Service, m *Manifest, opts ApplyOptions) ([]Outcome, error) {
	out := make([]Outcome, 0, len(m.Bots))
	var errs []error
	for _, b := range m.Bots {
		o := applyOne(ctx, svc, b, opts)
		if o.Err != nil {
			slog.Warn("manifest entry failed", "bot_id", b.ID, "err", o.Err)
			errs = append(errs, fmt.Errorf("bot %s: %w", b.ID, o.Err))
		}
		out = append(out, o)
	}
	return out, errors.Join(errs...)
}

func applyOne(ctx context.Context, svc *bots.Service, b Bot, opts ApplyOptions) Outcome {
	o := Outcome{BotID: b.ID}
	secret, err := b.ResolveSecret(opts.LookupEnv)
	if err != nil {
		o.Err = err
		return o
	}

	_, err = svc.Get(ctx, b.ID)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		_, err = svc.Create(ctx, bots.CreateRequest{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			Secret:      secret,
			OwnerID:     b.Owner,
			AutoRestart: b.AutoRestart,
			Settings:    b.Settings,
		}, opts.Actor)
		o.Action = ActionCreated
	case err == nil:
		u := store.BotUpdate{
			Description: &b.Description,
			Secret:      &secret,
			AutoRestart: &b.AutoRestart,
		}
		if b.Name != "" {
			u.Name = &b.Name
		}
		if _, err = svc.Update(ctx, b.ID, u, opts.Actor); err == nil {
			err = svc.ReplaceSettings(ctx, b.ID, b.Settings)
		}
		o.Action = ActionUpdated
	}
	if err != nil {
		o.Err = err
		return o
	}

	if b.Deploy && !opts.NoDeploy {
		if _, err := svc.Deploy(ctx, b.ID, opts.Actor); err != nil {
			o.Err = err
			return o
		}
		o.Deployed = true
	}
	return o
}
