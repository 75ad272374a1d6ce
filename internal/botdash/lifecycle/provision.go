package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
)

// Provisioner makes sure the shared network and per-bot volumes exist.
// Both operations are check-then-create; a create that loses a race with a
// concurrent caller reports ErrConflict, which counts as success.
type Provisioner struct {
	engine  runtime.Engine
	network string
}

// NewProvisioner returns a Provisioner for the given shared network name.
func NewProvisioner(engine runtime.Engine, network string) *Provisioner {
	return &Provisioner{engine: engine, network: network}
}

// Network returns the shared network name.
func (p *Provisioner) Network() string { return p.network }

// EnsureNetwork creates the shared network if it is absent.
func (p *Provisioner) EnsureNetwork(ctx context.Context) error {
	return ensure(ctx, "network", p.network, p.engine.NetworkExists, p.engine.CreateNetwork)
}

// EnsureVolume creates the named volume if it is absent.
func (p *Provisioner) EnsureVolume(ctx context.Context, name string) error {
	return ensure(ctx, "volume", name, p.engine.VolumeExists, p.engine.CreateVolume)
}

func ensure(ctx context.Context, kind, name string,
	exists func(context.Context, string) (bool, error),
	create func(context.Context, string) error,
) error {
	ok, err := exists(ctx, name)
	if err != nil {
		return fmt.Errorf("check %s %q: %w", kind, name, err)
	}
	if ok {
		return nil
	}
	if err := create(ctx, name); err != nil {
		if errors.Is(err, runtime.ErrConflict) {
			logger(ctx).Debug("resource created concurrently", "kind", kind, "name", name)
			return nil
		}
		return fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	logger(ctx).Info("created "+kind, "name", name)
	return nil
}
