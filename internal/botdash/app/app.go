// Package app wires the botdash components together and runs the service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/retry"
	"github.com/IDKDeadXD/DiscordBotDashboard/common/sealbox"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/bots"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/metrics"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/notify"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/reconcile"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime/docker"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime/enginetest"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/store"
)

// App is a wired botdash instance.
type App struct {
	config       *Config
	store        *store.Store
	engine       runtime.Engine
	manager      *lifecycle.Manager
	metrics      *metrics.Collectors
	notifier     notify.Notifier
	matrix       *notify.MatrixClient
	bots         *bots.Service
	reconciler   *reconcile.Reconciler
	healthServer *HealthServer
}

// New opens the store, connects to the engine and builds the service. It
// does not contact the engine; Run does.
func New(config *Config) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var opts []store.Option
	if len(config.MasterKey) > 0 {
		box, err := sealbox.New(config.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("master key: %w", err)
		}
		opts = append(opts, store.WithSealBox(box))
	} else {
		slog.Warn("no master key configured; bot secrets are stored unencrypted")
	}

	s, err := store.New(config.DatabasePath, opts...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine, err := newEngine(config)
	if err != nil {
		s.Close()
		return nil, err
	}

	lc := config.Lifecycle
	lc.EngineEndpoint = config.DockerHost
	manager := lifecycle.NewManager(engine, lc)

	notifier, matrixClient, err := newNotifier(config)
	if err != nil {
		closeEngine(engine)
		s.Close()
		return nil, err
	}

	collectors := metrics.New()
	a := &App{
		config:   config,
		store:    s,
		engine:   engine,
		manager:  manager,
		metrics:  collectors,
		notifier: notifier,
		matrix:   matrixClient,
		bots:     bots.New(s, manager, bots.Options{
			Notifier:    notifier,
			Metrics:     collectors,
			DeployLease: config.DeployLease,
		}),
	}

	if config.ReconcileInterval >= 0 {
		a.reconciler = reconcile.New(manager, s, reconcile.Config{
			Interval: config.ReconcileInterval,
			Notifier: notifier,
			Metrics:  collectors,
		})
	}

	if config.HTTPAddr != "" {
		var passes passSource
		if a.reconciler != nil {
			passes = a.reconciler
		}
		a.healthServer = NewHealthServer(config.HTTPAddr, s, passes)
		a.healthServer.Handle("GET /metrics", collectors.Handler())
	}
	return a, nil
}

func newEngine(config *Config) (runtime.Engine, error) {
	if config.Engine == EngineMemory {
		slog.Warn("using the in-memory engine; instances do not outlive the process")
		return enginetest.New(), nil
	}
	adapter, err := docker.New(docker.Options{Host: config.DockerHost})
	if err != nil {
		return nil, fmt.Errorf("container engine: %w", err)
	}
	return adapter, nil
}

func newNotifier(config *Config) (notify.Notifier, *notify.MatrixClient, error) {
	if !config.MatrixEnabled() {
		return notify.Log{}, nil, nil
	}
	client, err := notify.NewMatrixClient(config.Matrix)
	if err != nil {
		return nil, nil, err
	}
	return notify.Multi{notify.Log{}, notify.NewMatrixNotifier(client, config.MatrixRoom)}, client, nil
}

func closeEngine(engine runtime.Engine) {
	if c, ok := engine.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("close engine client", "err", err)
		}
	}
}

// Bots returns the bot service.
func (a *App) Bots() *bots.Service { return a.bots }

// Store returns the underlying store.
func (a *App) Store() *store.Store { return a.store }

// Reconciler returns the reconciler, or nil when it is disabled.
func (a *App) Reconciler() *reconcile.Reconciler { return a.reconciler }

// Ping waits for the container engine to answer, retrying with backoff.
func (a *App) Ping(ctx context.Context) error {
	err := retry.Do(ctx, retry.EnginePing, a.engine.Ping)
	if err != nil {
		return lifecycle.Errorf(lifecycle.KindRuntimeUnavailable, "ping", "", "container engine unreachable: %v", err)
	}
	return nil
}

// Start brings the engine-facing side up: it waits for the engine, releases
// deploy locks left by a previous process, joins the Matrix room and runs a
// first reconciliation pass. Background loops are started under ctx.
func (a *App) Start(ctx context.Context) error {
	if err := a.Ping(ctx); err != nil {
		return err
	}

	n, err := a.bots.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted deploys: %w", err)
	}
	if n > 0 {
		slog.Warn("marked interrupted deploys as failed", "count", n)
	}

	if a.matrix != nil {
		if err := a.matrix.JoinRoom(ctx, a.config.MatrixRoom); err != nil {
			slog.Warn("matrix: join notice room", "room", a.config.MatrixRoom, "err", err)
		}
	}

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	if a.reconciler != nil {
		if _, err := a.reconciler.Reconcile(ctx); err != nil {
			slog.Warn("initial reconcile pass failed", "err", err)
		}
		go a.reconciler.Run(ctx)
	}
	return nil
}

// Run starts the service and blocks until SIGINT or SIGTERM, or until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	slog.Info("botdash is running; press Ctrl+C to stop",
		"engine", a.config.Engine, "network", a.manager.Config().NetworkName)
	<-ctx.Done()

	slog.Info("shutting down")
	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop releases the resources New acquired.
func (a *App) Stop() {
	if a.healthServer != nil {
		slog.Info("stopping health server")
		a.healthServer.Stop()
	}

	closeEngine(a.engine)

	slog.Info("closing database")
	if err := a.store.Close(); err != nil {
		slog.Warn("close database", "err", err)
	}
}
