package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/redact"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/metrics"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/observability"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
)

// Manager drives instances on the engine on behalf of logical bots.
//
// Deploy is the only operation keyed by bot; every other one takes the
// instance ID the caller persisted after Deploy. Concurrent calls are safe.
// Two concurrent deploys of the same bot race, and callers serialize them
// through the persisted status.
type Manager struct {
	engine runtime.Engine
	prov   *Provisioner
	cfg    Config
}

// NewManager returns a Manager using engine and cfg. Zero fields of cfg take
// their defaults.
func NewManager(engine runtime.Engine, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		engine: engine,
		prov:   NewProvisioner(engine, cfg.NetworkName),
		cfg:    cfg,
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Provisioner exposes the manager's provisioner.
func (m *Manager) Provisioner() *Provisioner { return m.prov }

// Engine returns the engine the manager drives.
func (m *Manager) Engine() runtime.Engine { return m.engine }

func logger(ctx context.Context) *slog.Logger {
	return observability.WithTrace(ctx)
}

// Deploy provisions the shared network and the bot's data volume, replaces
// any instance already holding the bot's instance name, then creates and
// starts a fresh instance.
//
// Any failure aborts the deploy and is returned as a KindProvisioningFailed
// *Error whose message has the bot secret scrubbed. An instance that was
// created but failed to start is force-removed before returning, so a failed
// deploy never leaves an instance bound to the bot's name.
func (m *Manager) Deploy(ctx context.Context, bot Bot) (Ref, error) {
	const op = "deploy"
	if err := runtime.ValidateBotID(bot.ID); err != nil {
		return Ref{}, &Error{Kind: KindInvalid, Op: op, BotID: bot.ID, Err: err}
	}
	if err := ValidateSettings(bot.Settings); err != nil {
		return Ref{}, &Error{Kind: KindInvalid, Op: op, BotID: bot.ID, Err: redact.Error(err, bot.Secret)}
	}

	log := logger(ctx).With("bot_id", bot.ID)
	fail := func(step string, err error) (Ref, error) {
		err = redact.Error(fmt.Errorf("%s: %w", step, err), bot.Secret)
		log.Warn("deploy failed", "step", step, "err", err)
		return Ref{}, &Error{Kind: KindProvisioningFailed, Op: op, BotID: bot.ID, Err: err}
	}

	if err := m.prov.EnsureNetwork(ctx); err != nil {
		return fail("ensure network", err)
	}

	names := runtime.DeriveNames(bot.ID)
	if err := m.replaceExisting(ctx, log, names.Instance); err != nil {
		return fail("remove stale instance", err)
	}
	if err := m.prov.EnsureVolume(ctx, names.Volume); err != nil {
		return fail("ensure volume", err)
	}

	id, err := m.engine.CreateInstance(ctx, m.instanceSpec(bot, names))
	if err != nil {
		return fail("create instance", err)
	}
	if err := m.engine.StartInstance(ctx, id); err != nil {
		if rmErr := m.engine.RemoveInstance(ctx, id); rmErr != nil {
			log.Warn("could not remove instance after failed start", "instance", shortID(id), "err", rmErr)
		}
		return fail("start instance", err)
	}

	log.Info("bot deployed", "instance", shortID(id), "name", names.Instance, "image", m.cfg.Image)
	return Ref{InstanceID: id, InstanceName: names.Instance}, nil
}

// replaceExisting removes any instance already named name. With
// DrainBeforeReplace it is first stopped within the grace period; a failed
// drain does not block the forced removal.
func (m *Manager) replaceExisting(ctx context.Context, log *slog.Logger, name string) error {
	id, found, err := m.engine.FindInstance(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if m.cfg.DrainBeforeReplace {
		if err := m.engine.StopInstance(ctx, id, m.cfg.StopGrace); err != nil && !errors.Is(err, runtime.ErrNotFound) {
			log.Warn("drain before replace failed; forcing removal", "instance", shortID(id), "err", err)
		}
	}
	if err := m.engine.RemoveInstance(ctx, id); err != nil {
		return err
	}
	log.Info("removed stale instance", "instance", shortID(id), "name", name)
	return nil
}

func (m *Manager) instanceSpec(bot Bot, names runtime.Names) runtime.InstanceSpec {
	env := []string{
		EnvSecretToken + "=" + bot.Secret,
		EnvBotID + "=" + bot.ID,
		EnvBotName + "=" + bot.Name,
	}
	env = append(env, envEntries(bot.Settings)...)

	policy := runtime.RestartNo
	if bot.AutoRestart {
		policy = runtime.RestartUnlessStopped
	}

	return runtime.InstanceSpec{
		Name:  names.Instance,
		Image: m.cfg.Image,
		Env:   env,
		Labels: map[string]string{
			runtime.LabelDashboard: "true",
			runtime.LabelBotID:     bot.ID,
			runtime.LabelOwnerID:   bot.OwnerID,
		},
		RestartPolicy:   policy,
		NetworkName:     m.cfg.NetworkName,
		Binds:           []string{names.Volume + ":" + m.cfg.DataPath},
		MemoryBytes:     m.cfg.MemoryLimit,
		MemorySwapBytes: m.cfg.MemoryLimit,
	}
}

func requireInstance(op, id string) error {
	if id == "" {
		return &Error{Kind: KindPreconditionFailed, Op: op, Err: errors.New("no instance id")}
	}
	return nil
}

// Start starts a previously created instance. KindNotFound means the
// instance was removed behind our back.
func (m *Manager) Start(ctx context.Context, instanceID string) error {
	if err := requireInstance("start", instanceID); err != nil {
		return err
	}
	if err := m.engine.StartInstance(ctx, instanceID); err != nil {
		return fromEngine("start", "", err)
	}
	logger(ctx).Info("instance started", "instance", shortID(instanceID))
	return nil
}

// Stop stops an instance within the configured grace period. Stopping an
// already stopped instance succeeds.
func (m *Manager) Stop(ctx context.Context, instanceID string) error {
	if err := requireInstance("stop", instanceID); err != nil {
		return err
	}
	if err := m.engine.StopInstance(ctx, instanceID, m.cfg.StopGrace); err != nil {
		return fromEngine("stop", "", err)
	}
	logger(ctx).Info("instance stopped", "instance", shortID(instanceID))
	return nil
}

// Restart restarts an instance in a single engine request.
func (m *Manager) Restart(ctx context.Context, instanceID string) error {
	if err := requireInstance("restart", instanceID); err != nil {
		return err
	}
	if err := m.engine.RestartInstance(ctx, instanceID, m.cfg.StopGrace); err != nil {
		return fromEngine("restart", "", err)
	}
	logger(ctx).Info("instance restarted", "instance", shortID(instanceID))
	return nil
}

// Remove force-removes an instance and keeps its data volume. A missing
// instance is not an error.
func (m *Manager) Remove(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return nil
	}
	if err := m.engine.RemoveInstance(ctx, instanceID); err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			return nil
		}
		return fromEngine("remove", "", err)
	}
	logger(ctx).Info("instance removed", "instance", shortID(instanceID))
	return nil
}

// RemoveVolume deletes a bot's data volume. Only a full purge calls this.
func (m *Manager) RemoveVolume(ctx context.Context, botID string) error {
	name := runtime.VolumeNameFor(botID)
	if err := m.engine.RemoveVolume(ctx, name); err != nil {
		return fromEngine("remove volume", botID, err)
	}
	logger(ctx).Info("volume removed", "bot_id", botID, "volume", name)
	return nil
}

// Status inspects an instance. An instance the engine does not know is
// reported as InstanceNotFound with a nil error.
func (m *Manager) Status(ctx context.Context, instanceID string) (StatusView, error) {
	if instanceID == "" {
		return StatusView{Status: InstanceNotFound}, nil
	}
	st, err := m.engine.InspectInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			return StatusView{Status: InstanceNotFound}, nil
		}
		return StatusView{}, fromEngine("status", "", err)
	}
	view := StatusView{
		Status:      InstanceStopped,
		EngineState: st.State,
		StartedAt:   st.StartedAt,
		FinishedAt:  st.FinishedAt,
		ExitCode:    st.ExitCode,
		LastError:   st.Error,
	}
	if st.Running {
		view.Status = InstanceRunning
	}
	return view, nil
}

// Logs returns the last tail lines of the instance's combined output, each
// line timestamped. tail <= 0 uses the configured default.
func (m *Manager) Logs(ctx context.Context, instanceID string, tail int) (string, error) {
	if err := requireInstance("logs", instanceID); err != nil {
		return "", err
	}
	if tail <= 0 {
		tail = m.cfg.DefaultLogTail
	}
	out, err := m.engine.InstanceLogs(ctx, instanceID, tail)
	if err != nil {
		return "", fromEngine("logs", "", err)
	}
	return out, nil
}

// Stats takes one resource sample and normalizes it.
func (m *Manager) Stats(ctx context.Context, instanceID string) (metrics.View, runtime.Snapshot, error) {
	if err := requireInstance("stats", instanceID); err != nil {
		return metrics.View{}, runtime.Snapshot{}, err
	}
	snap, err := m.engine.InstanceStats(ctx, instanceID)
	if err != nil {
		return metrics.View{}, runtime.Snapshot{}, fromEngine("stats", "", err)
	}
	return metrics.Sample(snap), snap, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
