// Package docker implements runtime.Engine on top of the Docker Engine API.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
)

const managedValue = "true"

// Options configures the engine connection.
type Options struct {
	// Host is the engine endpoint, e.g. "unix:///var/run/docker.sock" or
	// "tcp://10.0.0.5:2376". A bare filesystem path is read as a unix
	// socket. Empty uses DOCKER_HOST or the platform default.
	Host string
}

// Adapter implements runtime.Engine using the Docker Engine API.
type Adapter struct {
	client *dockerclient.Client
}

var _ runtime.Engine = (*Adapter)(nil)

// New connects to the engine described by opts. API version negotiation is
// enabled so the adapter works against older daemons.
func New(opts Options) (*Adapter, error) {
	clientOpts := []dockerclient.Opt{
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	}
	if host := hostFromEndpoint(opts.Host); host != "" {
		clientOpts = append(clientOpts, dockerclient.WithHost(host))
	}
	cli, err := dockerclient.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Adapter{client: cli}, nil
}

// Close releases the underlying HTTP transport.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Ping checks that the daemon answers.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.client.Ping(ctx); err != nil {
		return translate("ping", err)
	}
	return nil
}

// NetworkExists reports whether a network named exactly name exists. The
// engine's name filter matches substrings, so results are compared exactly.
func (a *Adapter) NetworkExists(ctx context.Context, name string) (bool, error) {
	nets, err := a.client.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, translate("list networks", err)
	}
	for _, n := range nets {
		if n.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateNetwork creates an isolated bridge network.
func (a *Adapter) CreateNetwork(ctx context.Context, name string) error {
	_, err := a.client.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{runtime.LabelManaged: managedValue},
	})
	if err != nil {
		return translate(fmt.Sprintf("create network %q", name), err)
	}
	return nil
}

// VolumeExists reports whether a volume named exactly name exists.
func (a *Adapter) VolumeExists(ctx context.Context, name string) (bool, error) {
	resp, err := a.client.VolumeList(ctx, volume.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, translate("list volumes", err)
	}
	for _, v := range resp.Volumes {
		if v != nil && v.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateVolume creates a local named volume.
func (a *Adapter) CreateVolume(ctx context.Context, name string) error {
	// The engine returns the existing volume instead of failing when the
	// name is taken, so CreateVolume is naturally idempotent here.
	_, err := a.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: map[string]string{runtime.LabelManaged: managedValue},
	})
	if err != nil {
		return translate(fmt.Sprintf("create volume %q", name), err)
	}
	return nil
}

// RemoveVolume deletes a volume; a missing volume is not an error.
func (a *Adapter) RemoveVolume(ctx context.Context, name string) error {
	if err := a.client.VolumeRemove(ctx, name, false); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return translate(fmt.Sprintf("remove volume %q", name), err)
	}
	return nil
}

// FindInstance looks up a container by exact name in any state.
func (a *Adapter) FindInstance(ctx context.Context, name string) (string, bool, error) {
	containers, err := a.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+name+"$")),
	})
	if err != nil {
		return "", false, translate("list containers", err)
	}
	for _, c := range containers {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				return c.ID, true, nil
			}
		}
	}
	return "", false, nil
}

// CreateInstance creates a container from spec without starting it.
func (a *Adapter) CreateInstance(ctx context.Context, spec runtime.InstanceSpec) (string, error) {
	if spec.Image == "" {
		return "", fmt.Errorf("create container %q: image is required", spec.Name)
	}
	cfg, hostCfg, netCfg := buildConfigs(spec)
	resp, err := a.client.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", translate(fmt.Sprintf("create container %q", spec.Name), err)
	}
	return resp.ID, nil
}

// StartInstance starts a container. Starting a running one is a no-op.
func (a *Adapter) StartInstance(ctx context.Context, id string) error {
	if err := a.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		if errdefs.IsNotModified(err) {
			return nil
		}
		return translate("start container "+shortID(id), err)
	}
	return nil
}

// StopInstance stops a container, sending SIGKILL after grace. Stopping a
// stopped container is a no-op.
func (a *Adapter) StopInstance(ctx context.Context, id string, grace time.Duration) error {
	timeout := graceSeconds(grace)
	if err := a.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotModified(err) {
			return nil
		}
		return translate("stop container "+shortID(id), err)
	}
	return nil
}

// RestartInstance restarts a container in a single engine request.
func (a *Adapter) RestartInstance(ctx context.Context, id string, grace time.Duration) error {
	timeout := graceSeconds(grace)
	if err := a.client.ContainerRestart(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return translate("restart container "+shortID(id), err)
	}
	return nil
}

// RemoveInstance force-removes a container, keeping its named volumes.
func (a *Adapter) RemoveInstance(ctx context.Context, id string) error {
	err := a.client.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: false,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return translate("remove container "+shortID(id), err)
	}
	return nil
}

// InspectInstance returns the engine's view of a container.
func (a *Adapter) InspectInstance(ctx context.Context, id string) (runtime.InstanceState, error) {
	inspect, err := a.client.ContainerInspect(ctx, id)
	if err != nil {
		return runtime.InstanceState{}, translate("inspect container "+shortID(id), err)
	}
	return stateFromInspect(inspect), nil
}

// InstanceLogs returns the demultiplexed, timestamped tail of a container's
// stdout and stderr.
func (a *Adapter) InstanceLogs(ctx context.Context, id string, tail int) (string, error) {
	rc, err := a.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       tailArg(tail),
	})
	if err != nil {
		return "", translate("logs container "+shortID(id), err)
	}
	defer rc.Close()
	out, err := demuxLogs(rc)
	if err != nil {
		return "", fmt.Errorf("read logs of %s: %w", shortID(id), err)
	}
	return out, nil
}

// InstanceStats takes a single non-streaming stats sample.
func (a *Adapter) InstanceStats(ctx context.Context, id string) (runtime.Snapshot, error) {
	resp, err := a.client.ContainerStats(ctx, id, false)
	if err != nil {
		return runtime.Snapshot{}, translate("stats container "+shortID(id), err)
	}
	defer resp.Body.Close()
	return decodeStats(resp.Body)
}

// ListInstances returns every container carrying the dashboard label.
func (a *Adapter) ListInstances(ctx context.Context) ([]runtime.InstanceSummary, error) {
	containers, err := a.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", runtime.LabelDashboard+"="+managedValue)),
	})
	if err != nil {
		return nil, translate("list containers", err)
	}
	out := make([]runtime.InstanceSummary, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, runtime.InstanceSummary{
			ID:     c.ID,
			Name:   name,
			State:  parseState(c.State),
			BotID:  c.Labels[runtime.LabelBotID],
			Labels: c.Labels,
		})
	}
	return out, nil
}

// --- helpers ---

func buildConfigs(spec runtime.InstanceSpec) (*container.Config, *container.HostConfig, *network.NetworkingConfig) {
	labels := make(map[string]string, len(spec.Labels))
	for k, v := range spec.Labels {
		labels[k] = v
	}
	cfg := &container.Config{
		Image:  spec.Image,
		Env:    append([]string(nil), spec.Env...),
		Labels: labels,
	}

	policy := spec.RestartPolicy
	if policy == "" {
		policy = runtime.RestartNo
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyMode(policy)},
		Binds:         append([]string(nil), spec.Binds...),
		Resources: container.Resources{
			Memory:     spec.MemoryBytes,
			MemorySwap: spec.MemorySwapBytes,
		},
	}

	var netCfg *network.NetworkingConfig
	if spec.NetworkName != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.NetworkName)
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.NetworkName: {},
			},
		}
	}
	return cfg, hostCfg, netCfg
}

func stateFromInspect(inspect types.ContainerJSON) runtime.InstanceState {
	out := runtime.InstanceState{State: runtime.StateUnknown}
	if inspect.ContainerJSONBase == nil {
		return out
	}
	out.ID = inspect.ID
	out.Name = strings.TrimPrefix(inspect.Name, "/")
	if inspect.Config != nil {
		out.Labels = inspect.Config.Labels
	}
	if st := inspect.State; st != nil {
		out.State = parseState(st.Status)
		out.Running = st.Running
		out.StartedAt = parseEngineTime(st.StartedAt)
		out.FinishedAt = parseEngineTime(st.FinishedAt)
		out.ExitCode = st.ExitCode
		out.Error = st.Error
	}
	return out
}

func parseState(s string) runtime.State {
	switch strings.ToLower(s) {
	case "running":
		return runtime.StateRunning
	case "created":
		return runtime.StateCreated
	case "exited":
		return runtime.StateExited
	case "paused":
		return runtime.StatePaused
	case "restarting":
		return runtime.StateRestarting
	case "removing":
		return runtime.StateRemoving
	case "dead":
		return runtime.StateDead
	default:
		return runtime.StateUnknown
	}
}

// parseEngineTime parses engine timestamps; the zero value
// "0001-01-01T00:00:00Z" and malformed input both map to time.Time{}.
func parseEngineTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || t.Year() <= 1 {
		return time.Time{}
	}
	return t
}

func decodeStats(r io.Reader) (runtime.Snapshot, error) {
	var stats types.StatsJSON
	if err := json.NewDecoder(r).Decode(&stats); err != nil {
		return runtime.Snapshot{}, fmt.Errorf("decode stats: %w", err)
	}
	online := stats.CPUStats.OnlineCPUs
	if online == 0 {
		online = uint32(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}
	return runtime.Snapshot{
		CPUTotal:       stats.CPUStats.CPUUsage.TotalUsage,
		PreCPUTotal:    stats.PreCPUStats.CPUUsage.TotalUsage,
		SystemTotal:    stats.CPUStats.SystemUsage,
		PreSystemTotal: stats.PreCPUStats.SystemUsage,
		OnlineCPUs:     online,
		MemoryUsage:    stats.MemoryStats.Usage,
		MemoryLimit:    stats.MemoryStats.Limit,
		ReadAt:         stats.Read,
	}, nil
}

// demuxLogs merges the multiplexed stdout/stderr frames into one text.
func demuxLogs(r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%s: %w: %w", op, runtime.ErrNotFound, err)
	case errdefs.IsConflict(err):
		return fmt.Errorf("%s: %w: %w", op, runtime.ErrConflict, err)
	case dockerclient.IsErrConnectionFailed(err), errdefs.IsUnavailable(err), errdefs.IsSystem(err):
		return fmt.Errorf("%s: %w: %w", op, runtime.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func hostFromEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "/") {
		return "unix://" + endpoint
	}
	return endpoint
}

func graceSeconds(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d.Round(time.Second) / time.Second)
}

func tailArg(n int) string {
	if n <= 0 {
		return "all"
	}
	return strconv.Itoa(n)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
