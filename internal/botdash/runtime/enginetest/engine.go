// Package enginetest provides an in-memory runtime.Engine.
//
// It backs the lifecycle, reconcile and bots tests and the `serve --engine
// memory` mode used for local demos without a Docker daemon. State lives
// entirely in process and is lost on exit.
package enginetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
)

// Op names accepted by FailOn.
const (
	OpPing            = "Ping"
	OpCreateNetwork   = "CreateNetwork"
	OpCreateVolume    = "CreateVolume"
	OpRemoveVolume    = "RemoveVolume"
	OpFindInstance    = "FindInstance"
	OpCreateInstance  = "CreateInstance"
	OpStartInstance   = "StartInstance"
	OpStopInstance    = "StopInstance"
	OpRestartInstance = "RestartInstance"
	OpRemoveInstance  = "RemoveInstance"
	OpInspectInstance = "InspectInstance"
	OpInstanceLogs    = "InstanceLogs"
	OpInstanceStats   = "InstanceStats"
	OpListInstances   = "ListInstances"
)

// Instance is the engine's record of one container.
type Instance struct {
	ID         string
	Spec       runtime.InstanceSpec
	State      runtime.State
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Error      string
	Logs       []string
	Stats      runtime.Snapshot
}

// Engine is a goroutine-safe fake container engine.
type Engine struct {
	mu        sync.Mutex
	now       func() time.Time
	seq       int
	networks  map[string]bool
	volumes   map[string]bool
	instances map[string]*Instance
	calls     map[string]int
	failures  map[string]error
}

var _ runtime.Engine = (*Engine)(nil)

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		now:       time.Now,
		networks:  make(map[string]bool),
		volumes:   make(map[string]bool),
		instances: make(map[string]*Instance),
		calls:     make(map[string]int),
		failures:  make(map[string]error),
	}
}

// FailOn makes every later call to op return err. A nil err clears it.
func (e *Engine) FailOn(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, op)
		return
	}
	e.failures[op] = err
}

// Calls returns how many times op has been invoked, failed calls included.
func (e *Engine) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// HasNetwork reports whether the named network exists.
func (e *Engine) HasNetwork(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.networks[name]
}

// HasVolume reports whether the named volume exists.
func (e *Engine) HasVolume(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volumes[name]
}

// Instance returns a copy of the instance with id.
func (e *Engine) Instance(id string) (Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[id]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// InstancesNamed returns the IDs of every instance with name, sorted.
func (e *Engine) InstancesNamed(name string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for id, inst := range e.instances {
		if inst.Spec.Name == name {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Exit simulates the process inside id terminating on its own.
func (e *Engine) Exit(id string, code int, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if inst, ok := e.instances[id]; ok {
		inst.State = runtime.StateExited
		inst.FinishedAt = e.now()
		inst.ExitCode = code
		inst.Error = msg
	}
}

// Vanish deletes id behind the lifecycle layer's back.
func (e *Engine) Vanish(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.instances, id)
}

// AppendLogs adds timestamped lines to id's log buffer.
func (e *Engine) AppendLogs(id string, lines ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[id]
	if !ok {
		return
	}
	ts := e.now().UTC().Format(time.RFC3339Nano)
	for _, l := range lines {
		inst.Logs = append(inst.Logs, ts+" "+l)
	}
}

// SetStats sets the snapshot returned by InstanceStats for id.
func (e *Engine) SetStats(id string, s runtime.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if inst, ok := e.instances[id]; ok {
		inst.Stats = s
	}
}

// AddInstance registers an instance without going through CreateInstance,
// for example a labelled container left over from an older install.
func (e *Engine) AddInstance(spec runtime.InstanceSpec, state runtime.State) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID()
	e.instances[id] = &Instance{ID: id, Spec: spec, State: state}
	return id
}

// begin records a call and returns the injected failure, if any. Callers
// hold e.mu.
func (e *Engine) begin(op string) error {
	e.calls[op]++
	if err := e.failures[op]; err != nil {
		return err
	}
	return nil
}

func (e *Engine) nextID() string {
	e.seq++
	return fmt.Sprintf("%064x", e.seq)
}

func (e *Engine) lookup(op, id string) (*Instance, error) {
	inst, ok := e.instances[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", strings.ToLower(op), id, runtime.ErrNotFound)
	}
	return inst, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.begin(OpPing)
}

func (e *Engine) NetworkExists(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin("NetworkExists"); err != nil {
		return false, err
	}
	return e.networks[name], nil
}

func (e *Engine) CreateNetwork(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpCreateNetwork); err != nil {
		return err
	}
	if e.networks[name] {
		return fmt.Errorf("create network %q: %w", name, runtime.ErrConflict)
	}
	e.networks[name] = true
	return nil
}

func (e *Engine) VolumeExists(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin("VolumeExists"); err != nil {
		return false, err
	}
	return e.volumes[name], nil
}

func (e *Engine) CreateVolume(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpCreateVolume); err != nil {
		return err
	}
	if e.volumes[name] {
		return fmt.Errorf("create volume %q: %w", name, runtime.ErrConflict)
	}
	e.volumes[name] = true
	return nil
}

func (e *Engine) RemoveVolume(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpRemoveVolume); err != nil {
		return err
	}
	for _, inst := range e.instances {
		for _, b := range inst.Spec.Binds {
			if strings.HasPrefix(b, name+":") {
				return fmt.Errorf("remove volume %q: in use by %s: %w", name, inst.Spec.Name, runtime.ErrConflict)
			}
		}
	}
	delete(e.volumes, name)
	return nil
}

func (e *Engine) FindInstance(ctx context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpFindInstance); err != nil {
		return "", false, err
	}
	for id, inst := range e.instances {
		if inst.Spec.Name == name {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (e *Engine) CreateInstance(ctx context.Context, spec runtime.InstanceSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpCreateInstance); err != nil {
		return "", err
	}
	for _, inst := range e.instances {
		if inst.Spec.Name == spec.Name {
			return "", fmt.Errorf("create container %q: %w", spec.Name, runtime.ErrConflict)
		}
	}
	if spec.NetworkName != "" && !e.networks[spec.NetworkName] {
		return "", fmt.Errorf("create container %q: network %s: %w", spec.Name, spec.NetworkName, runtime.ErrNotFound)
	}
	for _, b := range spec.Binds {
		// Named volumes are created on first use, as the engine does.
		if vol, _, ok := strings.Cut(b, ":"); ok && !strings.HasPrefix(vol, "/") {
			e.volumes[vol] = true
		}
	}
	id := e.nextID()
	spec.Env = append([]string(nil), spec.Env...)
	labels := make(map[string]string, len(spec.Labels))
	for k, v := range spec.Labels {
		labels[k] = v
	}
	spec.Labels = labels
	e.instances[id] = &Instance{ID: id, Spec: spec, State: runtime.StateCreated}
	return id, nil
}

func (e *Engine) StartInstance(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpStartInstance); err != nil {
		return err
	}
	inst, err := e.lookup(OpStartInstance, id)
	if err != nil {
		return err
	}
	if inst.State != runtime.StateRunning {
		inst.State = runtime.StateRunning
		inst.StartedAt = e.now()
		inst.ExitCode = 0
		inst.Error = ""
	}
	return nil
}

func (e *Engine) StopInstance(ctx context.Context, id string, grace time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpStopInstance); err != nil {
		return err
	}
	inst, err := e.lookup(OpStopInstance, id)
	if err != nil {
		return err
	}
	if inst.State == runtime.StateRunning {
		inst.State = runtime.StateExited
		inst.FinishedAt = e.now()
		inst.ExitCode = 0
	}
	return nil
}

func (e *Engine) RestartInstance(ctx context.Context, id string, grace time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpRestartInstance); err != nil {
		return err
	}
	inst, err := e.lookup(OpRestartInstance, id)
	if err != nil {
		return err
	}
	inst.State = runtime.StateRunning
	inst.StartedAt = e.now()
	inst.ExitCode = 0
	inst.Error = ""
	return nil
}

func (e *Engine) RemoveInstance(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpRemoveInstance); err != nil {
		return err
	}
	delete(e.instances, id)
	return nil
}

func (e *Engine) InspectInstance(ctx context.Context, id string) (runtime.InstanceState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpInspectInstance); err != nil {
		return runtime.InstanceState{}, err
	}
	inst, err := e.lookup(OpInspectInstance, id)
	if err != nil {
		return runtime.InstanceState{}, err
	}
	return runtime.InstanceState{
		ID:         inst.ID,
		Name:       inst.Spec.Name,
		State:      inst.State,
		Running:    inst.State == runtime.StateRunning,
		StartedAt:  inst.StartedAt,
		FinishedAt: inst.FinishedAt,
		ExitCode:   inst.ExitCode,
		Error:      inst.Error,
		Labels:     inst.Spec.Labels,
	}, nil
}

func (e *Engine) InstanceLogs(ctx context.Context, id string, tail int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpInstanceLogs); err != nil {
		return "", err
	}
	inst, err := e.lookup(OpInstanceLogs, id)
	if err != nil {
		return "", err
	}
	lines := inst.Logs
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}

func (e *Engine) InstanceStats(ctx context.Context, id string) (runtime.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpInstanceStats); err != nil {
		return runtime.Snapshot{}, err
	}
	inst, err := e.lookup(OpInstanceStats, id)
	if err != nil {
		return runtime.Snapshot{}, err
	}
	s := inst.Stats
	if s.ReadAt.IsZero() {
		s.ReadAt = e.now()
	}
	return s, nil
}

func (e *Engine) ListInstances(ctx context.Context) ([]runtime.InstanceSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(OpListInstances); err != nil {
		return nil, err
	}
	out := make([]runtime.InstanceSummary, 0, len(e.instances))
	for id, inst := range e.instances {
		if inst.Spec.Labels[runtime.LabelDashboard] != "true" {
			continue
		}
		out = append(out, runtime.InstanceSummary{
			ID:     id,
			Name:   inst.Spec.Name,
			State:  inst.State,
			BotID:  inst.Spec.Labels[runtime.LabelBotID],
			Labels: inst.Spec.Labels,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
