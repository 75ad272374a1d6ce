// Package runtime defines the contract between the lifecycle layer and a
// container engine, plus the value types that cross it.
package runtime

import (
	"errors"
	"time"
)

// Label keys attached to every managed instance.
const (
	LabelDashboard = "discord-bot-dashboard"
	LabelBotID     = "bot-id"
	LabelOwnerID   = "owner-id"

	// LabelManaged marks networks and volumes created by botdash.
	LabelManaged = "botdash.managed"
)

// Restart policies understood by the engine.
const (
	RestartUnlessStopped = "unless-stopped"
	RestartNo            = "no"
)

var (
	// ErrNotFound means the engine has no such instance, network or volume.
	ErrNotFound = errors.New("runtime: not found")
	// ErrConflict means the resource already exists.
	ErrConflict = errors.New("runtime: already exists")
	// ErrUnavailable means the engine could not be reached or failed
	// internally.
	ErrUnavailable = errors.New("runtime: engine unavailable")
)

// InstanceSpec is everything needed to create one bot container.
type InstanceSpec struct {
	Name            string
	Image           string
	Env             []string
	Labels          map[string]string
	RestartPolicy   string
	NetworkName     string
	Binds           []string
	MemoryBytes     int64
	MemorySwapBytes int64
}

// State mirrors the engine's container state strings.
type State string

const (
	StateRunning    State = "running"
	StateCreated    State = "created"
	StateExited     State = "exited"
	StatePaused     State = "paused"
	StateRestarting State = "restarting"
	StateRemoving   State = "removing"
	StateDead       State = "dead"
	StateUnknown    State = "unknown"
)

// InstanceState is a point-in-time view of one instance as seen by the
// engine.
type InstanceState struct {
	ID         string
	Name       string
	State      State
	Running    bool
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Error      string
	Labels     map[string]string
}

// InstanceSummary is one row of ListInstances.
type InstanceSummary struct {
	ID     string
	Name   string
	State  State
	BotID  string
	Labels map[string]string
}

// Snapshot is a raw single-shot resource sample. CPU counters are
// cumulative nanoseconds; the Pre* fields come from the previous sample the
// engine kept.
type Snapshot struct {
	CPUTotal       uint64
	PreCPUTotal    uint64
	SystemTotal    uint64
	PreSystemTotal uint64
	OnlineCPUs     uint32
	MemoryUsage    uint64
	MemoryLimit    uint64
	ReadAt         time.Time
}
