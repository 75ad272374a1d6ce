package runtime

import (
	"context"
	"time"
)

// Engine is the typed surface of the container engine used by botdash.
// Implementations wrap engine errors so that errors.Is works against
// ErrNotFound, ErrConflict and ErrUnavailable.
type Engine interface {
	// Ping checks that the engine answers.
	Ping(ctx context.Context) error

	// NetworkExists reports whether a network with exactly this name exists.
	NetworkExists(ctx context.Context, name string) (bool, error)
	// CreateNetwork creates a bridge network. Returns ErrConflict when one
	// with the same name already exists.
	CreateNetwork(ctx context.Context, name string) error

	// VolumeExists reports whether a named volume exists.
	VolumeExists(ctx context.Context, name string) (bool, error)
	// CreateVolume creates a named volume. Returns ErrConflict when present.
	CreateVolume(ctx context.Context, name string) error
	// RemoveVolume deletes a named volume. Missing volumes are not an error.
	RemoveVolume(ctx context.Context, name string) error

	// FindInstance looks up an instance by exact name, in any state.
	FindInstance(ctx context.Context, name string) (id string, found bool, err error)
	// CreateInstance creates, but does not start, an instance.
	CreateInstance(ctx context.Context, spec InstanceSpec) (string, error)
	// StartInstance starts a created or stopped instance.
	StartInstance(ctx context.Context, id string) error
	// StopInstance stops an instance, killing it after grace.
	StopInstance(ctx context.Context, id string, grace time.Duration) error
	// RestartInstance stops then starts an instance in one engine request.
	RestartInstance(ctx context.Context, id string, grace time.Duration) error
	// RemoveInstance force-removes an instance but keeps its volumes.
	// Missing instances are not an error.
	RemoveInstance(ctx context.Context, id string) error

	// InspectInstance returns the current state. Returns ErrNotFound when
	// the engine does not know the instance.
	InspectInstance(ctx context.Context, id string) (InstanceState, error)
	// InstanceLogs returns the last tail lines of combined stdout/stderr,
	// each line prefixed with its timestamp.
	InstanceLogs(ctx context.Context, id string, tail int) (string, error)
	// InstanceStats returns one resource sample.
	InstanceStats(ctx context.Context, id string) (Snapshot, error)

	// ListInstances returns every instance carrying the dashboard label.
	ListInstances(ctx context.Context) ([]InstanceSummary, error)
}
