// Package reconcile derives the externally reported bot status from the
// persisted status and what the engine currently says about the instance,
// and runs that derivation periodically over every stored bot.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
)

// Observation is what the engine reported for one instance.
type Observation struct {
	// Found is false when the engine does not know the instance.
	Found bool
	// Unreachable is true when the engine could not be asked at all.
	Unreachable bool
	Running     bool
	ExitCode    int
	Error       string
}

// Observe converts a Manager.Status result into an Observation.
func Observe(view lifecycle.StatusView, err error) Observation {
	if err != nil {
		return Observation{Unreachable: true, Error: err.Error()}
	}
	switch view.Status {
	case lifecycle.InstanceNotFound:
		return Observation{}
	case lifecycle.InstanceRunning:
		return Observation{Found: true, Running: true}
	default:
		return Observation{Found: true, ExitCode: view.ExitCode, Error: view.LastError}
	}
}

// Result is the outcome of Resolve.
type Result struct {
	Status lifecycle.Status
	// Reason explains a change; empty when Status equals the persisted one.
	Reason string
	// Stale is true when the engine could not be asked and Status is the
	// persisted value unverified.
	Stale bool
}

// Changed reports whether r differs from persisted.
func (r Result) Changed(persisted lifecycle.Status) bool {
	return r.Status != persisted
}

// Unexpected reports whether the transition from persisted to r is one an
// operator should hear about: anything that leaves running without a
// request, or lands in error.
func (r Result) Unexpected(persisted lifecycle.Status) bool {
	if !r.Changed(persisted) {
		return false
	}
	return r.Status == lifecycle.StatusError || persisted == lifecycle.StatusRunning
}

// ErrRunningWithoutInstance marks the one persisted combination that can
// never be valid.
var ErrRunningWithoutInstance = errors.New("status running without a bound instance")

// Resolve computes the status to report for a bot.
//
//   - A bot with no instance is never running; a persisted running becomes
//     error, anything else is kept.
//   - deploying is owned by the in-flight deploy and is kept.
//   - An unreachable engine keeps the persisted status, marked stale.
//   - A bound instance the engine no longer knows is error.
//   - error is sticky: only an explicit start, restart or deploy clears it.
//   - A running instance is running.
//   - A stopped instance is stopped, unless the bot was running and the
//     instance exited with a non-zero code or an error, which is error.
func Resolve(persisted lifecycle.Status, instanceID string, obs Observation) Result {
	if instanceID == "" {
		if persisted == lifecycle.StatusRunning {
			return Result{Status: lifecycle.StatusError, Reason: ErrRunningWithoutInstance.Error()}
		}
		return Result{Status: persisted}
	}
	if persisted == lifecycle.StatusDeploying {
		return Result{Status: persisted}
	}
	if obs.Unreachable {
		return Result{Status: persisted, Stale: true}
	}
	if !obs.Found {
		if persisted == lifecycle.StatusError {
			return Result{Status: persisted}
		}
		return Result{Status: lifecycle.StatusError, Reason: "instance no longer exists in the engine"}
	}
	if persisted == lifecycle.StatusError {
		return Result{Status: persisted}
	}
	if obs.Running {
		if persisted == lifecycle.StatusRunning {
			return Result{Status: persisted}
		}
		return Result{Status: lifecycle.StatusRunning, Reason: "instance is running"}
	}
	if persisted == lifecycle.StatusRunning {
		if obs.ExitCode != 0 || obs.Error != "" {
			reason := fmt.Sprintf("instance exited with code %d", obs.ExitCode)
			if obs.Error != "" {
				reason += ": " + obs.Error
			}
			return Result{Status: lifecycle.StatusError, Reason: reason}
		}
		return Result{Status: lifecycle.StatusStopped, Reason: "instance exited cleanly"}
	}
	return Result{Status: lifecycle.StatusStopped}
}
