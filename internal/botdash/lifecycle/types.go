// Package lifecycle maps logical bots onto container instances: it provisions
// the shared network and per-bot volume, builds and starts the instance, and
// exposes the start/stop/restart/remove/status/logs/stats primitives the bots
// service drives its state machine with.
//
// The Manager holds no per-bot state between calls. Everything it needs comes
// from the Bot passed in or from the engine.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
)

// Environment variables every instance receives.
const (
	EnvSecretToken = "SECRET_TOKEN"
	EnvBotID       = "BOT_ID"
	EnvBotName     = "BOT_NAME"
)

// Status is the persisted logical status of a bot.
type Status string

const (
	StatusStopped   Status = "stopped"
	StatusDeploying Status = "deploying"
	StatusRunning   Status = "running"
	StatusError     Status = "error"
)

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusStopped, StatusDeploying, StatusRunning, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("unknown bot status %q", s)
}

// Bot is the slice of a logical bot record the manager needs to deploy it.
type Bot struct {
	ID          string
	Name        string
	Secret      string
	OwnerID     string
	AutoRestart bool
	Settings    []Setting
}

// Ref identifies the instance created by Deploy. Callers persist both
// fields.
type Ref struct {
	InstanceID   string
	InstanceName string
}

// InstanceStatus is the coarse engine-side status reported by Status.
type InstanceStatus string

const (
	InstanceRunning  InstanceStatus = "running"
	InstanceStopped  InstanceStatus = "stopped"
	InstanceNotFound InstanceStatus = "not_found"
)

// StatusView is the result of Manager.Status. Zero times mean the engine
// reported none.
type StatusView struct {
	Status      InstanceStatus `json:"status"`
	EngineState runtime.State  `json:"engine_state,omitempty"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	FinishedAt  time.Time      `json:"finished_at,omitempty"`
	ExitCode    int            `json:"exit_code"`
	LastError   string         `json:"last_error,omitempty"`
}
