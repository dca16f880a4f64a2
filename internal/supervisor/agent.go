// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor owns agent identity, the agent state machine, and
// the restart scheduler with exponential backoff and escalation.
package supervisor

import (
	"time"

	"github.com/clove-kernel/clove/internal/permission"
	"github.com/clove-kernel/clove/internal/sandbox"
)

// State is the agent lifecycle.
type State int

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RestartPolicy governs whether a dead agent is automatically restarted.
type RestartPolicy int

const (
	RestartNever RestartPolicy = iota
	RestartAlways
	RestartOnFailure
)

func (p RestartPolicy) String() string {
	switch p {
	case RestartAlways:
		return "always"
	case RestartOnFailure:
		return "on_failure"
	default:
		return "never"
	}
}

// Config describes a requested agent, sufficient to spawn it and, if
// it dies, to spawn it again identically.
type Config struct {
	Name          string
	ScriptPath    string
	PythonPath    string
	Sandboxed     bool
	EnableNetwork bool
	Limits        sandbox.ResourceLimits

	RestartPolicy     RestartPolicy
	MaxRestarts       int
	RestartWindowSec  int64
	BackoffInitialMS  int64
	BackoffMultiplier float64
	BackoffMaxMS      int64
}

// DefaultConfig fills in the restart-subsystem defaults used when a
// spawn request doesn't specify them.
func DefaultConfig() Config {
	return Config{
		PythonPath:        "python3",
		RestartPolicy:     RestartNever,
		MaxRestarts:       3,
		RestartWindowSec:  300,
		BackoffInitialMS:  100,
		BackoffMultiplier: 2.0,
		BackoffMaxMS:      30000,
	}
}

// Agent is one supervised process. Its id is permanent; its name may
// be empty (unregistered) or bound in the NameRegistry.
type Agent struct {
	ID       uint32
	Name     string
	ParentID uint32
	ChildIDs []uint32

	Config  Config
	Sandbox *sandbox.Sandbox
	Perms   permission.Set

	State     State
	CreatedAt time.Time

	LLMCallsMade  uint32
	LLMTokensUsed uint64
}

// IsRunning reports whether the agent is running or paused; any other
// state does not count as running.
func (a *Agent) IsRunning() bool {
	return a.State == StateRunning || a.State == StatePaused
}

// AddChild appends a child id, matching the source kernel's
// parent/child bookkeeping on spawn.
func (a *Agent) AddChild(id uint32) { a.ChildIDs = append(a.ChildIDs, id) }
