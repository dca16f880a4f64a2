// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"math"
	"time"
)

// RestartState persists across an agent's death, keyed by name, so a
// flapping agent's backoff accumulates across restarts within one
// window.
type RestartState struct {
	Count               int
	WindowStart         time.Time
	ConsecutiveFailures int
	Escalated           bool
}

// PendingRestart is a scheduled restart attempt waiting for its delay
// to elapse.
type PendingRestart struct {
	Name        string
	ScheduledAt time.Time
	Config      Config
	ParentID    uint32
}

// backoffDelay computes d_k = min(max, initial * multiplier^(k-1))
// for the k-th consecutive restart (k = consecutiveFailures, 1-based
// going into this attempt).
func backoffDelay(cfg Config, consecutiveFailures int) time.Duration {
	if consecutiveFailures < 1 {
		consecutiveFailures = 1
	}
	delay := float64(cfg.BackoffInitialMS) * math.Pow(cfg.BackoffMultiplier, float64(consecutiveFailures-1))
	if delay > float64(cfg.BackoffMaxMS) {
		delay = float64(cfg.BackoffMaxMS)
	}
	if delay < float64(cfg.BackoffInitialMS) {
		delay = float64(cfg.BackoffInitialMS)
	}
	return time.Duration(delay) * time.Millisecond
}

// shouldRestart applies the policy/exit-code rule from step 2 of the
// reap procedure.
func shouldRestart(policy RestartPolicy, exitCode int) bool {
	switch policy {
	case RestartAlways:
		return true
	case RestartOnFailure:
		return exitCode != 0
	default:
		return false
	}
}
