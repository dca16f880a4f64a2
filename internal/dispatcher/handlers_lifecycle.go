// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clove-kernel/clove/internal/errkind"
	"github.com/clove-kernel/clove/internal/supervisor"
)

type spawnRequest struct {
	Name          string `json:"name"`
	Script        string `json:"script"`
	PythonPath    string `json:"python_path,omitempty"`
	Sandboxed     bool   `json:"sandboxed,omitempty"`
	EnableNetwork bool   `json:"enable_network,omitempty"`
	RestartPolicy string `json:"restart_policy,omitempty"`
}

func parseRestartPolicy(s string) supervisor.RestartPolicy {
	switch s {
	case "always":
		return supervisor.RestartAlways
	case "on_failure":
		return supervisor.RestartOnFailure
	default:
		return supervisor.RestartNever
	}
}

// handleSpawn creates a new supervised agent. Response shape matches
// scenario S2: {"id","name","pid","status","restart_policy"}.
func handleSpawn(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req spawnRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid spawn payload")
	}

	cfg := supervisor.DefaultConfig()
	cfg.Name = req.Name
	cfg.ScriptPath = req.Script
	cfg.Sandboxed = req.Sandboxed
	cfg.EnableNetwork = req.EnableNetwork
	cfg.RestartPolicy = parseRestartPolicy(req.RestartPolicy)
	if req.PythonPath != "" {
		cfg.PythonPath = req.PythonPath
	}

	agent, err := d.Supervisor.Spawn(ctx, cfg, agentID)
	if err != nil {
		return nil, errkind.New(errkind.BackendError, err.Error())
	}

	return ok(map[string]any{
		"id":             agent.ID,
		"name":           agent.Name,
		"pid":            agent.Sandbox.PID(),
		"status":         agent.State.String(),
		"restart_policy": agent.Config.RestartPolicy.String(),
	}), nil
}

// handleKill stops and removes an agent identified by id or name.
func handleKill(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		ID   uint32 `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid kill payload")
	}

	target := req.ID
	if target == 0 && req.Name != "" {
		if agent := d.Supervisor.GetByName(req.Name); agent != nil {
			target = agent.ID
		}
	}
	if !d.Supervisor.Kill(req.ID, req.Name, 5*time.Second) {
		return nil, errkind.New(errkind.NotFound, "no such agent")
	}
	if d.Mailbox != nil {
		d.Mailbox.Forget(target)
	}
	if d.Events != nil {
		d.Events.Forget(target)
	}
	if d.KV != nil {
		d.KV.Forget(target)
	}
	return ok(map[string]any{"killed": true, "agent_id": target}), nil
}

type agentListEntry struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	Running bool   `json:"running"`
	State   string `json:"state"`
	PID     int    `json:"pid"`
}

// handleList returns a snapshot of every known agent.
func handleList(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	agents := d.Supervisor.List()
	entries := make([]agentListEntry, 0, len(agents))
	for _, a := range agents {
		entries = append(entries, agentListEntry{
			ID:      a.ID,
			Name:    a.Name,
			Running: a.IsRunning(),
			State:   a.State.String(),
			PID:     a.Sandbox.PID(),
		})
	}
	return ok(map[string]any{"agents": entries}), nil
}

// handlePause suspends a running agent via job control.
func handlePause(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		ID uint32 `json:"id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid pause payload")
	}
	if err := d.Supervisor.Pause(req.ID); err != nil {
		return nil, errkind.New(errkind.NotFound, err.Error())
	}
	return ok(map[string]any{"paused": true, "agent_id": req.ID}), nil
}

// handleResume resumes a paused agent.
func handleResume(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		ID uint32 `json:"id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid resume payload")
	}
	if err := d.Supervisor.Resume(req.ID); err != nil {
		return nil, errkind.New(errkind.NotFound, err.Error())
	}
	return ok(map[string]any{"resumed": true, "agent_id": req.ID}), nil
}
