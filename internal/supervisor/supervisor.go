// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clove-kernel/clove/internal/clock"
	"github.com/clove-kernel/clove/internal/idgen"
	"github.com/clove-kernel/clove/internal/permission"
	"github.com/clove-kernel/clove/internal/sandbox"
)

// EventSink receives lifecycle notifications. The kernel façade wires
// this to the real event bus and audit log; tests use a fake.
type EventSink interface {
	EmitLifecycle(eventType string, data map[string]any, sourceID uint32)
	AuditLifecycle(eventType string, agentID uint32, agentName string, success bool, details map[string]any)
}

// Supervisor owns every live Agent, the restart state per name, and
// the pending-restart queue. It is touched only from the kernel's
// event-loop thread.
type Supervisor struct {
	logger *slog.Logger
	clk    clock.Clock
	ids    *idgen.Generator
	sink   EventSink

	cgroupRoot string

	byID   map[uint32]*Agent
	byName map[string]*Agent

	restartStates map[string]*RestartState
	pending       []*PendingRestart
}

// New creates a Supervisor. ids is shared with the socket server so
// spawned agents and accepted connections draw from the same id space.
func New(ids *idgen.Generator, cgroupRoot string, sink EventSink, clk clock.Clock, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Supervisor{
		logger:        logger,
		clk:           clk,
		ids:           ids,
		sink:          sink,
		cgroupRoot:    cgroupRoot,
		byID:          make(map[uint32]*Agent),
		byName:        make(map[string]*Agent),
		restartStates: make(map[string]*RestartState),
	}
}

// Spawn creates and starts a new Agent. Fails if cfg.Name is already
// live. parentID is the caller's agent id (0 for the kernel itself).
func (s *Supervisor) Spawn(ctx context.Context, cfg Config, parentID uint32) (*Agent, error) {
	if cfg.Name != "" {
		if existing, ok := s.byName[cfg.Name]; ok && existing.IsRunning() {
			return nil, fmt.Errorf("supervisor: agent named %q is already running", cfg.Name)
		}
	}

	id := s.ids.Next()
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("agent_%d", id)
	}

	sb, err := sandbox.New(sandbox.Config{
		Name:          fmt.Sprintf("%s_%d", cfg.Name, id),
		Root:          s.cgroupRoot,
		Limits:        cfg.Limits,
		EnableNetwork: cfg.EnableNetwork,
		EnablePID:     cfg.Sandboxed,
		EnableMount:   cfg.Sandboxed,
		EnableUTS:     cfg.Sandboxed,
		EnableCgroups: cfg.Sandboxed,
		Logger:        s.logger,
		Clock:         s.clk,
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor: sandbox config: %w", err)
	}

	agent := &Agent{
		ID:        id,
		Name:      cfg.Name,
		ParentID:  parentID,
		Config:    cfg,
		Sandbox:   sb,
		Perms:     permission.FromLevel(permission.Standard),
		State:     StateStarting,
		CreatedAt: s.clk.Now(),
	}

	if err := s.startAgent(ctx, agent); err != nil {
		return nil, err
	}

	s.byID[id] = agent
	s.byName[cfg.Name] = agent

	if parentID > 0 {
		if parent, ok := s.byID[parentID]; ok {
			parent.AddChild(id)
		}
	}

	if s.sink != nil {
		s.sink.EmitLifecycle("AGENT_SPAWNED", map[string]any{"id": id, "name": cfg.Name, "pid": agent.Sandbox.PID()}, parentID)
		s.sink.AuditLifecycle("spawn", id, cfg.Name, true, map[string]any{"pid": agent.Sandbox.PID()})
	}
	return agent, nil
}

func (s *Supervisor) startAgent(ctx context.Context, agent *Agent) error {
	if err := agent.Sandbox.Create(); err != nil {
		return fmt.Errorf("supervisor: sandbox create: %w", err)
	}
	argv := []string{agent.Config.PythonPath, agent.Config.ScriptPath}
	if err := agent.Sandbox.Start(ctx, argv, nil); err != nil {
		agent.State = StateFailed
		return fmt.Errorf("supervisor: sandbox start: %w", err)
	}
	agent.State = StateRunning
	return nil
}

// Get returns the agent with the given id, or nil.
func (s *Supervisor) Get(id uint32) *Agent { return s.byID[id] }

// GetByName returns the agent with the given name, or nil.
func (s *Supervisor) GetByName(name string) *Agent { return s.byName[name] }

// List returns a snapshot of all known agents.
func (s *Supervisor) List() []*Agent {
	out := make([]*Agent, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	return out
}

// Kill stops and removes the agent identified by id (or, if id is 0,
// by name). Returns whether an agent was found and killed.
func (s *Supervisor) Kill(id uint32, name string, timeout time.Duration) bool {
	var agent *Agent
	if id != 0 {
		agent = s.byID[id]
	} else if name != "" {
		agent = s.byName[name]
	}
	if agent == nil {
		return false
	}

	agent.State = StateStopping
	agent.Sandbox.Destroy(timeout)
	agent.State = StateStopped

	delete(s.byID, agent.ID)
	if s.byName[agent.Name] == agent {
		delete(s.byName, agent.Name)
	}
	delete(s.restartStates, agent.Name)

	if s.sink != nil {
		s.sink.EmitLifecycle("AGENT_EXITED", map[string]any{"id": agent.ID, "name": agent.Name}, agent.ID)
		s.sink.AuditLifecycle("kill", agent.ID, agent.Name, true, nil)
	}
	return true
}

// Pause transitions a running agent to Paused via a job-control signal.
func (s *Supervisor) Pause(id uint32) error {
	agent := s.byID[id]
	if agent == nil {
		return fmt.Errorf("supervisor: no such agent %d", id)
	}
	if err := agent.Sandbox.Pause(); err != nil {
		return err
	}
	agent.State = StatePaused
	if s.sink != nil {
		s.sink.EmitLifecycle("AGENT_PAUSED", map[string]any{"id": id}, id)
	}
	return nil
}

// Resume transitions a paused agent back to Running.
func (s *Supervisor) Resume(id uint32) error {
	agent := s.byID[id]
	if agent == nil {
		return fmt.Errorf("supervisor: no such agent %d", id)
	}
	if err := agent.Sandbox.Resume(); err != nil {
		return err
	}
	agent.State = StateRunning
	if s.sink != nil {
		s.sink.EmitLifecycle("AGENT_RESUMED", map[string]any{"id": id}, id)
	}
	return nil
}

// ReapAgents polls every live agent's sandbox for exit and, for those
// that have died, runs the restart-decision procedure.
func (s *Supervisor) ReapAgents(ctx context.Context) {
	for id, agent := range s.byID {
		if agent.State != StateRunning && agent.State != StatePaused {
			continue
		}
		if agent.Sandbox.IsRunning() {
			continue
		}

		exitCode := agent.Sandbox.ExitCode()
		agent.State = StateStopped
		if exitCode != 0 {
			agent.State = StateFailed
		}

		delete(s.byID, id)
		if s.byName[agent.Name] == agent {
			delete(s.byName, agent.Name)
		}

		if s.sink != nil {
			s.sink.EmitLifecycle("AGENT_EXITED", map[string]any{"id": id, "name": agent.Name, "exit_code": exitCode}, id)
		}

		s.onAgentDied(agent, exitCode)
	}
}

// onAgentDied decides whether a dead agent should be restarted, and if
// so, on what backoff schedule, escalating to a terminal failure state
// once the restart policy's retry budget is exhausted.
func (s *Supervisor) onAgentDied(agent *Agent, exitCode int) {
	cfg := agent.Config

	if cfg.RestartPolicy == RestartNever {
		delete(s.restartStates, agent.Name)
		return
	}
	if !shouldRestart(cfg.RestartPolicy, exitCode) {
		delete(s.restartStates, agent.Name)
		return
	}

	now := s.clk.Now()
	rs, ok := s.restartStates[agent.Name]
	if !ok {
		rs = &RestartState{WindowStart: now}
		s.restartStates[agent.Name] = rs
	}

	if now.Sub(rs.WindowStart) >= time.Duration(cfg.RestartWindowSec)*time.Second {
		rs.WindowStart = now
		rs.Count = 0
		rs.ConsecutiveFailures = 0
		rs.Escalated = false
	}

	if rs.Count >= cfg.MaxRestarts {
		if !rs.Escalated {
			rs.Escalated = true
			if s.sink != nil {
				s.sink.EmitLifecycle("AGENT_ESCALATED", map[string]any{"name": agent.Name}, agent.ID)
			}
		}
		return
	}

	rs.ConsecutiveFailures++
	delay := backoffDelay(cfg, rs.ConsecutiveFailures)
	rs.Count++

	s.pending = append(s.pending, &PendingRestart{
		Name:        agent.Name,
		ScheduledAt: now.Add(delay),
		Config:      cfg,
		ParentID:    agent.ParentID,
	})

	if s.sink != nil {
		s.sink.EmitLifecycle("AGENT_RESTARTING", map[string]any{"name": agent.Name, "delay_ms": delay.Milliseconds()}, agent.ID)
	}
}

// ProcessPendingRestarts starts every pending restart whose delay has
// elapsed. Note: a successful restart does not reset
// ConsecutiveFailures — only window expiry does (see onAgentDied);
// this preserves the exponential curve across an agent that keeps
// flapping within one window.
func (s *Supervisor) ProcessPendingRestarts(ctx context.Context) {
	now := s.clk.Now()
	var survivors []*PendingRestart
	for _, pr := range s.pending {
		if now.Before(pr.ScheduledAt) {
			survivors = append(survivors, pr)
			continue
		}
		if _, err := s.Spawn(ctx, pr.Config, pr.ParentID); err != nil {
			s.logger.Warn("restart attempt failed", "name", pr.Name, "error", err)
		}
	}
	s.pending = survivors
}

// StopAll stops every live agent, used on kernel shutdown.
func (s *Supervisor) StopAll(timeout time.Duration) {
	for id := range s.byID {
		s.Kill(id, "", timeout)
	}
}
