// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics implements the METRICS_AGENT/METRICS_KERNEL/
// METRICS_SANDBOX/METRICS_RESET opcode family (0xC0-0xC3), sampling
// per-agent resource usage from /proc and the cgroup controllers the
// sandbox package set up.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/clove-kernel/clove/internal/errkind"
	"github.com/clove-kernel/clove/internal/supervisor"
	"github.com/clove-kernel/clove/internal/wire"
)

var clockTicksPerSec = int64(100) // matches the kernel's default USER_HZ on Linux

// Snapshot is one agent's sampled resource usage, matching the source
// kernel's AgentMetrics struct shape.
type Snapshot struct {
	AgentID       uint32  `json:"agent_id"`
	MemoryBytes   int64   `json:"memory_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	LLMRequests   uint32  `json:"llm_request_count"`
	LLMTokensUsed uint64  `json:"llm_tokens_used"`
}

// Router handles the Metrics opcode family against a live Supervisor.
type Router struct {
	sup *supervisor.Supervisor
}

// New builds a Router over sup.
func New(sup *supervisor.Supervisor) *Router {
	return &Router{sup: sup}
}

// Handle implements dispatcher.MetricsRouter.
func (r *Router) Handle(ctx context.Context, agentID uint32, opcode wire.Opcode, payload json.RawMessage) (json.RawMessage, error) {
	switch opcode {
	case wire.OpMetricsAgent:
		return r.handleAgent(payload)
	case wire.OpMetricsKernel:
		return r.handleKernel()
	case wire.OpMetricsSandbox:
		return r.handleSandbox(payload)
	case wire.OpMetricsReset:
		return r.handleReset(payload)
	default:
		return nil, errkind.New(errkind.InvalidRequest, "unknown metrics opcode")
	}
}

func (r *Router) handleAgent(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		ID uint32 `json:"id"`
	}
	_ = json.Unmarshal(payload, &req)

	agent := r.sup.Get(req.ID)
	if agent == nil {
		return nil, errkind.New(errkind.NotFound, "no such agent")
	}
	snap := sample(agent)
	b, _ := json.Marshal(map[string]any{"success": true, "metrics": snap})
	return b, nil
}

func (r *Router) handleSandbox(payload json.RawMessage) (json.RawMessage, error) {
	return r.handleAgent(payload)
}

func (r *Router) handleKernel() (json.RawMessage, error) {
	agents := r.sup.List()
	snapshots := make([]Snapshot, 0, len(agents))
	var totalMemory int64
	var totalTokens uint64
	for _, agent := range agents {
		snap := sample(agent)
		snapshots = append(snapshots, snap)
		totalMemory += snap.MemoryBytes
		totalTokens += snap.LLMTokensUsed
	}
	b, _ := json.Marshal(map[string]any{
		"success":            true,
		"agent_count":        len(agents),
		"total_memory_bytes": totalMemory,
		"total_llm_tokens":   totalTokens,
		"agents":             snapshots,
	})
	return b, nil
}

func (r *Router) handleReset(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		ID uint32 `json:"id"`
	}
	_ = json.Unmarshal(payload, &req)
	agent := r.sup.Get(req.ID)
	if agent == nil {
		return nil, errkind.New(errkind.NotFound, "no such agent")
	}
	agent.LLMCallsMade = 0
	agent.LLMTokensUsed = 0
	b, _ := json.Marshal(map[string]any{"success": true, "reset": true})
	return b, nil
}

func sample(agent *supervisor.Agent) Snapshot {
	snap := Snapshot{
		AgentID:       agent.ID,
		UptimeSeconds: time.Since(agent.CreatedAt).Seconds(),
		LLMRequests:   agent.LLMCallsMade,
		LLMTokensUsed: agent.LLMTokensUsed,
	}
	if agent.Sandbox == nil {
		return snap
	}
	if mem, err := agent.Sandbox.MemoryCurrentBytes(); err == nil {
		snap.MemoryBytes = mem
	}
	if pid := agent.Sandbox.PID(); pid > 0 {
		snap.CPUPercent = cpuPercentFromProc(pid, snap.UptimeSeconds)
	}
	return snap
}

// cpuPercentFromProc estimates average CPU utilization over the
// process's lifetime from /proc/<pid>/stat's utime+stime fields.
func cpuPercentFromProc(pid int, uptimeSeconds float64) float64 {
	if uptimeSeconds <= 0 {
		return 0
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0
	}
	// utime is field 14, stime is field 15 (1-indexed per proc(5)); the
	// comm field may itself contain spaces, so locate it by the
	// trailing ')' rather than trusting a fixed index from the front.
	closeParen := strings.LastIndex(string(data), ")")
	if closeParen < 0 {
		return 0
	}
	rest := strings.Fields(string(data)[closeParen+1:])
	if len(rest) < 14 {
		return 0
	}
	utime, _ := strconv.ParseInt(rest[11], 10, 64)
	stime, _ := strconv.ParseInt(rest[12], 10, 64)
	totalSeconds := float64(utime+stime) / float64(clockTicksPerSec)
	return (totalSeconds / uptimeSeconds) * 100
}
