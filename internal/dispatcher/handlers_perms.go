// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/clove-kernel/clove/internal/errkind"
)

// handleGetPerms returns the caller's own permission set.
func handleGetPerms(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	return ok(map[string]any{"permissions": d.agentPerms(agentID)}), nil
}

// setPermsRequest mirrors permission.Set's gate fields for partial
// updates; unset fields keep their current value.
type setPermsRequest struct {
	AgentID           uint32    `json:"agent_id"`
	CanExec           *bool     `json:"can_exec,omitempty"`
	CanRead           *bool     `json:"can_read,omitempty"`
	CanWrite          *bool     `json:"can_write,omitempty"`
	CanThink          *bool     `json:"can_think,omitempty"`
	CanSpawn          *bool     `json:"can_spawn,omitempty"`
	CanHTTP           *bool     `json:"can_http,omitempty"`
	AllowedReadPaths  *[]string `json:"allowed_read_paths,omitempty"`
	AllowedWritePaths *[]string `json:"allowed_write_paths,omitempty"`
	BlockedPaths      *[]string `json:"blocked_paths,omitempty"`
	AllowedCommands   *[]string `json:"allowed_commands,omitempty"`
	BlockedCommands   *[]string `json:"blocked_commands,omitempty"`
	AllowedDomains    *[]string `json:"allowed_domains,omitempty"`
	MaxLLMTokens      *uint64   `json:"max_llm_tokens,omitempty"`
	MaxLLMCalls       *uint32   `json:"max_llm_calls,omitempty"`
	MaxExecTimeMS     *uint64   `json:"max_exec_time_ms,omitempty"`
}

// handleSetPerms applies a partial update to the target agent's
// permission set. Authorization already ran in checkPermission.
func handleSetPerms(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req setPermsRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid set_perms payload")
	}

	if !d.knownAgent(req.AgentID) {
		return nil, errkind.New(errkind.NotFound, "unknown target agent")
	}
	perms := d.agentPerms(req.AgentID)

	if req.CanExec != nil {
		perms.CanExec = *req.CanExec
	}
	if req.CanRead != nil {
		perms.CanRead = *req.CanRead
	}
	if req.CanWrite != nil {
		perms.CanWrite = *req.CanWrite
	}
	if req.CanThink != nil {
		perms.CanThink = *req.CanThink
	}
	if req.CanSpawn != nil {
		perms.CanSpawn = *req.CanSpawn
	}
	if req.CanHTTP != nil {
		perms.CanHTTP = *req.CanHTTP
	}
	if req.AllowedReadPaths != nil {
		perms.AllowedReadPaths = *req.AllowedReadPaths
	}
	if req.AllowedWritePaths != nil {
		perms.AllowedWritePaths = *req.AllowedWritePaths
	}
	if req.BlockedPaths != nil {
		perms.BlockedPaths = *req.BlockedPaths
	}
	if req.AllowedCommands != nil {
		perms.AllowedCommands = *req.AllowedCommands
	}
	if req.BlockedCommands != nil {
		perms.BlockedCommands = *req.BlockedCommands
	}
	if req.AllowedDomains != nil {
		perms.AllowedDomains = *req.AllowedDomains
	}
	if req.MaxLLMTokens != nil {
		perms.MaxLLMTokens = *req.MaxLLMTokens
	}
	if req.MaxLLMCalls != nil {
		perms.MaxLLMCalls = *req.MaxLLMCalls
	}
	if req.MaxExecTimeMS != nil {
		perms.MaxExecTimeMS = *req.MaxExecTimeMS
	}

	return ok(map[string]any{"updated": true, "agent_id": req.AgentID}), nil
}
