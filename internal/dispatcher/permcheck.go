// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"encoding/json"

	"github.com/clove-kernel/clove/internal/permission"
	"github.com/clove-kernel/clove/internal/wire"
)

// checkPermission enforces the agent's permission.Set against the
// gated opcodes. Returns the denial message (naming the rule that
// fired) and whether the call is denied.
func (d *Dispatcher) checkPermission(agentID uint32, opcode wire.Opcode, payload json.RawMessage) (string, bool) {
	perms := d.agentPerms(agentID)

	switch opcode {
	case wire.OpExec:
		var req struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal(payload, &req)
		if !perms.CanExecuteCommand(req.Command) {
			return "command not allowed", true
		}

	case wire.OpRead:
		var req struct {
			Path string `json:"path"`
		}
		_ = json.Unmarshal(payload, &req)
		if !perms.CanReadPath(req.Path) {
			return "path not in whitelist", true
		}

	case wire.OpWrite:
		var req struct {
			Path string `json:"path"`
		}
		_ = json.Unmarshal(payload, &req)
		if !perms.CanWritePath(req.Path) {
			return "path not in whitelist", true
		}

	case wire.OpThink:
		if !perms.CanUseLLM(estimateTokens(payload)) {
			return "LLM quota exceeded", true
		}

	case wire.OpSpawn:
		if !perms.CanSpawn {
			return "spawn not permitted", true
		}

	case wire.OpHTTP:
		var req struct {
			URL string `json:"url"`
		}
		_ = json.Unmarshal(payload, &req)
		domain := permission.ExtractDomain(req.URL)
		if !perms.CanAccessDomain(domain) {
			return "domain not allowed", true
		}

	case wire.OpSetPerms:
		if !d.canAdminister(agentID, payload) {
			return "not authorized to change permissions for this agent", true
		}
	}

	return "", false
}

// canAdminister allows the kernel (agentID 0) or an agent's own
// spawner to change its permissions, and additionally requires the
// caller's CanSpawn bit — reused here as the "may administer
// children" capability, since only an agent trusted to create
// children is trusted to constrain them.
func (d *Dispatcher) canAdminister(callerID uint32, payload json.RawMessage) bool {
	if callerID == 0 {
		return true
	}
	var req struct {
		AgentID uint32 `json:"agent_id"`
	}
	_ = json.Unmarshal(payload, &req)

	if !d.agentPerms(callerID).CanSpawn {
		return false
	}
	target := d.Supervisor.Get(req.AgentID)
	return target != nil && target.ParentID == callerID
}

// estimateTokens guesses a THINK request's token cost from its
// payload size, used only for the pre-flight quota check; the actual
// debit after the call uses the LLM backend's reported usage.
func estimateTokens(payload json.RawMessage) uint64 {
	return uint64(len(payload) / 4)
}
