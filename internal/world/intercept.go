// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"encoding/json"

	"github.com/clove-kernel/clove/internal/errkind"
)

// Intercept implements dispatcher.WorldRouter.Intercept. It is called
// by the dispatcher's READ/WRITE/EXEC/HTTP handlers before they touch
// the real operation. WRITE is always shadowed for a joined agent and
// lands in the world's files; READ is shadowed whenever the agent's
// world already holds the target path or declares a chaos rule
// matching it; EXEC and HTTP are only ever intercepted to roll a
// declared fault, never to mock the actual command or request — a
// world has no model of arbitrary subprocess or HTTP behavior to
// stand in for the real thing.
func (m *Manager) Intercept(agentID uint32, kind string, target string, payload json.RawMessage) (json.RawMessage, bool) {
	w := m.worldOf(agentID)
	if w == nil {
		return nil, false
	}
	rule, hasRule := w.chaosFor(target)

	switch kind {
	case "read":
		data, shadowed := w.fileBytes(target)
		if !shadowed && !hasRule {
			return nil, false
		}
		if hasRule && m.applyChaos(rule) {
			return failure(errkind.NotFound, "world fault injection: read failed"), true
		}
		return ok(map[string]any{"content": string(data)}), true

	case "write":
		if hasRule && m.applyChaos(rule) {
			return failure(errkind.BackendError, "world fault injection: write failed"), true
		}
		var req struct {
			Content string `json:"content"`
		}
		_ = json.Unmarshal(payload, &req)
		w.setFileBytes(target, []byte(req.Content))
		return ok(map[string]any{"bytes_written": len(req.Content)}), true

	case "exec", "http":
		if !hasRule {
			return nil, false
		}
		if m.applyChaos(rule) {
			return failure(errkind.BackendError, "world fault injection: "+kind+" failed"), true
		}
		return nil, false

	default:
		return nil, false
	}
}
