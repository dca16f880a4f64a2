// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clove-kernel/clove/internal/errkind"
	"github.com/clove-kernel/clove/internal/wire"
)

// Handle implements dispatcher.WorldRouter for the WORLD_CREATE
// through WORLD_RESTORE opcode family (0xA0-0xA8).
func (m *Manager) Handle(ctx context.Context, agentID uint32, opcode wire.Opcode, payload json.RawMessage) (json.RawMessage, error) {
	switch opcode {
	case wire.OpWorldCreate:
		return m.handleCreate(payload)
	case wire.OpWorldDestroy:
		return m.handleDestroy(payload)
	case wire.OpWorldList:
		return m.handleList()
	case wire.OpWorldJoin:
		return m.handleJoin(agentID, payload)
	case wire.OpWorldLeave:
		return m.handleLeave(agentID)
	case wire.OpWorldEvent:
		return m.handleEvent(agentID, payload)
	case wire.OpWorldState:
		return m.handleState(payload)
	case wire.OpWorldSnapshot:
		return m.handleSnapshot(payload)
	case wire.OpWorldRestore:
		return m.handleRestore(payload)
	default:
		return nil, errkind.New(errkind.InvalidRequest, "unrecognized world opcode")
	}
}

func (m *Manager) handleCreate(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Name  string      `json:"name"`
		Chaos []ChaosRule `json:"chaos,omitempty"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid world_create payload")
	}
	w := m.create(req.Name, req.Chaos)
	return ok(map[string]any{"world_id": w.ID}), nil
}

func (m *Manager) handleDestroy(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		WorldID string `json:"world_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.WorldID == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid world_destroy payload")
	}
	if !m.destroy(req.WorldID) {
		return nil, errkind.New(errkind.NotFound, "world not found")
	}
	return ok(nil), nil
}

func (m *Manager) handleList() (json.RawMessage, error) {
	worlds := m.list()
	summaries := make([]summary, 0, len(worlds))
	for _, w := range worlds {
		summaries = append(summaries, w.summary())
	}
	return ok(map[string]any{"worlds": summaries}), nil
}

func (m *Manager) handleJoin(agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		WorldID string `json:"world_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.WorldID == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid world_join payload")
	}
	path, mounted, err := m.join(agentID, req.WorldID, slog.Default())
	if err != nil {
		if err == errWorldNotFound {
			return nil, errkind.New(errkind.NotFound, "world not found")
		}
		if err == errAlreadyJoined {
			return nil, errkind.New(errkind.InvalidRequest, "agent has already joined a world")
		}
		return nil, errkind.New(errkind.BackendError, err.Error())
	}
	return ok(map[string]any{"mount_path": path, "mounted": mounted}), nil
}

func (m *Manager) handleLeave(agentID uint32) (json.RawMessage, error) {
	if !m.leave(agentID) {
		return nil, errkind.New(errkind.InvalidRequest, "agent has not joined a world")
	}
	return ok(nil), nil
}

func (m *Manager) handleEvent(agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data,omitempty"`
		SinceSeq  uint64          `json:"since_seq,omitempty"`
		Subscribe bool            `json:"subscribe,omitempty"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid world_event payload")
	}
	w := m.worldOf(agentID)
	if w == nil {
		return nil, errkind.New(errkind.InvalidRequest, "agent has not joined a world")
	}
	if req.Subscribe {
		return ok(map[string]any{"events": w.eventsSince(req.SinceSeq)}), nil
	}
	if req.Type == "" {
		return nil, errkind.New(errkind.InvalidRequest, "event type required")
	}
	ev := w.appendEvent(req.Type, []byte(req.Data))
	return ok(map[string]any{"seq": ev.Seq}), nil
}

func (m *Manager) handleState(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		WorldID string `json:"world_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.WorldID == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid world_state payload")
	}
	w := m.get(req.WorldID)
	if w == nil {
		return nil, errkind.New(errkind.NotFound, "world not found")
	}
	return ok(map[string]any{"state": w.summary()}), nil
}

func (m *Manager) handleSnapshot(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		WorldID string `json:"world_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.WorldID == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid world_snapshot payload")
	}
	w := m.get(req.WorldID)
	if w == nil {
		return nil, errkind.New(errkind.NotFound, "world not found")
	}
	data, digest, err := snapshotOf(w)
	if err != nil {
		return nil, errkind.New(errkind.BackendError, "snapshot encoding failed")
	}
	return ok(map[string]any{"snapshot": encodeSnapshot(data), "digest": digest}), nil
}

func (m *Manager) handleRestore(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Snapshot string `json:"snapshot"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Snapshot == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid world_restore payload")
	}
	data, err := decodeSnapshot(req.Snapshot)
	if err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "snapshot is not valid base64")
	}
	w, err := restoreFrom(data)
	if err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "snapshot could not be decoded")
	}
	w.ID = uuid.NewString()

	m.mu.Lock()
	m.worlds[w.ID] = w
	m.mu.Unlock()

	return ok(map[string]any{"world_id": w.ID}), nil
}

func ok(fields map[string]any) json.RawMessage {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["success"] = true
	b, err := json.Marshal(fields)
	if err != nil {
		return []byte(`{"success":true}`)
	}
	return b
}

func failure(kind errkind.Kind, message string) json.RawMessage {
	b, err := json.Marshal(map[string]any{"success": false, "error": message, "error_kind": string(kind)})
	if err != nil {
		return []byte(`{"success":false,"error":"internal error"}`)
	}
	return b
}
