// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/clove-kernel/clove/internal/errkind"
	"github.com/clove-kernel/clove/internal/mailbox"
)

// handleSend resolves the target by id or name and enqueues one
// message, per scenario S3.
func handleSend(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		To      uint32          `json:"to,omitempty"`
		ToName  string          `json:"to_name,omitempty"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid send payload")
	}

	fromName, _ := d.Mailbox.NameOf(agentID)
	target, err := d.Mailbox.Send(agentID, fromName, req.To, req.ToName, req.Message)
	if err == mailbox.ErrNotFound {
		return nil, errkind.New(errkind.NotFound, "target agent not found")
	}
	return ok(map[string]any{"delivered_to": target}), nil
}

// handleRecv dequeues up to max messages for the caller.
func handleRecv(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Max int `json:"max,omitempty"`
	}
	_ = json.Unmarshal(payload, &req)

	delivered := d.Mailbox.Recv(agentID, req.Max)
	messages := make([]map[string]any, 0, len(delivered))
	for _, m := range delivered {
		entry := map[string]any{"from": m.From, "message": m.Payload, "age_ms": m.AgeMS}
		if m.FromName != "" {
			entry["from_name"] = m.FromName
		}
		messages = append(messages, entry)
	}
	return ok(map[string]any{"count": len(messages), "messages": messages}), nil
}

// handleBroadcast snapshots the registry and enqueues one copy of the
// message per registered agent.
func handleBroadcast(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Message       json.RawMessage `json:"message"`
		IncludeSender bool            `json:"include_sender,omitempty"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid broadcast payload")
	}
	fromName, _ := d.Mailbox.NameOf(agentID)
	delivered := d.Mailbox.Broadcast(agentID, fromName, req.Message, req.IncludeSender)
	return ok(map[string]any{"delivered_count": delivered}), nil
}

// handleRegister binds a name to the caller's agent id.
func handleRegister(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Name == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid register payload")
	}
	if err := d.Mailbox.Register(agentID, req.Name); err != nil {
		return nil, errkind.New(errkind.PermissionDenied, "name already registered to another agent")
	}
	return ok(map[string]any{"registered": true, "name": req.Name}), nil
}
