// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/clove-kernel/clove/internal/errkind"
	"github.com/clove-kernel/clove/internal/eventbus"
)

func parseEventTypes(raw []string) []eventbus.EventType {
	out := make([]eventbus.EventType, len(raw))
	for i, s := range raw {
		out[i] = eventbus.EventType(s)
	}
	return out
}

// handleSubscribe adds types to the caller's subscription set.
func handleSubscribe(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Types []string `json:"types"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid subscribe payload")
	}
	d.Events.Subscribe(agentID, parseEventTypes(req.Types))
	return ok(map[string]any{"subscribed": req.Types}), nil
}

// handleUnsubscribe removes types from the caller's subscription set,
// or clears it entirely if types is empty/absent.
func handleUnsubscribe(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Types []string `json:"types,omitempty"`
	}
	_ = json.Unmarshal(payload, &req)
	d.Events.Unsubscribe(agentID, parseEventTypes(req.Types))
	return ok(map[string]any{"unsubscribed": true}), nil
}

// handlePollEvents drains up to max queued events for the caller.
func handlePollEvents(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Max int `json:"max,omitempty"`
	}
	_ = json.Unmarshal(payload, &req)

	events := d.Events.PollEvents(agentID, req.Max)
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"type":      string(e.Type),
			"data":      e.Data,
			"source_id": e.SourceID,
			"at_ms":     e.AtUnixMS,
		})
	}
	return ok(map[string]any{"count": len(out), "events": out}), nil
}

// handleEmit lets an agent post a CUSTOM event. Kernel-sourced types
// are never accepted through this syscall.
func handleEmit(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Type string          `json:"type,omitempty"`
		Data json.RawMessage `json:"data,omitempty"`
	}
	_ = json.Unmarshal(payload, &req)

	eventType := eventbus.EventCustom
	if req.Type != "" && req.Type != string(eventbus.EventCustom) {
		return nil, errkind.New(errkind.PermissionDenied, "agents may only emit CUSTOM events")
	}
	n := d.Events.Emit(eventType, req.Data, agentID)
	return ok(map[string]any{"notified": n}), nil
}
