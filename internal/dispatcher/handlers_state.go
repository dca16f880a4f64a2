// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clove-kernel/clove/internal/errkind"
	"github.com/clove-kernel/clove/internal/eventbus"
	"github.com/clove-kernel/clove/internal/kv"
)

// handleStore writes a StoredValue; a global-scope write emits
// STATE_CHANGED.
func handleStore(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
		Scope string          `json:"scope,omitempty"`
		TTLs  float64         `json:"ttl,omitempty"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Key == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid store payload")
	}

	scope := kv.ParseScope(req.Scope)
	ttl := time.Duration(req.TTLs * float64(time.Second))
	isGlobal := d.KV.Store(agentID, req.Key, req.Value, scope, ttl)

	if isGlobal && d.Events != nil {
		d.Events.Emit(eventbus.EventStateChanged, map[string]any{"key": req.Key}, agentID)
	}
	return ok(map[string]any{"stored": true}), nil
}

// handleFetch tries the caller's agent-scoped key, then the plain key.
func handleFetch(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid fetch payload")
	}

	v, found := d.KV.Fetch(agentID, req.Key)
	if !found {
		return ok(map[string]any{"exists": false}), nil
	}
	return ok(map[string]any{"exists": true, "value": v.Value, "scope": v.Scope.String()}), nil
}

// handleDelete erases a key the caller owns, or any global key.
func handleDelete(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid delete payload")
	}
	deleted := d.KV.Delete(agentID, req.Key)
	return ok(map[string]any{"deleted": deleted}), nil
}

// handleKeys returns the caller's visible key names, optionally
// filtered by prefix.
func handleKeys(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Prefix string `json:"prefix,omitempty"`
	}
	_ = json.Unmarshal(payload, &req)
	keys := d.KV.Keys(agentID, req.Prefix)
	return ok(map[string]any{"keys": keys}), nil
}
