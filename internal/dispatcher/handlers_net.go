// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/clove-kernel/clove/internal/errkind"
)

// handleHTTP performs an outbound HTTP request, or routes to the
// joined world's network mock if it intercepts the URL.
func handleHTTP(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Method  string            `json:"method,omitempty"`
		URL     string            `json:"url"`
		Body    json.RawMessage   `json:"body,omitempty"`
		Headers map[string]string `json:"headers,omitempty"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.URL == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid http payload")
	}
	if req.Method == "" {
		req.Method = "GET"
	}

	if world := d.World; world != nil {
		if resp, intercepted := world.Intercept(agentID, "http", req.URL, payload); intercepted {
			return resp, nil
		}
	}

	if d.HTTP == nil {
		return nil, errkind.New(errkind.BackendError, "HTTP backend not configured")
	}
	resp, err := d.HTTP.Fetch(ctx, req.Method, req.URL, req.Body, req.Headers)
	if err != nil {
		return nil, errkind.New(errkind.BackendError, err.Error())
	}
	return ok(map[string]any{"response": resp}), nil
}
