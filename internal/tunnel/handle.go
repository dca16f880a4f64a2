// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"encoding/json"

	"github.com/clove-kernel/clove/internal/errkind"
	"github.com/clove-kernel/clove/internal/wire"
)

// Handle implements dispatcher.TunnelRouter for the TUNNEL_OPEN
// through TUNNEL_LIST_REMOTES opcode family (0xB0-0xB4).
func (m *Manager) Handle(ctx context.Context, agentID uint32, opcode wire.Opcode, payload json.RawMessage) (json.RawMessage, error) {
	switch opcode {
	case wire.OpTunnelOpen:
		return m.handleOpen(ctx, agentID, payload)
	case wire.OpTunnelClose:
		return m.handleClose(payload)
	case wire.OpTunnelSend:
		return m.handleSend(ctx, payload)
	case wire.OpTunnelStatus:
		return m.handleStatus(payload)
	case wire.OpTunnelListRemotes:
		return m.handleListRemotes()
	default:
		return nil, errkind.New(errkind.InvalidRequest, "unrecognized tunnel opcode")
	}
}

// handleOpen acts as offerer when no offer_sdp is supplied (the caller
// is initiating a tunnel to a remote peer it will hand the returned
// offer to out of band) or as answerer when offer_sdp carries a peer's
// offer (the caller is accepting an inbound tunnel request).
func (m *Manager) handleOpen(ctx context.Context, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		RemoteID string `json:"remote_id"`
		OfferSDP string `json:"offer_sdp,omitempty"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.RemoteID == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid tunnel_open payload")
	}

	if req.OfferSDP == "" {
		tunnelID, offerSDP, err := m.openOfferer(ctx, agentID, req.RemoteID)
		if err != nil {
			return nil, errkind.New(errkind.BackendError, err.Error())
		}
		return ok(map[string]any{"tunnel_id": tunnelID, "role": string(roleOfferer), "offer_sdp": offerSDP}), nil
	}

	tunnelID, answerSDP, err := m.openAnswerer(ctx, agentID, req.RemoteID, req.OfferSDP)
	if err != nil {
		return nil, errkind.New(errkind.BackendError, err.Error())
	}
	return ok(map[string]any{"tunnel_id": tunnelID, "role": string(roleAnswerer), "answer_sdp": answerSDP}), nil
}

func (m *Manager) handleClose(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		TunnelID string `json:"tunnel_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.TunnelID == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid tunnel_close payload")
	}
	if !m.closeTunnel(req.TunnelID) {
		return nil, errkind.New(errkind.NotFound, "tunnel not found")
	}
	return ok(nil), nil
}

// handleSend optionally completes a pending offerer-side handshake
// (when answer_sdp is present) before writing data on the tunnel's
// data channel — a single round-trip covers both.
func (m *Manager) handleSend(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		TunnelID  string `json:"tunnel_id"`
		Data      string `json:"data"`
		AnswerSDP string `json:"answer_sdp,omitempty"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.TunnelID == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid tunnel_send payload")
	}

	if req.AnswerSDP != "" {
		if err := m.completeOfferer(ctx, req.TunnelID, req.AnswerSDP); err != nil {
			return nil, errkind.New(errkind.BackendError, err.Error())
		}
	}
	if req.Data == "" {
		return ok(map[string]any{"bytes_sent": 0}), nil
	}
	if err := m.send(req.TunnelID, []byte(req.Data)); err != nil {
		return nil, errkind.New(errkind.BackendError, err.Error())
	}
	return ok(map[string]any{"bytes_sent": len(req.Data)}), nil
}

func (m *Manager) handleStatus(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		TunnelID string `json:"tunnel_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.TunnelID == "" {
		return nil, errkind.New(errkind.InvalidRequest, "invalid tunnel_status payload")
	}
	t := m.get(req.TunnelID)
	if t == nil {
		return nil, errkind.New(errkind.NotFound, "tunnel not found")
	}
	return ok(map[string]any{"status": t.summary()}), nil
}

func (m *Manager) handleListRemotes() (json.RawMessage, error) {
	return ok(map[string]any{"tunnels": m.list()}), nil
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
