// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/clove-kernel/clove/internal/eventbus"
)

// TestTunnelHandshakeAndSend establishes a real pion/webrtc
// PeerConnection pair over loopback ICE candidates — offerer and
// answerer each run in their own Manager, standing in for two kernel
// instances — and verifies that data sent by the offerer reaches the
// answerer's agent as a TUNNEL_DATA event.
func TestTunnelHandshakeAndSend(t *testing.T) {
	ctx := context.Background()

	eventsA := eventbus.New(nil)
	eventsB := eventbus.New(nil)
	mgrA := NewManager(eventsA, nil, nil)
	mgrB := NewManager(eventsB, nil, nil)

	const agentA, agentB uint32 = 1, 2
	eventsB.Subscribe(agentB, []eventbus.EventType{eventbus.EventTunnelData})

	openResp, err := mgrA.handleOpen(ctx, agentA, mustJSON(t, map[string]any{"remote_id": "peer-b"}))
	if err != nil {
		t.Fatalf("offerer handleOpen: %v", err)
	}
	var offer struct {
		TunnelID string `json:"tunnel_id"`
		OfferSDP string `json:"offer_sdp"`
	}
	unmarshal(t, openResp, &offer)
	if offer.TunnelID == "" || offer.OfferSDP == "" {
		t.Fatalf("expected a tunnel id and offer sdp, got %+v", offer)
	}

	answerResp, err := mgrB.handleOpen(ctx, agentB, mustJSON(t, map[string]any{
		"remote_id": "peer-a",
		"offer_sdp": offer.OfferSDP,
	}))
	if err != nil {
		t.Fatalf("answerer handleOpen: %v", err)
	}
	var answer struct {
		TunnelID  string `json:"tunnel_id"`
		AnswerSDP string `json:"answer_sdp"`
	}
	unmarshal(t, answerResp, &answer)
	if answer.TunnelID == "" || answer.AnswerSDP == "" {
		t.Fatalf("expected a tunnel id and answer sdp, got %+v", answer)
	}

	sendResp, err := mgrA.handleSend(ctx, mustJSON(t, map[string]any{
		"tunnel_id":  offer.TunnelID,
		"data":       "hello from peer-a",
		"answer_sdp": answer.AnswerSDP,
	}))
	if err != nil {
		t.Fatalf("completing handshake and sending: %v", err)
	}
	var sent struct {
		BytesSent int `json:"bytes_sent"`
	}
	unmarshal(t, sendResp, &sent)
	if sent.BytesSent != len("hello from peer-a") {
		t.Fatalf("bytes_sent = %d, want %d", sent.BytesSent, len("hello from peer-a"))
	}

	deadline := time.After(5 * time.Second)
	for {
		events := eventsB.PollEvents(agentB, 10)
		found := false
		for _, ev := range events {
			data, ok := ev.Data.(map[string]any)
			if ok && data["tunnel_id"] == answer.TunnelID && data["data"] == "hello from peer-a" {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for TUNNEL_DATA event on the answerer side")
		case <-time.After(20 * time.Millisecond):
		}
	}

	statusResp, err := mgrA.handleStatus(mustJSON(t, map[string]any{"tunnel_id": offer.TunnelID}))
	if err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	var statusWrap struct {
		Status summary `json:"status"`
	}
	unmarshal(t, statusResp, &statusWrap)
	if statusWrap.Status.Status != string(statusConnected) {
		t.Fatalf("offerer status = %q, want %q", statusWrap.Status.Status, statusConnected)
	}

	listResp, err := mgrA.handleListRemotes()
	if err != nil {
		t.Fatalf("handleListRemotes: %v", err)
	}
	var listed struct {
		Tunnels []summary `json:"tunnels"`
	}
	unmarshal(t, listResp, &listed)
	if len(listed.Tunnels) != 1 || listed.Tunnels[0].TunnelID != offer.TunnelID {
		t.Fatalf("unexpected tunnel list: %+v", listed.Tunnels)
	}

	if _, err := mgrA.handleClose(mustJSON(t, map[string]any{"tunnel_id": offer.TunnelID})); err != nil {
		t.Fatalf("handleClose: %v", err)
	}
	if mgrA.get(offer.TunnelID) != nil {
		t.Fatal("tunnel still present after close")
	}
}

func TestTunnelSendUnknownTunnelFails(t *testing.T) {
	m := NewManager(nil, nil, nil)
	if err := m.send("nonexistent", []byte("x")); err != errTunnelNotFound {
		t.Fatalf("expected errTunnelNotFound, got %v", err)
	}
}

func TestTunnelCloseUnknown(t *testing.T) {
	m := NewManager(nil, nil, nil)
	if m.closeTunnel("nonexistent") {
		t.Fatal("closing an unknown tunnel should report false")
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func unmarshal(t *testing.T, payload json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(payload, v); err != nil {
		t.Fatalf("unmarshal %s: %v", payload, err)
	}
}
