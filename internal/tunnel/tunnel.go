// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package tunnel implements the WebRTC-backed relay between two kernel
// instances (TUNNEL_OPEN through TUNNEL_LIST_REMOTES, 0xB0-0xB4),
// carrying agent-to-agent traffic across a NAT boundary. Each tunnel
// is one pion PeerConnection with a single ordered, reliable data
// channel; signaling is vanilla ICE, so establishing a tunnel takes
// exactly one SDP exchange (an offer from TUNNEL_OPEN, an answer
// either returned by a peer's own TUNNEL_OPEN or carried back in the
// offerer's TUNNEL_SEND).
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/clove-kernel/clove/internal/clock"
	"github.com/clove-kernel/clove/internal/eventbus"
)

var (
	errTunnelNotFound  = errors.New("tunnel not found")
	errAlreadyComplete = errors.New("tunnel handshake already completed")
	errNotConnected    = errors.New("tunnel is not connected")
)

// iceGatherTimeout bounds how long TUNNEL_OPEN waits for ICE candidate
// gathering before giving up — a single, synchronous call, since the
// dispatcher handles one request at a time rather than running a
// long-lived background signaling loop.
const iceGatherTimeout = 15 * time.Second

// handshakeCompleteTimeout bounds how long TUNNEL_SEND's answer_sdp
// completion waits for the data channel to open once the remote
// description is set.
const handshakeCompleteTimeout = 10 * time.Second

// role distinguishes which side of a tunnel this kernel instance is.
type role string

const (
	roleOfferer  role = "offerer"
	roleAnswerer role = "answerer"
)

// status is a tunnel's lifecycle state.
type status string

const (
	statusPending   status = "pending"
	statusConnected status = "connected"
	statusFailed    status = "failed"
	statusClosed    status = "closed"
)

// Tunnel is one WebRTC relay to a remote peer.
type Tunnel struct {
	mu sync.Mutex

	ID       string
	RemoteID string
	AgentID  uint32
	Role     role
	Status   status

	pc          *webrtc.PeerConnection
	dc          *webrtc.DataChannel
	established chan struct{}
	closedOnce  sync.Once

	bytesSent     uint64
	bytesReceived uint64
}

func (t *Tunnel) setStatus(s status) {
	t.mu.Lock()
	t.Status = s
	t.mu.Unlock()
}

// summary is the read-only view returned by TUNNEL_STATUS and
// TUNNEL_LIST_REMOTES.
type summary struct {
	TunnelID      string `json:"tunnel_id"`
	RemoteID      string `json:"remote_id"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	BytesSent     uint64 `json:"bytes_sent"`
	BytesReceived uint64 `json:"bytes_received"`
}

func (t *Tunnel) summary() summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return summary{
		TunnelID:      t.ID,
		RemoteID:      t.RemoteID,
		Role:          string(t.Role),
		Status:        string(t.Status),
		BytesSent:     t.bytesSent,
		BytesReceived: t.bytesReceived,
	}
}

// Manager owns every live tunnel. Safe for concurrent use from the
// dispatcher's event loop goroutine or from tests driving it directly.
type Manager struct {
	mu      sync.Mutex
	tunnels map[string]*Tunnel

	events *eventbus.Bus
	clk    clock.Clock
	logger *slog.Logger
}

// NewManager builds a Manager. events may be nil (inbound data is
// then counted and silently dropped instead of surfaced to the owning
// agent) — useful for tests that only exercise the handshake.
func NewManager(events *eventbus.Bus, clk clock.Clock, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tunnels: make(map[string]*Tunnel),
		events:  events,
		clk:     clk,
		logger:  logger,
	}
}

// newPeerConnection configures a SettingEngine with loopback
// candidates included, since same-machine transport and test
// environments may have loopback as the only interface available.
func newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{})
}

func (m *Manager) register(t *Tunnel) {
	m.mu.Lock()
	m.tunnels[t.ID] = t
	m.mu.Unlock()
}

func (m *Manager) get(tunnelID string) *Tunnel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tunnels[tunnelID]
}

func (m *Manager) list() []summary {
	m.mu.Lock()
	tunnels := make([]*Tunnel, 0, len(m.tunnels))
	for _, t := range m.tunnels {
		tunnels = append(tunnels, t)
	}
	m.mu.Unlock()

	out := make([]summary, 0, len(tunnels))
	for _, t := range tunnels {
		out = append(out, t.summary())
	}
	return out
}

// openOfferer creates a PeerConnection, gathers ICE candidates, and
// returns the tunnel id plus the complete SDP offer for the caller to
// hand to the remote peer out of band.
func (m *Manager) openOfferer(ctx context.Context, agentID uint32, remoteID string) (tunnelID, offerSDP string, err error) {
	pc, err := newPeerConnection()
	if err != nil {
		return "", "", fmt.Errorf("creating peer connection: %w", err)
	}

	t := &Tunnel{
		ID:          uuid.NewString(),
		RemoteID:    remoteID,
		AgentID:     agentID,
		Role:        roleOfferer,
		Status:      statusPending,
		pc:          pc,
		established: make(chan struct{}),
	}

	dc, err := pc.CreateDataChannel("tunnel-"+t.ID, nil)
	if err != nil {
		pc.Close()
		return "", "", fmt.Errorf("creating data channel: %w", err)
	}
	t.dc = dc
	m.wireDataChannel(t, dc)
	m.wireICEState(t)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return "", "", fmt.Errorf("creating SDP offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return "", "", fmt.Errorf("setting local description: %w", err)
	}
	if err := waitGather(ctx, gatherComplete); err != nil {
		pc.Close()
		return "", "", err
	}

	m.register(t)
	return t.ID, pc.LocalDescription().SDP, nil
}

// openAnswerer creates a PeerConnection from a remote SDP offer,
// gathers ICE candidates, and returns the tunnel id plus the complete
// SDP answer. The data channel itself arrives asynchronously via
// OnDataChannel once the offerer completes the handshake.
func (m *Manager) openAnswerer(ctx context.Context, agentID uint32, remoteID, offerSDP string) (tunnelID, answerSDP string, err error) {
	pc, err := newPeerConnection()
	if err != nil {
		return "", "", fmt.Errorf("creating peer connection: %w", err)
	}

	t := &Tunnel{
		ID:          uuid.NewString(),
		RemoteID:    remoteID,
		AgentID:     agentID,
		Role:        roleAnswerer,
		Status:      statusPending,
		pc:          pc,
		established: make(chan struct{}),
	}
	m.wireICEState(t)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		t.mu.Lock()
		t.dc = dc
		t.mu.Unlock()
		m.wireDataChannel(t, dc)
	})

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return "", "", fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", "", fmt.Errorf("creating SDP answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", "", fmt.Errorf("setting local description: %w", err)
	}
	if err := waitGather(ctx, gatherComplete); err != nil {
		pc.Close()
		return "", "", err
	}

	m.register(t)
	return t.ID, pc.LocalDescription().SDP, nil
}

// completeOfferer finishes an offerer-side handshake by setting the
// remote answer, then blocks (bounded by handshakeCompleteTimeout)
// until the data channel opens.
func (m *Manager) completeOfferer(ctx context.Context, tunnelID, answerSDP string) error {
	t := m.get(tunnelID)
	if t == nil {
		return errTunnelNotFound
	}
	t.mu.Lock()
	if t.Role != roleOfferer {
		t.mu.Unlock()
		return fmt.Errorf("tunnel %s is not an offerer", tunnelID)
	}
	if t.Status != statusPending {
		t.mu.Unlock()
		return errAlreadyComplete
	}
	pc := t.pc
	t.mu.Unlock()

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		t.setStatus(statusFailed)
		return fmt.Errorf("setting remote description: %w", err)
	}

	completeCtx, cancel := context.WithTimeout(ctx, handshakeCompleteTimeout)
	defer cancel()
	select {
	case <-t.established:
		t.setStatus(statusConnected)
		return nil
	case <-completeCtx.Done():
		t.setStatus(statusFailed)
		return fmt.Errorf("waiting for data channel to open: %w", completeCtx.Err())
	}
}

// send writes data on an already-connected tunnel's data channel.
func (m *Manager) send(tunnelID string, data []byte) error {
	t := m.get(tunnelID)
	if t == nil {
		return errTunnelNotFound
	}
	t.mu.Lock()
	dc := t.dc
	connected := t.Status == statusConnected
	t.mu.Unlock()
	if dc == nil || !connected {
		return errNotConnected
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("sending on data channel: %w", err)
	}
	t.mu.Lock()
	t.bytesSent += uint64(len(data))
	t.mu.Unlock()
	return nil
}

// closeTunnel tears down a tunnel's PeerConnection and removes it.
func (m *Manager) closeTunnel(tunnelID string) bool {
	m.mu.Lock()
	t, ok := m.tunnels[tunnelID]
	if ok {
		delete(m.tunnels, tunnelID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	t.closedOnce.Do(func() {
		t.setStatus(statusClosed)
		t.pc.Close()
	})
	return true
}

// wireDataChannel registers open/message handlers. Inbound messages
// are surfaced to the owning agent as a TUNNEL_DATA event; a tunnel
// opened before any eventbus was wired in (tests exercising only the
// handshake) simply drops them.
func (m *Manager) wireDataChannel(t *Tunnel, dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		select {
		case <-t.established:
		default:
			close(t.established)
		}
		t.setStatus(statusConnected)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.Lock()
		t.bytesReceived += uint64(len(msg.Data))
		t.mu.Unlock()
		if m.events == nil {
			return
		}
		m.events.Emit(eventbus.EventTunnelData, map[string]any{
			"tunnel_id": t.ID,
			"remote_id": t.RemoteID,
			"data":      string(msg.Data),
		}, t.AgentID)
	})
}

func (m *Manager) wireICEState(t *Tunnel) {
	t.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		m.logger.Debug("tunnel ICE state change", "tunnel_id", t.ID, "state", state.String())
		if state == webrtc.ICEConnectionStateFailed {
			t.setStatus(statusFailed)
		}
	})
}

func waitGather(ctx context.Context, gatherComplete <-chan struct{}) error {
	select {
	case <-gatherComplete:
		return nil
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
