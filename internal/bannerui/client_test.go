// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package bannerui

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/clove-kernel/clove/internal/wire"
)

// fakeKernel accepts a single connection and echoes back a canned
// response for every request frame it reads, exercising the same
// net.Dial / wire.Encode / wire.Decode idiom the real kernel's
// ipcserver test uses from the client side.
func fakeKernel(t *testing.T, socketPath string, respond func(wire.Frame) wire.Frame) {
	t.Helper()
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer listener.Close()

		buf := make([]byte, 0, 4096)
		for {
			total, ok, err := wire.PeekLength(buf)
			for !ok || len(buf) < total {
				chunk := make([]byte, 4096)
				n, rerr := conn.Read(chunk)
				if n > 0 {
					buf = append(buf, chunk[:n]...)
				}
				if rerr != nil {
					return
				}
				total, ok, err = wire.PeekLength(buf)
				if err != nil {
					return
				}
			}
			frame, err := wire.Decode(buf[:total])
			if err != nil {
				return
			}
			buf = buf[total:]

			resp := respond(frame)
			if _, err := conn.Write(wire.Encode(resp)); err != nil {
				return
			}
		}
	}()
}

func TestKernelClientCallRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "clove.sock")
	fakeKernel(t, socketPath, func(req wire.Frame) wire.Frame {
		if req.Opcode != wire.OpGetAuditLog {
			t.Errorf("server saw opcode %v, want OpGetAuditLog", req.Opcode)
		}
		payload, _ := json.Marshal(map[string]any{
			"success": true,
			"entries": []auditEntry{{ID: 1, EventType: "AGENT_SPAWNED"}},
			"count":   1,
		})
		return wire.Frame{AgentID: req.AgentID, Opcode: req.Opcode, Payload: payload}
	})

	client, err := NewKernelClient(socketPath)
	if err != nil {
		t.Fatalf("NewKernelClient: %v", err)
	}
	defer client.Close()

	var resp struct {
		Entries []auditEntry `json:"entries"`
		Count   int          `json:"count"`
	}
	if err := client.Call(wire.OpGetAuditLog, map[string]any{"limit": 10}, &resp); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Count != 1 || len(resp.Entries) != 1 || resp.Entries[0].EventType != "AGENT_SPAWNED" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestKernelClientSequentialCallsOnOneConnection(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "clove.sock")
	seen := 0
	fakeKernel(t, socketPath, func(req wire.Frame) wire.Frame {
		seen++
		payload, _ := json.Marshal(map[string]any{"success": true, "worlds": []worldSummary{}})
		return wire.Frame{AgentID: req.AgentID, Opcode: req.Opcode, Payload: payload}
	})

	client, err := NewKernelClient(socketPath)
	if err != nil {
		t.Fatalf("NewKernelClient: %v", err)
	}
	defer client.Close()

	for i := 0; i < 3; i++ {
		var resp struct {
			Worlds []worldSummary `json:"worlds"`
		}
		if err := client.Call(wire.OpWorldList, map[string]any{}, &resp); err != nil {
			t.Fatalf("Call #%d: %v", i, err)
		}
	}
	if seen != 3 {
		t.Fatalf("server observed %d requests, want 3", seen)
	}
}
