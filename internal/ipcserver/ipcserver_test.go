// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package ipcserver

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/clove-kernel/clove/internal/idgen"
	"github.com/clove-kernel/clove/internal/reactor"
	"github.com/clove-kernel/clove/internal/wire"
)

// drive polls the reactor until deadline, giving accept/read/write
// callbacks a chance to fire without a dedicated background goroutine
// per test.
func drive(t *testing.T, r *reactor.Reactor, deadline time.Duration) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if _, err := r.Poll(10); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}
}

func newTestServer(t *testing.T, handler Handler) (*Server, *reactor.Reactor, string) {
	t.Helper()
	r, err := reactor.New(nil)
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	path := filepath.Join(t.TempDir(), "clove.sock")
	srv := New(path, r, idgen.New(), handler, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, r, path
}

func TestEchoRoundTrip(t *testing.T) {
	echo := func(ctx context.Context, f wire.Frame) wire.Frame {
		return wire.Frame{AgentID: f.AgentID, Opcode: f.Opcode, Payload: f.Payload}
	}
	srv, r, path := newTestServer(t, echo)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := wire.Encode(wire.Frame{AgentID: 0, Opcode: wire.OpNoop, Payload: []byte("hello")})
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("Write: %v", err)
	}

	drive(t, r, 200*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	resp, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(resp.Payload) != "hello" {
		t.Fatalf("payload = %q, want hello", resp.Payload)
	}
	if resp.AgentID == 0 {
		t.Fatalf("AgentID = 0, want a server-assigned id")
	}

	if got := srv.ClientCount(); got != 1 {
		t.Fatalf("ClientCount = %d, want 1", got)
	}
}

func TestServerAssignsIDOverridingClient(t *testing.T) {
	var sawID uint32
	handler := func(ctx context.Context, f wire.Frame) wire.Frame {
		sawID = f.AgentID
		return wire.Frame{AgentID: f.AgentID, Opcode: f.Opcode, Payload: f.Payload}
	}
	_, r, path := newTestServer(t, handler)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := wire.Encode(wire.Frame{AgentID: 999, Opcode: wire.OpNoop, Payload: nil})
	conn.Write(req)

	drive(t, r, 200*time.Millisecond)

	if sawID == 999 || sawID == 0 {
		t.Fatalf("handler saw agent id %d, want server-assigned id distinct from client-claimed 999", sawID)
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	echo := func(ctx context.Context, f wire.Frame) wire.Frame { return f }
	srv, r, path := newTestServer(t, echo)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	drive(t, r, 100*time.Millisecond)
	if got := srv.ClientCount(); got != 1 {
		t.Fatalf("ClientCount before close = %d, want 1", got)
	}

	conn.Close()
	drive(t, r, 200*time.Millisecond)

	if got := srv.ClientCount(); got != 0 {
		t.Fatalf("ClientCount after close = %d, want 0", got)
	}
}

func TestMultipleFramesInOneWrite(t *testing.T) {
	var count int
	handler := func(ctx context.Context, f wire.Frame) wire.Frame {
		count++
		return f
	}
	_, r, path := newTestServer(t, handler)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	var batch []byte
	batch = append(batch, wire.Encode(wire.Frame{Opcode: wire.OpNoop, Payload: []byte("a")})...)
	batch = append(batch, wire.Encode(wire.Frame{Opcode: wire.OpNoop, Payload: []byte("b")})...)
	conn.Write(batch)

	drive(t, r, 200*time.Millisecond)

	if count != 2 {
		t.Fatalf("handler invoked %d times, want 2", count)
	}
}
