// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/clove-kernel/clove/internal/wire"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clove.sock")
	k := New(Config{
		SocketPath: path,
		CgroupRoot: filepath.Join(t.TempDir(), "cgroup"),
	})
	if err := k.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { k.Close() })
	return k
}

func runInBackground(t *testing.T, k *Kernel) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- k.Run(context.Background()) }()
	t.Cleanup(func() {
		k.Shutdown()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("kernel.Run never returned after Shutdown")
		}
	})
}

func TestKernelServesNoopOverSocket(t *testing.T) {
	k := newTestKernel(t)
	runInBackground(t, k)

	// give the Run goroutine a moment to reach its first Poll.
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("unix", k.SocketPath())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := wire.Encode(wire.Frame{Opcode: wire.OpNoop, Payload: []byte("ping")})
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	resp, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(resp.Payload) != "ping" {
		t.Fatalf("payload = %q, want ping", resp.Payload)
	}
}

func TestKernelThinkUnconfiguredReturnsFailure(t *testing.T) {
	k := newTestKernel(t)
	runInBackground(t, k)
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("unix", k.SocketPath())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// a fresh connection gets the STANDARD preset, which grants
	// CanThink, so THINK passes the permission gate and reaches the LLM
	// client; with no API key configured it reports a failure.
	payload, _ := json.Marshal(map[string]any{"prompt": "hi"})
	req := wire.Encode(wire.Frame{Opcode: wire.OpThink, Payload: payload})
	conn.Write(req)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	resp, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var parsed map[string]any
	json.Unmarshal(resp.Payload, &parsed)
	if parsed["success"] != false {
		t.Fatalf("response = %v, want success=false", parsed)
	}
}
