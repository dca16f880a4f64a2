// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/clove-kernel/clove/internal/clock"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), clock.Fake(time.Unix(0, 0)))
}

// recordingClock is a non-blocking stand-in for clock.Clock that just
// totals up every requested Sleep duration. clock.FakeClock's Sleep
// blocks until something else calls Advance, which applyChaos (called
// synchronously, with nothing driving the clock concurrently) would
// never see.
type recordingClock struct {
	now   time.Time
	total time.Duration
}

func (c *recordingClock) Now() time.Time                             { return c.now }
func (c *recordingClock) After(d time.Duration) <-chan time.Time      { ch := make(chan time.Time, 1); ch <- c.now; return ch }
func (c *recordingClock) AfterFunc(d time.Duration, f func()) *clock.Timer {
	f()
	return nil
}
func (c *recordingClock) NewTicker(d time.Duration) *clock.Ticker { return nil }
func (c *recordingClock) Sleep(d time.Duration)                  { c.total += d }

func TestCreateListDestroy(t *testing.T) {
	m := newTestManager(t)

	resp, err := m.handleCreate(mustJSON(t, map[string]any{"name": "staging"}))
	if err != nil {
		t.Fatalf("handleCreate: %v", err)
	}
	worldID := decodeField(t, resp, "world_id")

	listResp, err := m.handleList()
	if err != nil {
		t.Fatalf("handleList: %v", err)
	}
	var listed struct {
		Worlds []summary `json:"worlds"`
	}
	if err := json.Unmarshal(listResp, &listed); err != nil {
		t.Fatalf("unmarshal list response: %v", err)
	}
	if len(listed.Worlds) != 1 || listed.Worlds[0].ID != worldID {
		t.Fatalf("expected one world with id %s, got %+v", worldID, listed.Worlds)
	}

	if _, err := m.handleDestroy(mustJSON(t, map[string]any{"world_id": worldID})); err != nil {
		t.Fatalf("handleDestroy: %v", err)
	}
	if m.get(worldID) != nil {
		t.Fatal("world still present after destroy")
	}
	if _, err := m.handleDestroy(mustJSON(t, map[string]any{"world_id": worldID})); err == nil {
		t.Fatal("expected error destroying an already-destroyed world")
	}
}

func TestJoinLeaveDegradesWithoutFUSE(t *testing.T) {
	m := newTestManager(t)
	w := m.create("sim", nil)

	// join never propagates a mount failure: membership must succeed
	// even in environments without /dev/fuse, matching the sandbox
	// package's degrade-and-continue precedent.
	path, _, err := m.join(42, w.ID, nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if path == "" {
		t.Fatal("expected a mount path even on degraded join")
	}
	if got := m.worldOf(42); got == nil || got.ID != w.ID {
		t.Fatalf("worldOf(42) = %v, want %s", got, w.ID)
	}

	if _, _, err := m.join(42, w.ID, nil); err != errAlreadyJoined {
		t.Fatalf("expected errAlreadyJoined on second join, got %v", err)
	}

	if !m.leave(42) {
		t.Fatal("leave should report true for a joined agent")
	}
	if m.worldOf(42) != nil {
		t.Fatal("worldOf(42) should be nil after leave")
	}
	if m.leave(42) {
		t.Fatal("leave should report false for an agent that already left")
	}
}

func TestJoinUnknownWorld(t *testing.T) {
	m := newTestManager(t)
	if _, _, err := m.join(1, "nope", nil); err != errWorldNotFound {
		t.Fatalf("expected errWorldNotFound, got %v", err)
	}
}

func TestInterceptReadWriteRoundTrip(t *testing.T) {
	m := newTestManager(t)
	w := m.create("sandboxed", nil)
	if _, _, err := m.join(7, w.ID, nil); err != nil {
		t.Fatalf("join: %v", err)
	}

	// not yet shadowed and no chaos rule: the real operation must run.
	if _, intercepted := m.Intercept(7, "read", "/etc/hosts", nil); intercepted {
		t.Fatal("unshadowed read should not be intercepted")
	}

	writeResp, intercepted := m.Intercept(7, "write", "/etc/hosts", mustJSON(t, map[string]any{"content": "127.0.0.1 mock"}))
	if !intercepted {
		t.Fatal("write to a target the world will shadow must always intercept")
	}
	var writeOK struct {
		Success      bool `json:"success"`
		BytesWritten int  `json:"bytes_written"`
	}
	if err := json.Unmarshal(writeResp, &writeOK); err != nil || !writeOK.Success {
		t.Fatalf("unexpected write response: %s (err=%v)", writeResp, err)
	}

	readResp, intercepted := m.Intercept(7, "read", "/etc/hosts", nil)
	if !intercepted {
		t.Fatal("read of a now-shadowed path must intercept")
	}
	var readOK struct {
		Success bool   `json:"success"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(readResp, &readOK); err != nil || !readOK.Success {
		t.Fatalf("unexpected read response: %s (err=%v)", readResp, err)
	}
	if readOK.Content != "127.0.0.1 mock" {
		t.Fatalf("content = %q, want %q", readOK.Content, "127.0.0.1 mock")
	}
}

func TestInterceptExecHTTPOnlyViaChaosRule(t *testing.T) {
	m := newTestManager(t)
	w := m.create("flaky", []ChaosRule{{Prefix: "https://api.example.com", FaultProbability: 1}})
	if _, _, err := m.join(9, w.ID, nil); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, intercepted := m.Intercept(9, "exec", "ls", nil); intercepted {
		t.Fatal("exec with no matching chaos rule must not intercept")
	}

	resp, intercepted := m.Intercept(9, "http", "https://api.example.com/v1/widgets", nil)
	if !intercepted {
		t.Fatal("http matching a 100%% fault rule must intercept")
	}
	var failed struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp, &failed); err != nil || failed.Success {
		t.Fatalf("expected a failure response, got %s (err=%v)", resp, err)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := newTestManager(t)
	w := m.create("durable", []ChaosRule{{Prefix: "/tmp", LatencyMS: 5}})
	w.setFileBytes("config.json", []byte(`{"debug":true}`))
	w.appendEvent("boot", []byte(`{"ok":true}`))

	data, digest1, err := snapshotOf(w)
	if err != nil {
		t.Fatalf("snapshotOf: %v", err)
	}
	if digest1 == "" {
		t.Fatal("expected a non-empty digest")
	}

	restored, err := restoreFrom(data)
	if err != nil {
		t.Fatalf("restoreFrom: %v", err)
	}
	content, ok := restored.fileBytes("config.json")
	if !ok || string(content) != `{"debug":true}` {
		t.Fatalf("restored file content = %q, ok=%v", content, ok)
	}
	if len(restored.eventsSince(0)) != 1 {
		t.Fatalf("expected 1 restored event, got %d", len(restored.eventsSince(0)))
	}

	_, digest2, err := snapshotOf(restored)
	if err != nil {
		t.Fatalf("re-snapshot: %v", err)
	}
	if digest1 != digest2 {
		t.Fatalf("digest changed across a restore/re-snapshot round trip: %s != %s", digest1, digest2)
	}
}

func TestHandleRestoreAssignsFreshID(t *testing.T) {
	m := newTestManager(t)
	w := m.create("original", nil)
	w.setFileBytes("a.txt", []byte("hi"))

	snapResp, err := m.handleSnapshot(mustJSON(t, map[string]any{"world_id": w.ID}))
	if err != nil {
		t.Fatalf("handleSnapshot: %v", err)
	}
	var snap struct {
		Snapshot string `json:"snapshot"`
	}
	if err := json.Unmarshal(snapResp, &snap); err != nil {
		t.Fatalf("unmarshal snapshot response: %v", err)
	}

	restoreResp, err := m.handleRestore(mustJSON(t, map[string]any{"snapshot": snap.Snapshot}))
	if err != nil {
		t.Fatalf("handleRestore: %v", err)
	}
	newID := decodeField(t, restoreResp, "world_id")
	if newID == w.ID {
		t.Fatal("restored world must not reuse the original world's id")
	}
	if m.get(newID) == nil {
		t.Fatal("restored world must be registered in the manager")
	}
}

func TestApplyChaosBoundsLatency(t *testing.T) {
	rec := &recordingClock{now: time.Unix(0, 0)}
	m := NewManager(t.TempDir(), rec)

	m.applyChaos(ChaosRule{LatencyMS: 999999, FaultProbability: 0})
	if rec.total != maxChaosLatency {
		t.Fatalf("chaos latency = %v, want it clamped to %v", rec.total, maxChaosLatency)
	}
}

func TestRollFaultBoundaries(t *testing.T) {
	m := newTestManager(t)
	if m.rollFault(0) {
		t.Fatal("probability 0 must never fault")
	}
	if !m.rollFault(1) {
		t.Fatal("probability 1 must always fault")
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

func decodeField(t *testing.T, payload json.RawMessage, field string) string {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	v, ok := m[field]
	if !ok {
		t.Fatalf("field %q not present in %s", field, payload)
	}
	s, ok := v.(string)
	if !ok {
		t.Fatalf("field %q is not a string: %v", field, v)
	}
	return s
}
