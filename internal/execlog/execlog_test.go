// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package execlog

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/clove-kernel/clove/internal/clock"
	"github.com/clove-kernel/clove/internal/wire"
	"github.com/zeebo/blake3"
)

// TestRecordFilter covers testable property #11: a syscall is
// recorded only when active, agent-matched, not read-only, and (for
// nondeterministic opcodes) explicitly included.
func TestRecordFilter(t *testing.T) {
	r := NewRecorder(clock.Real())

	if r.ShouldRecord(1, wire.OpStore) {
		t.Error("ShouldRecord true while Idle")
	}

	r.Start(RecordOptions{})
	if !r.ShouldRecord(1, wire.OpStore) {
		t.Error("ordinary deterministic opcode should record once active")
	}
	if r.ShouldRecord(1, wire.OpList) {
		t.Error("read-only opcode LIST must never record")
	}
	if r.ShouldRecord(1, wire.OpThink) {
		t.Error("THINK must not record without include_think")
	}

	r.Start(RecordOptions{IncludeThink: true})
	if !r.ShouldRecord(1, wire.OpThink) {
		t.Error("THINK should record with include_think=true")
	}
	if r.ShouldRecord(1, wire.OpHTTP) {
		t.Error("HTTP must not record without include_http")
	}
}

func TestRecordFilterByAgent(t *testing.T) {
	r := NewRecorder(clock.Real())
	r.Start(RecordOptions{FilterAgents: []uint32{5}})

	if r.ShouldRecord(1, wire.OpStore) {
		t.Error("non-matching agent must be filtered out")
	}
	if !r.ShouldRecord(5, wire.OpStore) {
		t.Error("matching agent must pass the filter")
	}
}

func TestRecordStateMachine(t *testing.T) {
	r := NewRecorder(clock.Real())
	if r.State() != RecordIdle {
		t.Fatalf("initial state = %v, want Idle", r.State())
	}
	r.Start(RecordOptions{})
	if r.State() != RecordRecording {
		t.Fatalf("state after Start = %v, want Recording", r.State())
	}
	if err := r.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if r.State() != RecordPaused {
		t.Fatalf("state after Pause = %v, want Paused", r.State())
	}
	if err := r.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	entries := r.Stop()
	if r.State() != RecordIdle {
		t.Fatalf("state after Stop = %v, want Idle", r.State())
	}
	if entries != nil {
		t.Fatalf("entries = %v, want nil (nothing recorded)", entries)
	}
}

func TestRecordOverflowPopsOldest(t *testing.T) {
	r := NewRecorder(clock.Real())
	r.Start(RecordOptions{MaxEntries: 3})
	for i := 0; i < 5; i++ {
		r.Record(uint32(i), wire.OpStore, nil, nil, 0, true)
	}
	entries := r.Stop()
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].AgentID != 2 {
		t.Fatalf("oldest surviving AgentID = %d, want 2", entries[0].AgentID)
	}
}

func TestExportProducesStableDigest(t *testing.T) {
	entries := []Entry{{ID: 1, AgentID: 1, Opcode: wire.OpStore, OpcodeName: "STORE", Payload: json.RawMessage(`{"k":1}`)}}
	data1, digest1, err := Export(entries)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	data2, digest2, err := Export(entries)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if string(data1) != string(data2) || digest1 != digest2 {
		t.Fatal("Export is not deterministic for identical input")
	}

	tampered := append([]byte{}, data1...)
	tampered[len(tampered)-2] = '9'
	sum := fmt.Sprintf("%x", blake3.Sum256(tampered))
	if sum == digest1 {
		t.Fatal("digest did not change after tampering with the export bytes")
	}
}

func TestReplayStateMachine(t *testing.T) {
	p := NewPlayer()
	if err := p.Start(nil); err == nil {
		t.Fatal("Start with no entries should fail")
	}

	entries := []Entry{
		{ID: 1, AgentID: 1, Opcode: wire.OpStore},
		{ID: 2, AgentID: 1, Opcode: wire.OpFetch},
	}
	if err := p.Start(entries); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.Status().State != ReplayRunning {
		t.Fatalf("state = %v, want Running", p.Status().State)
	}

	e, ok := p.GetNext()
	if !ok || e.ID != 1 {
		t.Fatalf("GetNext = %+v, %v", e, ok)
	}
	p.Advance(false)

	e, ok = p.GetNext()
	if !ok || e.ID != 2 {
		t.Fatalf("GetNext (2nd) = %+v, %v", e, ok)
	}
	p.Advance(true)

	status := p.Status()
	if status.State != ReplayCompleted {
		t.Fatalf("state after draining = %v, want Completed", status.State)
	}
	if status.EntriesReplayed != 1 || status.EntriesSkipped != 1 {
		t.Fatalf("status = %+v, want 1 replayed, 1 skipped", status)
	}
}

func TestReplayPauseResume(t *testing.T) {
	p := NewPlayer()
	p.Start([]Entry{{ID: 1}})
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, ok := p.GetNext(); ok {
		t.Fatal("GetNext must return false while Paused")
	}
	if err := p.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, ok := p.GetNext(); !ok {
		t.Fatal("GetNext should succeed after Resume")
	}
}
