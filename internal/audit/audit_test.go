// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"strings"
	"testing"

	"github.com/clove-kernel/clove/internal/clock"
)

func TestLogDropsDisabledCategory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogIPC = false
	l := New(cfg, clock.Real())

	if id := l.Log(CategoryIPC, "SEND", 1, "a", nil, true); id != 0 {
		t.Fatalf("Log on disabled category returned id %d, want 0", id)
	}
	if l.EntryCount() != 0 {
		t.Fatalf("EntryCount = %d, want 0", l.EntryCount())
	}
}

func TestLogAssignsIncreasingIDs(t *testing.T) {
	l := New(DefaultConfig(), clock.Real())
	id1 := l.LogLifecycle("SPAWN", 1, "a", true, nil)
	id2 := l.LogLifecycle("SPAWN", 2, "b", true, nil)
	if id1 == 0 || id2 <= id1 {
		t.Fatalf("ids not increasing: %d, %d", id1, id2)
	}
}

func TestOverflowPopsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 3
	l := New(cfg, clock.Real())

	for i := 0; i < 5; i++ {
		l.LogLifecycle("SPAWN", uint32(i), "", true, nil)
	}
	if l.EntryCount() != 3 {
		t.Fatalf("EntryCount = %d, want 3", l.EntryCount())
	}
	entries := l.Get(QueryFilter{})
	if entries[0].AgentID != 2 {
		t.Fatalf("oldest surviving entry AgentID = %d, want 2", entries[0].AgentID)
	}
}

func TestGetFiltersByCategoryAgentAndSinceID(t *testing.T) {
	l := New(DefaultConfig(), clock.Real())
	l.LogLifecycle("SPAWN", 1, "a", true, nil)
	id2 := l.LogSecurity("PERMISSION_DENIED", 2, "b", nil)
	l.LogLifecycle("SPAWN", 1, "a", true, nil)

	sec := CategorySecurity
	results := l.Get(QueryFilter{Category: &sec})
	if len(results) != 1 || results[0].ID != id2 {
		t.Fatalf("category filter = %+v, want only the SECURITY entry", results)
	}

	agent := uint32(1)
	results = l.Get(QueryFilter{AgentID: &agent})
	if len(results) != 2 {
		t.Fatalf("agent filter = %d results, want 2", len(results))
	}

	results = l.Get(QueryFilter{SinceID: id2})
	if len(results) != 1 {
		t.Fatalf("since_id filter = %d results, want 1", len(results))
	}
}

func TestGetLimitCapsToMostRecent(t *testing.T) {
	l := New(DefaultConfig(), clock.Real())
	for i := 0; i < 10; i++ {
		l.LogLifecycle("SPAWN", uint32(i), "", true, nil)
	}
	results := l.Get(QueryFilter{Limit: 3})
	if len(results) != 3 {
		t.Fatalf("len = %d, want 3", len(results))
	}
	if results[2].AgentID != 9 {
		t.Fatalf("last entry AgentID = %d, want 9 (most recent)", results[2].AgentID)
	}
}

func TestExportJSONLOneEntryPerLine(t *testing.T) {
	l := New(DefaultConfig(), clock.Real())
	l.LogLifecycle("SPAWN", 1, "a", true, map[string]int{"pid": 123})
	l.LogLifecycle("SPAWN", 2, "b", true, nil)

	out, err := l.ExportJSONL(0)
	if err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"pid":123`) {
		t.Errorf("first line missing embedded details: %s", lines[0])
	}
}

func TestSetConfigTrimsToNewMax(t *testing.T) {
	l := New(DefaultConfig(), clock.Real())
	for i := 0; i < 5; i++ {
		l.LogLifecycle("SPAWN", uint32(i), "", true, nil)
	}
	cfg := l.Config()
	cfg.MaxEntries = 2
	l.SetConfig(cfg)

	if l.EntryCount() != 2 {
		t.Fatalf("EntryCount after SetConfig shrink = %d, want 2", l.EntryCount())
	}
}
