// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"testing"
	"time"

	"github.com/clove-kernel/clove/internal/clock"
)

func TestStoreFetchGlobal(t *testing.T) {
	s := New(clock.Real())
	s.Store(1, "color", "blue", ScopeGlobal, 0)
	v, ok := s.Fetch(2, "color")
	if !ok || v.Value != "blue" {
		t.Fatalf("Fetch = %+v, %v, want blue/true", v, ok)
	}
}

func TestStoreFetchIsGlobalFlag(t *testing.T) {
	s := New(clock.Real())
	if !s.Store(1, "k", "v", ScopeGlobal, 0) {
		t.Error("Store global should report isGlobal=true")
	}
	if s.Store(1, "k2", "v", ScopeAgent, 0) {
		t.Error("Store agent-scoped should report isGlobal=false")
	}
}

// TestScopeIsolation covers testable property #4: an agent-scoped
// value is invisible to a caller other than its owner.
func TestScopeIsolation(t *testing.T) {
	s := New(clock.Real())
	s.Store(1, "secret", 42, ScopeAgent, 0)

	if v, ok := s.Fetch(1, "secret"); !ok || v.Value != 42 {
		t.Fatalf("owner Fetch = %+v, %v, want 42/true", v, ok)
	}
	if _, ok := s.Fetch(2, "secret"); ok {
		t.Fatal("non-owner fetched an agent-scoped value")
	}
}

func TestFetchFallsBackFromAgentToPlainKey(t *testing.T) {
	s := New(clock.Real())
	s.Store(0, "shared", "plain-value", ScopeGlobal, 0)

	v, ok := s.Fetch(5, "shared")
	if !ok || v.Value != "plain-value" {
		t.Fatalf("Fetch = %+v, %v, want plain-value/true", v, ok)
	}
}

// TestTTLExpiryEvictsLazily covers testable property #5.
func TestTTLExpiryEvictsLazily(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	s := New(clk)
	s.Store(1, "temp", "x", ScopeGlobal, 100*time.Millisecond)

	if _, ok := s.Fetch(1, "temp"); !ok {
		t.Fatal("value expired before TTL elapsed")
	}

	clk.Advance(150 * time.Millisecond)
	if _, ok := s.Fetch(1, "temp"); ok {
		t.Fatal("expired value still fetchable")
	}
	if _, present := s.entries["temp"]; present {
		t.Fatal("expired entry was not evicted from the map")
	}
}

func TestDeleteRequiresOwnershipUnlessGlobal(t *testing.T) {
	s := New(clock.Real())
	s.Store(1, "mine", "x", ScopeAgent, 0)

	if s.Delete(2, "mine") {
		t.Fatal("non-owner deleted an agent-scoped value")
	}
	if !s.Delete(1, "mine") {
		t.Fatal("owner failed to delete its own value")
	}

	s.Store(0, "pub", "x", ScopeGlobal, 0)
	if !s.Delete(99, "pub") {
		t.Fatal("any caller should be able to delete a global value")
	}
}

func TestKeysStripsAgentPrefixAndFiltersByAccess(t *testing.T) {
	s := New(clock.Real())
	s.Store(1, "note", "a", ScopeAgent, 0)
	s.Store(2, "note", "b", ScopeAgent, 0)
	s.Store(0, "shared_note", "c", ScopeGlobal, 0)

	keys := s.Keys(1, "")
	want := map[string]bool{"note": true, "shared_note": true}
	if len(keys) != 2 {
		t.Fatalf("Keys(1) = %v, want 2 entries", keys)
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected key %q in caller 1's view", k)
		}
	}
}

func TestKeysPrefixFilter(t *testing.T) {
	s := New(clock.Real())
	s.Store(0, "config_a", 1, ScopeGlobal, 0)
	s.Store(0, "config_b", 2, ScopeGlobal, 0)
	s.Store(0, "other", 3, ScopeGlobal, 0)

	keys := s.Keys(1, "config_")
	if len(keys) != 2 {
		t.Fatalf("Keys with prefix = %v, want 2", keys)
	}
}

func TestForgetRemovesOnlyAgentScopedEntries(t *testing.T) {
	s := New(clock.Real())
	s.Store(1, "priv", "x", ScopeAgent, 0)
	s.Store(0, "pub", "y", ScopeGlobal, 0)

	s.Forget(1)

	if _, ok := s.Fetch(1, "priv"); ok {
		t.Error("agent-scoped entry survived Forget")
	}
	if _, ok := s.Fetch(1, "pub"); !ok {
		t.Error("global entry was wrongly removed by Forget")
	}
}
