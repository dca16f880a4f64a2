// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package kv implements the scoped, TTL'd key-value store behind the
// STORE/FETCH/DELETE/KEYS syscalls.
package kv

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clove-kernel/clove/internal/clock"
)

// Scope controls who may see and mutate a stored value.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeAgent
	ScopeSession
)

func (s Scope) String() string {
	switch s {
	case ScopeAgent:
		return "agent"
	case ScopeSession:
		return "session"
	default:
		return "global"
	}
}

// ParseScope maps the wire string to a Scope, defaulting to global.
func ParseScope(s string) Scope {
	switch s {
	case "agent":
		return ScopeAgent
	case "session":
		return ScopeSession
	default:
		return ScopeGlobal
	}
}

// StoredValue is one entry in the store.
type StoredValue struct {
	Key       string
	Value     any
	Scope     Scope
	OwnerID   uint32
	StoredAt  time.Time
	ExpiresAt time.Time // zero means no TTL
}

func (v StoredValue) expired(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && !now.Before(v.ExpiresAt)
}

// agentPrefix builds the internal key used for agent-scoped entries.
func agentPrefix(agentID uint32, key string) string {
	return fmt.Sprintf("agent:%d:%s", agentID, key)
}

// Store holds every entry, owned by the kernel's event loop.
type Store struct {
	clk     clock.Clock
	entries map[string]StoredValue
}

// New creates an empty Store.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{clk: clk, entries: make(map[string]StoredValue)}
}

// Store writes a value under the given scope. For ScopeAgent the key
// is rewritten with the internal agent:<id>: prefix so two agents
// never collide on the same bare key name. ttl of 0 means no expiry.
// Reports whether the write was global scope, so the dispatcher knows
// to emit STATE_CHANGED.
func (s *Store) Store(callerID uint32, key string, value any, scope Scope, ttl time.Duration) (isGlobal bool) {
	internalKey := key
	if scope == ScopeAgent {
		internalKey = agentPrefix(callerID, key)
	}

	now := s.clk.Now()
	entry := StoredValue{
		Key:      internalKey,
		Value:    value,
		Scope:    scope,
		OwnerID:  callerID,
		StoredAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	s.entries[internalKey] = entry
	return scope == ScopeGlobal
}

// Fetch tries the caller's agent-scoped key first, then the plain
// key, evicting expired entries as it goes and applying the access
// rule (global and session entries are visible to every caller; agent
// entries only to their owner).
func (s *Store) Fetch(callerID uint32, key string) (StoredValue, bool) {
	now := s.clk.Now()

	if scoped, ok := s.entries[agentPrefix(callerID, key)]; ok {
		if scoped.expired(now) {
			delete(s.entries, agentPrefix(callerID, key))
		} else if s.accessible(scoped, callerID) {
			return scoped, true
		}
	}

	if plain, ok := s.entries[key]; ok {
		if plain.expired(now) {
			delete(s.entries, key)
			return StoredValue{}, false
		}
		if s.accessible(plain, callerID) {
			return plain, true
		}
	}
	return StoredValue{}, false
}

func (s *Store) accessible(v StoredValue, callerID uint32) bool {
	if v.Scope == ScopeGlobal || v.Scope == ScopeSession {
		return true
	}
	return v.OwnerID == callerID
}

// Delete removes the caller's agent-scoped entry if present, else the
// plain entry, but only if the caller owns it or it is global. Returns
// whether anything was deleted.
func (s *Store) Delete(callerID uint32, key string) bool {
	scopedKey := agentPrefix(callerID, key)
	if v, ok := s.entries[scopedKey]; ok && s.accessible(v, callerID) {
		delete(s.entries, scopedKey)
		return true
	}
	if v, ok := s.entries[key]; ok && (v.Scope == ScopeGlobal || v.OwnerID == callerID) {
		delete(s.entries, key)
		return true
	}
	return false
}

// Keys sweeps all entries, evicting expired ones, and returns the
// user-visible key names (stripping the agent:<id>: prefix) accessible
// to callerID and matching prefix (empty prefix matches everything).
func (s *Store) Keys(callerID uint32, prefix string) []string {
	now := s.clk.Now()
	var out []string
	for internalKey, v := range s.entries {
		if v.expired(now) {
			delete(s.entries, internalKey)
			continue
		}
		if !s.accessible(v, callerID) {
			continue
		}
		display := displayKey(internalKey, v, callerID)
		if prefix != "" && !strings.HasPrefix(display, prefix) {
			continue
		}
		out = append(out, display)
	}
	sort.Strings(out)
	return out
}

func displayKey(internalKey string, v StoredValue, callerID uint32) string {
	if v.Scope == ScopeAgent {
		return strings.TrimPrefix(internalKey, agentPrefix(callerID, ""))
	}
	return internalKey
}

// Forget deletes every agent-scoped entry owned by agentID, called on
// agent death.
func (s *Store) Forget(agentID uint32) {
	prefix := agentPrefix(agentID, "")
	for k, v := range s.entries {
		if v.Scope == ScopeAgent && strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
}
