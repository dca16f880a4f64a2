// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package world implements the optional overlay that intercepts
// filesystem and network calls for agents that have joined it
// (WORLD_CREATE through WORLD_RESTORE, 0xA0-0xA8). A joined agent's
// READ/WRITE syscalls are offered to the world's in-memory VFS, and
// its EXEC/HTTP syscalls to the world's chaos rules, before ever
// reaching the real operation; HTTP responses are not mocked. A go-fuse
// mount additionally exposes the same virtual files at a real
// mountpoint so plain POSIX access from the agent's own process sees
// the same shadowed content.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clove-kernel/clove/internal/clock"
)

var (
	errWorldNotFound = errors.New("world not found")
	errAlreadyJoined = errors.New("agent has already joined a world")
)

// ChaosRule declares injected latency and fault probability for paths
// or domains matching Prefix. Prefix is matched against the read/
// write path or the HTTP URL, whichever the intercepted op concerns.
type ChaosRule struct {
	Prefix           string  `json:"prefix"`
	LatencyMS        int     `json:"latency_ms,omitempty"`
	FaultProbability float64 `json:"fault_probability,omitempty"`
}

// maxChaosLatency bounds any single injected sleep regardless of what
// a rule declares — chaos injection must never turn into an
// indefinite stall.
const maxChaosLatency = 2 * time.Second

// worldEvent is one entry in a world's append-only event log, surfaced
// through WORLD_EVENT.
type worldEvent struct {
	Seq  uint64    `json:"seq" cbor:"1,keyasint"`
	Type string    `json:"type" cbor:"2,keyasint"`
	Data []byte    `json:"data,omitempty" cbor:"3,keyasint"`
	At   time.Time `json:"at" cbor:"4,keyasint"`
}

// World holds the shadowed files, chaos rules and event log of one
// joined-overlay instance.
type World struct {
	mu sync.Mutex

	ID        string
	Name      string
	CreatedAt time.Time
	Files     map[string][]byte
	Chaos     []ChaosRule
	Events    []worldEvent
	Members   map[uint32]bool
	nextSeq   uint64
}

// fileBytes returns a copy of the named virtual file's content.
func (w *World) fileBytes(name string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.Files[name]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// setFileBytes overwrites (or creates) the named virtual file.
func (w *World) setFileBytes(name string, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Files == nil {
		w.Files = make(map[string][]byte)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	w.Files[name] = stored
}

// fileNames returns a snapshot of the currently known virtual file names.
func (w *World) fileNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.Files))
	for name := range w.Files {
		names = append(names, name)
	}
	return names
}

// chaosFor finds the first rule whose prefix matches target, if any.
func (w *World) chaosFor(target string) (ChaosRule, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rule := range w.Chaos {
		if rule.Prefix == "" || hasPrefix(target, rule.Prefix) {
			return rule, true
		}
	}
	return ChaosRule{}, false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// appendEvent records a new event and returns it.
func (w *World) appendEvent(eventType string, data []byte) worldEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSeq++
	ev := worldEvent{Seq: w.nextSeq, Type: eventType, Data: data, At: time.Now()}
	w.Events = append(w.Events, ev)
	return ev
}

// eventsSince returns events with Seq > sinceSeq, oldest first.
func (w *World) eventsSince(sinceSeq uint64) []worldEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []worldEvent
	for _, ev := range w.Events {
		if ev.Seq > sinceSeq {
			out = append(out, ev)
		}
	}
	return out
}

// summary is the read-only state snapshot returned by WORLD_STATE.
type summary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	MemberCount int         `json:"member_count"`
	FileCount   int         `json:"file_count"`
	EventCount  int         `json:"event_count"`
	Chaos       []ChaosRule `json:"chaos"`
}

func (w *World) summary() summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return summary{
		ID:          w.ID,
		Name:        w.Name,
		MemberCount: len(w.Members),
		FileCount:   len(w.Files),
		EventCount:  len(w.Events),
		Chaos:       w.Chaos,
	}
}

// Manager owns every live world and the per-agent FUSE mounts of
// joined agents. All exported methods lock internally and are safe to
// call from the dispatcher's single event loop goroutine or from
// tests driving it directly.
type Manager struct {
	mu        sync.Mutex
	worlds    map[string]*World
	mounts    map[uint32]*agentMount
	mountRoot string
	clk       clock.Clock
	rng       *rand.Rand
}

// agentMount tracks the go-fuse server backing one joined agent.
type agentMount struct {
	worldID string
	path    string
	server  fuseServer
}

// NewManager builds a Manager. mountRoot is the base directory under
// which per-agent FUSE mounts are created (one subdirectory per
// world/agent pair); it is created on first Join if missing.
func NewManager(mountRoot string, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{
		worlds:    make(map[string]*World),
		mounts:    make(map[uint32]*agentMount),
		mountRoot: mountRoot,
		clk:       clk,
		rng:       rand.New(rand.NewSource(clk.Now().UnixNano())),
	}
}

// create registers a new World and returns it.
func (m *Manager) create(name string, chaos []ChaosRule) *World {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &World{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
		Files:     make(map[string][]byte),
		Chaos:     chaos,
		Members:   make(map[uint32]bool),
	}
	m.worlds[w.ID] = w
	return w
}

// get returns the world with the given id, or nil.
func (m *Manager) get(id string) *World {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.worlds[id]
}

// list returns every known world.
func (m *Manager) list() []*World {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*World, 0, len(m.worlds))
	for _, w := range m.worlds {
		out = append(out, w)
	}
	return out
}

// destroy removes a world and unmounts every agent still joined to it.
func (m *Manager) destroy(id string) bool {
	m.mu.Lock()
	w, ok := m.worlds[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.worlds, id)
	var toUnmount []uint32
	for agentID, mnt := range m.mounts {
		if mnt.worldID == id {
			toUnmount = append(toUnmount, agentID)
		}
	}
	m.mu.Unlock()

	for _, agentID := range toUnmount {
		m.unmount(agentID)
	}
	_ = w
	return true
}

// worldOf returns the world a given agent has joined, or nil if none.
func (m *Manager) worldOf(agentID uint32) *World {
	m.mu.Lock()
	defer m.mu.Unlock()
	mnt, ok := m.mounts[agentID]
	if !ok {
		return nil
	}
	return m.worlds[mnt.worldID]
}

// join adds agentID to the world's membership and mounts its virtual
// files at <mountRoot>/<worldID>/<agentID>. A mount failure does not
// block membership: the in-process Intercept path still shadows the
// agent's READ/WRITE/HTTP syscalls, only the real-filesystem view is
// unavailable, matching the sandbox package's degrade-and-continue
// precedent for best-effort isolation.
func (m *Manager) join(agentID uint32, worldID string, logger *slog.Logger) (mountPath string, mounted bool, err error) {
	m.mu.Lock()
	w, ok := m.worlds[worldID]
	if !ok {
		m.mu.Unlock()
		return "", false, errWorldNotFound
	}
	w.mu.Lock()
	w.Members[agentID] = true
	w.mu.Unlock()
	if _, already := m.mounts[agentID]; already {
		m.mu.Unlock()
		return "", false, errAlreadyJoined
	}
	m.mu.Unlock()

	path := filepath.Join(m.mountRoot, worldID, fmt.Sprintf("%d", agentID))
	server, mountErr := mountWorld(path, w, logger)

	m.mu.Lock()
	m.mounts[agentID] = &agentMount{worldID: worldID, path: path, server: server}
	m.mu.Unlock()

	if mountErr != nil {
		return path, false, nil
	}
	return path, true, nil
}

// leave removes agentID's membership and unmounts its FUSE server, if any.
func (m *Manager) leave(agentID uint32) bool {
	m.mu.Lock()
	mnt, ok := m.mounts[agentID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.mounts, agentID)
	w := m.worlds[mnt.worldID]
	m.mu.Unlock()

	if w != nil {
		w.mu.Lock()
		delete(w.Members, agentID)
		w.mu.Unlock()
	}
	if mnt.server != nil {
		_ = mnt.server.Unmount()
	}
	return true
}

// unmount is leave's internal counterpart used by destroy, which has
// already removed the world from m.worlds.
func (m *Manager) unmount(agentID uint32) {
	m.mu.Lock()
	mnt, ok := m.mounts[agentID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.mounts, agentID)
	m.mu.Unlock()

	if mnt.server != nil {
		_ = mnt.server.Unmount()
	}
}

// rollFault reports whether a fault should be injected given a
// probability in [0,1].
func (m *Manager) rollFault(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < p
}

// applyChaos sleeps for the rule's declared latency, bounded by
// maxChaosLatency, and reports whether a fault should be injected
// instead of the real/mocked response.
func (m *Manager) applyChaos(rule ChaosRule) (fault bool) {
	latency := time.Duration(rule.LatencyMS) * time.Millisecond
	if latency > maxChaosLatency {
		latency = maxChaosLatency
	}
	if latency > 0 {
		m.clk.Sleep(latency)
	}
	return m.rollFault(rule.FaultProbability)
}
