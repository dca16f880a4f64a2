// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventbus implements per-agent subscription sets and the
// SUBSCRIBE/UNSUBSCRIBE/POLL_EVENTS/EMIT syscall family, plus the
// kernel-emitted lifecycle event types that the supervisor, state
// store, and dispatcher push in.
package eventbus

import (
	"github.com/clove-kernel/clove/internal/clock"
)

// EventType identifies the kind of a KernelEvent.
type EventType string

const (
	EventAgentSpawned    EventType = "AGENT_SPAWNED"
	EventAgentExited     EventType = "AGENT_EXITED"
	EventAgentRestarting EventType = "AGENT_RESTARTING"
	EventAgentEscalated  EventType = "AGENT_ESCALATED"
	EventAgentPaused     EventType = "AGENT_PAUSED"
	EventAgentResumed    EventType = "AGENT_RESUMED"
	EventStateChanged    EventType = "STATE_CHANGED"
	EventSyscallBlocked  EventType = "SYSCALL_BLOCKED"
	EventCustom          EventType = "CUSTOM"
	EventTunnelData      EventType = "TUNNEL_DATA"
)

// kernelOnly is the set of types an agent may never EMIT directly —
// only the supervisor, state store, and dispatcher produce them.
var kernelOnly = map[EventType]bool{
	EventAgentSpawned:    true,
	EventAgentExited:     true,
	EventAgentRestarting: true,
	EventAgentEscalated:  true,
	EventAgentPaused:     true,
	EventAgentResumed:    true,
	EventStateChanged:    true,
	EventSyscallBlocked:  true,
	EventTunnelData:      true,
}

// IsAgentEmittable reports whether t is outside the kernel-sourced
// set. Of the types declared here only CUSTOM is; a type name not
// declared here also reports true.
func IsAgentEmittable(t EventType) bool {
	return !kernelOnly[t]
}

// KernelEvent is one queued, timestamped event.
type KernelEvent struct {
	Type     EventType
	Data     any
	SourceID uint32
	AtUnixMS int64
}

// Bus owns every agent's subscription set and event queue.
type Bus struct {
	clk           clock.Clock
	subscriptions map[uint32]map[EventType]bool
	queues        map[uint32][]KernelEvent
}

// New creates an empty Bus.
func New(clk clock.Clock) *Bus {
	if clk == nil {
		clk = clock.Real()
	}
	return &Bus{
		clk:           clk,
		subscriptions: make(map[uint32]map[EventType]bool),
		queues:        make(map[uint32][]KernelEvent),
	}
}

// Subscribe adds types to agentID's subscription set.
func (b *Bus) Subscribe(agentID uint32, types []EventType) {
	set, ok := b.subscriptions[agentID]
	if !ok {
		set = make(map[EventType]bool)
		b.subscriptions[agentID] = set
	}
	for _, t := range types {
		set[t] = true
	}
}

// Unsubscribe removes types from agentID's subscription set. If types
// is empty, clears the whole set ("unsubscribe all").
func (b *Bus) Unsubscribe(agentID uint32, types []EventType) {
	set, ok := b.subscriptions[agentID]
	if !ok {
		return
	}
	if len(types) == 0 {
		delete(b.subscriptions, agentID)
		return
	}
	for _, t := range types {
		delete(set, t)
	}
}

// Emit snapshots the subscriber set for eventType and pushes the
// event into each matching subscriber's queue. Returns the number of
// subscribers notified.
func (b *Bus) Emit(eventType EventType, data any, sourceID uint32) int {
	evt := KernelEvent{
		Type:     eventType,
		Data:     data,
		SourceID: sourceID,
		AtUnixMS: b.clk.Now().UnixMilli(),
	}
	notified := 0
	for agentID, set := range b.subscriptions {
		if set[eventType] {
			b.queues[agentID] = append(b.queues[agentID], evt)
			notified++
		}
	}
	return notified
}

// PollEvents drains up to max events from the caller's queue, FIFO.
func (b *Bus) PollEvents(agentID uint32, max int) []KernelEvent {
	if max <= 0 {
		max = 10
	}
	q := b.queues[agentID]
	if len(q) == 0 {
		return nil
	}
	n := max
	if n > len(q) {
		n = len(q)
	}
	out := make([]KernelEvent, n)
	copy(out, q[:n])
	remaining := q[n:]
	if len(remaining) == 0 {
		delete(b.queues, agentID)
	} else {
		b.queues[agentID] = remaining
	}
	return out
}

// Forget drops agentID's subscription set and queued events, called
// when the agent dies.
func (b *Bus) Forget(agentID uint32) {
	delete(b.subscriptions, agentID)
	delete(b.queues, agentID)
}
