// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package mailbox implements the per-agent FIFO message queues and the
// name-to-id registry that back the IPC syscall family (SEND, RECV,
// BROADCAST, REGISTER).
package mailbox

import (
	"errors"
	"time"

	"github.com/clove-kernel/clove/internal/clock"
)

// ErrNotFound is returned by Send when the target id is zero and the
// target name is not in the registry.
var ErrNotFound = errors.New("mailbox: target not found")

// ErrNameTaken is returned by Register when the name is already bound
// to a different agent.
var ErrNameTaken = errors.New("mailbox: name already registered")

// DefaultRecvMax is the default message count returned by Recv when
// the caller does not specify max.
const DefaultRecvMax = 10

// Message is one queued entry, timestamped at enqueue time so Recv can
// report an age.
type Message struct {
	From     uint32
	FromName string
	Payload  any
	At       time.Time
}

// Delivered is a Message annotated with its age at dequeue time, the
// shape Recv hands back to callers.
type Delivered struct {
	From     uint32
	FromName string
	Payload  any
	AgeMS    int64
}

// Box is the per-agent queue and the shared registry, owned by the
// kernel's event loop and touched from nowhere else.
type Box struct {
	clk      clock.Clock
	queues   map[uint32][]Message
	idToName map[uint32]string
	nameToID map[string]uint32
}

// New creates an empty Box.
func New(clk clock.Clock) *Box {
	if clk == nil {
		clk = clock.Real()
	}
	return &Box{
		clk:      clk,
		queues:   make(map[uint32][]Message),
		idToName: make(map[uint32]string),
		nameToID: make(map[string]uint32),
	}
}

// resolve turns a (id, name) pair into a concrete target id. id takes
// priority if nonzero; name is consulted otherwise. A nonzero id always
// resolves: neither the mailbox nor the dispatcher's SEND handler checks
// that it belongs to a live agent.
func (b *Box) resolve(id uint32, name string) (uint32, bool) {
	if id != 0 {
		return id, true
	}
	if name != "" {
		if target, ok := b.nameToID[name]; ok {
			return target, true
		}
	}
	return 0, false
}

// Send resolves the target by id or name and enqueues one message.
// Returns the resolved target id.
func (b *Box) Send(fromID uint32, fromName string, toID uint32, toName string, payload any) (uint32, error) {
	target, ok := b.resolve(toID, toName)
	if !ok {
		return 0, ErrNotFound
	}
	b.enqueue(target, Message{From: fromID, FromName: fromName, Payload: payload, At: b.clk.Now()})
	return target, nil
}

func (b *Box) enqueue(target uint32, msg Message) {
	b.queues[target] = append(b.queues[target], msg)
}

// Recv dequeues up to max messages for the caller, FIFO, never
// blocking. max <= 0 means DefaultRecvMax.
func (b *Box) Recv(agentID uint32, max int) []Delivered {
	if max <= 0 {
		max = DefaultRecvMax
	}
	q := b.queues[agentID]
	if len(q) == 0 {
		return nil
	}
	n := max
	if n > len(q) {
		n = len(q)
	}
	now := b.clk.Now()
	out := make([]Delivered, n)
	for i := 0; i < n; i++ {
		out[i] = Delivered{
			From:     q[i].From,
			FromName: q[i].FromName,
			Payload:  q[i].Payload,
			AgeMS:    now.Sub(q[i].At).Milliseconds(),
		}
	}
	remaining := q[n:]
	if len(remaining) == 0 {
		delete(b.queues, agentID)
	} else {
		b.queues[agentID] = remaining
	}
	return out
}

// Broadcast snapshots the registry and enqueues one copy of payload
// per registered agent. If includeSender is false, the sender's own
// entry (if registered) is skipped. Returns the count delivered.
func (b *Box) Broadcast(fromID uint32, fromName string, payload any, includeSender bool) int {
	now := b.clk.Now()
	delivered := 0
	for _, id := range b.nameToID {
		if !includeSender && id == fromID {
			continue
		}
		b.enqueue(id, Message{From: fromID, FromName: fromName, Payload: payload, At: now})
		delivered++
	}
	return delivered
}

// Register binds name to agentID. Succeeds if the name is free or
// already bound to this same agent (idempotent re-registration).
func (b *Box) Register(agentID uint32, name string) error {
	if existing, ok := b.nameToID[name]; ok && existing != agentID {
		return ErrNameTaken
	}
	if oldName, ok := b.idToName[agentID]; ok && oldName != name {
		delete(b.nameToID, oldName)
	}
	b.nameToID[name] = agentID
	b.idToName[agentID] = name
	return nil
}

// NameOf returns the registered name for agentID, if any.
func (b *Box) NameOf(agentID uint32) (string, bool) {
	name, ok := b.idToName[agentID]
	return name, ok
}

// IDOf returns the registered id for name, if any.
func (b *Box) IDOf(name string) (uint32, bool) {
	id, ok := b.nameToID[name]
	return id, ok
}

// Forget removes an agent's queue and registry entries, called when an
// agent is killed or reaped.
func (b *Box) Forget(agentID uint32) {
	delete(b.queues, agentID)
	if name, ok := b.idToName[agentID]; ok {
		delete(b.nameToID, name)
		delete(b.idToName, agentID)
	}
}
