// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package idgen hands out the globally monotonic AgentId shared by the
// socket server (assigning one id per accepted connection) and the
// supervisor (assigning one id per spawned agent) — a single counter,
// because both are names for the same id space. Zero is reserved for
// the kernel itself and is never issued.
package idgen

import "sync/atomic"

// Generator issues strictly increasing, never-reused ids.
type Generator struct {
	next atomic.Uint32
}

// New creates a Generator whose first Next() call returns 1.
func New() *Generator {
	g := &Generator{}
	g.next.Store(1)
	return g
}

// Next returns the next id and advances the counter.
func (g *Generator) Next() uint32 {
	return g.next.Add(1) - 1
}
