// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"testing"
	"time"

	"github.com/clove-kernel/clove/internal/clock"
)

func TestSubscribeAndEmitDelivers(t *testing.T) {
	b := New(clock.Real())
	b.Subscribe(1, []EventType{EventAgentSpawned})

	n := b.Emit(EventAgentSpawned, map[string]int{"id": 2}, 0)
	if n != 1 {
		t.Fatalf("notified = %d, want 1", n)
	}

	events := b.PollEvents(1, 10)
	if len(events) != 1 || events[0].Type != EventAgentSpawned {
		t.Fatalf("events = %+v", events)
	}
}

func TestEmitSkipsNonSubscribers(t *testing.T) {
	b := New(clock.Real())
	b.Subscribe(1, []EventType{EventAgentSpawned})

	n := b.Emit(EventStateChanged, nil, 0)
	if n != 0 {
		t.Fatalf("notified = %d, want 0", n)
	}
	if events := b.PollEvents(1, 10); events != nil {
		t.Fatalf("events = %+v, want none", events)
	}
}

func TestUnsubscribeSpecificType(t *testing.T) {
	b := New(clock.Real())
	b.Subscribe(1, []EventType{EventAgentSpawned, EventStateChanged})
	b.Unsubscribe(1, []EventType{EventAgentSpawned})

	if n := b.Emit(EventAgentSpawned, nil, 0); n != 0 {
		t.Errorf("still subscribed after Unsubscribe of that type")
	}
	if n := b.Emit(EventStateChanged, nil, 0); n != 1 {
		t.Errorf("other subscription was dropped")
	}
}

func TestUnsubscribeAllClearsEverything(t *testing.T) {
	b := New(clock.Real())
	b.Subscribe(1, []EventType{EventAgentSpawned, EventStateChanged})
	b.Unsubscribe(1, nil)

	if n := b.Emit(EventAgentSpawned, nil, 0); n != 0 {
		t.Error("unsubscribe-all did not clear AGENT_SPAWNED")
	}
	if n := b.Emit(EventStateChanged, nil, 0); n != 0 {
		t.Error("unsubscribe-all did not clear STATE_CHANGED")
	}
}

// TestSubscriptionFairness covers testable property #6: every
// subscriber of a type receives every matching emission, in order,
// independent of other subscribers' queue state.
func TestSubscriptionFairness(t *testing.T) {
	b := New(clock.Real())
	b.Subscribe(1, []EventType{EventCustom})
	b.Subscribe(2, []EventType{EventCustom})

	b.Emit(EventCustom, "a", 0)
	b.PollEvents(1, 10) // agent 1 drains early
	b.Emit(EventCustom, "b", 0)

	ev2 := b.PollEvents(2, 10)
	if len(ev2) != 2 || ev2[0].Data != "a" || ev2[1].Data != "b" {
		t.Fatalf("agent 2 events = %+v, want [a b] in order", ev2)
	}
}

func TestPollEventsRespectsMax(t *testing.T) {
	b := New(clock.Real())
	b.Subscribe(1, []EventType{EventCustom})
	for i := 0; i < 5; i++ {
		b.Emit(EventCustom, i, 0)
	}
	first := b.PollEvents(1, 3)
	if len(first) != 3 {
		t.Fatalf("first = %d, want 3", len(first))
	}
	second := b.PollEvents(1, 3)
	if len(second) != 2 {
		t.Fatalf("second = %d, want 2", len(second))
	}
}

func TestAgentEmittableOnlyCustom(t *testing.T) {
	if IsAgentEmittable(EventAgentSpawned) {
		t.Error("AGENT_SPAWNED must not be agent-emittable")
	}
	if !IsAgentEmittable(EventCustom) {
		t.Error("CUSTOM must be agent-emittable")
	}
}

func TestEventTimestampIsUnixMillis(t *testing.T) {
	clk := clock.Fake(time.Unix(100, 0))
	b := New(clk)
	b.Subscribe(1, []EventType{EventCustom})
	b.Emit(EventCustom, nil, 0)

	events := b.PollEvents(1, 10)
	if events[0].AtUnixMS != 100000 {
		t.Errorf("AtUnixMS = %d, want 100000", events[0].AtUnixMS)
	}
}

func TestForgetDropsSubscriptionAndQueue(t *testing.T) {
	b := New(clock.Real())
	b.Subscribe(1, []EventType{EventCustom})
	b.Emit(EventCustom, nil, 0)

	b.Forget(1)

	if n := b.Emit(EventCustom, nil, 0); n != 0 {
		t.Error("Forget did not clear subscription")
	}
	if events := b.PollEvents(1, 10); events != nil {
		t.Error("Forget did not clear queue")
	}
}
