// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package mailbox

import (
	"testing"
	"time"

	"github.com/clove-kernel/clove/internal/clock"
)

func TestSendRecvByID(t *testing.T) {
	b := New(clock.Real())
	target, err := b.Send(1, "alpha", 2, "", map[string]int{"k": 1})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if target != 2 {
		t.Fatalf("target = %d, want 2", target)
	}
	msgs := b.Recv(2, 10)
	if len(msgs) != 1 {
		t.Fatalf("Recv count = %d, want 1", len(msgs))
	}
	if msgs[0].From != 1 || msgs[0].FromName != "alpha" {
		t.Errorf("unexpected sender: %+v", msgs[0])
	}
}

func TestSendByNameResolution(t *testing.T) {
	b := New(clock.Real())
	if err := b.Register(42, "alpha"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	target, err := b.Send(7, "bob", 0, "alpha", map[string]int{"k": 1})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if target != 42 {
		t.Fatalf("target = %d, want 42", target)
	}
}

func TestSendUnresolvedNameFails(t *testing.T) {
	b := New(clock.Real())
	if _, err := b.Send(1, "a", 0, "ghost", "hi"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// TestRegisterInjective covers testable property #3: a name maps to
// exactly one id at any time, and re-registering the same name by a
// different agent fails.
func TestRegisterInjective(t *testing.T) {
	b := New(clock.Real())
	if err := b.Register(1, "alpha"); err != nil {
		t.Fatalf("Register(1): %v", err)
	}
	if err := b.Register(1, "alpha"); err != nil {
		t.Fatalf("idempotent re-register by the same agent should succeed: %v", err)
	}
	if err := b.Register(2, "alpha"); err != ErrNameTaken {
		t.Fatalf("err = %v, want ErrNameTaken", err)
	}
}

func TestRecvRespectsMaxAndIsFIFO(t *testing.T) {
	b := New(clock.Real())
	for i := 0; i < 15; i++ {
		if _, err := b.Send(1, "", 2, "", i); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	first := b.Recv(2, DefaultRecvMax)
	if len(first) != DefaultRecvMax {
		t.Fatalf("first batch = %d, want %d", len(first), DefaultRecvMax)
	}
	for i, m := range first {
		if m.Payload != i {
			t.Errorf("first[%d].Payload = %v, want %d", i, m.Payload, i)
		}
	}
	second := b.Recv(2, DefaultRecvMax)
	if len(second) != 5 {
		t.Fatalf("second batch = %d, want 5", len(second))
	}
}

func TestRecvNeverBlocksOnEmptyQueue(t *testing.T) {
	b := New(clock.Real())
	if msgs := b.Recv(99, 10); msgs != nil {
		t.Errorf("Recv on empty queue = %v, want nil", msgs)
	}
}

func TestBroadcastExcludesSenderByDefault(t *testing.T) {
	b := New(clock.Real())
	b.Register(1, "a")
	b.Register(2, "b")
	b.Register(3, "c")

	n := b.Broadcast(1, "a", "hello", false)
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	if msgs := b.Recv(1, 10); msgs != nil {
		t.Errorf("sender received its own broadcast: %v", msgs)
	}
	if msgs := b.Recv(2, 10); len(msgs) != 1 {
		t.Errorf("agent 2 got %d messages, want 1", len(msgs))
	}
}

func TestBroadcastIncludesSenderWhenRequested(t *testing.T) {
	b := New(clock.Real())
	b.Register(1, "a")
	b.Register(2, "b")

	b.Broadcast(1, "a", "hello", true)
	if msgs := b.Recv(1, 10); len(msgs) != 1 {
		t.Errorf("sender excluded despite includeSender=true")
	}
}

func TestRecvReportsAge(t *testing.T) {
	clk := clock.Fake(time.Unix(1000, 0))
	b := New(clk)
	b.Send(1, "", 2, "", "hi")
	clk.Advance(250 * time.Millisecond)
	msgs := b.Recv(2, 10)
	if len(msgs) != 1 || msgs[0].AgeMS != 250 {
		t.Fatalf("age = %+v, want 250ms", msgs)
	}
}

func TestForgetClearsQueueAndRegistry(t *testing.T) {
	b := New(clock.Real())
	b.Register(1, "alpha")
	b.Send(2, "", 1, "", "hi")

	b.Forget(1)

	if _, ok := b.IDOf("alpha"); ok {
		t.Error("name still resolves after Forget")
	}
	if msgs := b.Recv(1, 10); msgs != nil {
		t.Error("queue survived Forget")
	}
}
