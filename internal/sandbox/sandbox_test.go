// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/clove-kernel/clove/internal/clock"
)

func testConfig(name string) Config {
	return Config{
		Name:          name,
		Root:          "clove-test",
		Limits:        DefaultResourceLimits(),
		EnableNetwork: true, // avoid requiring CAP_NET_ADMIN-equivalent in CI
		EnableCgroups: false,
		Clock:         clock.Real(),
	}
}

func TestLifecycleRunAndStop(t *testing.T) {
	sb, err := New(testConfig("lifecycle"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sb.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sb.Start(context.Background(), []string{"/bin/sleep", "5"}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sb.State() != Running {
		t.Fatalf("State = %v, want Running", sb.State())
	}
	if !sb.IsRunning() {
		t.Fatal("IsRunning = false immediately after Start")
	}
	if err := sb.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sb.State() != Stopped {
		t.Fatalf("State after Stop = %v, want Stopped", sb.State())
	}
}

func TestPauseResumeRequiresRunning(t *testing.T) {
	sb, _ := New(testConfig("pause"))
	if err := sb.Pause(); err == nil {
		t.Fatal("Pause on a Created sandbox should fail")
	}
}

func TestDegradedStatusNeverClaimsFullIsolation(t *testing.T) {
	cfg := testConfig("degraded")
	cfg.EnablePID = true
	cfg.EnableMount = true
	status := IsolationStatus{} // nothing applied
	if status.FullyIsolated(cfg) {
		t.Fatal("an all-false IsolationStatus must never report FullyIsolated when isolation was requested")
	}
	if !status.IsDegraded(cfg) {
		t.Fatal("IsDegraded must be the negation of FullyIsolated")
	}
}

func TestCPUWeightConversion(t *testing.T) {
	cases := map[int64]int64{
		0:    1,
		1024: 100,
		20000: 1953,
		200000: 10000,
	}
	for shares, want := range cases {
		if got := cpuWeightFromShares(shares); got != want {
			t.Errorf("cpuWeightFromShares(%d) = %d, want %d", shares, got, want)
		}
	}
}
