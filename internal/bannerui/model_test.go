// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package bannerui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestTabSwitchResetsCursorAndPolls(t *testing.T) {
	m := NewModel(nil)
	m.cursor = 5

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	next := updated.(Model)

	if next.active != tabAgents {
		t.Fatalf("active tab = %v, want tabAgents", next.active)
	}
	if next.cursor != 0 {
		t.Fatalf("cursor = %d, want 0 after tab switch", next.cursor)
	}
	if cmd == nil {
		t.Fatal("expected a poll command after switching tabs")
	}
}

func TestPauseTogglesWithoutPolling(t *testing.T) {
	m := NewModel(nil)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	next := updated.(Model)

	if !next.paused {
		t.Fatal("expected paused=true after first 'p'")
	}
	if cmd != nil {
		t.Fatal("pausing should not itself issue a poll command")
	}

	updated, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	next = updated.(Model)
	if next.paused {
		t.Fatal("expected paused=false after second 'p'")
	}
}

func TestAuditMsgPopulatesEntriesOnSuccess(t *testing.T) {
	m := NewModel(nil)
	entries := []auditEntry{{ID: 1, EventType: "AGENT_SPAWNED", Category: "AGENT_LIFECYCLE", Success: true}}

	updated, _ := m.Update(auditMsg{entries: entries})
	next := updated.(Model)

	if len(next.auditEntries) != 1 || next.auditEntries[0].EventType != "AGENT_SPAWNED" {
		t.Fatalf("auditEntries = %+v, want the one entry delivered", next.auditEntries)
	}
	if next.lastErr != nil {
		t.Fatalf("lastErr = %v, want nil", next.lastErr)
	}
}

func TestAuditMsgKeepsStaleEntriesOnError(t *testing.T) {
	m := NewModel(nil)
	m.auditEntries = []auditEntry{{ID: 1}}

	updated, _ := m.Update(auditMsg{err: errors.New("connection reset")})
	next := updated.(Model)

	if len(next.auditEntries) != 1 {
		t.Fatalf("expected stale entries to survive a failed poll, got %+v", next.auditEntries)
	}
	if next.lastErr == nil {
		t.Fatal("expected lastErr to be recorded")
	}
}

func TestCursorMovementStopsAtZero(t *testing.T) {
	m := NewModel(nil)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	next := updated.(Model)
	if next.cursor != 0 {
		t.Fatalf("cursor = %d, want 0 (clamped)", next.cursor)
	}

	updated, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	next = updated.(Model)
	if next.cursor != 1 {
		t.Fatalf("cursor = %d, want 1 after moving down", next.cursor)
	}
}

func TestQuitKeyReturnsQuitCmd(t *testing.T) {
	m := NewModel(nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected a command from ctrl+c")
	}
}

func TestTickWhilePausedDoesNotPoll(t *testing.T) {
	m := NewModel(nil)
	m.paused = true
	m.active = tabAudit

	_, cmd := m.Update(tickMsg{})
	if cmd == nil {
		t.Fatal("expected the tick to still be rescheduled")
	}
}
