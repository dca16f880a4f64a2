// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clove-kernel/clove/internal/bannerui"
	"github.com/clove-kernel/clove/internal/wire"
)

// agentEntry mirrors the dispatcher's agentListEntry wire shape. Declared
// locally rather than importing internal/dispatcher: the JSON the kernel
// sends over the socket is the contract, not the server's internal type.
type agentEntry struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	Running bool   `json:"running"`
	State   string `json:"state"`
	PID     int    `json:"pid"`
}

// match pairs an agentEntry with its fuzzy score against the current query.
type match struct {
	agent agentEntry
	score int
}

// pickerModel is a fuzzy-filter picker over the kernel's live agent list,
// used by "clove-ctl agent pick" to choose a target for kill/pause/resume
// without the caller needing to know its numeric id ahead of time.
type pickerModel struct {
	client *bannerui.KernelClient
	theme  bannerui.Theme
	action string

	agents   []agentEntry
	query    string
	cursor   int
	filtered []match

	done     bool
	selected *agentEntry
	actErr   error
}

func newPickerModel(client *bannerui.KernelClient, action string, agents []agentEntry) pickerModel {
	m := pickerModel{client: client, theme: bannerui.DefaultTheme, action: action, agents: agents}
	m.refilter()
	return m
}

func (m *pickerModel) refilter() {
	m.filtered = m.filtered[:0]
	for _, a := range m.agents {
		candidate := fmt.Sprintf("%d %s %s", a.ID, a.Name, a.State)
		if matched, score := fuzzyScore(candidate, m.query); matched {
			m.filtered = append(m.filtered, match{agent: a, score: score})
		}
	}
	sort.SliceStable(m.filtered, func(i, j int) bool { return m.filtered[i].score > m.filtered[j].score })
	if m.cursor >= len(m.filtered) {
		m.cursor = len(m.filtered) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.done = true
		return m, tea.Quit

	case tea.KeyEnter:
		if len(m.filtered) == 0 {
			return m, nil
		}
		target := m.filtered[m.cursor].agent
		m.selected = &target
		m.actErr = m.client.Call(actionOpcode(m.action), map[string]any{"id": target.ID}, nil)
		m.done = true
		return m, tea.Quit

	case tea.KeyUp, tea.KeyCtrlP:
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case tea.KeyDown, tea.KeyCtrlN:
		if m.cursor < len(m.filtered)-1 {
			m.cursor++
		}
		return m, nil

	case tea.KeyBackspace:
		if len(m.query) > 0 {
			m.query = m.query[:len(m.query)-1]
			m.refilter()
		}
		return m, nil

	case tea.KeyRunes:
		m.query += string(keyMsg.Runes)
		m.refilter()
		return m, nil
	}

	return m, nil
}

func (m pickerModel) View() string {
	var b strings.Builder

	prompt := lipgloss.NewStyle().Foreground(m.theme.HeaderForeground).Bold(true)
	fmt.Fprintf(&b, "%s agent %s > %s\n\n", prompt.Render("clove-ctl"), m.action, m.query)

	if len(m.filtered) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("no matching agents"))
		b.WriteString("\n")
	}
	for i, mt := range m.filtered {
		line := fmt.Sprintf("%6d  %-20s %s", mt.agent.ID, mt.agent.Name, mt.agent.State)
		style := lipgloss.NewStyle().Foreground(m.theme.NormalText)
		if i == m.cursor {
			style = style.Background(m.theme.SelectedBackground).Foreground(m.theme.SelectedForeground)
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	help := lipgloss.NewStyle().Foreground(m.theme.HelpText).
		Render("type to filter  ↑/↓ move  enter " + m.action + "  esc cancel")
	b.WriteString("\n")
	b.WriteString(help)
	return b.String()
}

// actionOpcode maps a clove-ctl action name to the corresponding lifecycle
// opcode.
func actionOpcode(action string) wire.Opcode {
	switch action {
	case "pause":
		return wire.OpPause
	case "resume":
		return wire.OpResume
	default:
		return wire.OpKill
	}
}
