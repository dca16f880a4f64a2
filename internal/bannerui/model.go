// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package bannerui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clove-kernel/clove/internal/wire"
)

// pollInterval is how often the viewer refreshes whichever tab is
// active, absent an explicit "r" keypress.
const pollInterval = 2 * time.Second

// tab indexes the four panes clove-viewer cycles through.
type tab int

const (
	tabAudit tab = iota
	tabAgents
	tabWorlds
	tabTunnels
)

func (t tab) String() string {
	switch t {
	case tabAudit:
		return "audit"
	case tabAgents:
		return "agents"
	case tabWorlds:
		return "worlds"
	case tabTunnels:
		return "tunnels"
	default:
		return "?"
	}
}

// auditEntry mirrors audit.Entry's wire shape. Declared locally
// rather than importing internal/audit: the JSON the kernel sends
// over the socket is the contract, not the server's internal type.
type auditEntry struct {
	ID        uint64 `json:"id"`
	Timestamp string `json:"timestamp"`
	Category  string `json:"category"`
	EventType string `json:"event_type"`
	AgentID   uint32 `json:"agent_id"`
	AgentName string `json:"agent_name,omitempty"`
	Success   bool   `json:"success"`
}

// agentSnapshot mirrors metrics.Snapshot's wire shape.
type agentSnapshot struct {
	AgentID       uint32  `json:"agent_id"`
	MemoryBytes   int64   `json:"memory_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	LLMTokensUsed uint64  `json:"llm_tokens_used"`
}

// worldSummary mirrors world's WORLD_LIST entry wire shape.
type worldSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
	FileCount   int    `json:"file_count"`
	EventCount  int    `json:"event_count"`
}

// tunnelSummary mirrors tunnel's TUNNEL_LIST_REMOTES entry wire shape.
type tunnelSummary struct {
	TunnelID      string `json:"tunnel_id"`
	RemoteID      string `json:"remote_id"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	BytesSent     uint64 `json:"bytes_sent"`
	BytesReceived uint64 `json:"bytes_received"`
}

type tickMsg time.Time

type auditMsg struct {
	entries []auditEntry
	err     error
}

type agentsMsg struct {
	agents []agentSnapshot
	err    error
}

type worldsMsg struct {
	worlds []worldSummary
	err    error
}

type tunnelsMsg struct {
	tunnels []tunnelSummary
	err     error
}

// Model is the clove-viewer bubbletea program. It polls the kernel's
// admin socket on a timer and renders whichever tab is selected.
type Model struct {
	client *KernelClient
	keys   KeyMap
	theme  Theme

	active tab
	paused bool
	width  int
	height int

	cursor int

	auditEntries []auditEntry
	agents       []agentSnapshot
	worlds       []worldSummary
	tunnels      []tunnelSummary

	lastErr error
}

// NewModel builds a viewer model backed by an already-dialed client.
func NewModel(client *KernelClient) Model {
	return Model{client: client, keys: DefaultKeyMap, theme: DefaultTheme}
}

// Init kicks off the first poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.pollActive(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles key presses and poll results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.TabAudit):
			m.active, m.cursor = tabAudit, 0
			return m, m.pollActive()
		case key.Matches(msg, m.keys.TabAgents):
			m.active, m.cursor = tabAgents, 0
			return m, m.pollActive()
		case key.Matches(msg, m.keys.TabWorlds):
			m.active, m.cursor = tabWorlds, 0
			return m, m.pollActive()
		case key.Matches(msg, m.keys.TabTunnels):
			m.active, m.cursor = tabTunnels, 0
			return m, m.pollActive()
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			return m, m.pollActive()
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case key.Matches(msg, m.keys.Down):
			m.cursor++
			return m, nil
		}
		return m, nil

	case tickMsg:
		if m.paused {
			return m, tickCmd()
		}
		return m, tea.Batch(m.pollActive(), tickCmd())

	case auditMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.auditEntries = msg.entries
		}
		return m, nil

	case agentsMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.agents = msg.agents
		}
		return m, nil

	case worldsMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.worlds = msg.worlds
		}
		return m, nil

	case tunnelsMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.tunnels = msg.tunnels
		}
		return m, nil
	}

	return m, nil
}

// pollActive issues the query for whichever tab is currently selected.
func (m Model) pollActive() tea.Cmd {
	switch m.active {
	case tabAudit:
		return m.pollAudit()
	case tabAgents:
		return m.pollAgents()
	case tabWorlds:
		return m.pollWorlds()
	case tabTunnels:
		return m.pollTunnels()
	default:
		return nil
	}
}

func (m Model) pollAudit() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		var resp struct {
			Entries []auditEntry `json:"entries"`
		}
		err := client.Call(wire.OpGetAuditLog, map[string]any{"limit": 200}, &resp)
		return auditMsg{entries: resp.Entries, err: err}
	}
}

func (m Model) pollAgents() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		var resp struct {
			Agents []agentSnapshot `json:"agents"`
		}
		err := client.Call(wire.OpMetricsKernel, map[string]any{}, &resp)
		return agentsMsg{agents: resp.Agents, err: err}
	}
}

func (m Model) pollWorlds() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		var resp struct {
			Worlds []worldSummary `json:"worlds"`
		}
		err := client.Call(wire.OpWorldList, map[string]any{}, &resp)
		return worldsMsg{worlds: resp.Worlds, err: err}
	}
}

func (m Model) pollTunnels() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		var resp struct {
			Tunnels []tunnelSummary `json:"tunnels"`
		}
		err := client.Call(wire.OpTunnelListRemotes, map[string]any{}, &resp)
		return tunnelsMsg{tunnels: resp.Tunnels, err: err}
	}
}

// View renders the tab bar, the active pane, and a help line.
func (m Model) View() string {
	var body string
	switch m.active {
	case tabAudit:
		body = m.viewAudit()
	case tabAgents:
		body = m.viewAgents()
	case tabWorlds:
		body = m.viewWorlds()
	case tabTunnels:
		body = m.viewTunnels()
	}

	help := lipgloss.NewStyle().Foreground(m.theme.HelpText).
		Render("1-4: tabs  j/k: move  r: refresh  p: pause  q: quit")
	if m.lastErr != nil {
		help = lipgloss.NewStyle().Foreground(m.theme.StateEscalated).
			Render(fmt.Sprintf("error: %v", m.lastErr))
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.viewTabBar(), body, "", help)
}

func (m Model) viewTabBar() string {
	labels := []tab{tabAudit, tabAgents, tabWorlds, tabTunnels}
	var rendered []string
	for _, t := range labels {
		style := lipgloss.NewStyle().Foreground(m.theme.FaintText).Padding(0, 1)
		if t == m.active {
			style = style.Foreground(m.theme.SelectedForeground).Background(m.theme.SelectedBackground).Bold(true)
		}
		rendered = append(rendered, style.Render(fmt.Sprintf("%d %s", t+1, t)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) viewAudit() string {
	var lines []string
	for i, e := range m.auditEntries {
		status := "ok"
		if !e.Success {
			status = "FAIL"
		}
		line := fmt.Sprintf("%6d  %-20s %-12s agent=%-4d %-4s %s", e.ID, e.Timestamp, e.Category, e.AgentID, status, e.EventType)
		style := lipgloss.NewStyle().Foreground(m.theme.CategoryColor(e.Category))
		if i == m.cursor {
			style = style.Background(m.theme.SelectedBackground).Foreground(m.theme.SelectedForeground)
		}
		lines = append(lines, style.Render(line))
	}
	if len(lines) == 0 {
		return lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("no audit entries yet")
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewAgents() string {
	var lines []string
	for i, a := range m.agents {
		line := fmt.Sprintf("agent=%-4d mem=%8dB cpu=%5.1f%% uptime=%6.0fs tokens=%d",
			a.AgentID, a.MemoryBytes, a.CPUPercent, a.UptimeSeconds, a.LLMTokensUsed)
		style := lipgloss.NewStyle().Foreground(m.theme.NormalText)
		if i == m.cursor {
			style = style.Background(m.theme.SelectedBackground).Foreground(m.theme.SelectedForeground)
		}
		lines = append(lines, style.Render(line))
	}
	if len(lines) == 0 {
		return lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("no live agents")
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewWorlds() string {
	var lines []string
	for i, w := range m.worlds {
		line := fmt.Sprintf("%-36s %-16s members=%-3d files=%-4d events=%d", w.ID, w.Name, w.MemberCount, w.FileCount, w.EventCount)
		style := lipgloss.NewStyle().Foreground(m.theme.CategoryWorld)
		if i == m.cursor {
			style = style.Background(m.theme.SelectedBackground).Foreground(m.theme.SelectedForeground)
		}
		lines = append(lines, style.Render(line))
	}
	if len(lines) == 0 {
		return lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("no worlds created")
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewTunnels() string {
	var lines []string
	for i, t := range m.tunnels {
		line := fmt.Sprintf("%-36s remote=%-16s role=%-9s status=%-11s sent=%-8d recv=%d",
			t.TunnelID, t.RemoteID, t.Role, t.Status, t.BytesSent, t.BytesReceived)
		style := lipgloss.NewStyle().Foreground(m.theme.CategoryNetwork)
		if i == m.cursor {
			style = style.Background(m.theme.SelectedBackground).Foreground(m.theme.SelectedForeground)
		}
		lines = append(lines, style.Render(line))
	}
	if len(lines) == 0 {
		return lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("no open tunnels")
	}
	return strings.Join(lines, "\n")
}
