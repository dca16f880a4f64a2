// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package bannerui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for clove-viewer.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding

	TabAudit   key.Binding
	TabAgents  key.Binding
	TabWorlds  key.Binding
	TabTunnels key.Binding

	Refresh key.Binding
	Pause   key.Binding
	Quit    key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("ctrl+u", "pgup"),
		key.WithHelp("C-u", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("ctrl+d", "pgdown"),
		key.WithHelp("C-d", "page down"),
	),
	TabAudit: key.NewBinding(
		key.WithKeys("1"),
		key.WithHelp("1", "audit"),
	),
	TabAgents: key.NewBinding(
		key.WithKeys("2"),
		key.WithHelp("2", "agents"),
	),
	TabWorlds: key.NewBinding(
		key.WithKeys("3"),
		key.WithHelp("3", "worlds"),
	),
	TabTunnels: key.NewBinding(
		key.WithKeys("4"),
		key.WithHelp("4", "tunnels"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh now"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause polling"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
