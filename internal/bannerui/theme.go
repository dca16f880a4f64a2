// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package bannerui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the startup banner and the
// clove-viewer TUI. All colors use lipgloss ANSI 256-color codes for
// broad terminal compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Agent lifecycle state colors, keyed by eventbus.EventType suffix
	// (spawned/exited/restarting/escalated/paused/resumed).
	StateRunning    lipgloss.Color
	StatePaused     lipgloss.Color
	StateExited     lipgloss.Color
	StateEscalated  lipgloss.Color
	StateRestarting lipgloss.Color

	// Audit category colors.
	CategorySecurity lipgloss.Color
	CategoryWorld    lipgloss.Color
	CategoryNetwork  lipgloss.Color
	CategoryDefault  lipgloss.Color
}

// CategoryColor returns the color for an audit category string,
// falling back to CategoryDefault for anything not called out above.
func (t Theme) CategoryColor(category string) lipgloss.Color {
	switch category {
	case "SECURITY":
		return t.CategorySecurity
	case "WORLD":
		return t.CategoryWorld
	case "NETWORK":
		return t.CategoryNetwork
	default:
		return t.CategoryDefault
	}
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	HeaderForeground: lipgloss.Color("114"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	StateRunning:    lipgloss.Color("114"), // green
	StatePaused:     lipgloss.Color("220"), // amber
	StateExited:     lipgloss.Color("245"), // gray
	StateEscalated:  lipgloss.Color("196"), // red
	StateRestarting: lipgloss.Color("75"),  // blue

	CategorySecurity: lipgloss.Color("196"),
	CategoryWorld:    lipgloss.Color("141"),
	CategoryNetwork:  lipgloss.Color("75"),
	CategoryDefault:  lipgloss.Color("245"),
}
