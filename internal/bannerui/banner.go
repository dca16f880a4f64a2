// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package bannerui renders the kernel's startup banner and backs the
// clove-viewer TUI that tails the audit log and per-agent metrics over
// the kernel's admin socket.
package bannerui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Info gathers the values the startup banner displays.
type Info struct {
	Version        string
	SocketPath     string
	CgroupRoot     string
	WorldMountRoot string
	LogLevel       string
}

// Print writes a startup banner for w. When fd is not a terminal, or
// the terminal's color profile is plain ASCII, it falls back to a
// single unstyled log-like line so piped/redirected output and dumb
// terminals stay readable.
func Print(w io.Writer, fd uintptr, info Info) {
	if !term.IsTerminal(int(fd)) {
		printPlain(w, info)
		return
	}

	profile := termenv.NewOutput(w).ColorProfile()
	if profile == termenv.Ascii {
		printPlain(w, info)
		return
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(DefaultTheme.HeaderForeground).
		Render(fmt.Sprintf("clove %s", info.Version))

	field := lipgloss.NewStyle().Foreground(DefaultTheme.FaintText)
	value := lipgloss.NewStyle().Foreground(DefaultTheme.NormalText)

	row := func(label, v string) string {
		return field.Render(label+": ") + value.Render(v)
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		row("socket", info.SocketPath),
		row("cgroup root", info.CgroupRoot),
		row("world mount root", info.WorldMountRoot),
		row("log level", info.LogLevel),
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(DefaultTheme.BorderColor).
		Padding(0, 1)

	fmt.Fprintln(w, box.Render(body))
}

func printPlain(w io.Writer, info Info) {
	fmt.Fprintf(w, "clove %s socket=%s cgroup_root=%s world_mount_root=%s log_level=%s\n",
		info.Version, info.SocketPath, info.CgroupRoot, info.WorldMountRoot, info.LogLevel)
}
