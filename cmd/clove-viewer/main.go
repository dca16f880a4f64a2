// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// clove-viewer is a standalone TUI for watching a running clove
// kernel: the audit log, per-agent resource metrics, live worlds, and
// open tunnels, each on its own tab, polled over the kernel's admin
// socket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clove-kernel/clove/internal/bannerui"
	"github.com/clove-kernel/clove/internal/cloveconfig"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var socketPath string
	var configPath string

	pflag.StringVar(&socketPath, "socket", "", "override the socket path from the settings file")
	pflag.StringVar(&configPath, "config", "", "path to the settings YAML file (default: $CLOVE_CONFIG)")
	help := pflag.BoolP("help", "h", false, "show help")
	pflag.Parse()

	if *help {
		printHelp()
		return nil
	}

	if socketPath == "" {
		settings, err := cloveconfig.LoadSettings(cloveconfig.ResolvePath(configPath))
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		socketPath = settings.SocketPath
	}

	client, err := bannerui.NewKernelClient(socketPath)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer client.Close()

	model := bannerui.NewModel(client)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `clove-viewer — interactive terminal UI for a running clove kernel.

Tabs cycle through the audit log, per-agent metrics, live worlds, and
open tunnels. Press 1-4 to switch tabs, r to refresh immediately, p to
pause polling, q to quit.

Usage:
  clove-viewer [flags]

Flags:
`)
	pflag.PrintDefaults()
}
