// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/clove-kernel/clove/cmd/clove-ctl/cli"
	"github.com/clove-kernel/clove/internal/wire"
)

func agentCommand() *cli.Command {
	return &cli.Command{
		Name:    "agent",
		Summary: "act on a running agent",
		Subcommands: []*cli.Command{
			agentPickCommand(),
		},
	}
}

func agentPickCommand() *cli.Command {
	var socketPath, configPath, action string

	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("agent pick", pflag.ContinueOnError)
		fs.StringVar(&socketPath, "socket", "", "override the socket path from the settings file")
		fs.StringVar(&configPath, "config", "", "path to the settings YAML file (default: $CLOVE_CONFIG)")
		fs.StringVar(&action, "action", "kill", "kill, pause, or resume")
		return fs
	}

	return &cli.Command{
		Name:        "pick",
		Summary:     "fuzzy-pick a running agent to kill, pause, or resume",
		Description: "Opens an interactive fuzzy filter over the kernel's live agent list and applies --action to whichever entry is selected.",
		Usage:       "clove-ctl agent pick [--action kill|pause|resume] [--socket path] [--config path]",
		Flags:       flags,
		Run: func(args []string) error {
			switch action {
			case "kill", "pause", "resume":
			default:
				return fmt.Errorf("invalid --action %q: must be kill, pause, or resume", action)
			}

			client, err := connectKernel(socketPath, configPath)
			if err != nil {
				return err
			}
			defer client.Close()

			var resp struct {
				Agents []agentEntry `json:"agents"`
			}
			if err := client.Call(wire.OpList, map[string]any{}, &resp); err != nil {
				return fmt.Errorf("listing agents: %w", err)
			}
			if len(resp.Agents) == 0 {
				fmt.Println("no live agents")
				return nil
			}

			model := newPickerModel(client, action, resp.Agents)
			program := tea.NewProgram(model)
			final, err := program.Run()
			if err != nil {
				return err
			}

			picked := final.(pickerModel)
			if picked.selected == nil {
				fmt.Println("cancelled")
				return nil
			}
			if picked.actErr != nil {
				return fmt.Errorf("%s agent %d: %w", action, picked.selected.ID, picked.actErr)
			}
			fmt.Printf("%s agent %d (%s)\n", action, picked.selected.ID, picked.selected.Name)
			return nil
		},
	}
}
