// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// clove-ctl is the kernel's operator CLI: a fuzzy agent picker for
// kill/pause/resume, an HTML report renderer for audit exports, and a
// redacted view of the kernel's resolved settings. It is a separate
// binary from cmd/clove (the daemon), which already owns its own
// fixed startup CLI contract.
package main

import (
	"fmt"
	"os"

	"github.com/clove-kernel/clove/cmd/clove-ctl/cli"
	"github.com/clove-kernel/clove/internal/bannerui"
	"github.com/clove-kernel/clove/internal/cloveconfig"
)

func main() {
	root := &cli.Command{
		Name:    "clove-ctl",
		Summary: "operator CLI for a running clove kernel",
		Subcommands: []*cli.Command{
			agentCommand(),
			auditCommand(),
			reportCommand(),
			configCommand(),
		},
	}

	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveSocketPath returns the explicit flag value if set, otherwise
// loads the settings file to find the kernel's configured socket path.
func resolveSocketPath(socketFlag, configFlag string) (string, error) {
	if socketFlag != "" {
		return socketFlag, nil
	}
	settings, err := cloveconfig.LoadSettings(cloveconfig.ResolvePath(configFlag))
	if err != nil {
		return "", fmt.Errorf("loading settings: %w", err)
	}
	return settings.SocketPath, nil
}

// connectKernel resolves the socket path and dials it, returning a
// ready-to-use admin client.
func connectKernel(socketFlag, configFlag string) (*bannerui.KernelClient, error) {
	socketPath, err := resolveSocketPath(socketFlag, configFlag)
	if err != nil {
		return nil, err
	}
	client, err := bannerui.NewKernelClient(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return client, nil
}
