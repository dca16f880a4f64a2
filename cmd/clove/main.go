// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Clove is the kernel daemon: it listens on a Unix domain socket,
// supervises sandboxed agent processes, and mediates every syscall an
// agent makes against the permission model.
//
// On startup it resolves its settings file (--config or CLOVE_CONFIG),
// overlays any values found there onto its built-in defaults, resolves
// the LLM credentials from the environment or a .env file, then runs
// until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/clove-kernel/clove/internal/bannerui"
	"github.com/clove-kernel/clove/internal/clover"
	"github.com/clove-kernel/clove/internal/cloveconfig"
	"github.com/clove-kernel/clove/internal/kernel"
)

func main() {
	if err := run(); err != nil {
		clover.Fatal(err)
	}
}

func run() error {
	var (
		socketPath string
		configPath string
		logLevel   string
	)

	pflag.StringVar(&socketPath, "socket", "", "override the socket path from the settings file")
	pflag.StringVar(&configPath, "config", "", "path to the settings YAML file (default: $CLOVE_CONFIG)")
	pflag.StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	pflag.Parse()

	if args := pflag.Args(); len(args) > 0 {
		// a single positional argument overrides the socket path,
		// matching the source kernel's argv[1] convention.
		socketPath = args[0]
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	settings, err := cloveconfig.LoadSettings(cloveconfig.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if socketPath != "" {
		settings.SocketPath = socketPath
	}

	llmEnv := cloveconfig.ResolveLLMEnv()
	cfg := kernel.FromSettings(settings, llmEnv, logger)

	worldMountRoot := cfg.WorldMountRoot
	if worldMountRoot == "" {
		worldMountRoot = "/tmp/clove-worlds"
	}
	bannerui.Print(os.Stderr, os.Stderr.Fd(), bannerui.Info{
		Version:        clover.Version,
		SocketPath:     cfg.SocketPath,
		CgroupRoot:     cfg.CgroupRoot,
		WorldMountRoot: worldMountRoot,
		LogLevel:       logLevel,
	})

	k := kernel.New(cfg)
	if err := k.Init(); err != nil {
		return fmt.Errorf("initializing kernel: %w", err)
	}
	defer k.Close()

	// SIGINT/SIGTERM reach the kernel through its own reactor-registered
	// shutdown pipe, not through this context.
	return k.Run(context.Background())
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
