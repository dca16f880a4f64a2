// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package cloveconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings holds the ambient operational knobs that don't belong in
// environment variables. Every field is optional; its zero value means
// "use the kernel's built-in default."
type Settings struct {
	SocketPath string `yaml:"socket_path"`
	CgroupRoot string `yaml:"cgroup_root"`

	AuditMaxEntries int `yaml:"audit_max_entries"`
	ExecLogMax      int `yaml:"execution_log_max_entries"`

	RestartMaxAttempts  int     `yaml:"restart_max_attempts"`
	RestartWindowSec    int64   `yaml:"restart_window_seconds"`
	RestartBackoffMS    int64   `yaml:"restart_backoff_initial_ms"`
	RestartBackoffMaxMS int64   `yaml:"restart_backoff_max_ms"`
	RestartMultiplier   float64 `yaml:"restart_backoff_multiplier"`

	TunnelSignalAddr string `yaml:"tunnel_signal_addr"`
	WorldMountRoot   string `yaml:"world_mount_root"`
}

// DefaultSettings matches the kernel's built-in defaults, used when no
// settings file is supplied.
func DefaultSettings() Settings {
	return Settings{
		SocketPath:          "/tmp/clove.sock",
		CgroupRoot:          "/sys/fs/cgroup/clove",
		AuditMaxEntries:     10000,
		ExecLogMax:          10000,
		RestartMaxAttempts:  3,
		RestartWindowSec:    300,
		RestartBackoffMS:    100,
		RestartBackoffMaxMS: 30000,
		RestartMultiplier:   2.0,
		TunnelSignalAddr:    "",
		WorldMountRoot:      "/tmp/clove-worlds",
	}
}

// LoadSettings reads path (if non-empty) and overlays it onto
// DefaultSettings. An empty path is not an error: it simply returns the
// defaults, since the settings file is optional everywhere.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("cloveconfig: reading %s: %w", path, err)
	}

	var overlay Settings
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Settings{}, fmt.Errorf("cloveconfig: parsing %s: %w", path, err)
	}
	applyOverlay(&settings, overlay)
	return settings, nil
}

// applyOverlay copies every non-zero field of overlay onto base.
func applyOverlay(base *Settings, overlay Settings) {
	if overlay.SocketPath != "" {
		base.SocketPath = overlay.SocketPath
	}
	if overlay.CgroupRoot != "" {
		base.CgroupRoot = overlay.CgroupRoot
	}
	if overlay.AuditMaxEntries != 0 {
		base.AuditMaxEntries = overlay.AuditMaxEntries
	}
	if overlay.ExecLogMax != 0 {
		base.ExecLogMax = overlay.ExecLogMax
	}
	if overlay.RestartMaxAttempts != 0 {
		base.RestartMaxAttempts = overlay.RestartMaxAttempts
	}
	if overlay.RestartWindowSec != 0 {
		base.RestartWindowSec = overlay.RestartWindowSec
	}
	if overlay.RestartBackoffMS != 0 {
		base.RestartBackoffMS = overlay.RestartBackoffMS
	}
	if overlay.RestartBackoffMaxMS != 0 {
		base.RestartBackoffMaxMS = overlay.RestartBackoffMaxMS
	}
	if overlay.RestartMultiplier != 0 {
		base.RestartMultiplier = overlay.RestartMultiplier
	}
	if overlay.TunnelSignalAddr != "" {
		base.TunnelSignalAddr = overlay.TunnelSignalAddr
	}
	if overlay.WorldMountRoot != "" {
		base.WorldMountRoot = overlay.WorldMountRoot
	}
}

// ResolvePath returns the settings file path from the --config flag
// value (if non-empty) or the CLOVE_CONFIG environment variable.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CLOVE_CONFIG")
}
