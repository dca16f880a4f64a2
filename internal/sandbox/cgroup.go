// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const cgroupv2Root = "/sys/fs/cgroup"

// cgroup wraps one agent's cgroup v2 leaf directory.
type cgroup struct {
	path string
}

// cgroupsAvailable reports whether cgroup v2 is mounted and its
// controller file exists.
func cgroupsAvailable() bool {
	_, err := os.Stat(filepath.Join(cgroupv2Root, "cgroup.controllers"))
	return err == nil
}

// newCgroup creates /sys/fs/cgroup/<root>/<name> if cgroup v2 is
// present and writable.
func newCgroup(root, name string) (*cgroup, error) {
	if !cgroupsAvailable() {
		return nil, fmt.Errorf("cgroup v2 not available")
	}
	path := filepath.Join(cgroupv2Root, root, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating cgroup directory %s: %w", path, err)
	}
	return &cgroup{path: path}, nil
}

func (c *cgroup) writeFile(name, value string) error {
	return os.WriteFile(filepath.Join(c.path, name), []byte(value), 0644)
}

func (c *cgroup) writeMemoryMax(bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	return c.writeFile("memory.max", strconv.FormatInt(bytes, 10))
}

func (c *cgroup) writeCPUMax(quotaUS, periodUS int64) error {
	if quotaUS <= 0 || periodUS <= 0 {
		return nil
	}
	return c.writeFile("cpu.max", fmt.Sprintf("%d %d", quotaUS, periodUS))
}

func (c *cgroup) writePIDsMax(max int64) error {
	if max <= 0 {
		return nil
	}
	return c.writeFile("pids.max", strconv.FormatInt(max, 10))
}

func (c *cgroup) writeCPUWeight(weight int64) error {
	return c.writeFile("cpu.weight", strconv.FormatInt(weight, 10))
}

func (c *cgroup) addProcess(pid int) error {
	return c.writeFile("cgroup.procs", strconv.Itoa(pid))
}

func (c *cgroup) currentMemoryBytes() (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.path, "memory.current"))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(trimNewline(data)), 10, 64)
}

// cpuUsageMicros reads the usage_usec field out of cpu.stat, the
// cumulative CPU time consumed by the cgroup since creation.
func (c *cgroup) cpuUsageMicros() (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.path, "cpu.stat"))
	if err != nil {
		return 0, err
	}
	for _, line := range splitLines(data) {
		var key string
		var value int64
		if _, err := fmt.Sscanf(line, "%s %d", &key, &value); err == nil && key == "usage_usec" {
			return value, nil
		}
	}
	return 0, fmt.Errorf("usage_usec not found in cpu.stat")
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, string(b[start:]))
	}
	return lines
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return b
}

func (c *cgroup) remove() error {
	return os.RemoveAll(c.path)
}

// Manager owns the shared cgroup root and initializes delegation of
// the cpu/memory/pids controllers to child cgroups.
type Manager struct {
	root string
}

// NewManager ensures the cgroup root directory exists and that its
// controllers are delegated to children, best-effort.
func NewManager(root string) *Manager {
	m := &Manager{root: root}
	if !cgroupsAvailable() {
		return m
	}
	path := filepath.Join(cgroupv2Root, root)
	os.MkdirAll(path, 0755)
	os.WriteFile(filepath.Join(path, "cgroup.subtree_control"), []byte("+cpu +memory +pids"), 0644)
	return m
}

// CleanupAll removes the entire cgroup root tree, best effort.
func (m *Manager) CleanupAll() error {
	if !cgroupsAvailable() {
		return nil
	}
	return os.RemoveAll(filepath.Join(cgroupv2Root, m.root))
}
