// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox creates the OS-level isolation context an agent runs
// in: a cgroup v2 slice and a namespaced child process. Isolation is
// best-effort end to end — every cgroup write and every namespace flag
// is allowed to fail without aborting the agent, as long as the
// failure is recorded in the Sandbox's IsolationStatus rather than
// silently reported as full isolation.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/clove-kernel/clove/internal/clock"
)

// State is the sandbox lifecycle.
type State int

const (
	Created State = iota
	Running
	Paused
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ResourceLimits bounds memory, CPU, and process count for one sandbox.
type ResourceLimits struct {
	MemoryLimitBytes int64
	CPUShares        int64 // 1024-scale shares; converted to cpu.weight (1..10000) by cpuWeightFromShares
	CPUQuotaUS       int64
	CPUPeriodUS      int64
	MaxPIDs          int64
}

// DefaultResourceLimits matches the source kernel's per-agent defaults.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MemoryLimitBytes: 256 * 1024 * 1024,
		CPUShares:        1024,
		CPUQuotaUS:       100000,
		CPUPeriodUS:      100000,
		MaxPIDs:          64,
	}
}

// Config configures one Sandbox. Name together with the agent id forms
// the cgroup leaf directory name.
type Config struct {
	Name   string
	Root   string // cgroup root, e.g. "clove"
	Limits ResourceLimits

	EnableNetwork bool
	EnablePID     bool
	EnableMount   bool
	EnableUTS     bool
	EnableCgroups bool

	Logger *slog.Logger
	Clock  clock.Clock
}

// IsolationStatus records which requested isolations actually took
// effect. An agent running with any flag false is degraded and must be
// reported as such — never silently upgraded to "fully isolated".
type IsolationStatus struct {
	PIDNamespace   bool
	NetNamespace   bool
	MountNamespace bool
	UTSNamespace   bool

	CgroupsAvailable   bool
	MemoryLimitApplied bool
	CPUQuotaApplied    bool
	PIDsLimitApplied   bool

	DegradedReason string
}

// FullyIsolated reports whether every requested isolation is active.
func (s IsolationStatus) FullyIsolated(cfg Config) bool {
	namespacesOK := (!cfg.EnablePID || s.PIDNamespace) &&
		(cfg.EnableNetwork || s.NetNamespace) &&
		(!cfg.EnableMount || s.MountNamespace) &&
		(!cfg.EnableUTS || s.UTSNamespace)
	cgroupsOK := !cfg.EnableCgroups || (s.MemoryLimitApplied && s.CPUQuotaApplied && s.PIDsLimitApplied)
	return namespacesOK && cgroupsOK
}

// IsDegraded is the negation of FullyIsolated, kept as a named query to
// mirror the source kernel's is_degraded().
func (s IsolationStatus) IsDegraded(cfg Config) bool { return !s.FullyIsolated(cfg) }

// Sandbox owns one child process and its cgroup. It is touched only
// from the kernel's event-loop thread; only the child reads its own
// standard I/O.
type Sandbox struct {
	cfg    Config
	logger *slog.Logger
	clk    clock.Clock

	mu        sync.Mutex
	state     State
	cgroup    *cgroup
	cmd       *exec.Cmd
	pid       int
	exitCode  int
	status    IsolationStatus
}

// New validates cfg and returns an unstarted Sandbox in state Created.
func New(cfg Config) (*Sandbox, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("sandbox: name is required")
	}
	if cfg.Root == "" {
		cfg.Root = "clove"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Sandbox{cfg: cfg, logger: cfg.Logger, clk: cfg.Clock, state: Created}, nil
}

// Create sets up the cgroup (if enabled and available). Failures are
// non-fatal: they set status.DegradedReason and leave the relevant
// Applied flags false.
func (s *Sandbox) Create() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.EnableCgroups {
		return nil
	}
	cg, err := newCgroup(s.cfg.Root, s.cfg.Name)
	if err != nil {
		s.status.DegradedReason = err.Error()
		s.logger.Warn("cgroup setup failed, running without resource limits", "error", err)
		return nil
	}
	s.cgroup = cg
	s.status.CgroupsAvailable = true

	if err := cg.writeMemoryMax(s.cfg.Limits.MemoryLimitBytes); err != nil {
		s.logger.Warn("failed to write memory.max", "error", err)
	} else {
		s.status.MemoryLimitApplied = true
	}
	if err := cg.writeCPUMax(s.cfg.Limits.CPUQuotaUS, s.cfg.Limits.CPUPeriodUS); err != nil {
		s.logger.Warn("failed to write cpu.max", "error", err)
	} else {
		s.status.CPUQuotaApplied = true
	}
	if err := cg.writePIDsMax(s.cfg.Limits.MaxPIDs); err != nil {
		s.logger.Warn("failed to write pids.max", "error", err)
	} else {
		s.status.PIDsLimitApplied = true
	}
	if err := cg.writeCPUWeight(cpuWeightFromShares(s.cfg.Limits.CPUShares)); err != nil {
		s.logger.Warn("failed to write cpu.weight", "error", err)
	}
	return nil
}

// cpuWeightFromShares converts a 1024-scale "shares" value to the
// cgroup v2 cpu.weight domain (1..10000), clamped.
func cpuWeightFromShares(shares int64) int64 {
	weight := shares * 100 / 1024
	if weight < 1 {
		return 1
	}
	if weight > 10000 {
		return 10000
	}
	return weight
}

// Start clones a child into the requested namespaces and execs argv.
// On clone failure it records why in status.DegradedReason, clears the
// status, and retries under unprivileged bwrap, which sets the PID,
// net and UTS flags it provides (never the mount flag). If bwrap is
// missing or fails too, it runs an ordinary fork/exec with every
// namespace flag left false — never silently reporting isolation that
// did not happen.
func (s *Sandbox) Start(ctx context.Context, argv []string, env []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Created {
		return fmt.Errorf("sandbox: Start called in state %s, want created", s.state)
	}
	if len(argv) == 0 {
		return fmt.Errorf("sandbox: empty argv")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env

	cloneFlags := s.requestedCloneFlags()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags:   cloneFlags,
		Setpgid:      true,
		Pdeathsig:    syscall.SIGKILL,
	}
	if s.cfg.EnableUTS {
		cmd.SysProcAttr.Cloneflags |= unix.CLONE_NEWUTS
	}

	if err := cmd.Start(); err != nil {
		s.logger.Warn("clone with namespaces failed, trying unprivileged bwrap isolation", "error", err)
		s.status = IsolationStatus{DegradedReason: fmt.Sprintf("clone failed: %v", err)}

		if bwrapExe, ok := bwrapPath(); ok {
			cmd = bwrapCommand(ctx, bwrapExe, s.cfg, argv)
			cmd.Env = env
			if err := cmd.Start(); err == nil {
				s.status.PIDNamespace = s.cfg.EnablePID
				s.status.NetNamespace = !s.cfg.EnableNetwork
				s.status.UTSNamespace = s.cfg.EnableUTS
				s.status.DegradedReason = "clone unavailable; isolated via unprivileged bwrap (no mount namespace)"
			} else {
				s.logger.Warn("bwrap fallback failed, running as plain fork/exec with no isolation", "error", err)
				cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
				cmd.Env = env
				if err := cmd.Start(); err != nil {
					s.state = Failed
					return fmt.Errorf("sandbox: fallback fork/exec failed: %w", err)
				}
			}
		} else {
			s.logger.Warn("run as root or with CAP_SYS_ADMIN for full isolation; bwrap not installed, running with no isolation")
			cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
			cmd.Env = env
			if err := cmd.Start(); err != nil {
				s.state = Failed
				return fmt.Errorf("sandbox: fallback fork/exec failed: %w", err)
			}
		}
	} else {
		s.status.PIDNamespace = s.cfg.EnablePID
		s.status.NetNamespace = !s.cfg.EnableNetwork
		s.status.MountNamespace = s.cfg.EnableMount
		s.status.UTSNamespace = s.cfg.EnableUTS
	}

	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.state = Running

	// Best-effort only: the pid is added to the cgroup after Start has
	// already exec'd it, not via a pre-exec parent/child handshake, so
	// a short-lived child can run briefly outside its memory/CPU/pids
	// limits. The *Applied flags cleared below reflect whether the pid
	// joined the cgroup at all, not whether the race window was closed.
	if s.cgroup != nil {
		if err := s.cgroup.addProcess(s.pid); err != nil {
			s.logger.Warn("failed to add pid to cgroup.procs", "error", err, "pid", s.pid)
			s.status.MemoryLimitApplied = false
			s.status.CPUQuotaApplied = false
			s.status.PIDsLimitApplied = false
		}
	}
	return nil
}

// requestedCloneFlags is the union of namespace flags implied by cfg,
// matching the source kernel's clone_flags computation.
func (s *Sandbox) requestedCloneFlags() uintptr {
	var flags uintptr
	if s.cfg.EnablePID {
		flags |= unix.CLONE_NEWPID
	}
	if s.cfg.EnableMount {
		flags |= unix.CLONE_NEWNS
	}
	if !s.cfg.EnableNetwork {
		flags |= unix.CLONE_NEWNET
	}
	return flags
}

// Pause sends a stop signal, transitioning Running → Paused.
func (s *Sandbox) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return fmt.Errorf("sandbox: Pause called in state %s, want running", s.state)
	}
	if err := syscall.Kill(s.pid, syscall.SIGSTOP); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("sandbox: SIGSTOP: %w", err)
	}
	s.state = Paused
	return nil
}

// Resume sends a continue signal, transitioning Paused → Running.
func (s *Sandbox) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return fmt.Errorf("sandbox: Resume called in state %s, want paused", s.state)
	}
	if err := syscall.Kill(s.pid, syscall.SIGCONT); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("sandbox: SIGCONT: %w", err)
	}
	s.state = Running
	return nil
}

// Stop sends SIGTERM, polls for exit at 100ms granularity up to
// timeout, then escalates to SIGKILL and reaps.
func (s *Sandbox) Stop(timeout time.Duration) error {
	s.mu.Lock()
	pid, cmd := s.pid, s.cmd
	running := s.state == Running || s.state == Paused
	s.mu.Unlock()

	if !running || cmd == nil {
		return nil
	}

	syscall.Kill(pid, syscall.SIGTERM)

	deadline := s.clk.After(timeout)
	poll := s.clk.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	for {
		if !s.isRunningLocked() {
			return nil
		}
		select {
		case <-deadline:
			syscall.Kill(pid, syscall.SIGKILL)
			cmd.Wait()
			s.mu.Lock()
			s.state = Stopped
			s.mu.Unlock()
			return nil
		case <-poll.C:
		}
	}
}

// IsRunning performs a nonblocking reap check, transitioning to
// Stopped and capturing the exit code if the child has exited.
func (s *Sandbox) IsRunning() bool { return s.isRunningLocked() }

func (s *Sandbox) isRunningLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running && s.state != Paused {
		return false
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return false
	}
	var ws syscall.WaitStatus
	wpid, err := syscall.Wait4(s.pid, &ws, syscall.WNOHANG, nil)
	if err != nil || wpid == 0 {
		return true
	}
	s.state = Stopped
	if ws.Exited() {
		s.exitCode = ws.ExitStatus()
	} else {
		s.exitCode = -1
	}
	return false
}

// ExitCode returns the last observed exit code; valid once the
// sandbox has transitioned to Stopped or Failed.
func (s *Sandbox) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Status returns a snapshot of the isolation status.
func (s *Sandbox) Status() IsolationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns the current lifecycle state.
func (s *Sandbox) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the child's process id, or 0 before Start.
func (s *Sandbox) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// MemoryCurrentBytes reports the cgroup's current resident memory, or
// an error if cgroups were not set up for this sandbox.
func (s *Sandbox) MemoryCurrentBytes() (int64, error) {
	s.mu.Lock()
	cg := s.cgroup
	s.mu.Unlock()
	if cg == nil {
		return 0, fmt.Errorf("sandbox: no cgroup attached")
	}
	return cg.currentMemoryBytes()
}

// CPUUsageMicros reports the cgroup's cumulative CPU time in
// microseconds, or an error if cgroups were not set up for this
// sandbox.
func (s *Sandbox) CPUUsageMicros() (int64, error) {
	s.mu.Lock()
	cg := s.cgroup
	s.mu.Unlock()
	if cg == nil {
		return 0, fmt.Errorf("sandbox: no cgroup attached")
	}
	return cg.cpuUsageMicros()
}

// Destroy ensures the sandbox is stopped, then removes its cgroup
// directory on a best-effort basis.
func (s *Sandbox) Destroy(timeout time.Duration) error {
	if s.State() == Running || s.State() == Paused {
		if err := s.Stop(timeout); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cgroup != nil {
		if err := s.cgroup.remove(); err != nil {
			s.logger.Warn("failed to remove cgroup directory", "error", err)
		}
	}
	return nil
}
