// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"os/exec"
)

// bwrapPath looks up, on every call, whether the unprivileged
// bubblewrap sandboxing helper is installed. bwrap lets an unprivileged caller still get
// PID/UTS/net namespace isolation when raw clone(CLONE_NEWPID, ...)
// is rejected for lack of CAP_SYS_ADMIN — a real isolation tier
// between full clone-based isolation and plain fork/exec, not just a
// relabeling of "no isolation".
func bwrapPath() (string, bool) {
	path, err := exec.LookPath("bwrap")
	return path, err == nil
}

// bwrapCommand wraps argv in a bubblewrap invocation requesting the
// same namespace set the caller asked clone for. The child still
// execs argv[0] at the end; bwrap itself replaces itself via execve
// once namespaces are set up, so cmd.Process.Pid remains the agent's
// real pid.
func bwrapCommand(ctx context.Context, bwrapExe string, cfg Config, argv []string) *exec.Cmd {
	args := []string{"--die-with-parent", "--proc", "/proc"}
	if cfg.EnablePID {
		args = append(args, "--unshare-pid")
	}
	if !cfg.EnableNetwork {
		args = append(args, "--unshare-net")
	}
	if cfg.EnableUTS {
		args = append(args, "--unshare-uts", "--hostname", "clove-"+cfg.Name)
	}
	args = append(args, "--bind", "/", "/")
	args = append(args, "--")
	args = append(args, argv...)
	return exec.CommandContext(ctx, bwrapExe, args...)
}
