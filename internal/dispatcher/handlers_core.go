// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/clove-kernel/clove/internal/errkind"
)

// handleNoop echoes the raw payload back unchanged.
func handleNoop(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	return payload, nil
}

// handleExit returns an opaque "goodbye" payload; the caller (socket
// server) is responsible for closing the connection afterward.
func handleExit(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`"goodbye"`), nil
}

// handleThink forwards the payload to the LLM subprocess over its
// line protocol and debits the caller's quota on success.
func handleThink(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	if d.LLM == nil {
		return nil, errkind.New(errkind.BackendError, "LLM backend not configured")
	}
	response, tokensUsed, err := d.LLM.Think(ctx, payload)
	if err != nil {
		return nil, errkind.New(errkind.BackendError, err.Error())
	}
	var status struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(response, &status) == nil && status.Success != nil && !*status.Success {
		return nil, errkind.New(errkind.BackendError, status.Error)
	}
	d.agentPerms(agentID).RecordLLMUsage(tokensUsed)
	return ok(map[string]any{"response": json.RawMessage(response), "tokens_used": tokensUsed}), nil
}

// execRequest is the SYS_EXEC payload shape.
type execRequest struct {
	Command   string   `json:"command"`
	Args      []string `json:"args,omitempty"`
	TimeoutMS uint64   `json:"timeout_ms,omitempty"`
}

// handleExec runs a command directly via argv, never through a shell
// — the fix for the source kernel's string-composed `sh -c` pipeline,
// which let shell metacharacters in an allowed command reach a shell.
func handleExec(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req execRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid exec payload")
	}

	if world := d.World; world != nil {
		if resp, intercepted := world.Intercept(agentID, "exec", req.Command, payload); intercepted {
			return resp, nil
		}
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		if max := d.agentPerms(agentID).MaxExecTimeMS; max > 0 {
			timeout = time.Duration(max) * time.Millisecond
		} else {
			timeout = 30 * time.Second
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	out, err := cmd.CombinedOutput()

	exitCode := 0
	if err != nil {
		if exitErr, isExit := err.(*exec.ExitError); isExit {
			exitCode = exitErr.ExitCode()
		} else if execCtx.Err() == context.DeadlineExceeded {
			return nil, errkind.New(errkind.Timeout, "command exceeded its time limit")
		} else {
			exitCode = -1
		}
	}

	return ok(map[string]any{"exit_code": exitCode, "output": string(out)}), nil
}

// handleRead performs a file read, or routes to the joined world's
// VFS mock if it intercepts the path.
func handleRead(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid read payload")
	}

	if world := d.World; world != nil {
		if resp, intercepted := world.Intercept(agentID, "read", req.Path, payload); intercepted {
			return resp, nil
		}
	}

	data, err := readFile(req.Path)
	if err != nil {
		return nil, errkind.New(errkind.NotFound, "file not found")
	}
	return ok(map[string]any{"content": string(data)}), nil
}

// handleWrite performs a file write, or routes to the joined world's
// VFS mock if it intercepts the path.
func handleWrite(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid write payload")
	}

	if world := d.World; world != nil {
		if resp, intercepted := world.Intercept(agentID, "write", req.Path, payload); intercepted {
			return resp, nil
		}
	}

	if err := writeFile(req.Path, []byte(req.Content)); err != nil {
		return nil, errkind.New(errkind.BackendError, "write failed")
	}
	return ok(map[string]any{"bytes_written": len(req.Content)}), nil
}
