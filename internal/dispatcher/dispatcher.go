// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatcher is the kernel's central control point: it maps a
// decoded wire frame to a handler, enforces permissions, routes to the
// world's intercepted I/O when an agent has joined one, forwards THINK
// to the LLM subprocess, and emits the audit/event/execution-log
// side effects every syscall produces.
package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/clove-kernel/clove/internal/audit"
	"github.com/clove-kernel/clove/internal/errkind"
	"github.com/clove-kernel/clove/internal/eventbus"
	"github.com/clove-kernel/clove/internal/execlog"
	"github.com/clove-kernel/clove/internal/kv"
	"github.com/clove-kernel/clove/internal/mailbox"
	"github.com/clove-kernel/clove/internal/permission"
	"github.com/clove-kernel/clove/internal/supervisor"
	"github.com/clove-kernel/clove/internal/wire"
)

// LLMClient forwards a THINK payload to the LLM subprocess's
// line-oriented stdin/stdout protocol.
type LLMClient interface {
	Think(ctx context.Context, payload json.RawMessage) (response json.RawMessage, tokensUsed uint64, err error)
}

// HTTPFetcher performs the real network operation behind SYS_HTTP
// when no world intercepts it.
type HTTPFetcher interface {
	Fetch(ctx context.Context, method, url string, body json.RawMessage, headers map[string]string) (json.RawMessage, error)
}

// WorldRouter decides whether a READ/WRITE/HTTP operation should be
// intercepted by a world the caller has joined, and if so, performs
// the mocked operation itself.
type WorldRouter interface {
	Intercept(agentID uint32, kind string, target string, payload json.RawMessage) (response json.RawMessage, intercepted bool)
	Handle(ctx context.Context, agentID uint32, opcode wire.Opcode, payload json.RawMessage) (json.RawMessage, error)
}

// TunnelRouter handles the Tunnel opcode family (0xB0-0xB4).
type TunnelRouter interface {
	Handle(ctx context.Context, agentID uint32, opcode wire.Opcode, payload json.RawMessage) (json.RawMessage, error)
}

// MetricsRouter handles the Metrics opcode family (0xC0-0xC3).
type MetricsRouter interface {
	Handle(ctx context.Context, agentID uint32, opcode wire.Opcode, payload json.RawMessage) (json.RawMessage, error)
}

// Dispatcher wires every kernel subsystem together behind the single
// Dispatch entry point. All fields are touched only from the event
// loop goroutine.
type Dispatcher struct {
	logger *slog.Logger

	Supervisor *supervisor.Supervisor
	Mailbox    *mailbox.Box
	KV         *kv.Store
	Events     *eventbus.Bus
	Audit      *audit.Log
	Recorder   *execlog.Recorder
	Player     *execlog.Player

	LLM     LLMClient
	HTTP    HTTPFetcher
	World   WorldRouter
	Tunnel  TunnelRouter
	Metrics MetricsRouter

	perms    map[uint32]*permission.Set
	handlers map[wire.Opcode]handlerFunc
}

type handlerFunc func(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error)

// requiresPermission lists the opcodes gated by the permission model.
var requiresPermission = map[wire.Opcode]bool{
	wire.OpExec:     true,
	wire.OpRead:     true,
	wire.OpWrite:    true,
	wire.OpThink:    true,
	wire.OpSpawn:    true,
	wire.OpHTTP:     true,
	wire.OpSetPerms: true,
}

// New constructs a Dispatcher with the static handler table installed.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger, perms: make(map[uint32]*permission.Set)}
	d.handlers = map[wire.Opcode]handlerFunc{
		wire.OpNoop: handleNoop,
		wire.OpExit: handleExit,

		wire.OpThink: handleThink,
		wire.OpExec:  handleExec,
		wire.OpRead:  handleRead,
		wire.OpWrite: handleWrite,

		wire.OpSpawn:  handleSpawn,
		wire.OpKill:   handleKill,
		wire.OpList:   handleList,
		wire.OpPause:  handlePause,
		wire.OpResume: handleResume,

		wire.OpSend:      handleSend,
		wire.OpRecv:      handleRecv,
		wire.OpBroadcast: handleBroadcast,
		wire.OpRegister:  handleRegister,

		wire.OpStore:  handleStore,
		wire.OpFetch:  handleFetch,
		wire.OpDelete: handleDelete,
		wire.OpKeys:   handleKeys,

		wire.OpGetPerms: handleGetPerms,
		wire.OpSetPerms: handleSetPerms,

		wire.OpHTTP: handleHTTP,

		wire.OpSubscribe:   handleSubscribe,
		wire.OpUnsubscribe: handleUnsubscribe,
		wire.OpPollEvents:  handlePollEvents,
		wire.OpEmit:        handleEmit,

		wire.OpRecordStart:    handleRecordStart,
		wire.OpRecordStop:     handleRecordStop,
		wire.OpRecordStatus:   handleRecordStatus,
		wire.OpReplayStart:    handleReplayStart,
		wire.OpReplayStatus:   handleReplayStatus,
		wire.OpGetAuditLog:    handleGetAuditLog,
		wire.OpSetAuditConfig: handleSetAuditConfig,
	}
	return d
}

// Dispatch is the central entry point: given a decoded frame, it
// produces the response frame. It never returns an error that would
// leave the request unanswered (testable property #10) — any internal
// failure is converted into a {success:false} payload instead.
func (d *Dispatcher) Dispatch(ctx context.Context, frame wire.Frame) wire.Frame {
	agentID := frame.AgentID
	opcode := frame.Opcode

	if opcode >= wire.OpWorldCreate && opcode <= wire.OpWorldRestore && d.World != nil {
		return d.routeSubsystem(ctx, frame, d.World.Handle)
	}
	if opcode >= wire.OpTunnelOpen && opcode <= wire.OpTunnelListRemotes && d.Tunnel != nil {
		return d.routeSubsystem(ctx, frame, d.Tunnel.Handle)
	}
	if opcode >= wire.OpMetricsAgent && opcode <= wire.OpMetricsReset && d.Metrics != nil {
		return d.routeSubsystem(ctx, frame, d.Metrics.Handle)
	}

	handler, known := d.handlers[opcode]
	if !known {
		// unknown opcode: echo the payload back, kept for protocol
		// probing.
		return wire.Frame{AgentID: agentID, Opcode: opcode, Payload: frame.Payload}
	}

	if requiresPermission[opcode] {
		if denyMsg, denied := d.checkPermission(agentID, opcode, frame.Payload); denied {
			d.Events.Emit(eventbus.EventSyscallBlocked, map[string]any{"opcode": opcode.String(), "reason": denyMsg}, agentID)
			d.Audit.LogSecurity("SYSCALL_BLOCKED", agentID, d.agentName(agentID), map[string]any{"opcode": opcode.String(), "reason": denyMsg})
			return wire.Frame{AgentID: agentID, Opcode: opcode, Payload: denialFailure(denyMsg)}
		}
	}

	start := time.Now()
	payload, err := handler(ctx, d, agentID, frame.Payload)
	if err != nil {
		payload = errorPayload(err)
	}

	d.afterDispatch(agentID, opcode, frame.Payload, payload, time.Since(start), err == nil)

	return wire.Frame{AgentID: agentID, Opcode: opcode, Payload: payload}
}

func (d *Dispatcher) routeSubsystem(ctx context.Context, frame wire.Frame, handle func(context.Context, uint32, wire.Opcode, json.RawMessage) (json.RawMessage, error)) wire.Frame {
	start := time.Now()
	resp, err := handle(ctx, frame.AgentID, frame.Opcode, frame.Payload)
	if err != nil {
		resp = errorPayload(err)
	}
	d.afterDispatch(frame.AgentID, frame.Opcode, frame.Payload, resp, time.Since(start), err == nil)
	return wire.Frame{AgentID: frame.AgentID, Opcode: frame.Opcode, Payload: resp}
}

// afterDispatch appends an ExecutionEntry if recording qualifies this
// opcode, capturing the response, the handler's wall time, and
// whether it succeeded alongside the request payload.
func (d *Dispatcher) afterDispatch(agentID uint32, opcode wire.Opcode, requestPayload, response json.RawMessage, duration time.Duration, success bool) {
	if d.Recorder != nil && d.Recorder.ShouldRecord(agentID, opcode) {
		d.Recorder.Record(agentID, opcode, requestPayload, response, duration.Microseconds(), success)
	}
}

func (d *Dispatcher) agentName(agentID uint32) string {
	if d.Mailbox != nil {
		if name, ok := d.Mailbox.NameOf(agentID); ok {
			return name
		}
	}
	if d.Supervisor != nil {
		if agent := d.Supervisor.Get(agentID); agent != nil {
			return agent.Name
		}
	}
	return ""
}

// agentPerms returns the permission set for agentID, creating one
// from the STANDARD preset on first sight. Every agent id reaching
// Dispatch — whether a socket connection, a spawned agent's own
// connection, or the kernel (id 0) — is entitled to a permission set,
// so this never returns nil.
func (d *Dispatcher) agentPerms(agentID uint32) *permission.Set {
	if d.perms == nil {
		d.perms = make(map[uint32]*permission.Set)
	}
	if p, ok := d.perms[agentID]; ok {
		return p
	}
	set := permission.FromLevel(permission.Standard)
	d.perms[agentID] = &set
	return &set
}

// knownAgent reports whether agentID has been seen before, either as
// a registered permission holder or a live supervised agent. Used to
// keep SET_PERMS from silently granting a permission set to an id
// nobody has ever connected as or spawned.
func (d *Dispatcher) knownAgent(agentID uint32) bool {
	if _, ok := d.perms[agentID]; ok {
		return true
	}
	return d.Supervisor != nil && d.Supervisor.Get(agentID) != nil
}

// RegisterAgent seeds agentID's permission set, called once a socket
// connection is accepted (see ipcserver.OnConnect) so GET_PERMS and
// every gated syscall work from the very first frame.
func (d *Dispatcher) RegisterAgent(agentID uint32) {
	d.agentPerms(agentID)
}

// UnregisterAgent drops agentID's permission set, called once its
// connection closes (see ipcserver.OnDisconnect).
func (d *Dispatcher) UnregisterAgent(agentID uint32) {
	delete(d.perms, agentID)
}

func errorPayload(err error) json.RawMessage {
	if ke, ok := err.(*errkind.Error); ok {
		return failure(ke.Kind, ke.Message)
	}
	return failure(errkind.BackendError, err.Error())
}

func ok(fields map[string]any) json.RawMessage {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["success"] = true
	b, err := json.Marshal(fields)
	if err != nil {
		return []byte(`{"success":true}`)
	}
	return b
}

func failure(kind errkind.Kind, message string) json.RawMessage {
	b, err := json.Marshal(map[string]any{"success": false, "error": message, "error_kind": string(kind)})
	if err != nil {
		return []byte(`{"success":false,"error":"internal error"}`)
	}
	return b
}

// denialFailure builds the envelope for a permission-check rejection.
// It carries exit_code -1 and a "Permission denied: " prefix, matching
// the failure shape syscalls report when a sandboxed command itself
// fails, so callers can treat either the same way.
func denialFailure(reason string) json.RawMessage {
	b, err := json.Marshal(map[string]any{
		"success":    false,
		"error":      "Permission denied: " + reason,
		"error_kind": string(errkind.PermissionDenied),
		"exit_code":  -1,
	})
	if err != nil {
		return []byte(`{"success":false,"error":"Permission denied","exit_code":-1}`)
	}
	return b
}
