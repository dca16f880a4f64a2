// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Opcode identifies a syscall on the wire. The zero value is NOOP.
type Opcode uint8

// Base family.
const (
	OpNoop Opcode = 0x00
	OpExit Opcode = 0xFF
)

// Core family.
const (
	OpThink Opcode = 0x01
	OpExec  Opcode = 0x02
	OpRead  Opcode = 0x03
	OpWrite Opcode = 0x04
)

// Lifecycle family.
const (
	OpSpawn  Opcode = 0x10
	OpKill   Opcode = 0x11
	OpList   Opcode = 0x12
	OpPause  Opcode = 0x14
	OpResume Opcode = 0x15
)

// IPC family.
const (
	OpSend      Opcode = 0x20
	OpRecv      Opcode = 0x21
	OpBroadcast Opcode = 0x22
	OpRegister  Opcode = 0x23
)

// State family.
const (
	OpStore  Opcode = 0x30
	OpFetch  Opcode = 0x31
	OpDelete Opcode = 0x32
	OpKeys   Opcode = 0x33
)

// Perms family.
const (
	OpGetPerms Opcode = 0x40
	OpSetPerms Opcode = 0x41
)

// Net family.
const (
	OpHTTP Opcode = 0x50
)

// Events family.
const (
	OpSubscribe   Opcode = 0x60
	OpUnsubscribe Opcode = 0x61
	OpPollEvents  Opcode = 0x62
	OpEmit        Opcode = 0x63
)

// Record family.
const (
	OpRecordStart    Opcode = 0x70
	OpRecordStop     Opcode = 0x71
	OpRecordStatus   Opcode = 0x72
	OpReplayStart    Opcode = 0x73
	OpReplayStatus   Opcode = 0x74
	OpGetAuditLog    Opcode = 0x76
	OpSetAuditConfig Opcode = 0x77
)

// World family.
const (
	OpWorldCreate  Opcode = 0xA0
	OpWorldDestroy Opcode = 0xA1
	OpWorldList    Opcode = 0xA2
	OpWorldJoin    Opcode = 0xA3
	OpWorldLeave   Opcode = 0xA4
	OpWorldEvent   Opcode = 0xA5
	OpWorldState   Opcode = 0xA6
	OpWorldSnapshot Opcode = 0xA7
	OpWorldRestore  Opcode = 0xA8
)

// Tunnel family.
const (
	OpTunnelOpen        Opcode = 0xB0
	OpTunnelClose       Opcode = 0xB1
	OpTunnelSend        Opcode = 0xB2
	OpTunnelStatus      Opcode = 0xB3
	OpTunnelListRemotes Opcode = 0xB4
)

// Metrics family.
const (
	OpMetricsAgent     Opcode = 0xC0
	OpMetricsKernel    Opcode = 0xC1
	OpMetricsSandbox   Opcode = 0xC2
	OpMetricsReset     Opcode = 0xC3
)

// readOnlyOpcodes is the set excluded from recording regardless of the
// non-deterministic include flags. All of them only read kernel state
// except METRICS_RESET, which zeroes an agent's LLM usage counters.
var readOnlyOpcodes = map[Opcode]bool{
	OpList:              true,
	OpGetPerms:          true,
	OpKeys:               true,
	OpPollEvents:        true,
	OpMetricsAgent:      true,
	OpMetricsKernel:     true,
	OpMetricsSandbox:    true,
	OpMetricsReset:      true,
	OpGetAuditLog:       true,
	OpTunnelStatus:      true,
	OpTunnelListRemotes: true,
	OpWorldList:         true,
	OpWorldState:        true,
}

// nonDeterministicOpcodes require an explicit include flag to be recorded.
var nonDeterministicOpcodes = map[Opcode]bool{
	OpThink: true,
	OpHTTP:  true,
	OpExec:  true,
}

// IsReadOnly reports whether op is excluded from recording unconditionally.
func IsReadOnly(op Opcode) bool { return readOnlyOpcodes[op] }

// IsNonDeterministic reports whether op needs an explicit include flag
// to be eligible for recording.
func IsNonDeterministic(op Opcode) bool { return nonDeterministicOpcodes[op] }

// String renders a human-readable opcode name for logging.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}

var opcodeNames = map[Opcode]string{
	OpNoop: "NOOP", OpExit: "EXIT",
	OpThink: "THINK", OpExec: "EXEC", OpRead: "READ", OpWrite: "WRITE",
	OpSpawn: "SPAWN", OpKill: "KILL", OpList: "LIST", OpPause: "PAUSE", OpResume: "RESUME",
	OpSend: "SEND", OpRecv: "RECV", OpBroadcast: "BROADCAST", OpRegister: "REGISTER",
	OpStore: "STORE", OpFetch: "FETCH", OpDelete: "DELETE", OpKeys: "KEYS",
	OpGetPerms: "GET_PERMS", OpSetPerms: "SET_PERMS",
	OpHTTP: "HTTP",
	OpSubscribe: "SUBSCRIBE", OpUnsubscribe: "UNSUBSCRIBE", OpPollEvents: "POLL_EVENTS", OpEmit: "EMIT",
	OpRecordStart: "RECORD_START", OpRecordStop: "RECORD_STOP", OpRecordStatus: "RECORD_STATUS",
	OpReplayStart: "REPLAY_START", OpReplayStatus: "REPLAY_STATUS",
	OpGetAuditLog: "GET_AUDIT_LOG", OpSetAuditConfig: "SET_AUDIT_CONFIG",
	OpWorldCreate: "WORLD_CREATE", OpWorldDestroy: "WORLD_DESTROY", OpWorldList: "WORLD_LIST",
	OpWorldJoin: "WORLD_JOIN", OpWorldLeave: "WORLD_LEAVE", OpWorldEvent: "WORLD_EVENT",
	OpWorldState: "WORLD_STATE", OpWorldSnapshot: "WORLD_SNAPSHOT", OpWorldRestore: "WORLD_RESTORE",
	OpTunnelOpen: "TUNNEL_OPEN", OpTunnelClose: "TUNNEL_CLOSE", OpTunnelSend: "TUNNEL_SEND",
	OpTunnelStatus: "TUNNEL_STATUS", OpTunnelListRemotes: "TUNNEL_LIST_REMOTES",
	OpMetricsAgent: "METRICS_AGENT", OpMetricsKernel: "METRICS_KERNEL",
	OpMetricsSandbox: "METRICS_SANDBOX", OpMetricsReset: "METRICS_RESET",
}
