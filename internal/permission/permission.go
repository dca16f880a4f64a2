// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission implements the per-agent capability model: boolean
// syscall gates, path/command/domain allow-and-deny lists, and LLM
// usage quotas. Every check is a pure function of the Set and its
// arguments — no I/O, no locking, so the dispatcher can call these from
// the single kernel thread without ceremony.
package permission

// Level is one of the five presets that seed a new agent's Set.
type Level int

const (
	Unrestricted Level = iota
	Standard
	Sandboxed
	Readonly
	Minimal
)

// rank gives the presets a total order for the monotonicity property:
// MINIMAL < READONLY < SANDBOXED < STANDARD < UNRESTRICTED in the
// amount of access granted.
var rank = map[Level]int{
	Minimal:       0,
	Readonly:      1,
	Sandboxed:     2,
	Standard:      3,
	Unrestricted:  4,
}

// AtLeast reports whether l grants at least as much access as other.
func (l Level) AtLeast(other Level) bool { return rank[l] >= rank[other] }

// Set holds one agent's capability grants, restriction lists, and LLM
// usage accounting.
type Set struct {
	CanExec, CanRead, CanWrite, CanThink, CanSpawn, CanHTTP bool

	AllowedReadPaths, AllowedWritePaths, BlockedPaths []string
	AllowedCommands, BlockedCommands                  []string
	AllowedDomains                                    []string

	MaxLLMTokens  uint64
	MaxLLMCalls   uint32
	MaxExecTimeMS uint64

	LLMTokensUsed uint64
	LLMCallsMade  uint32
}

// DefaultBlockedPaths are applied to every preset except Unrestricted.
var DefaultBlockedPaths = []string{
	"/etc/shadow", "/etc/passwd",
	"~/.ssh/*", "~/.gnupg/*", "~/.aws/*", "~/.config/gcloud/*",
	"*/.env", "*/.git/config",
	"*/credentials*", "*/secrets*", "*/*token*", "*/*password*",
}

// DefaultBlockedCommands are applied to every preset except Unrestricted.
var DefaultBlockedCommands = []string{
	"rm -rf /", "rm -rf ~", "rm -rf /*",
	"sudo", "su ", "chmod 777",
	"curl | bash", "wget | bash",
	"> /dev/sd", "dd if=", "mkfs",
	":(){:|:&};:",
	"shutdown", "reboot", "init 0", "poweroff",
}

const defaultMaxExecTimeMS = 30000

// FromLevel builds a fresh Set for the given preset.
func FromLevel(level Level) Set {
	set := Set{
		BlockedPaths:    append([]string{}, DefaultBlockedPaths...),
		BlockedCommands: append([]string{}, DefaultBlockedCommands...),
		MaxExecTimeMS:   defaultMaxExecTimeMS,
	}

	switch level {
	case Unrestricted:
		set.CanExec, set.CanRead, set.CanWrite, set.CanThink, set.CanSpawn, set.CanHTTP = true, true, true, true, true, true
		set.BlockedPaths = nil
		set.BlockedCommands = nil

	case Standard:
		set.CanExec, set.CanRead, set.CanWrite, set.CanThink = true, true, true, true

	case Sandboxed:
		set.CanExec, set.CanRead, set.CanWrite, set.CanThink = true, true, true, true
		set.AllowedReadPaths = []string{"/tmp/*", "/home/*"}
		set.AllowedWritePaths = []string{"/tmp/*"}

	case Readonly:
		set.CanRead, set.CanThink = true, true

	case Minimal:
		set.CanThink = true
	}

	return set
}
