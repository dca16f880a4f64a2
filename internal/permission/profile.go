// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Profile is the on-disk shape of a permission preset override: a base
// preset name plus field-level overrides. Unset fields leave the
// preset's value untouched; an empty-but-present list field (declared
// in the file as []) clears the preset's default for that field.
type Profile struct {
	Level string `json:"level,omitempty"`

	CanExec  *bool `json:"can_exec,omitempty"`
	CanRead  *bool `json:"can_read,omitempty"`
	CanWrite *bool `json:"can_write,omitempty"`
	CanThink *bool `json:"can_think,omitempty"`
	CanSpawn *bool `json:"can_spawn,omitempty"`
	CanHTTP  *bool `json:"can_http,omitempty"`

	AllowedReadPaths  []string `json:"allowed_read_paths"`
	AllowedWritePaths []string `json:"allowed_write_paths"`
	BlockedPaths      []string `json:"blocked_paths"`
	AllowedCommands   []string `json:"allowed_commands"`
	BlockedCommands   []string `json:"blocked_commands"`
	AllowedDomains    []string `json:"allowed_domains"`

	MaxLLMTokens  *uint64 `json:"max_llm_tokens,omitempty"`
	MaxLLMCalls   *uint32 `json:"max_llm_calls,omitempty"`
	MaxExecTimeMS *uint64 `json:"max_exec_time_ms,omitempty"`
}

// levelByName maps a profile's "level" field to a Level constant.
var levelByName = map[string]Level{
	"unrestricted": Unrestricted,
	"standard":     Standard,
	"sandboxed":    Sandboxed,
	"readonly":     Readonly,
	"minimal":      Minimal,
}

// LoadProfile reads a JSON-with-comments permission profile from path
// and returns the resulting Set: the named base preset (or Standard,
// if the file omits "level") with the file's field overrides applied.
//
// Comments and trailing commas are accepted — jsonc.ToJSON strips them
// before the standard decoder ever sees the bytes, so operators can
// annotate a shared profile file without breaking the parser.
func LoadProfile(path string) (Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("permission: reading %s: %w", path, err)
	}

	var profile Profile
	if err := json.Unmarshal(jsonc.ToJSON(raw), &profile); err != nil {
		return Set{}, fmt.Errorf("permission: parsing %s: %w", path, err)
	}

	level, ok := levelByName[profile.Level]
	if profile.Level != "" && !ok {
		return Set{}, fmt.Errorf("permission: %s: unknown level %q", path, profile.Level)
	}
	if profile.Level == "" {
		level = Standard
	}

	set := FromLevel(level)
	profile.applyTo(&set)
	return set, nil
}

// applyTo overlays the profile's overrides onto set in place. A nil
// pointer field leaves set's value untouched; a non-nil pointer
// replaces it outright (this is an override file, not an additive
// merge).
func (p Profile) applyTo(set *Set) {
	if p.CanExec != nil {
		set.CanExec = *p.CanExec
	}
	if p.CanRead != nil {
		set.CanRead = *p.CanRead
	}
	if p.CanWrite != nil {
		set.CanWrite = *p.CanWrite
	}
	if p.CanThink != nil {
		set.CanThink = *p.CanThink
	}
	if p.CanSpawn != nil {
		set.CanSpawn = *p.CanSpawn
	}
	if p.CanHTTP != nil {
		set.CanHTTP = *p.CanHTTP
	}

	if p.AllowedReadPaths != nil {
		set.AllowedReadPaths = p.AllowedReadPaths
	}
	if p.AllowedWritePaths != nil {
		set.AllowedWritePaths = p.AllowedWritePaths
	}
	if p.BlockedPaths != nil {
		set.BlockedPaths = p.BlockedPaths
	}
	if p.AllowedCommands != nil {
		set.AllowedCommands = p.AllowedCommands
	}
	if p.BlockedCommands != nil {
		set.BlockedCommands = p.BlockedCommands
	}
	if p.AllowedDomains != nil {
		set.AllowedDomains = p.AllowedDomains
	}

	if p.MaxLLMTokens != nil {
		set.MaxLLMTokens = *p.MaxLLMTokens
	}
	if p.MaxLLMCalls != nil {
		set.MaxLLMCalls = *p.MaxLLMCalls
	}
	if p.MaxExecTimeMS != nil {
		set.MaxExecTimeMS = *p.MaxExecTimeMS
	}
}
