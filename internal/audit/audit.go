// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit implements the bounded, categorized audit log behind
// GET_AUDIT_LOG and SET_AUDIT_CONFIG.
package audit

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/clove-kernel/clove/internal/clock"
)

// Category groups audit entries so logging can be enabled or
// disabled per concern.
type Category string

const (
	CategorySecurity  Category = "SECURITY"
	CategoryLifecycle Category = "AGENT_LIFECYCLE"
	CategoryIPC       Category = "IPC"
	CategoryState     Category = "STATE_STORE"
	CategoryResource  Category = "RESOURCE"
	CategorySyscall   Category = "SYSCALL"
	CategoryNetwork   Category = "NETWORK"
	CategoryWorld     Category = "WORLD"
)

// ParseCategory maps the wire string to a Category, defaulting to
// SYSCALL for anything unrecognized.
func ParseCategory(s string) Category {
	switch strings.ToUpper(s) {
	case string(CategorySecurity):
		return CategorySecurity
	case string(CategoryLifecycle):
		return CategoryLifecycle
	case string(CategoryIPC):
		return CategoryIPC
	case string(CategoryState):
		return CategoryState
	case string(CategoryResource):
		return CategoryResource
	case string(CategoryNetwork):
		return CategoryNetwork
	case string(CategoryWorld):
		return CategoryWorld
	default:
		return CategorySyscall
	}
}

// Entry is one logged event.
type Entry struct {
	ID        uint64          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Category  Category        `json:"category"`
	EventType string          `json:"event_type"`
	AgentID   uint32          `json:"agent_id"`
	AgentName string          `json:"agent_name,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	Success   bool            `json:"success"`
}

// ToJSONL renders the entry as a single compact JSON line.
func (e Entry) ToJSONL() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Config governs which categories get logged and how many entries are
// retained.
type Config struct {
	MaxEntries   int  `json:"max_entries"`
	LogSyscalls  bool `json:"log_syscalls"`
	LogSecurity  bool `json:"log_security"`
	LogLifecycle bool `json:"log_lifecycle"`
	LogIPC       bool `json:"log_ipc"`
	LogState     bool `json:"log_state"`
	LogResource  bool `json:"log_resource"`
	LogNetwork   bool `json:"log_network"`
	LogWorld     bool `json:"log_world"`
}

// DefaultConfig mirrors the conservative defaults: security, lifecycle
// and resource events are on; the noisier categories are off.
func DefaultConfig() Config {
	return Config{
		MaxEntries:   10000,
		LogSecurity:  true,
		LogLifecycle: true,
		LogResource:  true,
	}
}

// IsEnabled reports whether cat is currently logged.
func (c Config) IsEnabled(cat Category) bool {
	switch cat {
	case CategorySecurity:
		return c.LogSecurity
	case CategoryLifecycle:
		return c.LogLifecycle
	case CategoryIPC:
		return c.LogIPC
	case CategoryState:
		return c.LogState
	case CategoryResource:
		return c.LogResource
	case CategorySyscall:
		return c.LogSyscalls
	case CategoryNetwork:
		return c.LogNetwork
	case CategoryWorld:
		return c.LogWorld
	default:
		return false
	}
}

// Log is the bounded ring of entries, owned by the kernel's event
// loop. Insertion is O(1); once MaxEntries is reached the oldest entry
// is popped to make room for the newest.
type Log struct {
	clk     clock.Clock
	cfg     Config
	entries []Entry
	nextID  uint64
}

// New creates a Log with cfg. MaxEntries <= 0 falls back to the
// default of 10000.
func New(cfg Config, clk clock.Clock) *Log {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	return &Log{clk: clk, cfg: cfg, nextID: 1}
}

// SetConfig replaces the active configuration and trims the retained
// entries down to the new MaxEntries bound, dropping the oldest first.
func (l *Log) SetConfig(cfg Config) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	l.cfg = cfg
	l.trim()
}

// Config returns the active configuration.
func (l *Log) Config() Config { return l.cfg }

// Log appends an entry if its category is enabled. Returns the
// assigned id, or 0 if the category is disabled and nothing was
// logged.
func (l *Log) Log(cat Category, eventType string, agentID uint32, agentName string, details any, success bool) uint64 {
	if !l.cfg.IsEnabled(cat) {
		return 0
	}
	var raw json.RawMessage
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}
	id := l.nextID
	l.nextID++
	l.entries = append(l.entries, Entry{
		ID:        id,
		Timestamp: l.clk.Now(),
		Category:  cat,
		EventType: eventType,
		AgentID:   agentID,
		AgentName: agentName,
		Details:   raw,
		Success:   success,
	})
	l.trim()
	return id
}

func (l *Log) trim() {
	if over := len(l.entries) - l.cfg.MaxEntries; over > 0 {
		l.entries = l.entries[over:]
	}
}

// LogSecurity is a convenience wrapper for the SECURITY category.
func (l *Log) LogSecurity(eventType string, agentID uint32, agentName string, details any) uint64 {
	return l.Log(CategorySecurity, eventType, agentID, agentName, details, false)
}

// LogLifecycle is a convenience wrapper for the AGENT_LIFECYCLE category.
func (l *Log) LogLifecycle(eventType string, agentID uint32, agentName string, success bool, details any) uint64 {
	return l.Log(CategoryLifecycle, eventType, agentID, agentName, details, success)
}

// LogSyscall is a convenience wrapper for the SYSCALL category.
func (l *Log) LogSyscall(syscallName string, agentID uint32, payload any, success bool) uint64 {
	return l.Log(CategorySyscall, syscallName, agentID, "", payload, success)
}

// LogWorld is a convenience wrapper for the WORLD category.
func (l *Log) LogWorld(eventType string, agentID uint32, agentName string, success bool, details any) uint64 {
	return l.Log(CategoryWorld, eventType, agentID, agentName, details, success)
}

// QueryFilter narrows Get's result set. Zero values mean "no filter"
// for that field, except Limit where 0 means the default of 100.
type QueryFilter struct {
	Category *Category
	AgentID  *uint32
	SinceID  uint64
	Limit    int
}

// Get returns entries matching filter, in chronological order,
// capped at filter.Limit (default 100) most recent matches.
func (l *Log) Get(filter QueryFilter) []Entry {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var matched []Entry
	for _, e := range l.entries {
		if e.ID <= filter.SinceID {
			continue
		}
		if filter.Category != nil && e.Category != *filter.Category {
			continue
		}
		if filter.AgentID != nil && e.AgentID != *filter.AgentID {
			continue
		}
		matched = append(matched, e)
	}

	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// ExportJSONL renders every retained entry (or the most recent limit,
// if nonzero) as newline-delimited JSON.
func (l *Log) ExportJSONL(limit int) (string, error) {
	entries := l.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	var sb strings.Builder
	for _, e := range entries {
		line, err := e.ToJSONL()
		if err != nil {
			return "", err
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// Clear removes every entry without resetting the id counter.
func (l *Log) Clear() { l.entries = nil }

// EntryCount returns the number of entries currently retained.
func (l *Log) EntryCount() int { return len(l.entries) }

// LastEntryID returns the most recently assigned id, or 0 if nothing
// has ever been logged.
func (l *Log) LastEntryID() uint64 {
	if l.nextID == 1 {
		return 0
	}
	return l.nextID - 1
}
