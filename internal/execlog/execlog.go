// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package execlog implements the execution recording and replay state
// machines behind RECORD_START/RECORD_STOP/RECORD_STATUS/REPLAY_START/
// REPLAY_STATUS, plus a tamper-evidence digest over an exported
// recording.
package execlog

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clove-kernel/clove/internal/clock"
	"github.com/clove-kernel/clove/internal/wire"
	"github.com/zeebo/blake3"
)

// RecordState is the recording state machine: Idle -> Recording <->
// Paused -> Idle.
type RecordState int

const (
	RecordIdle RecordState = iota
	RecordRecording
	RecordPaused
)

func (s RecordState) String() string {
	switch s {
	case RecordRecording:
		return "RECORDING"
	case RecordPaused:
		return "PAUSED"
	default:
		return "IDLE"
	}
}

// ReplayState is the replay state machine: Idle -> Running <-> Paused
// -> Completed|Error.
type ReplayState int

const (
	ReplayIdle ReplayState = iota
	ReplayRunning
	ReplayPaused
	ReplayCompleted
	ReplayError
)

func (s ReplayState) String() string {
	switch s {
	case ReplayRunning:
		return "RUNNING"
	case ReplayPaused:
		return "PAUSED"
	case ReplayCompleted:
		return "COMPLETED"
	case ReplayError:
		return "ERROR"
	default:
		return "IDLE"
	}
}

// Entry is one recorded syscall, request and response both, so a
// replay driver can compare what actually happened against what a
// re-injected request produces.
type Entry struct {
	ID         uint64          `json:"id"`
	AtUnixMS   int64           `json:"at_unix_ms"`
	AgentID    uint32          `json:"agent_id"`
	Opcode     wire.Opcode     `json:"opcode"`
	OpcodeName string          `json:"opcode_name"`
	Payload    json.RawMessage `json:"payload"`
	Response   json.RawMessage `json:"response"`
	DurationUS int64           `json:"duration_us"`
	Success    bool            `json:"success"`
}

// RecordOptions configures a recording session.
type RecordOptions struct {
	FilterAgents []uint32 // empty means no filter
	IncludeThink bool
	IncludeHTTP  bool
	IncludeExec  bool
	MaxEntries   int
}

var errNotRecording = errors.New("execlog: not currently recording")

// Recorder owns the recording state machine and the buffer of
// captured entries.
type Recorder struct {
	clk     clock.Clock
	state   RecordState
	opts    RecordOptions
	entries []Entry
	nextID  uint64
}

// NewRecorder creates an idle Recorder.
func NewRecorder(clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.Real()
	}
	return &Recorder{clk: clk, state: RecordIdle, nextID: 1}
}

// Start transitions Idle -> Recording, resetting the buffer.
func (r *Recorder) Start(opts RecordOptions) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}
	r.opts = opts
	r.entries = nil
	r.nextID = 1
	r.state = RecordRecording
}

// Pause transitions Recording -> Paused.
func (r *Recorder) Pause() error {
	if r.state != RecordRecording {
		return errNotRecording
	}
	r.state = RecordPaused
	return nil
}

// Resume transitions Paused -> Recording.
func (r *Recorder) Resume() error {
	if r.state != RecordPaused {
		return errors.New("execlog: not currently paused")
	}
	r.state = RecordRecording
	return nil
}

// Stop transitions Recording or Paused -> Idle and returns the
// entries captured, leaving them retained for Export until the next
// Start.
func (r *Recorder) Stop() []Entry {
	r.state = RecordIdle
	return r.entries
}

// State reports the current recording state.
func (r *Recorder) State() RecordState { return r.state }

// EntryCount reports how many entries are currently buffered.
func (r *Recorder) EntryCount() int { return len(r.entries) }

// ShouldRecord implements the four-part filter from the recording
// spec: active, agent-filtered, read-only-excluded, and
// nondeterminism-gated.
func (r *Recorder) ShouldRecord(agentID uint32, opcode wire.Opcode) bool {
	if r.state != RecordRecording {
		return false
	}
	if len(r.opts.FilterAgents) > 0 {
		found := false
		for _, id := range r.opts.FilterAgents {
			if id == agentID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if wire.IsReadOnly(opcode) {
		return false
	}
	if wire.IsNonDeterministic(opcode) {
		switch opcode {
		case wire.OpThink:
			return r.opts.IncludeThink
		case wire.OpHTTP:
			return r.opts.IncludeHTTP
		case wire.OpExec:
			return r.opts.IncludeExec
		default:
			return false
		}
	}
	return true
}

// Record appends an entry. Callers must have already checked
// ShouldRecord. Overflow pops the oldest entry.
func (r *Recorder) Record(agentID uint32, opcode wire.Opcode, payload, response json.RawMessage, durationUS int64, success bool) {
	entry := Entry{
		ID:         r.nextID,
		AtUnixMS:   r.clk.Now().UnixMilli(),
		AgentID:    agentID,
		Opcode:     opcode,
		OpcodeName: opcode.String(),
		Payload:    payload,
		Response:   response,
		DurationUS: durationUS,
		Success:    success,
	}
	r.nextID++
	r.entries = append(r.entries, entry)
	if max := r.opts.MaxEntries; max > 0 && len(r.entries) > max {
		r.entries = r.entries[len(r.entries)-max:]
	}
}

// Export serializes the buffered entries as a JSON array, plus a
// BLAKE3 digest over that array for tamper evidence.
func Export(entries []Entry) (data []byte, digestHex string, err error) {
	data, err = json.Marshal(entries)
	if err != nil {
		return nil, "", err
	}
	sum := blake3.Sum256(data)
	return data, fmt.Sprintf("%x", sum), nil
}

// Player owns the replay state machine and an imported entry buffer,
// advanced by an explicit cursor.
type Player struct {
	state      ReplayState
	entries    []Entry
	cursor     int
	replayed   int
	skipped    int
	lastErrMsg string
}

// NewPlayer creates an idle Player.
func NewPlayer() *Player { return &Player{state: ReplayIdle} }

// Start imports entries and transitions Idle -> Running.
func (p *Player) Start(entries []Entry) error {
	if len(entries) == 0 {
		return errors.New("execlog: cannot replay an empty recording")
	}
	p.entries = entries
	p.cursor = 0
	p.replayed = 0
	p.skipped = 0
	p.lastErrMsg = ""
	p.state = ReplayRunning
	return nil
}

// Pause transitions Running -> Paused.
func (p *Player) Pause() error {
	if p.state != ReplayRunning {
		return errors.New("execlog: replay is not running")
	}
	p.state = ReplayPaused
	return nil
}

// Resume transitions Paused -> Running.
func (p *Player) Resume() error {
	if p.state != ReplayPaused {
		return errors.New("execlog: replay is not paused")
	}
	p.state = ReplayRunning
	return nil
}

// GetNext returns the entry at the cursor without advancing it, or
// false if the cursor is at or past the end.
func (p *Player) GetNext() (Entry, bool) {
	if p.state != ReplayRunning || p.cursor >= len(p.entries) {
		return Entry{}, false
	}
	return p.entries[p.cursor], true
}

// Advance moves the cursor forward by one. skipped marks the entry as
// deliberately not replayed (counted separately from replayed).
// Reaching the end transitions to Completed.
func (p *Player) Advance(skipped bool) {
	if p.cursor >= len(p.entries) {
		return
	}
	if skipped {
		p.skipped++
	} else {
		p.replayed++
	}
	p.cursor++
	if p.cursor >= len(p.entries) {
		p.state = ReplayCompleted
	}
}

// Fail transitions to Error with a message, e.g. because the driver
// could not re-inject an entry.
func (p *Player) Fail(msg string) {
	p.lastErrMsg = msg
	p.state = ReplayError
}

// Status reports the replay progress.
type Status struct {
	State           ReplayState
	CurrentEntry    int
	TotalEntries    int
	EntriesReplayed int
	EntriesSkipped  int
	Error           string
}

// Status returns a snapshot of the replay progress.
func (p *Player) Status() Status {
	return Status{
		State:           p.state,
		CurrentEntry:    p.cursor,
		TotalEntries:    len(p.entries),
		EntriesReplayed: p.replayed,
		EntriesSkipped:  p.skipped,
		Error:           p.lastErrMsg,
	}
}
