// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/clove-kernel/clove/internal/audit"
	"github.com/clove-kernel/clove/internal/errkind"
	"github.com/clove-kernel/clove/internal/execlog"
)

// handleRecordStart transitions the recorder Idle -> Recording.
func handleRecordStart(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		IncludeThink bool     `json:"include_think,omitempty"`
		IncludeHTTP  bool     `json:"include_http,omitempty"`
		IncludeExec  bool     `json:"include_exec,omitempty"`
		FilterAgents []uint32 `json:"filter_agents,omitempty"`
		MaxEntries   int      `json:"max_entries,omitempty"`
	}
	_ = json.Unmarshal(payload, &req)

	d.Recorder.Start(execlog.RecordOptions{
		FilterAgents: req.FilterAgents,
		IncludeThink: req.IncludeThink,
		IncludeHTTP:  req.IncludeHTTP,
		IncludeExec:  req.IncludeExec,
		MaxEntries:   req.MaxEntries,
	})
	return ok(map[string]any{"state": d.Recorder.State().String()}), nil
}

// handleRecordStop transitions Recording/Paused -> Idle.
func handleRecordStop(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	entries := d.Recorder.Stop()
	return ok(map[string]any{"state": d.Recorder.State().String(), "entry_count": len(entries)}), nil
}

// handleRecordStatus reports the recorder's state and, if export is
// requested, the serialized recording plus its tamper-evidence digest.
func handleRecordStatus(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Export bool `json:"export,omitempty"`
	}
	_ = json.Unmarshal(payload, &req)

	fields := map[string]any{
		"state":       d.Recorder.State().String(),
		"entry_count": d.Recorder.EntryCount(),
	}
	if req.Export {
		data, digest, err := execlog.Export(d.Recorder.Stop())
		if err != nil {
			return nil, errkind.New(errkind.BackendError, "failed to export recording")
		}
		fields["recording"] = string(data)
		fields["digest"] = digest
	}
	return ok(fields), nil
}

// handleReplayStart imports a JSON array of entries and transitions
// Idle -> Running.
func handleReplayStart(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Recording string `json:"recording"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid replay_start payload")
	}

	var entries []execlog.Entry
	if err := json.Unmarshal([]byte(req.Recording), &entries); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "recording is not valid JSON")
	}
	if err := d.Player.Start(entries); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, err.Error())
	}
	return ok(map[string]any{"total_entries": len(entries)}), nil
}

// handleReplayStatus reports replay progress.
func handleReplayStatus(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	status := d.Player.Status()
	return ok(map[string]any{
		"state":            status.State.String(),
		"current_entry":    status.CurrentEntry,
		"total_entries":    status.TotalEntries,
		"entries_replayed": status.EntriesReplayed,
		"entries_skipped":  status.EntriesSkipped,
		"error":            status.Error,
	}), nil
}

// handleGetAuditLog queries the audit log with optional category,
// agent, since_id, and limit filters.
func handleGetAuditLog(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Category *string `json:"category,omitempty"`
		AgentID  *uint32 `json:"agent_id,omitempty"`
		SinceID  uint64  `json:"since_id,omitempty"`
		Limit    int     `json:"limit,omitempty"`
		Export   bool    `json:"export,omitempty"`
	}
	_ = json.Unmarshal(payload, &req)

	filter := audit.QueryFilter{AgentID: req.AgentID, SinceID: req.SinceID, Limit: req.Limit}
	if req.Category != nil {
		cat := audit.ParseCategory(*req.Category)
		filter.Category = &cat
	}

	entries := d.Audit.Get(filter)
	fields := map[string]any{"entries": entries, "count": len(entries)}
	if req.Export {
		jsonl, err := d.Audit.ExportJSONL(0)
		if err != nil {
			return nil, errkind.New(errkind.BackendError, "failed to export audit log")
		}
		fields["jsonl"] = jsonl
	}
	return ok(fields), nil
}

// handleSetAuditConfig replaces the audit log's category enable flags
// and retention bound.
func handleSetAuditConfig(ctx context.Context, d *Dispatcher, agentID uint32, payload json.RawMessage) (json.RawMessage, error) {
	var req audit.Config
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, "invalid set_audit_config payload")
	}
	d.Audit.SetConfig(req)
	return ok(map[string]any{"updated": true}), nil
}
