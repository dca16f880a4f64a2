// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/pflag"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"github.com/clove-kernel/clove/cmd/clove-ctl/cli"
)

// reportEntry is the union of the two wire shapes a report can render:
// an audit log export line ([internal/audit].Entry) or an execution-log
// replay entry ([internal/execlog].Entry). Declared locally since, as
// with the rest of clove-ctl, the JSON the kernel emits is the contract.
type reportEntry struct {
	ID         uint64          `json:"id"`
	Timestamp  string          `json:"timestamp,omitempty"`
	AtUnixMS   int64           `json:"at_unix_ms,omitempty"`
	AgentID    uint32          `json:"agent_id"`
	Category   string          `json:"category,omitempty"`
	EventType  string          `json:"event_type,omitempty"`
	OpcodeName string          `json:"opcode_name,omitempty"`
	Success    bool            `json:"success,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func reportCommand() *cli.Command {
	var inPath, outPath string

	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("report", pflag.ContinueOnError)
		fs.StringVar(&inPath, "in", "", "audit export (JSONL) or execution-log export (JSON array) file")
		fs.StringVar(&outPath, "out", "", "HTML file to write (default: stdout)")
		return fs
	}

	return &cli.Command{
		Name:        "report",
		Summary:     "render an audit or execution-log export as an HTML report",
		Description: "Reads an export produced by OpGetAuditLog's export flag or execlog.Export and renders it as a syntax-highlighted HTML document.",
		Usage:       "clove-ctl report --in export.jsonl [--out report.html]",
		Flags:       flags,
		Run: func(args []string) error {
			if inPath == "" {
				return fmt.Errorf("--in is required")
			}

			entries, err := readReportEntries(inPath)
			if err != nil {
				return err
			}

			document := wrapReportHTML(renderReportBody(entries))

			if outPath == "" {
				fmt.Print(document)
				return nil
			}
			return os.WriteFile(outPath, []byte(document), 0o644)
		},
	}
}

// readReportEntries sniffs the input format: a leading '[' means a JSON
// array (execlog.Export's shape), otherwise it's read as JSONL (one
// audit entry per line, matching ExportJSONL's shape).
func readReportEntries(path string) ([]reportEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []reportEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("parsing %s as a JSON array: %w", path, err)
		}
		return entries, nil
	}

	var entries []reportEntry
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry reportEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return entries, nil
}

// renderReportBody builds the Markdown source for the report, then
// converts it to HTML. JSON payload/details blocks are syntax
// highlighted by Chroma and spliced in as raw HTML blocks rather than
// fenced code, since goldmark's own fenced-code renderer has no
// highlighter of its own.
func renderReportBody(entries []reportEntry) string {
	var markdown strings.Builder
	fmt.Fprintf(&markdown, "# clove execution report\n\n%d entries\n\n", len(entries))

	for _, e := range entries {
		label := e.EventType
		if label == "" {
			label = e.OpcodeName
		}
		fmt.Fprintf(&markdown, "## #%d agent=%d %s\n\n", e.ID, e.AgentID, label)

		if e.Category != "" {
			fmt.Fprintf(&markdown, "category: %s  \nsuccess: %v\n\n", e.Category, e.Success)
		}
		if e.Timestamp != "" {
			fmt.Fprintf(&markdown, "time: %s\n\n", e.Timestamp)
		} else if e.AtUnixMS != 0 {
			fmt.Fprintf(&markdown, "time: %d ms since recording start\n\n", e.AtUnixMS)
		}

		body := e.Payload
		if len(body) == 0 {
			body = e.Details
		}
		if len(body) > 0 {
			markdown.WriteString(highlightJSONBlock(body))
			markdown.WriteString("\n\n")
		}
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(ghtml.WithUnsafe()),
	)
	var rendered bytes.Buffer
	if err := md.Convert([]byte(markdown.String()), &rendered); err != nil {
		// Convert only fails on writer errors, never on malformed
		// input; a bytes.Buffer write never fails.
		return html.EscapeString(markdown.String())
	}
	return rendered.String()
}

// highlightJSONBlock pretty-prints raw and syntax-highlights it as an
// HTML fragment. Falls back to an escaped <pre> block if either step
// fails (malformed JSON in the export, or an unregistered lexer).
func highlightJSONBlock(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return "<pre>" + html.EscapeString(string(raw)) + "</pre>"
	}

	lexer := lexers.Get("json")
	if lexer == nil {
		return "<pre>" + html.EscapeString(pretty.String()) + "</pre>"
	}
	iterator, err := lexer.Tokenise(nil, pretty.String())
	if err != nil {
		return "<pre>" + html.EscapeString(pretty.String()) + "</pre>"
	}

	style := styles.Get("monokai")
	formatter := chromahtml.New()
	var highlighted bytes.Buffer
	if err := formatter.Format(&highlighted, style, iterator); err != nil {
		return "<pre>" + html.EscapeString(pretty.String()) + "</pre>"
	}
	return highlighted.String()
}

func wrapReportHTML(body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>clove execution report</title>
<style>
body { font-family: -apple-system, sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #1b1b1b; }
pre { padding: 0.75rem; border-radius: 6px; overflow-x: auto; }
h1, h2 { border-bottom: 1px solid #ddd; padding-bottom: 0.25rem; }
</style>
</head>
<body>
%s
</body>
</html>
`, body)
}
