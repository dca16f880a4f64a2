// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/pierrec/lz4/v4"
	"github.com/spf13/pflag"

	"github.com/clove-kernel/clove/cmd/clove-ctl/cli"
	"github.com/clove-kernel/clove/internal/wire"
)

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:    "audit",
		Summary: "pull the kernel's audit log",
		Subcommands: []*cli.Command{
			auditExportCommand(),
		},
	}
}

func auditExportCommand() *cli.Command {
	var socketPath, configPath, outPath, category string
	var agentID uint32
	var limit int
	var compress bool

	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("audit export", pflag.ContinueOnError)
		fs.StringVar(&socketPath, "socket", "", "override the socket path from the settings file")
		fs.StringVar(&configPath, "config", "", "path to the settings YAML file (default: $CLOVE_CONFIG)")
		fs.StringVar(&outPath, "out", "", "write the JSONL export here instead of stdout")
		fs.StringVar(&category, "category", "", "restrict to one audit category (default: all)")
		fs.Uint32Var(&agentID, "agent", 0, "restrict to one agent id (0 means no filter; agent ids start at 1)")
		fs.IntVar(&limit, "limit", 0, "cap the number of entries (default: unbounded)")
		fs.BoolVar(&compress, "compress", false, "LZ4-compress the export before writing it")
		return fs
	}

	cmd := &cli.Command{
		Name:    "export",
		Summary: "export the audit log as JSONL, optionally LZ4-compressed",
		Description: "Fetches every retained audit entry matching the filters from the running " +
			"kernel and writes the same JSONL shape internal/audit.Log.ExportJSONL produces. " +
			"With --compress, the JSONL stream is framed through an LZ4 writer before being " +
			"written to --out; --compress without --out is rejected, since a compressed stream " +
			"on a terminal is not useful.",
		Usage: "clove-ctl audit export [--out path] [--compress] [--category cat] [--agent id] [--limit n]",
		Flags: flags,
	}
	cmd.Run = func(args []string) error {
		if compress && outPath == "" {
			return fmt.Errorf("--compress requires --out")
		}

		client, err := connectKernel(socketPath, configPath)
		if err != nil {
			return err
		}
		defer client.Close()

		request := map[string]any{"export": true, "limit": limit}
		if category != "" {
			request["category"] = category
		}
		if agentID != 0 {
			request["agent_id"] = agentID
		}

		var resp struct {
			JSONL string `json:"jsonl"`
			Count int    `json:"count"`
		}
		if err := client.Call(wire.OpGetAuditLog, request, &resp); err != nil {
			return fmt.Errorf("fetching audit log: %w", err)
		}

		if outPath == "" {
			_, err := os.Stdout.WriteString(resp.JSONL)
			return err
		}
		if compress {
			return writeCompressed(outPath, []byte(resp.JSONL))
		}
		if err := os.WriteFile(outPath, []byte(resp.JSONL), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Printf("wrote %d entries to %s\n", resp.Count, outPath)
		return nil
	}
	return cmd
}

// writeCompressed LZ4-streams data to path, matching the framing
// pierrec/lz4's Writer produces: a single compressed block sequence
// that lz4.NewReader can decode back into the original JSONL bytes.
func writeCompressed(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	zw := lz4.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("lz4 compressing export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing lz4 stream: %w", err)
	}
	fmt.Printf("wrote compressed export to %s\n", path)
	return nil
}
