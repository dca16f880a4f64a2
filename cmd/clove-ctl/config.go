// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/clove-kernel/clove/cmd/clove-ctl/cli"
	"github.com/clove-kernel/clove/internal/cloveconfig"
	"github.com/clove-kernel/clove/lib/sealed"
)

// configSnapshot is the on-disk/printed shape of a resolved kernel
// configuration: the settings file overlay plus the LLM environment
// clove would actually start with.
type configSnapshot struct {
	cloveconfig.Settings `yaml:",inline"`
	GeminiAPIKey         string `yaml:"gemini_api_key"`
	GeminiModel          string `yaml:"gemini_model"`
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "inspect the kernel's resolved settings and LLM environment",
		Subcommands: []*cli.Command{
			configShowCommand(),
		},
	}
}

func configShowCommand() *cli.Command {
	var configPath, outPath, sealTo string

	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("config show", pflag.ContinueOnError)
		fs.StringVar(&configPath, "config", "", "path to the settings YAML file (default: $CLOVE_CONFIG)")
		fs.StringVar(&outPath, "out", "", "write the snapshot here instead of stdout")
		fs.StringVar(&sealTo, "seal-to", "", "age public key (age1...) to encrypt an unredacted snapshot for")
		return fs
	}

	return &cli.Command{
		Name:    "show",
		Summary: "print the resolved settings and LLM environment",
		Description: "Loads the settings file the same way the kernel does and resolves the LLM " +
			"API key and model. By default the API key is redacted in the printed output. Pass " +
			"--seal-to with an age public key to instead write a full, unredacted snapshot " +
			"encrypted to that recipient -- useful for operator backup or escrow, never for the " +
			"kernel's own startup path.",
		Usage: "clove-ctl config show [--config path] [--out path] [--seal-to age1...]",
		Flags: flags,
		Run: func(args []string) error {
			settings, err := cloveconfig.LoadSettings(cloveconfig.ResolvePath(configPath))
			if err != nil {
				return err
			}
			env := cloveconfig.ResolveLLMEnv()

			snapshot := configSnapshot{
				Settings:     settings,
				GeminiAPIKey: env.APIKey,
				GeminiModel:  env.Model,
			}

			if sealTo != "" {
				return writeSealedSnapshot(snapshot, sealTo, outPath)
			}
			return writeRedactedSnapshot(snapshot, outPath)
		},
	}
}

// writeRedactedSnapshot prints the snapshot with the API key masked,
// since this output is meant for a terminal or a log, not a backup.
func writeRedactedSnapshot(snapshot configSnapshot, outPath string) error {
	if snapshot.GeminiAPIKey != "" {
		snapshot.GeminiAPIKey = redact(snapshot.GeminiAPIKey)
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	return writeOut(data, outPath)
}

// writeSealedSnapshot age-encrypts the full, unredacted snapshot
// (including the real API key) to recipient and writes the ciphertext
// as a plain base64 string. Intended for an operator's own key escrow,
// never for clove's own runtime config resolution, which stays plaintext.
func writeSealedSnapshot(snapshot configSnapshot, recipient, outPath string) error {
	if err := sealed.ParsePublicKey(recipient); err != nil {
		return err
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	ciphertext, err := sealed.Encrypt(data, []string{recipient})
	if err != nil {
		return fmt.Errorf("sealing settings snapshot: %w", err)
	}
	return writeOut([]byte(ciphertext+"\n"), outPath)
}

func writeOut(data []byte, outPath string) error {
	if outPath == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	return nil
}

// redact keeps the first four characters of a secret visible (enough
// to tell two keys apart in a terminal) and masks the rest.
func redact(secret string) string {
	const visible = 4
	if len(secret) <= visible {
		return "****"
	}
	return secret[:visible] + "****"
}
