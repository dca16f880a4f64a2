// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package cloveconfig resolves the kernel's LLM environment and,
// optionally, the operational settings file (cgroup root, audit and
// execution log bounds, restart defaults, tunnel signaling address,
// World/FUSE mount root).
package cloveconfig

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LLMEnv holds the resolved LLM-facing environment values.
type LLMEnv struct {
	APIKey string
	Model  string
}

const defaultModel = "gemini-2.0-flash"

// ResolveLLMEnv reads GEMINI_API_KEY (or GOOGLE_API_KEY) and
// GEMINI_MODEL from the process environment, falling back to a .env
// file discovered by searching the working directory, its ancestors,
// and the directory next to the executable. Variables already present
// in the process environment always win over the .env file.
func ResolveLLMEnv() LLMEnv {
	env := loadDotEnv()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		apiKey = env["GEMINI_API_KEY"]
	}
	if apiKey == "" {
		apiKey = env["GOOGLE_API_KEY"]
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = env["GEMINI_MODEL"]
	}
	if model == "" {
		model = defaultModel
	}

	return LLMEnv{APIKey: apiKey, Model: model}
}

// loadDotEnv parses the first .env file found while walking from the
// working directory up through its ancestors, then next to the
// executable. Returns an empty map if none is found.
func loadDotEnv() map[string]string {
	for _, path := range dotEnvSearchPaths() {
		if vars, err := parseDotEnv(path); err == nil {
			return vars
		}
	}
	return map[string]string{}
}

func dotEnvSearchPaths() []string {
	var paths []string

	if cwd, err := os.Getwd(); err == nil {
		dir := cwd
		for {
			paths = append(paths, filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), ".env"))
	}

	return paths
}

// parseDotEnv reads KEY=VALUE lines from path, supporting single or
// double-quoted values and ignoring blank lines and lines starting
// with '#'.
func parseDotEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = unquote(value)
		if key != "" {
			vars[key] = value
		}
	}
	return vars, scanner.Err()
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
