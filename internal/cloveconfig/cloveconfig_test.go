// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package cloveconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDotEnvHandlesQuotingAndComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# a comment\nGEMINI_API_KEY=\"abc123\"\nGEMINI_MODEL='gemini-test'\nEMPTY_IGNORED\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	vars, err := parseDotEnv(path)
	if err != nil {
		t.Fatalf("parseDotEnv: %v", err)
	}
	if vars["GEMINI_API_KEY"] != "abc123" {
		t.Fatalf("GEMINI_API_KEY = %q", vars["GEMINI_API_KEY"])
	}
	if vars["GEMINI_MODEL"] != "gemini-test" {
		t.Fatalf("GEMINI_MODEL = %q", vars["GEMINI_MODEL"])
	}
	if _, ok := vars["EMPTY_IGNORED"]; ok {
		t.Fatalf("EMPTY_IGNORED should have been skipped (no '=')")
	}
}

func TestResolveLLMEnvProcessEnvWinsOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, "GEMINI_API_KEY=from-dotenv\n")

	restoreCwd := chdir(t, dir)
	defer restoreCwd()

	os.Setenv("GEMINI_API_KEY", "from-process-env")
	defer os.Unsetenv("GEMINI_API_KEY")

	env := ResolveLLMEnv()
	if env.APIKey != "from-process-env" {
		t.Fatalf("APIKey = %q, want from-process-env", env.APIKey)
	}
}

func TestResolveLLMEnvFallsBackToDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, "GEMINI_API_KEY=from-dotenv\nGEMINI_MODEL=custom-model\n")

	restoreCwd := chdir(t, dir)
	defer restoreCwd()

	os.Unsetenv("GEMINI_API_KEY")
	os.Unsetenv("GOOGLE_API_KEY")
	os.Unsetenv("GEMINI_MODEL")

	env := ResolveLLMEnv()
	if env.APIKey != "from-dotenv" {
		t.Fatalf("APIKey = %q, want from-dotenv", env.APIKey)
	}
	if env.Model != "custom-model" {
		t.Fatalf("Model = %q, want custom-model", env.Model)
	}
}

func TestResolveLLMEnvDefaultsModelWhenUnset(t *testing.T) {
	dir := t.TempDir()
	restoreCwd := chdir(t, dir)
	defer restoreCwd()

	os.Unsetenv("GEMINI_API_KEY")
	os.Unsetenv("GOOGLE_API_KEY")
	os.Unsetenv("GEMINI_MODEL")

	env := ResolveLLMEnv()
	if env.Model != defaultModel {
		t.Fatalf("Model = %q, want default %q", env.Model, defaultModel)
	}
}

func TestDefaultSettingsUsedWhenPathEmpty(t *testing.T) {
	settings, err := LoadSettings("")
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.SocketPath != "/tmp/clove.sock" {
		t.Fatalf("SocketPath = %q", settings.SocketPath)
	}
}

func TestLoadSettingsOverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clove.yaml")
	content := "socket_path: /var/run/clove.sock\nrestart_max_attempts: 9\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.SocketPath != "/var/run/clove.sock" {
		t.Fatalf("SocketPath = %q", settings.SocketPath)
	}
	if settings.RestartMaxAttempts != 9 {
		t.Fatalf("RestartMaxAttempts = %d, want 9", settings.RestartMaxAttempts)
	}
	// untouched fields keep their default
	if settings.CgroupRoot != "/sys/fs/cgroup/clove" {
		t.Fatalf("CgroupRoot = %q, want default", settings.CgroupRoot)
	}
}

func TestResolvePathPrefersFlagOverEnv(t *testing.T) {
	os.Setenv("CLOVE_CONFIG", "/from/env.yaml")
	defer os.Unsetenv("CLOVE_CONFIG")

	if got := ResolvePath("/from/flag.yaml"); got != "/from/flag.yaml" {
		t.Fatalf("ResolvePath = %q, want flag value", got)
	}
	if got := ResolvePath(""); got != "/from/env.yaml" {
		t.Fatalf("ResolvePath = %q, want env value", got)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing .env: %v", err)
	}
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	return func() { os.Chdir(old) }
}
