// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import "testing"

func TestPresetMonotonicity(t *testing.T) {
	levels := []Level{Minimal, Readonly, Sandboxed, Standard, Unrestricted}

	requests := []func(Set) bool{
		func(s Set) bool { return s.CanRead },
		func(s Set) bool { return s.CanWrite },
		func(s Set) bool { return s.CanExec },
		func(s Set) bool { return s.CanSpawn },
		func(s Set) bool { return s.CanHTTP },
	}

	for i := 0; i < len(levels); i++ {
		for j := i; j < len(levels); j++ {
			p1, p2 := FromLevel(levels[i]), FromLevel(levels[j])
			if !levels[j].AtLeast(levels[i]) {
				t.Fatalf("AtLeast ordering broken for %v, %v", levels[i], levels[j])
			}
			for _, req := range requests {
				if req(p1) && !req(p2) {
					t.Fatalf("%v grants a request that %v denies", levels[i], levels[j])
				}
			}
		}
	}
}

func TestCommandMatchingAllowIsPrefixOnly(t *testing.T) {
	set := FromLevel(Standard)
	set.AllowedCommands = []string{"git status"}

	if set.CanExecuteCommand("echo git status") {
		t.Fatal("allow-list matched as a substring; must be strict prefix")
	}
	if !set.CanExecuteCommand("git status --short") {
		t.Fatal("allow-list should match its own prefix")
	}
}

func TestCommandMatchingDenyIsSubstring(t *testing.T) {
	set := FromLevel(Standard)
	if set.CanExecuteCommand("nohup sudo rm -rf /tmp/x") {
		t.Fatal("deny-list entry \"sudo\" should block anywhere in the command")
	}
}

func TestDefaultBlockedPathsApplyToStandard(t *testing.T) {
	set := FromLevel(Standard)
	if set.CanReadPath("/etc/shadow") {
		t.Fatal("/etc/shadow must be blocked under STANDARD")
	}
}

func TestUnrestrictedClearsBlockedLists(t *testing.T) {
	set := FromLevel(Unrestricted)
	if !set.CanReadPath("/etc/shadow") {
		t.Fatal("UNRESTRICTED should clear the default blocked path list")
	}
}

func TestDomainMatchesWildcard(t *testing.T) {
	set := FromLevel(Unrestricted)
	set.AllowedDomains = []string{"*.example.com"}
	if !set.CanAccessDomain("api.example.com") {
		t.Fatal("wildcard domain should match subdomain")
	}
	if set.CanAccessDomain("example.com") {
		t.Fatal("*.example.com must not match the bare apex domain")
	}
}

func TestLLMQuota(t *testing.T) {
	set := FromLevel(Standard)
	set.MaxLLMCalls = 1
	set.MaxLLMTokens = 100

	if !set.CanUseLLM(50) {
		t.Fatal("first call under quota should be allowed")
	}
	set.RecordLLMUsage(50)
	if set.CanUseLLM(1) {
		t.Fatal("call quota of 1 should reject a second call")
	}
}

func TestExtractDomain(t *testing.T) {
	cases := map[string]string{
		"https://api.example.com/v1/x": "api.example.com",
		"example.com:8080/path":        "example.com",
		"plain.example.com":            "plain.example.com",
	}
	for in, want := range cases {
		if got := ExtractDomain(in); got != want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
