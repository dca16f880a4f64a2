// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"os"
	"path/filepath"
	"strings"
)

// expandHome replaces a leading "~" with $HOME, matching the source
// kernel's path pattern expansion.
func expandHome(pattern string) string {
	if !strings.HasPrefix(pattern, "~") {
		return pattern
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return pattern
	}
	return home + pattern[1:]
}

// pathMatches reports whether path matches the glob pattern, with "~"
// expanded to the home directory.
func pathMatches(path, pattern string) bool {
	ok, err := filepath.Match(expandHome(pattern), path)
	return err == nil && ok
}

// commandAllowed reports whether an allow-list entry matches cmd.
// Allow-list matching is strictly prefix-based: the fix for the
// source's conflated substring-or-prefix command_matches, which let an
// allow entry match anywhere in the command string.
func commandAllowed(cmd, allowPrefix string) bool {
	return strings.HasPrefix(cmd, allowPrefix)
}

// commandBlocked reports whether a deny-list entry matches cmd.
// Deny-list matching stays substring-based, so "sudo" still blocks
// "nohup sudo rm -rf /" wherever it appears in the command.
func commandBlocked(cmd, blockedSubstring string) bool {
	return strings.Contains(cmd, blockedSubstring)
}

// domainMatches reports an exact match, or a "*." wildcard pattern
// whose suffix matches the end of domain.
func domainMatches(domain, pattern string) bool {
	if domain == pattern {
		return true
	}
	if len(pattern) > 2 && strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		return len(domain) > len(suffix) && strings.HasSuffix(domain, suffix)
	}
	return false
}

// CanReadPath applies the blocked-then-allowed rule for reads.
func (s *Set) CanReadPath(path string) bool {
	if !s.CanRead {
		return false
	}
	for _, blocked := range s.BlockedPaths {
		if pathMatches(path, blocked) {
			return false
		}
	}
	if len(s.AllowedReadPaths) == 0 {
		return true
	}
	for _, allowed := range s.AllowedReadPaths {
		if pathMatches(path, allowed) {
			return true
		}
	}
	return false
}

// CanWritePath applies the blocked-then-allowed rule for writes.
func (s *Set) CanWritePath(path string) bool {
	if !s.CanWrite {
		return false
	}
	for _, blocked := range s.BlockedPaths {
		if pathMatches(path, blocked) {
			return false
		}
	}
	if len(s.AllowedWritePaths) == 0 {
		return true
	}
	for _, allowed := range s.AllowedWritePaths {
		if pathMatches(path, allowed) {
			return true
		}
	}
	return false
}

// CanExecuteCommand requires CanExec, rejects any substring match
// against BlockedCommands, then — if AllowedCommands is non-empty —
// requires a prefix match against it.
func (s *Set) CanExecuteCommand(cmd string) bool {
	if !s.CanExec {
		return false
	}
	for _, blocked := range s.BlockedCommands {
		if commandBlocked(cmd, blocked) {
			return false
		}
	}
	if len(s.AllowedCommands) == 0 {
		return true
	}
	for _, allowed := range s.AllowedCommands {
		if commandAllowed(cmd, allowed) {
			return true
		}
	}
	return false
}

// CanAccessDomain requires CanHTTP and a non-empty, matching allow list.
func (s *Set) CanAccessDomain(domain string) bool {
	if !s.CanHTTP || len(s.AllowedDomains) == 0 {
		return false
	}
	for _, allowed := range s.AllowedDomains {
		if domainMatches(domain, allowed) {
			return true
		}
	}
	return false
}

// CanUseLLM requires CanThink and that neither the call nor the token
// quota would be exceeded by a request estimated at estimatedTokens.
func (s *Set) CanUseLLM(estimatedTokens uint64) bool {
	if !s.CanThink {
		return false
	}
	if s.MaxLLMCalls > 0 && s.LLMCallsMade >= s.MaxLLMCalls {
		return false
	}
	if s.MaxLLMTokens > 0 && s.LLMTokensUsed+estimatedTokens > s.MaxLLMTokens {
		return false
	}
	return true
}

// RecordLLMUsage debits a completed LLM call against the quota.
func (s *Set) RecordLLMUsage(tokens uint64) {
	s.LLMCallsMade++
	s.LLMTokensUsed += tokens
}

// ExtractDomain pulls the host portion out of a URL-ish string,
// stripping scheme, path, and port.
func ExtractDomain(url string) string {
	domain := url
	if idx := strings.Index(domain, "://"); idx != -1 {
		domain = domain[idx+3:]
	}
	if idx := strings.Index(domain, "/"); idx != -1 {
		domain = domain[:idx]
	}
	if idx := strings.Index(domain, ":"); idx != -1 {
		domain = domain[:idx]
	}
	return domain
}
