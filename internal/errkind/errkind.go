// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package errkind names the error categories the dispatcher reports
// to clients, per the kernel's error handling design.
package errkind

// Kind classifies a dispatcher-level failure.
type Kind string

const (
	InvalidMessage   Kind = "invalid_message"
	PermissionDenied Kind = "permission_denied"
	NotFound         Kind = "not_found"
	InvalidRequest   Kind = "invalid_request"
	Timeout          Kind = "timeout"
	BackendError     Kind = "backend_error"
)

// Error pairs a Kind with a human-readable message naming the rule
// that fired, e.g. "command not allowed", "path not in whitelist".
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// New constructs an *Error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}
