// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package clover holds the handful of helpers every clove binary
// entrypoint needs before a structured logger exists.
package clover

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not
// yet be initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
