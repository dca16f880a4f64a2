// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package clover

// Version is the kernel's release version, reported by --version flags
// and the startup banner.
const Version = "0.1.0"
