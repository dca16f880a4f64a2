// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import "os"

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func writeFile(path string, content []byte) error {
	return os.WriteFile(path, content, 0o644)
}
