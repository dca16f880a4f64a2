// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "testing"

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("sekret-value")
	buf, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buf.Close()

	for i, b := range source {
		if b != 0 {
			t.Fatalf("source[%d] = %d, want zeroed after copy", i, b)
		}
	}
	if buf.String() != "sekret-value" {
		t.Fatalf("buf.String() = %q", buf.String())
	}
}

func TestLenMatchesSize(t *testing.T) {
	buf, err := New(32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buf.Close()
	if buf.Len() != 32 {
		t.Fatalf("Len() = %d, want 32", buf.Len())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	buf, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBytesPanicsAfterClose(t *testing.T) {
	buf, _ := New(8)
	buf.Close()

	defer func() {
		if recover() == nil {
			t.Fatalf("Bytes() after Close did not panic")
		}
	}()
	buf.Bytes()
}

func TestNewFromBytesRejectsEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Fatalf("NewFromBytes(nil) did not error")
	}
}
