// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []Frame{
		{AgentID: 0, Opcode: OpNoop, Payload: []byte("hi")},
		{AgentID: 42, Opcode: OpSpawn, Payload: []byte(`{"name":"w1"}`)},
		{AgentID: 7, Opcode: OpExit, Payload: nil},
	}
	for _, f := range cases {
		encoded := Encode(f)
		total, ok, err := PeekLength(encoded)
		if err != nil || !ok {
			t.Fatalf("PeekLength(%v) = %d, %v, %v", f, total, ok, err)
		}
		if total != len(encoded) {
			t.Fatalf("PeekLength total = %d, want %d", total, len(encoded))
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if decoded.AgentID != f.AgentID || decoded.Opcode != f.Opcode || !bytes.Equal(decoded.Payload, f.Payload) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, f)
		}
	}
}

func TestPeekLengthNeedsMoreData(t *testing.T) {
	_, ok, err := PeekLength(make([]byte, HeaderSize-1))
	if ok || err != nil {
		t.Fatalf("PeekLength on short buffer = %v, %v, want false, nil", ok, err)
	}
}

func TestInvalidMagic(t *testing.T) {
	encoded := Encode(Frame{Opcode: OpNoop})
	encoded[0] ^= 0xFF
	_, ok, err := PeekLength(encoded)
	if !ok || err != ErrInvalidMagic {
		t.Fatalf("PeekLength on corrupt magic = %v, %v, want true, ErrInvalidMagic", ok, err)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	buf := Encode(Frame{Opcode: OpNoop})
	buf[9] = 0xFF
	buf[10] = 0xFF
	buf[11] = 0xFF
	buf[12] = 0xFF
	_, ok, err := PeekLength(buf)
	if !ok || err != ErrPayloadTooLarge {
		t.Fatalf("PeekLength with oversized length = %v, %v, want true, ErrPayloadTooLarge", ok, err)
	}
}

func TestDecodeShortRead(t *testing.T) {
	full := Encode(Frame{Opcode: OpSpawn, Payload: []byte("12345")})
	_, err := Decode(full[:HeaderSize+2])
	if err != ErrShortRead {
		t.Fatalf("Decode on truncated buffer = %v, want ErrShortRead", err)
	}
}

func TestResyncAfterCorruptMagic(t *testing.T) {
	// Simulates the socket server's recovery: a corrupt frame followed
	// by a valid one. Dropping exactly HeaderSize bytes must land on
	// the next header.
	good := Encode(Frame{AgentID: 3, Opcode: OpNoop, Payload: []byte("ok")})
	bad := make([]byte, HeaderSize)
	stream := append(bad, good...)

	_, ok, err := PeekLength(stream)
	if !ok || err != ErrInvalidMagic {
		t.Fatalf("expected invalid magic at offset 0, got ok=%v err=%v", ok, err)
	}
	stream = stream[HeaderSize:]
	total, ok, err := PeekLength(stream)
	if err != nil || !ok || total != len(good) {
		t.Fatalf("resync failed: total=%d ok=%v err=%v", total, ok, err)
	}
	frame, err := Decode(stream)
	if err != nil || frame.AgentID != 3 || string(frame.Payload) != "ok" {
		t.Fatalf("resync decode wrong: %+v, %v", frame, err)
	}
}
