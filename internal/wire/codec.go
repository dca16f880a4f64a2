// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the kernel's framing protocol: a fixed
// 17-byte header followed by a bounded payload, all little-endian and
// unpadded.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic identifies a clove frame header: the ASCII bytes "AGNT" read
// as a little-endian uint32.
const Magic uint32 = 0x544e4741

// HeaderSize is the fixed size of a frame header in bytes.
const HeaderSize = 17

// MaxPayloadSize bounds a single frame's payload.
const MaxPayloadSize = 1 << 20 // 1 MiB

// Errors returned by Decode and PeekLength. The socket server's
// recovery on ErrInvalidMagic is to drop HeaderSize bytes and resume —
// never to close the connection.
var (
	ErrInvalidMagic    = errors.New("wire: invalid magic")
	ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum size")
	ErrShortRead       = errors.New("wire: buffer shorter than declared frame")
)

// Frame is one decoded request or response.
type Frame struct {
	AgentID uint32
	Opcode  Opcode
	Payload []byte
}

// Encode serializes f as a header followed by its payload.
func Encode(f Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], f.AgentID)
	buf[8] = byte(f.Opcode)
	binary.LittleEndian.PutUint64(buf[9:17], uint64(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// PeekLength inspects the header of buf without consuming it. It
// returns the total frame length (header + payload) once at least
// HeaderSize bytes are available and the header is well-formed. ok is
// false when more bytes are needed to even read the header.
func PeekLength(buf []byte) (total int, ok bool, err error) {
	if len(buf) < HeaderSize {
		return 0, false, nil
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return 0, true, ErrInvalidMagic
	}
	payloadSize := binary.LittleEndian.Uint64(buf[9:17])
	if payloadSize > MaxPayloadSize {
		return 0, true, ErrPayloadTooLarge
	}
	return HeaderSize + int(payloadSize), true, nil
}

// Decode parses a complete frame from buf. The caller must have
// already confirmed via PeekLength that buf holds at least the
// returned total length.
func Decode(buf []byte) (Frame, error) {
	total, ok, err := PeekLength(buf)
	if err != nil {
		return Frame{}, err
	}
	if !ok || len(buf) < total {
		return Frame{}, ErrShortRead
	}
	agentID := binary.LittleEndian.Uint32(buf[4:8])
	opcode := Opcode(buf[8])
	payload := make([]byte, total-HeaderSize)
	copy(payload, buf[HeaderSize:total])
	return Frame{AgentID: agentID, Opcode: opcode, Payload: payload}, nil
}

// String renders a frame for debug logging, truncating long payloads.
func (f Frame) String() string {
	payload := f.Payload
	if len(payload) > 64 {
		payload = payload[:64]
	}
	return fmt.Sprintf("Frame{agent=%d op=%s payload=%dB %q}", f.AgentID, f.Opcode, len(f.Payload), payload)
}
