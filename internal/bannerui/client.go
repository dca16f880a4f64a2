// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package bannerui

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/clove-kernel/clove/internal/wire"
)

// dialTimeout bounds the initial connect to the kernel's socket.
const dialTimeout = 5 * time.Second

// callTimeout bounds a single request/response round trip once
// connected.
const callTimeout = 10 * time.Second

// readChunkSize matches ipcserver's per-read(2) allowance.
const readChunkSize = 4096

// KernelClient holds one persistent connection to a running kernel's
// admin socket and issues read-only queries over it: audit log
// entries, agent/world/tunnel metrics. The kernel assigns the
// connection's agent id at accept time, so every frame sent on this
// connection is attributed consistently regardless of what id the
// caller puts in the outgoing frame.
type KernelClient struct {
	socketPath string
	conn       net.Conn
	buf        []byte
}

// NewKernelClient dials socketPath and returns a client ready for
// Call. The connection is held open for the client's lifetime; close
// it with Close when done.
func NewKernelClient(socketPath string) (*KernelClient, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("bannerui: dialing %s: %w", socketPath, err)
	}
	return &KernelClient{socketPath: socketPath, conn: conn}, nil
}

// Close releases the underlying connection.
func (c *KernelClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Call sends a request frame and waits for the matching response,
// JSON-decoding the reply into result if non-nil.
func (c *KernelClient) Call(opcode wire.Opcode, request any, result any) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("bannerui: marshaling request: %w", err)
	}

	c.conn.SetDeadline(time.Now().Add(callTimeout))
	if _, err := c.conn.Write(wire.Encode(wire.Frame{Opcode: opcode, Payload: payload})); err != nil {
		return fmt.Errorf("bannerui: writing frame: %w", err)
	}

	frame, err := c.readFrame()
	if err != nil {
		return fmt.Errorf("bannerui: reading frame: %w", err)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(frame.Payload, result); err != nil {
		return fmt.Errorf("bannerui: decoding response: %w", err)
	}
	return nil
}

// readFrame reads and decodes exactly one frame, buffering across
// multiple read(2) calls the way ipcserver's client loop does on the
// server side.
func (c *KernelClient) readFrame() (wire.Frame, error) {
	for {
		if total, ok, err := wire.PeekLength(c.buf); err != nil {
			return wire.Frame{}, err
		} else if ok && len(c.buf) >= total {
			frame, err := wire.Decode(c.buf)
			if err != nil {
				return wire.Frame{}, err
			}
			c.buf = c.buf[total:]
			return frame, nil
		}

		chunk := make([]byte, readChunkSize)
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
		}
		if err != nil {
			return wire.Frame{}, err
		}
	}
}
