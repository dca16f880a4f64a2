// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// ShutdownPipe turns SIGINT/SIGTERM into an ordinary readable event on
// the reactor, replacing the module-scope signal-handler-pointer
// pattern: no global mutable state, no work done inside a signal
// handler beyond writing one byte.
type ShutdownPipe struct {
	readFD  int
	writeFD int
	signals chan os.Signal
}

// NewShutdownPipe creates the pipe and starts the goroutine that
// forwards SIGINT/SIGTERM into it. Call Register to add the read end
// to a Reactor, and Close to release both ends and stop listening.
func NewShutdownPipe() (*ShutdownPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("reactor: pipe2: %w", err)
	}

	sp := &ShutdownPipe{
		readFD:  fds[0],
		writeFD: fds[1],
		signals: make(chan os.Signal, 2),
	}
	signal.Notify(sp.signals, syscall.SIGINT, syscall.SIGTERM)
	go sp.forward()
	return sp, nil
}

func (sp *ShutdownPipe) forward() {
	for range sp.signals {
		// Async-signal-safe in spirit: a single byte write, no
		// allocation beyond what Go's runtime already does for the
		// channel receive.
		unix.Write(sp.writeFD, []byte{1})
	}
}

// Register adds the pipe's read end to the reactor. onShutdown is
// called (from the reactor thread, never from a signal handler) each
// time the pipe becomes readable.
func (sp *ShutdownPipe) Register(r *Reactor, onShutdown func()) error {
	return r.Add(sp.readFD, Readable, func(fd int, events Interest) {
		var buf [16]byte
		unix.Read(fd, buf[:])
		onShutdown()
	})
}

// Close stops forwarding signals and releases both pipe ends.
func (sp *ShutdownPipe) Close() error {
	signal.Stop(sp.signals)
	close(sp.signals)
	unix.Close(sp.writeFD)
	return unix.Close(sp.readFD)
}
