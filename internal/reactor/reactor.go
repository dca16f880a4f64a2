// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package reactor implements a single-threaded, level-triggered I/O
// multiplexer over nonblocking file descriptors, backed by Linux
// epoll. Callbacks run synchronously inside Poll and must never block;
// a handler that needs to wait hands the work to a helper process or
// goroutine and returns immediately.
package reactor

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// Interest is a bitmask of the events a registration cares about.
type Interest uint32

const (
	Readable Interest = unix.EPOLLIN
	Writable Interest = unix.EPOLLOUT
	Error    Interest = unix.EPOLLERR
	Hangup   Interest = unix.EPOLLHUP
)

// baseInterest is always watched on every registered fd, mirroring the
// source kernel's on_server_event/on_client_event wiring.
const baseInterest = Readable | Error | Hangup

// Callback is invoked with the fd and the event mask that fired.
type Callback func(fd int, events Interest)

// Reactor owns an epoll instance and the fd→callback table.
type Reactor struct {
	epollFD int
	logger  *slog.Logger

	mu        sync.Mutex
	callbacks map[int]Callback
}

// New creates a Reactor. Call Close when done.
func New(logger *slog.Logger) (*Reactor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &Reactor{
		epollFD:   fd,
		logger:    logger,
		callbacks: make(map[int]Callback),
	}, nil
}

// Add registers fd for the given interest (in addition to the
// always-on error/hangup/readable set) and associates callback with
// it.
func (r *Reactor) Add(fd int, interest Interest, callback Callback) error {
	r.mu.Lock()
	r.callbacks[fd] = callback
	r.mu.Unlock()

	event := unix.EpollEvent{Events: uint32(interest | baseInterest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		r.mu.Lock()
		delete(r.callbacks, fd)
		r.mu.Unlock()
		return fmt.Errorf("reactor: epoll_ctl(add, %d): %w", fd, err)
	}
	return nil
}

// Modify changes the watched interest set for an already-registered
// fd. The base interest (readable/error/hangup) is always preserved.
func (r *Reactor) Modify(fd int, interest Interest) error {
	event := unix.EpollEvent{Events: uint32(interest | baseInterest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_MOD, fd, &event); err != nil {
		return fmt.Errorf("reactor: epoll_ctl(mod, %d): %w", fd, err)
	}
	return nil
}

// Remove unregisters fd. It is not an error to remove an fd that was
// already closed out from under epoll (EBADF is swallowed).
func (r *Reactor) Remove(fd int) {
	r.mu.Lock()
	delete(r.callbacks, fd)
	r.mu.Unlock()

	_ = unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
}

// maxEvents bounds a single Poll's batch size.
const maxEvents = 256

// Poll blocks for up to timeoutMS milliseconds (0 returns immediately,
// -1 blocks indefinitely) and invokes the callback for every fd that
// became ready. Returns the number of ready events epoll reported,
// including any for an fd with no registered callback.
func (r *Reactor) Poll(timeoutMS int) (int, error) {
	var events [maxEvents]unix.EpollEvent
	n, err := unix.EpollWait(r.epollFD, events[:], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		r.mu.Lock()
		cb, ok := r.callbacks[fd]
		r.mu.Unlock()
		if !ok {
			continue
		}
		cb(fd, Interest(events[i].Events))
	}
	return n, nil
}

// Close releases the epoll instance.
func (r *Reactor) Close() error {
	return unix.Close(r.epollFD)
}
