// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipcserver accepts agent connections on a Unix domain socket
// and drives them through the kernel's reactor: a nonblocking accept
// loop, one read/write buffer pair per client, and frame-at-a-time
// decode/dispatch/encode. Every callback runs on the reactor's single
// goroutine; nothing here blocks.
package ipcserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/clove-kernel/clove/internal/idgen"
	"github.com/clove-kernel/clove/internal/reactor"
	"github.com/clove-kernel/clove/internal/wire"
)

// listenBacklog matches the source kernel's listen(2) backlog.
const listenBacklog = 16

// readChunkSize is how much we ask the kernel for per read(2) call.
const readChunkSize = 4096

// Handler maps a decoded request frame to a response frame. It is
// always given the agent id the server assigned at accept time,
// overriding whatever the client put in the frame header.
type Handler func(ctx context.Context, frame wire.Frame) wire.Frame

// client tracks one accepted connection's buffers and assigned id.
type client struct {
	fd       int
	agentID  uint32
	recvBuf  []byte
	sendBuf  []byte
	wantSend bool
}

// Server owns the listening socket and every accepted client.
type Server struct {
	path    string
	reactor *reactor.Reactor
	ids     *idgen.Generator
	handler Handler
	logger  *slog.Logger

	mu       sync.Mutex
	listenFD int
	clients  map[int]*client

	onConnect    func(agentID uint32)
	onDisconnect func(agentID uint32)
}

// New constructs a Server. Call Listen to start accepting.
func New(path string, r *reactor.Reactor, ids *idgen.Generator, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		path:     path,
		reactor:  r,
		ids:      ids,
		handler:  handler,
		logger:   logger,
		listenFD: -1,
		clients:  make(map[int]*client),
	}
}

// OnConnect registers a callback fired once a client has been
// accepted and assigned an agent id, before any frame is processed.
func (s *Server) OnConnect(fn func(agentID uint32)) { s.onConnect = fn }

// OnDisconnect registers a callback fired once a client's fd has been
// torn down, whether from EOF, a socket error, or Close.
func (s *Server) OnDisconnect(fn func(agentID uint32)) { s.onDisconnect = fn }

// Listen creates, binds, and listens on the Unix socket at s.path,
// removing any stale socket file left behind by a prior run, and
// registers the listening fd with the reactor.
func (s *Server) Listen() error {
	_ = os.Remove(s.path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("ipcserver: socket: %w", err)
	}

	addr := &unix.SockaddrUnix{Name: s.path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("ipcserver: bind %s: %w", s.path, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return fmt.Errorf("ipcserver: listen: %w", err)
	}
	if err := os.Chmod(s.path, 0o660); err != nil {
		unix.Close(fd)
		return fmt.Errorf("ipcserver: chmod %s: %w", s.path, err)
	}

	s.listenFD = fd
	if err := s.reactor.Add(fd, reactor.Readable, s.onServerEvent); err != nil {
		unix.Close(fd)
		s.listenFD = -1
		return fmt.Errorf("ipcserver: registering listen fd: %w", err)
	}

	s.logger.Info("ipc server listening", "path", s.path)
	return nil
}

// Close tears down every client connection and the listening socket,
// and unlinks the socket path.
func (s *Server) Close() error {
	s.mu.Lock()
	fds := make([]int, 0, len(s.clients))
	for fd := range s.clients {
		fds = append(fds, fd)
	}
	s.mu.Unlock()

	for _, fd := range fds {
		s.removeClient(fd)
	}

	if s.listenFD >= 0 {
		s.reactor.Remove(s.listenFD)
		unix.Close(s.listenFD)
		s.listenFD = -1
	}
	_ = os.Remove(s.path)
	return nil
}

// ClientCount reports how many connections are currently live.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) onServerEvent(_ int, events reactor.Interest) {
	if events&reactor.Readable == 0 {
		return
	}
	for {
		fd, _, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				s.logger.Error("accept failed", "err", err)
			}
			return
		}

		agentID := s.ids.Next()
		c := &client{fd: fd, agentID: agentID}

		s.mu.Lock()
		s.clients[fd] = c
		s.mu.Unlock()

		if err := s.reactor.Add(fd, reactor.Readable, func(cfd int, ev reactor.Interest) {
			s.onClientEvent(cfd, ev)
		}); err != nil {
			s.logger.Error("registering client fd", "fd", fd, "err", err)
			s.removeClient(fd)
			continue
		}

		s.logger.Info("agent connected", "agent_id", agentID, "fd", fd)
		if s.onConnect != nil {
			s.onConnect(agentID)
		}
	}
}

func (s *Server) onClientEvent(fd int, events reactor.Interest) {
	if events&(reactor.Error|reactor.Hangup) != 0 {
		s.removeClient(fd)
		return
	}

	if events&reactor.Readable != 0 {
		if !s.readFromClient(fd) {
			s.removeClient(fd)
			return
		}
	}

	if events&reactor.Writable != 0 {
		if !s.flushClient(fd) {
			s.removeClient(fd)
			return
		}
	}

	s.updateClientInterest(fd)
}

// readFromClient drains the socket into the client's receive buffer,
// then processes every complete frame it now holds. Returns false if
// the connection should be torn down (EOF or a hard read error).
func (s *Server) readFromClient(fd int) bool {
	s.mu.Lock()
	c, ok := s.clients[fd]
	s.mu.Unlock()
	if !ok {
		return false
	}

	chunk := make([]byte, readChunkSize)
	for {
		n, err := unix.Read(fd, chunk)
		if n > 0 {
			c.recvBuf = append(c.recvBuf, chunk[:n]...)
		}
		if n == 0 && err == nil {
			return false // orderly shutdown
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return false
		}
		if n < readChunkSize {
			break
		}
	}

	s.processMessages(c)
	return true
}

// processMessages decodes and dispatches every complete frame
// buffered for c, queuing each response for flushClient.
func (s *Server) processMessages(c *client) {
	for {
		total, ok, err := wire.PeekLength(c.recvBuf)
		if err != nil {
			if err == wire.ErrInvalidMagic {
				s.logger.Warn("dropping desynced bytes", "agent_id", c.agentID)
				c.recvBuf = c.recvBuf[wire.HeaderSize:]
				continue
			}
			// payload too large: drop the whole buffer, the client is
			// misbehaving and any resync attempt would likely repeat.
			c.recvBuf = nil
			return
		}
		if !ok || len(c.recvBuf) < total {
			return
		}

		frame, err := wire.Decode(c.recvBuf)
		c.recvBuf = c.recvBuf[total:]
		if err != nil {
			continue
		}

		// The client may not know its id yet (first message); the
		// server is the authority on agent identity.
		frame.AgentID = c.agentID

		resp := s.handler(context.Background(), frame)
		resp.AgentID = c.agentID

		c.sendBuf = append(c.sendBuf, wire.Encode(resp)...)
		c.wantSend = len(c.sendBuf) > 0
	}
}

// flushClient writes as much of the client's send buffer as the
// socket will currently accept. Returns false on a hard write error.
func (s *Server) flushClient(fd int) bool {
	s.mu.Lock()
	c, ok := s.clients[fd]
	s.mu.Unlock()
	if !ok {
		return false
	}

	for len(c.sendBuf) > 0 {
		n, err := unix.Write(fd, c.sendBuf)
		if n > 0 {
			c.sendBuf = c.sendBuf[n:]
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return false
		}
	}

	c.wantSend = len(c.sendBuf) > 0
	return true
}

func (s *Server) updateClientInterest(fd int) {
	s.mu.Lock()
	c, ok := s.clients[fd]
	s.mu.Unlock()
	if !ok {
		return
	}

	interest := reactor.Readable
	if c.wantSend {
		interest |= reactor.Writable
	}
	if err := s.reactor.Modify(fd, interest); err != nil {
		s.logger.Error("updating client interest", "fd", fd, "err", err)
	}
}

func (s *Server) removeClient(fd int) {
	s.mu.Lock()
	c, ok := s.clients[fd]
	if ok {
		delete(s.clients, fd)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.reactor.Remove(fd)
	unix.Close(fd)
	s.logger.Info("agent disconnected", "agent_id", c.agentID, "fd", fd)
	if s.onDisconnect != nil {
		s.onDisconnect(c.agentID)
	}
}
