// Package transport implements the Framed Transport: the length-prefixed
// TCP side channel the Controller uses to talk to the Executor, grounded
// on the original supervisor's SupervisorServer accept-loop shape but
// upgraded to the length-prefixed framing spec.md requires and to support
// a decoder that tolerates partial reads.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/agentctl/controller/internal/events"
	"github.com/agentctl/controller/internal/protocol"
)

// Server accepts exactly one Executor connection at a time on a TCP
// listener, decodes length-prefixed JSON frames off it, and republishes
// each decoded Reply on the "coder_message" topic of its Emitter. A second
// dial attempt while a peer is already connected is refused, matching
// spec.md's single-accepted-peer contract.
type Server struct {
	addr    string
	emitter *events.Emitter

	mu       sync.Mutex
	conn     net.Conn
	connID   string
	seq      uint64
	listener net.Listener
}

// NewServer returns a Server bound to addr (e.g. ":9001") once Run is
// called.
func NewServer(addr string, emitter *events.Emitter) *Server {
	return &Server{addr: addr, emitter: emitter}
}

// Run listens on s.addr and accepts connections until ctx is cancelled.
// Each accepted connection is handled on its own goroutine; since only one
// connection is accepted at a time, a second dial is rejected immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	slog.Info("transport listening", "addr", s.addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("transport: accept: %w", err)
			}
		}

		if !s.tryAcceptSingle(conn) {
			slog.Warn("transport: rejecting second peer, one already connected", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go s.handleConn(conn)
	}
}

// tryAcceptSingle installs conn as the sole active peer if none is
// currently connected.
func (s *Server) tryAcceptSingle(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return false
	}
	s.conn = conn
	s.connID = uuid.NewString()
	s.seq = 0
	return true
}

func (s *Server) clearConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
		s.connID = ""
	}
}

func (s *Server) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *Server) handleConn(conn net.Conn) {
	connID := s.connID
	slog.Info("transport: executor connected", "remote", conn.RemoteAddr(), "connId", connID)
	defer func() {
		conn.Close()
		s.clearConn(conn)
		slog.Info("transport: executor disconnected", "connId", connID)
	}()

	decoder := protocol.NewFrameDecoder()
	chunk := make([]byte, 4096)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			decoder.Feed(chunk[:n])
			if err := s.drainFrames(decoder, connID); err != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) drainFrames(decoder *protocol.FrameDecoder, connID string) error {
	for {
		payload, ok, err := decoder.Next()
		if err != nil {
			slog.Error("transport: frame decode error, dropping connection", "error", err)
			return err
		}
		if !ok {
			return nil
		}

		var reply protocol.Reply
		if err := json.Unmarshal(payload, &reply); err != nil {
			slog.Warn("transport: invalid JSON frame, skipping", "error", err, "raw", string(payload))
			continue
		}
		reply.ConnID = connID
		reply.Seq = s.nextSeq()

		s.emitter.Emit("coder_message", &reply)
	}
}

// Send writes task as a single length-prefixed JSON frame to the currently
// connected Executor. It returns an error if no Executor is connected.
func (s *Server) Send(task *protocol.Task) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("transport: no executor connected")
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("transport: encode task: %w", err)
	}
	return protocol.WriteFrame(conn, payload)
}

// Connected reports whether an Executor is currently attached, for
// /healthz and metrics.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}
