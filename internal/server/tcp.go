package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"mcp-toolserver/pkg/config"
)

// serveTCP accepts connections on listenAddr and runs the envelope protocol
// on each one in its own goroutine. Requests within a connection are handled
// sequentially.
func (s *Server) serveTCP(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.loggingManager.LogTransportEvent(config.TransportTCP, "listening", map[string]any{
		"addr": ln.Addr().String(),
	})

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		s.closeConns()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.WithError(err).Warn("Accept error")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.trackConn(conn) {
			conn.Close()
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	sessionID := ulid.Make().String()
	details := map[string]any{"session": sessionID, "remote": conn.RemoteAddr().String()}

	s.loggingManager.LogTransportEvent(config.TransportTCP, "connection_open", details)
	defer func() {
		s.untrackConn(conn)
		conn.Close()
		s.loggingManager.LogTransportEvent(config.TransportTCP, "connection_close", details)
	}()

	if err := s.processMessages(ctx, conn, conn); err != nil && ctx.Err() == nil {
		s.logger.WithContext("session", sessionID).WithError(err).Warn("Connection ended with error")
	}
}

// ListenAddr returns the bound TCP address, or nil before the listener is up
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}
