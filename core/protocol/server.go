package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/whr-sorting/simbridge/core/logger"
)

// MaxCommandSize is the largest command a Server reads from one connection.
const MaxCommandSize = 2048

// Handler answers one command.
type Handler func(ctx context.Context, command string) string

// Server accepts one command per connection, replies and closes. It is the
// listening side of Client.
type Server struct {
	name    string
	handler Handler
	log     logger.Logger

	mu   sync.Mutex
	addr string
	wg   sync.WaitGroup
}

// NewServer returns a server that answers commands with handler. name labels
// log lines.
func NewServer(name string, handler Handler, log logger.Logger) *Server {
	return &Server{name: name, handler: handler, log: logger.OrNop(log)}
}

// Addr returns the listening address once Start has been called.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds addr and serves in the background until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s listen on %s: %w", s.name, addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	s.log.Infof("%s listening on %s", s.name, ln.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		_ = ln.Close()
	}()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Warnf("%s accept: %v", s.name, err)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serve(ctx, conn)
			}()
		}
	}()
	return nil
}

// Wait blocks until the server has stopped after ctx cancellation.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(DefaultTimeout))
	buf := make([]byte, MaxCommandSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil {
			s.log.Debugf("%s read: %v", s.name, err)
		}
		return
	}
	cmd := strings.TrimSpace(string(buf[:n]))
	if cmd == "" {
		return
	}
	reply := s.handler(ctx, cmd)
	_ = conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	if _, err := conn.Write([]byte(reply)); err != nil {
		s.log.Warnf("%s reply: %v", s.name, err)
	}
}
