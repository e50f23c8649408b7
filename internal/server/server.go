// internal/server/server.go
package server

import (
	"errors"
	"net"
	"runtime/debug"
	"sync"

	"cryptochat/internal/config"
	"cryptochat/internal/crypto"
	"cryptochat/internal/log"
	"cryptochat/internal/metrics"

	"gopkg.in/op/go-logging.v1"
)

// Server multiplexes TCP connections into rooms. One goroutine per
// connection; a fault inside a session never reaches the accept loop or
// sibling sessions.
type Server struct {
	cfg  *config.Config
	key  crypto.TransportKey
	reg  *Registry
	m    *metrics.Metrics
	log  *logging.Logger
	slog *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func New(cfg *config.Config, backend *log.Backend, m *metrics.Metrics) *Server {
	key := crypto.HashPassword(cfg.Password)
	return &Server{
		cfg:   cfg,
		key:   key,
		reg:   NewRegistry(key, cfg.RoomBuffer),
		m:     m,
		log:   backend.GetLogger("server"),
		slog:  backend.GetLogger("session"),
		conns: make(map[net.Conn]struct{}),
	}
}

// Registry exposes the room registry, mainly for tests and introspection.
func (s *Server) Registry() *Registry {
	return s.reg
}

// ListenAndServe binds the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on ln. It returns nil after Shutdown closes
// the listener.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server: already shut down")
	}
	s.listener = ln
	s.mu.Unlock()

	s.log.Noticef("listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Errorf("accept: %v", err)
			return err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Shutdown closes the listener, closes every live session socket and waits
// for the session goroutines to run their cleanup.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	// Sessions block in socket reads; closing the sockets unblocks them.
	for _, conn := range conns {
		conn.Close()
	}
	s.wg.Wait()
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()
	addr := conn.RemoteAddr()
	s.m.IncConnAccepted()
	defer s.m.IncConnClosed()

	// The recover boundary of the per-connection unit.
	defer func() {
		if r := recover(); r != nil {
			s.m.IncConnPanicked()
			s.log.Errorf("session %s panicked: %v\n%s", addr, r, debug.Stack())
		}
	}()

	s.log.Debugf("client %s connected", addr)
	sess := &session{
		conn: conn,
		reg:  s.reg,
		key:  s.key,
		m:    s.m,
		log:  s.slog,
	}
	if err := sess.run(); err != nil {
		s.slog.Errorf("client %s: %v", addr, err)
		return
	}
	s.log.Debugf("client %s disconnected", addr)
}
