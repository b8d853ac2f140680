package chat

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const acceptTimeout = time.Second

// Server owns the listener, the membership registry, and the shutdown
// supervisor. One goroutine runs the accept loop; each admitted session
// gets a reader and a writer goroutine tracked by wg.
type Server struct {
	cfg    Config
	logger *slog.Logger
	reg    *Registry

	listener net.Listener
	running  atomic.Bool
	start    time.Time
	wg       sync.WaitGroup
	accepted chan struct{} // closed when the accept loop exits
}

func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.sanitized()
	return &Server{
		cfg:      cfg,
		logger:   logger,
		reg:      NewRegistry(cfg.MaxClients),
		accepted: make(chan struct{}),
	}
}

// Start binds the listener and spawns the accept loop. A bind failure is
// the only fatal error; everything later is contained per connection.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.start = time.Now()
	s.running.Store(true)

	go s.acceptLoop(ln)

	s.logger.Info("server started",
		"addr", ln.Addr().String(),
		"max_clients", s.cfg.MaxClients,
		"max_message_bytes", s.cfg.MaxMessageBytes,
		"start_time", s.start.Format(timeLayout))
	return nil
}

// Addr reports the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.accepted)

	for s.running.Load() {
		// Short deadline so the loop observes Stop promptly.
		if tl, ok := ln.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(acceptTimeout))
		}

		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !s.running.Load() {
				return
			}
			s.logger.Error("accept error", "error", err)
			continue
		}

		s.admit(conn)
	}
}

// admit runs the capacity check and either rejects the socket or wires up
// a full session: greeting queued first, then registration, then the
// reader/writer pair, then the join announcement to everyone else.
func (s *Server) admit(conn net.Conn) {
	id, err := s.reg.Reserve()
	if errors.Is(err, ErrServerFull) {
		RejectedConnections.Inc()
		s.logger.Info("connection rejected, client limit reached", "addr", conn.RemoteAddr().String())
		_, _ = io.WriteString(conn, "SERVER: Maximum client limit reached. Please try again later.\n")
		_ = conn.Close()
		return
	}

	sess := newSession(id, conn, s)
	sess.enqueueGreeting(s.reg.Active())
	s.reg.Insert(id, sess)
	ConnectedClients.Set(float64(s.reg.Active()))
	s.logger.Info("client connected", "addr", sess.remote, "id", id, "total", s.reg.Active())

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		sess.writeLoop()
	}()
	go func() {
		defer s.wg.Done()
		sess.readLoop()
	}()

	s.broadcast("SERVER: "+id+" joined the chat", sess)
}

// Stop is the shutdown supervisor: stop accepting, notify everyone, close
// every session, and wait for the reader/writer goroutines to drain.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.logger.Info("shutting down")

	if s.listener != nil {
		_ = s.listener.Close()
	}
	<-s.accepted

	s.broadcast("SERVER: Server is shutting down...", nil)
	for _, sess := range s.reg.Snapshot() {
		sess.Disconnect()
	}
	s.wg.Wait()

	s.logger.Info("server stopped")
}
