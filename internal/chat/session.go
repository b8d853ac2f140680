package chat

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

const (
	outboundBuffer = 64
	joinSuffix     = " joined the chat"
)

// Session is the server-side state for one accepted connection. The reader
// goroutine owns the inbound side; writeLoop owns the socket's write side
// and drains the out queue. Everything else reaches the session only
// through deliver and Disconnect.
type Session struct {
	id     string
	conn   net.Conn
	remote string
	srv    *Server

	out  chan string
	done chan struct{}

	mu    sync.Mutex
	alive bool
	name  string // display name captured from the join announcement
}

func newSession(id string, conn net.Conn, srv *Server) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		srv:    srv,
		out:    make(chan string, outboundBuffer),
		done:   make(chan struct{}),
		alive:  true,
	}
}

// ID returns the stable client identifier assigned at admission.
func (s *Session) ID() string { return s.id }

// deliver queues a line for the writer goroutine. It never blocks: a full
// queue means the peer has stopped draining, and that counts as a failed
// sink so the broadcaster can prune the session.
func (s *Session) deliver(line string) error {
	s.mu.Lock()
	alive := s.alive
	s.mu.Unlock()
	if !alive {
		return ErrSinkClosed
	}

	select {
	case s.out <- line:
		return nil
	default:
		return ErrSinkClosed
	}
}

// reply sends a private line to this session, best-effort.
func (s *Session) reply(line string) { _ = s.deliver(line) }

func (s *Session) enqueueGreeting(online int) {
	s.reply("SERVER: Welcome to the chat! You are connected as " + s.id)
	s.reply("SERVER: Type your messages and press Enter to send.")
	s.reply(fmt.Sprintf("SERVER: Current users online: %d", online))
}

func (s *Session) readLoop() {
	defer s.Disconnect()

	reader := bufio.NewReader(s.conn)
	for {
		line, err := readLine(reader)
		if err != nil {
			if err != io.EOF {
				s.srv.logger.Error("client connection error", "id", s.id, "error", err)
			}
			return
		}
		s.handleLine(line)
	}
}

func (s *Session) handleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	// The length cap applies to the raw line, not the trimmed one.
	if len(line) > s.srv.cfg.MaxMessageBytes {
		MessagesTotal.WithLabelValues("overlength").Inc()
		s.reply(fmt.Sprintf("SERVER: Message too long. Maximum %d characters allowed.", s.srv.cfg.MaxMessageBytes))
		return
	}

	s.captureName(line)

	if strings.HasPrefix(line, "/") {
		s.srv.handleCommand(s, line)
		return
	}

	s.srv.logger.Info("message received", "id", s.id, "bytes", len(line))
	s.srv.broadcast("Client: "+line, s)
}

// captureName remembers the peer's name the first time it announces itself
// with "<name> joined the chat". The announcement still broadcasts normally.
func (s *Session) captureName(line string) {
	if !strings.HasSuffix(line, joinSuffix) {
		return
	}
	name := strings.TrimSuffix(line, joinSuffix)
	if name == "" {
		return
	}

	s.mu.Lock()
	if s.name != "" {
		s.mu.Unlock()
		return
	}
	s.name = name
	s.mu.Unlock()

	s.srv.logger.Info("client identified", "id", s.id, "name", name)
}

func (s *Session) displayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Disconnect tears the session down exactly once: it flips alive, signals
// the writer to drain and close the socket, removes the session from the
// registry, and announces the departure to the remaining peers.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	name := s.name
	s.mu.Unlock()

	close(s.done)

	if !s.srv.reg.Remove(s.id) {
		return
	}
	total := s.srv.reg.Active()
	ConnectedClients.Set(float64(total))
	s.srv.logger.Info("client disconnected", "id", s.id, "total", total)

	// No departure storm while everyone is being torn down anyway.
	if !s.srv.running.Load() {
		return
	}
	if name != "" {
		s.srv.broadcast("SERVER: "+name+" left the chat", nil)
	} else {
		s.srv.broadcast("SERVER: "+s.id+" disconnected", nil)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		// last line without newline
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}
