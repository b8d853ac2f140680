package chat

import (
	"strings"
	"time"
)

// broadcast delivers a line to every registered session except the sender.
// Failed sinks are collected during iteration and disconnected afterwards,
// so membership never mutates mid-traversal. Per-sender ordering holds
// because each sender's reader goroutine calls this sequentially and
// deliver enqueues in call order.
func (s *Server) broadcast(line string, sender *Session) {
	if strings.TrimSpace(line) == "" {
		return
	}

	start := time.Now()
	var failed []*Session
	for _, sess := range s.reg.Snapshot() {
		if sess == sender {
			continue
		}
		if err := sess.deliver(line); err != nil {
			failed = append(failed, sess)
		}
	}

	MessagesTotal.WithLabelValues("broadcast").Inc()
	BroadcastDuration.Observe(time.Since(start).Seconds())

	for _, sess := range failed {
		s.logger.Info("dropping unresponsive client", "id", sess.id)
		go sess.Disconnect()
	}
}
