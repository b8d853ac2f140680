package chat

import (
	"bufio"
	"time"
)

const writeTimeout = 10 * time.Second

// writeLoop drains the outbound queue onto the socket, flushing per line so
// a logical message is immediately visible to the peer. It is the only
// goroutine that closes the connection, which also unblocks the reader.
func (s *Session) writeLoop() {
	defer func() {
		_ = s.conn.Close()
		s.Disconnect()
	}()

	w := bufio.NewWriter(s.conn)
	for {
		select {
		case line := <-s.out:
			if !s.writeLine(w, line) {
				return
			}
		case <-s.done:
			// Flush whatever is already queued (departure and shutdown
			// notices land here) before the socket goes away.
			for {
				select {
				case line := <-s.out:
					if !s.writeLine(w, line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) writeLine(w *bufio.Writer, line string) bool {
	// Best-effort. If the connection breaks, just stop the writer.
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := w.WriteString(line + "\n"); err != nil {
		return false
	}
	if err := w.Flush(); err != nil {
		return false
	}
	return true
}
