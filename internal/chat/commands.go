package chat

import (
	"fmt"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// handleCommand interprets a /-prefixed line and replies privately to the
// issuing session. Commands never broadcast and never mutate shared state.
// The token is matched case-insensitively; trailing arguments are tolerated
// but unused.
func (s *Server) handleCommand(sess *Session, line string) {
	MessagesTotal.WithLabelValues("command").Inc()

	parts := strings.SplitN(line, " ", 2)
	switch strings.ToLower(parts[0]) {
	case "/help":
		sess.reply("SERVER: Available commands:")
		sess.reply("SERVER: /help - Show this help message")
		sess.reply("SERVER: /users - List online users")
		sess.reply("SERVER: /time - Show server time")
		sess.reply("SERVER: /stats - Show server statistics")

	case "/users":
		ids := s.reg.SnapshotIDs()
		sess.reply(fmt.Sprintf("SERVER: Online users (%d):", len(ids)))
		for _, id := range ids {
			sess.reply("SERVER: - " + id)
		}

	case "/time":
		sess.reply("SERVER: Server time: " + time.Now().Format(timeLayout))

	case "/stats":
		uptime := int64(time.Since(s.start).Seconds())
		sess.reply("SERVER: Server Statistics:")
		sess.reply(fmt.Sprintf("SERVER: - Uptime: %d seconds", uptime))
		sess.reply(fmt.Sprintf("SERVER: - Current users: %d", s.reg.Active()))
		sess.reply("SERVER: - Start time: " + s.start.Format(timeLayout))

	default:
		sess.reply("SERVER: Unknown command. Type /help for available commands.")
	}
}
