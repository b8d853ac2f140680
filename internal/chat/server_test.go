package chat

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	srv := NewServer(cfg, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialClient(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\n")
}

func (c *testClient) expectSilence(t *testing.T) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(250*time.Millisecond)))
	line, err := c.r.ReadString('\n')
	require.Error(t, err, "unexpected line: %q", line)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	require.True(t, ne.Timeout())
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

// drainGreeting consumes the three fixed lines every admitted client gets.
func (c *testClient) drainGreeting(t *testing.T, id string, online int) {
	t.Helper()
	assert.Equal(t, "SERVER: Welcome to the chat! You are connected as "+id, c.readLine(t))
	assert.Equal(t, "SERVER: Type your messages and press Enter to send.", c.readLine(t))
	assert.Equal(t, "SERVER: Current users online: "+itoa(online), c.readLine(t))
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func TestGreetingPrecedesAnyBroadcast(t *testing.T) {
	srv := startServer(t, Config{MaxClients: 10})

	a := dialClient(t, srv)
	ids := waitForClients(t, srv, 1)
	a.drainGreeting(t, ids[0], 1)
}

func TestBroadcastExcludesSender(t *testing.T) {
	srv := startServer(t, Config{MaxClients: 10})

	a := dialClient(t, srv)
	ids := waitForClients(t, srv, 1)
	a.drainGreeting(t, ids[0], 1)

	b := dialClient(t, srv)
	ids = waitForClients(t, srv, 2)
	b.drainGreeting(t, ids[1], 2)
	assert.Equal(t, "SERVER: "+ids[1]+" joined the chat", a.readLine(t))

	a.send(t, "hello")
	assert.Equal(t, "Client: hello", b.readLine(t))
	a.expectSilence(t)
}

func TestCapacityCapRejectsAndRecovers(t *testing.T) {
	srv := startServer(t, Config{MaxClients: 2})

	c1 := dialClient(t, srv)
	ids := waitForClients(t, srv, 1)
	c1.drainGreeting(t, ids[0], 1)

	c2 := dialClient(t, srv)
	ids = waitForClients(t, srv, 2)
	c2.drainGreeting(t, ids[1], 2)
	assert.Equal(t, "SERVER: "+ids[1]+" joined the chat", c1.readLine(t))

	c3 := dialClient(t, srv)
	assert.Equal(t, "SERVER: Maximum client limit reached. Please try again later.", c3.readLine(t))
	require.NoError(t, c3.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c3.r.ReadString('\n')
	require.Error(t, err, "rejected socket should be closed")

	// Freeing a slot readmits the next caller.
	require.NoError(t, c1.conn.Close())
	assert.Equal(t, "SERVER: "+ids[0]+" disconnected", c2.readLine(t))

	c4 := dialClient(t, srv)
	ids = waitForClients(t, srv, 2)
	c4.drainGreeting(t, ids[1], 2)
}

func TestJoinAnnouncementAndNamedDeparture(t *testing.T) {
	srv := startServer(t, Config{MaxClients: 10})

	a := dialClient(t, srv)
	ids := waitForClients(t, srv, 1)
	a.drainGreeting(t, ids[0], 1)

	b := dialClient(t, srv)
	ids = waitForClients(t, srv, 2)
	b.drainGreeting(t, ids[1], 2)
	assert.Equal(t, "SERVER: "+ids[1]+" joined the chat", a.readLine(t))

	b.send(t, "Bob joined the chat")
	assert.Equal(t, "Client: Bob joined the chat", a.readLine(t))

	require.NoError(t, b.conn.Close())
	assert.Equal(t, "SERVER: Bob left the chat", a.readLine(t))
}

func TestOverlengthRejectedConnectionSurvives(t *testing.T) {
	srv := startServer(t, Config{MaxClients: 10})

	a := dialClient(t, srv)
	ids := waitForClients(t, srv, 1)
	a.drainGreeting(t, ids[0], 1)

	b := dialClient(t, srv)
	ids = waitForClients(t, srv, 2)
	b.drainGreeting(t, ids[1], 2)
	assert.Equal(t, "SERVER: "+ids[1]+" joined the chat", a.readLine(t))

	a.send(t, strings.Repeat("x", 501))
	assert.Equal(t, "SERVER: Message too long. Maximum 500 characters allowed.", a.readLine(t))
	b.expectSilence(t)

	a.send(t, "short one")
	assert.Equal(t, "Client: short one", b.readLine(t))
}

func TestCommandRepliesArePrivate(t *testing.T) {
	srv := startServer(t, Config{MaxClients: 10})

	a := dialClient(t, srv)
	ids := waitForClients(t, srv, 1)
	a.drainGreeting(t, ids[0], 1)

	b := dialClient(t, srv)
	ids = waitForClients(t, srv, 2)
	b.drainGreeting(t, ids[1], 2)
	assert.Equal(t, "SERVER: "+ids[1]+" joined the chat", a.readLine(t))

	a.send(t, "/time")
	assert.True(t, strings.HasPrefix(a.readLine(t), "SERVER: Server time: "))
	b.expectSilence(t)
}

func TestGracefulShutdownNotifiesAndCloses(t *testing.T) {
	srv := startServer(t, Config{MaxClients: 10})

	a := dialClient(t, srv)
	ids := waitForClients(t, srv, 1)
	a.drainGreeting(t, ids[0], 1)

	b := dialClient(t, srv)
	ids = waitForClients(t, srv, 2)
	b.drainGreeting(t, ids[1], 2)
	assert.Equal(t, "SERVER: "+ids[1]+" joined the chat", a.readLine(t))

	srv.Stop()

	for _, c := range []*testClient{a, b} {
		assert.Equal(t, "SERVER: Server is shutting down...", c.readLine(t))
		require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err := c.r.ReadString('\n')
		require.Error(t, err, "socket should be closed after shutdown")
	}

	// Sessions are gone and a second Stop is a no-op.
	assert.Equal(t, 0, srv.reg.Active())
	srv.Stop()
}

func TestPerSenderOrderingPreserved(t *testing.T) {
	srv := startServer(t, Config{MaxClients: 10})

	a := dialClient(t, srv)
	ids := waitForClients(t, srv, 1)
	a.drainGreeting(t, ids[0], 1)

	b := dialClient(t, srv)
	ids = waitForClients(t, srv, 2)
	b.drainGreeting(t, ids[1], 2)
	assert.Equal(t, "SERVER: "+ids[1]+" joined the chat", a.readLine(t))

	for i := 0; i < 20; i++ {
		a.send(t, "msg-"+itoa(i))
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, "Client: msg-"+itoa(i), b.readLine(t))
	}
}

// waitForClients blocks until the registry holds n sessions and returns
// their ids in sorted order.
func waitForClients(t *testing.T, srv *Server, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ids := srv.reg.SnapshotIDs()
		if len(ids) == n {
			return ids
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("registry never reached %d clients", n)
	return nil
}
