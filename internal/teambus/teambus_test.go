package teambus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/common/wire"
)

func startServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	srv, err := NewServer("127.0.0.1:0", time.Second)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, cancel
}

func startClient(t *testing.T, addr, user string) (*Client, chan wire.Message) {
	t.Helper()
	inbox := make(chan wire.Message, 16)
	c := NewClient(addr, user, func(m wire.Message) { inbox <- m })
	go c.Run(context.Background())
	require.Eventually(t, c.Connected, 3*time.Second, 10*time.Millisecond)
	t.Cleanup(c.Stop)
	return c, inbox
}

func waitForType(t *testing.T, inbox chan wire.Message, typ string) wire.Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case m := <-inbox:
			if m.Type == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestBroadcastSkipsSender(t *testing.T) {
	srv, _ := startServer(t)

	a, inboxA := startClient(t, srv.Addr(), "alice")
	_, inboxB := startClient(t, srv.Addr(), "bob")
	_, inboxC := startClient(t, srv.Addr(), "carol")

	// bob and carol see each other arrive; drain the arrival traffic
	waitForType(t, inboxA, wire.TypeNewUser)

	require.NoError(t, a.Publish(wire.Message{Type: wire.TypeRefreshTeam, UserName: "alice"}))

	mb := waitForType(t, inboxB, wire.TypeRefreshTeam)
	assert.Equal(t, "alice", mb.UserName)
	mc := waitForType(t, inboxC, wire.TypeRefreshTeam)
	assert.Equal(t, "alice", mc.UserName)

	select {
	case m := <-inboxA:
		assert.NotEqual(t, wire.TypeRefreshTeam, m.Type, "sender must not receive its own message")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDepartureBroadcast(t *testing.T) {
	srv, _ := startServer(t)

	b, _ := startClient(t, srv.Addr(), "bob")
	_, inboxC := startClient(t, srv.Addr(), "carol")

	waitForType(t, inboxC, wire.TypeNewUser)
	b.Stop()

	m := waitForType(t, inboxC, wire.TypeRemoveUser)
	assert.Equal(t, "bob", m.UserName)
}

func TestPublishWhileDisconnectedDrops(t *testing.T) {
	c := NewClient("127.0.0.1:1", "dave", nil)
	assert.NoError(t, c.Publish(wire.Message{Type: wire.TypeRefreshTeam}))
}
