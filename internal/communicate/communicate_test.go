package communicate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/wizard/session"
)

func startPair(t *testing.T) *Client {
	t.Helper()
	srv, err := NewServer(&session.Session{}, time.Second)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	c, err := Dial(srv.Port(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEachServerBindsItsOwnPort(t *testing.T) {
	a, err := NewServer(&session.Session{}, time.Second)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewServer(&session.Session{}, time.Second)
	require.NoError(t, err)
	defer b.Close()
	assert.NotEqual(t, a.Port(), b.Port())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Serve(ctx)
	go b.Serve(ctx)
	for _, srv := range []*Server{a, b} {
		c, err := Dial(srv.Port(), time.Second)
		require.NoError(t, err)
		err = c.Do(Request{Type: "bogus"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown request type")
		c.Close()
	}
}

func TestUnknownRequestType(t *testing.T) {
	c := startPair(t)
	err := c.Do(Request{Type: "bogus"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown request type")
}

func TestProjectGuardReachesPlugin(t *testing.T) {
	c := startPair(t)
	_, err := c.AddVersion(1, "first pass", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no project selected")
}

func TestMultipleRequestsOnOneConnection(t *testing.T) {
	c := startPair(t)
	for i := 0; i < 5; i++ {
		err := c.Do(Request{Type: "bogus"}, nil)
		require.Error(t, err)
	}
	_, err := c.GetStringVariant(7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no project selected")
}
