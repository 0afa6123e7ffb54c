package teambus

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/wire"
)

// Handler receives every message relayed from other workstations.
type Handler func(msg wire.Message)

// Client keeps one connection from a workstation daemon to the bus,
// reconnecting with exponential backoff after a drop. Publishing while
// disconnected drops the message; live state is refetched from the
// state store on reconnect anyway.
type Client struct {
	addr     string
	userName string
	handler  Handler

	mu        sync.Mutex
	conn      net.Conn
	connected bool

	outgoing chan []byte
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewClient prepares a bus client; Run starts it.
func NewClient(addr, userName string, handler Handler) *Client {
	return &Client{
		addr:     addr,
		userName: userName,
		handler:  handler,
		outgoing: make(chan []byte, outboundQueueSize),
		done:     make(chan struct{}),
	}
}

// Run connects and keeps the connection alive until Stop or context
// cancellation. Blocks; callers run it on its own goroutine.
func (c *Client) Run(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	defer close(c.done)
	for ctx.Err() == nil {
		err := retry.Do(
			func() error { return c.connect(ctx) },
			retry.Context(ctx),
			retry.Delay(250*time.Millisecond),
			retry.MaxDelay(8*time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.Attempts(0),
			retry.OnRetry(func(n uint, err error) {
				log.Ctx(ctx).Debug().Err(err).Uint("attempt", n).Msg("bus connection failed")
			}),
		)
		if err != nil {
			return
		}
		c.pump(ctx)
	}
}

// Stop closes the connection and ends Run.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
}

// Connected reports whether the bus link is up right now.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Publish implements session.TeamPublisher. Messages sent while
// disconnected are dropped, by contract.
func (c *Client) Publish(msg any) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	payload, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case c.outgoing <- payload:
		return nil
	default:
		return errors.New("bus outgoing queue full")
	}
}

// connect dials and performs the hello handshake.
func (c *Client) connect(ctx context.Context) error {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}
	hello, err := wire.Encode(wire.Message{Type: wire.TypeNewUser, UserName: c.userName})
	if err != nil {
		conn.Close()
		return err
	}
	if err := wire.WriteFrame(conn, hello); err != nil {
		conn.Close()
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	log.Ctx(ctx).Info().Str("addr", c.addr).Msg("connected to team bus")
	return nil
}

// pump runs the read and write loops of one connection until either
// fails, then marks the client disconnected.
func (c *Client) pump(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case payload := <-c.outgoing:
				if err := wire.WriteFrame(conn, payload); err != nil {
					conn.Close()
					return
				}
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Ctx(ctx).Debug().Err(err).Msg("bus read failed")
			}
			break
		}
		var m wire.Message
		if err := wire.Decode(payload, &m); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("undecodable bus payload")
			continue
		}
		if c.handler != nil {
			c.handler(m)
		}
	}

	conn.Close()
	<-writeDone
	c.mu.Lock()
	c.connected = false
	c.conn = nil
	c.mu.Unlock()
	if ctx.Err() == nil {
		log.Ctx(ctx).Info().Msg("team bus connection lost, reconnecting")
	}
}
