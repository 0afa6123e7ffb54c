// Package teambus implements the studio-wide notification relay. The
// daemon on every workstation keeps one connection to the bus; anything
// a workstation publishes is forwarded to every other connected
// workstation, never echoed back to the sender.
package teambus

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/wire"
)

// DefaultWriteTimeout bounds one frame write to a subscriber. A client
// that cannot drain within it is torn down rather than stalling the
// relay.
const DefaultWriteTimeout = 5 * time.Second

// outboundQueueSize is per subscriber. The queue preserves FIFO order;
// overflow tears the subscriber down.
const outboundQueueSize = 256

type subscriber struct {
	conn     net.Conn
	userName string
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Server is the bus daemon.
type Server struct {
	listener     net.Listener
	writeTimeout time.Duration

	mu   sync.Mutex
	subs map[*subscriber]bool

	wg sync.WaitGroup
}

// NewServer starts listening on addr. Port 0 picks an ephemeral port,
// readable from Addr afterwards.
func NewServer(addr string, writeTimeout time.Duration) (*Server, error) {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:     l,
		writeTimeout: writeTimeout,
		subs:         make(map[*subscriber]bool),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve accepts connections until the context is canceled or the
// listener closes.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.shutdown()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

// Close stops the listener and disconnects every subscriber.
func (s *Server) Close() {
	s.listener.Close()
	s.shutdown()
	s.wg.Wait()
}

func (s *Server) shutdown() {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

// handle runs the lifetime of one workstation connection: hello frame,
// registration, relay loop, departure broadcast.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	hello, err := readMessage(conn)
	if err != nil || hello.Type != wire.TypeNewUser {
		log.Ctx(ctx).Warn().Err(err).Str("remote", conn.RemoteAddr().String()).
			Msg("connection did not introduce itself")
		conn.Close()
		return
	}
	sub := &subscriber{
		conn:     conn,
		userName: hello.UserName,
		outgoing: make(chan []byte, outboundQueueSize),
		done:     make(chan struct{}),
	}
	s.register(sub)
	log.Ctx(ctx).Info().Str("user", sub.userName).Msg("workstation connected")

	go s.writeLoop(ctx, sub)

	if payload, err := wire.Encode(hello); err == nil {
		s.broadcast(payload, sub)
	}

	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Ctx(ctx).Debug().Err(err).Str("user", sub.userName).Msg("read failed")
			}
			break
		}
		s.broadcast(payload, sub)
	}

	s.unregister(sub)
	sub.close()
	if payload, err := wire.Encode(wire.Message{Type: wire.TypeRemoveUser, UserName: sub.userName}); err == nil {
		s.broadcast(payload, nil)
	}
	log.Ctx(ctx).Info().Str("user", sub.userName).Msg("workstation disconnected")
}

// writeLoop drains one subscriber's queue in order. A write deadline
// overrun disconnects the subscriber.
func (s *Server) writeLoop(ctx context.Context, sub *subscriber) {
	for {
		select {
		case payload := <-sub.outgoing:
			sub.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := wire.WriteFrame(sub.conn, payload); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("user", sub.userName).
					Msg("slow or dead subscriber, dropping")
				s.unregister(sub)
				sub.close()
				return
			}
		case <-sub.done:
			return
		}
	}
}

func (s *Server) register(sub *subscriber) {
	s.mu.Lock()
	s.subs[sub] = true
	s.mu.Unlock()
}

func (s *Server) unregister(sub *subscriber) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// broadcast queues a payload for every subscriber except the sender.
func (s *Server) broadcast(payload []byte, sender *subscriber) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		if sub != sender {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub.outgoing <- payload:
		default:
			// queue full, the write loop is stuck anyway
			s.unregister(sub)
			sub.close()
		}
	}
}

func readMessage(conn net.Conn) (wire.Message, error) {
	payload, err := wire.ReadFrame(conn)
	if err != nil {
		return wire.Message{}, err
	}
	var m wire.Message
	if err := wire.Decode(payload, &m); err != nil {
		return wire.Message{}, err
	}
	return m, nil
}
