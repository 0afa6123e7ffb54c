package guiserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Server exposes the bus over websockets on the loopback interface so
// GUI processes written in anything can attach.
type Server struct {
	bus    *Bus
	router *chi.Mux
	http   *http.Server
	addr   string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// loopback only, the listener never leaves this machine
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer builds the HTTP surface over a bus. addr "127.0.0.1:0"
// picks an ephemeral port.
func NewServer(bus *Bus, addr string) *Server {
	s := &Server{bus: bus}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	r.Get("/ws/gui", s.streamTopic(TopicGUI))
	r.Get("/ws/team", s.streamTopic(TopicTeam))
	r.Get("/ws/subtasks/{taskID}/logs", s.streamSubtaskLogs)

	s.router = r
	s.http = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.addr = addr
	return s
}

// Start listens and serves until Stop. Returns the bound address.
func (s *Server) Start() (string, error) {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", err
	}
	s.addr = l.Addr().String()
	go func() {
		if err := s.http.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("gui server stopped")
		}
	}()
	return s.addr, nil
}

// Stop shuts the HTTP surface down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string {
	return s.addr
}

// streamTopic upgrades to a websocket and forwards every notification
// of one topic as JSON until the peer goes away.
func (s *Server) streamTopic(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.stream(w, r, topic)
	}
}

// streamSubtaskLogs forwards the stdout, stderr and progress stream of
// one running subtask.
func (s *Server) streamSubtaskLogs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		http.Error(w, "missing task id", http.StatusBadRequest)
		return
	}
	s.stream(w, r, "subtask."+taskID+".*")
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, pattern string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.bus.Subscribe(pattern, 256)
	defer unsubscribe()

	// reader goroutine only notices the peer closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(n.Message); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
