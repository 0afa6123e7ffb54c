// Package guiserver delivers notifications to the GUIs running on this
// workstation: the main pipeline window and any streaming viewer. It is
// a topic bus with dotted wildcard subscriptions plus a small HTTP and
// websocket surface the GUIs attach to.
package guiserver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wizardpipe/wizard/internal/common/wire"
)

// Well-known topics. Subtask streams publish under subtask.<id>.stdout,
// subtask.<id>.progress and so on; "subtask.*.*" catches them all.
const (
	TopicGUI  = "gui"
	TopicTeam = "team"
)

// Notification is one published item.
type Notification struct {
	Topic   string
	Message wire.Message
}

type subscriber struct {
	id    string
	topic string
	ch    chan Notification

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) send(n Notification, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- n:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus fans notifications out to topic subscribers. Publishing never
// blocks longer than the send timeout per subscriber; a GUI that cannot
// keep up loses notifications rather than stalling services.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*subscriber // topic pattern -> id -> subscriber
	counter uint64

	sendTimeout time.Duration
}

// NewBus builds an empty bus. sendTimeout 0 means drop immediately when
// a subscriber is full.
func NewBus(sendTimeout time.Duration) *Bus {
	return &Bus{
		subs:        make(map[string]map[string]*subscriber),
		sendTimeout: sendTimeout,
	}
}

// Subscribe registers for a topic pattern ("gui", "subtask.*.stdout",
// "*") and returns the channel plus an unsubscribe function. The channel
// closes on unsubscribe.
func (b *Bus) Subscribe(pattern string, bufferSize int) (<-chan Notification, func()) {
	id := fmt.Sprintf("sub-%d", atomic.AddUint64(&b.counter, 1))
	sub := &subscriber{
		id:    id,
		topic: pattern,
		ch:    make(chan Notification, bufferSize),
	}

	b.mu.Lock()
	if _, ok := b.subs[pattern]; !ok {
		b.subs[pattern] = make(map[string]*subscriber)
	}
	b.subs[pattern][id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[pattern]; ok {
			if s, ok := m[id]; ok {
				s.close()
				delete(m, id)
				if len(m) == 0 {
					delete(b.subs, pattern)
				}
			}
		}
	}
	return sub.ch, unsubscribe
}

// Publish delivers a message to every subscriber whose pattern matches
// the topic.
func (b *Bus) Publish(topic string, msg wire.Message) {
	n := Notification{Topic: topic, Message: msg}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, m := range b.subs {
		if !matchTopic(pattern, topic) {
			continue
		}
		for _, sub := range m {
			sub.send(n, b.sendTimeout)
		}
	}
}

// Notify implements session.GUINotifier: service-side notifications land
// on the main GUI topic.
func (b *Bus) Notify(msg any) {
	m, ok := msg.(wire.Message)
	if !ok {
		return
	}
	b.Publish(TopicGUI, m)
}

// Shutdown closes every subscriber.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.subs {
		for _, sub := range m {
			sub.close()
		}
	}
	b.subs = make(map[string]map[string]*subscriber)
}

// Drain consumes notifications until the context ends, calling fn on
// each. Convenience for in-process GUI loops.
func (b *Bus) Drain(ctx context.Context, pattern string, fn func(Notification)) {
	ch, unsubscribe := b.Subscribe(pattern, 64)
	defer unsubscribe()
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			fn(n)
		case <-ctx.Done():
			return
		}
	}
}

// matchTopic compares a dotted pattern against a topic; "*" matches one
// segment, a lone "*" matches everything.
func matchTopic(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == "*" || pattern == topic {
		return true
	}
	pp := strings.Split(pattern, ".")
	tp := strings.Split(topic, ".")
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != "*" && pp[i] != tp[i] {
			return false
		}
	}
	return true
}
