package events

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Topic names for core domain events.
const (
	TopicConfigUpdated     = "config.updated"
	TopicCredentialChanged = "credentials.changed"
	TopicCredentialRotated = "credentials.rotated"
	TopicCredentialFailure = "credentials.failure"
	TopicBatchProgress     = "batch.progress"
	TopicBatchFinished     = "batch.finished"
	TopicAll               = "*"
)

// Family returns a pattern matching every topic in a family,
// e.g. Family("batch") matches "batch.progress" and "batch.finished".
func Family(name string) string { return name + ".*" }

// Event is one message delivered through the hub.
type Event struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handler processes an incoming event.
type Handler func(context.Context, Event)

// Publisher is implemented by anything events can be sent to.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, metadata map[string]string)
}

// Subscriber is implemented by anything handlers can be attached to.
type Subscriber interface {
	Subscribe(pattern string, handler Handler) func()
}

type subscription struct {
	id      uint64
	pattern string
	handler Handler
}

// Hub is a synchronous in-process event bus. A pattern is an exact topic,
// a family ("credentials.*") or TopicAll. Handlers run in subscription
// order on the publishing goroutine; a panicking handler is logged and
// skipped.
type Hub struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	now    func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{now: time.Now}
}

// Subscribe attaches handler to every topic matching pattern and returns
// the function that detaches it.
func (h *Hub) Subscribe(pattern string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscription{id: id, pattern: pattern, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers an event to every matching handler before returning.
func (h *Hub) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	ev := Event{
		Topic:     topic,
		Timestamp: h.now().UTC(),
		Payload:   payload,
		Metadata:  metadata,
	}
	for _, s := range h.matching(topic) {
		h.deliver(ctx, s, ev)
	}
}

// Subscribers reports how many handlers currently match topic.
func (h *Hub) Subscribers(topic string) int {
	return len(h.matching(topic))
}

func (h *Hub) matching(topic string) []subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []subscription
	for _, s := range h.subs {
		if matches(s.pattern, topic) {
			out = append(out, s)
		}
	}
	return out
}

func (h *Hub) deliver(ctx context.Context, s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"topic":   ev.Topic,
				"pattern": s.pattern,
				"panic":   r,
			}).Error("event handler panicked")
		}
	}()
	s.handler(ctx, ev)
}

func matches(pattern, topic string) bool {
	switch {
	case pattern == TopicAll:
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(topic, pattern[:len(pattern)-1])
	default:
		return pattern == topic
	}
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, topic string, payload any, metadata map[string]string)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	f(ctx, topic, payload, metadata)
}
