package logging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cardgen-go/internal/events"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Stream broadcasts log lines and hub events to connected WebSocket clients
// and keeps a bounded history for polling clients.
type Stream struct {
	clients         map[*websocket.Conn]*clientInfo
	broadcast       chan Message
	mu              sync.RWMutex
	stopCh          chan struct{}
	stopOnce        sync.Once
	history         []Message
	historyMu       sync.RWMutex
	seq             uint64
	historyCap      int
	maxConnections  int
	idleTimeout     time.Duration
	cleanupInterval time.Duration
}

type clientInfo struct {
	writeMu      sync.Mutex
	lastActivity time.Time
	connected    time.Time
}

// Message is a single entry on the stream. Kind is "log" or "event".
type Message struct {
	ID        uint64                 `json:"id,omitempty"`
	Kind      string                 `json:"kind"`
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level,omitempty"`
	Topic     string                 `json:"topic,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Payload   any                    `json:"payload,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var ErrMaxConnectionsReached = errors.New("maximum WebSocket connections reached")

// NewStream creates a stream. Call Start before adding clients.
func NewStream() *Stream {
	return &Stream{
		clients:         make(map[*websocket.Conn]*clientInfo),
		broadcast:       make(chan Message, 100),
		stopCh:          make(chan struct{}),
		history:         make([]Message, 0, 500),
		historyCap:      500,
		maxConnections:  50,
		idleTimeout:     30 * time.Minute,
		cleanupInterval: 2 * time.Minute,
	}
}

// Start starts the broadcast and cleanup loops.
func (s *Stream) Start() {
	go func() {
		for {
			select {
			case message := <-s.broadcast:
				s.mu.RLock()
				for conn, info := range s.clients {
					go s.write(conn, info, message)
				}
				s.mu.RUnlock()
			case <-s.stopCh:
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.cleanupIdle()
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *Stream) write(conn *websocket.Conn, info *clientInfo, msg Message) {
	info.writeMu.Lock()
	err := conn.WriteJSON(msg)
	if err == nil {
		info.lastActivity = time.Now()
	}
	info.writeMu.Unlock()
	if err != nil {
		log.Debugf("stream write failed: %v", err)
		s.RemoveClient(conn)
	}
}

// Stop closes every client and stops the loops.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]*clientInfo)
}

// AddClient registers a WebSocket connection.
func (s *Stream) AddClient(conn *websocket.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.clients) >= s.maxConnections {
		log.Warnf("stream connection limit reached (%d), rejecting new connection", s.maxConnections)
		return ErrMaxConnectionsReached
	}

	now := time.Now()
	s.clients[conn] = &clientInfo{lastActivity: now, connected: now}
	log.Debugf("stream client connected (total: %d)", len(s.clients))
	return nil
}

// RemoveClient closes and forgets a connection.
func (s *Stream) RemoveClient(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		conn.Close()
		log.Debugf("stream client disconnected (remaining: %d)", len(s.clients))
	}
}

func (s *Stream) cleanupIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for conn, info := range s.clients {
		info.writeMu.Lock()
		idle := now.Sub(info.lastActivity)
		info.writeMu.Unlock()
		if idle > s.idleTimeout {
			delete(s.clients, conn)
			conn.Close()
		}
	}
}

// ConnectionCount returns the number of connected clients.
func (s *Stream) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Publish appends msg to the history and queues it for broadcast.
func (s *Stream) Publish(msg Message) {
	msg.ID = atomic.AddUint64(&s.seq, 1)
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	s.appendHistory(msg)

	select {
	case s.broadcast <- msg:
	default:
		// channel full, drop
	}
}

// ForwardEvents subscribes the stream to hub events matching patterns, or to
// every event when none are given. The returned func unsubscribes.
func (s *Stream) ForwardEvents(sub events.Subscriber, patterns ...string) func() {
	if len(patterns) == 0 {
		patterns = []string{events.TopicAll}
	}
	forward := func(_ context.Context, ev events.Event) {
		s.Publish(Message{
			Kind:      "event",
			Timestamp: ev.Timestamp.Format(time.RFC3339),
			Topic:     ev.Topic,
			Payload:   ev.Payload,
		})
	}
	unsubs := make([]func(), 0, len(patterns))
	for _, p := range patterns {
		unsubs = append(unsubs, sub.Subscribe(p, forward))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (s *Stream) appendHistory(msg Message) {
	if s.historyCap <= 0 {
		return
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.history = append(s.history, msg)
	if len(s.history) > s.historyCap {
		excess := len(s.history) - s.historyCap
		s.history = append([]Message(nil), s.history[excess:]...)
	}
}

// FetchSince returns messages newer than the provided cursor ID.
func (s *Stream) FetchSince(cursor uint64, limit int) ([]Message, uint64, bool) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > s.historyCap {
		limit = s.historyCap
	}

	total := len(s.history)
	if total == 0 {
		return []Message{}, cursor, false
	}

	start := 0
	if cursor == 0 {
		if total > limit {
			start = total - limit
		}
	} else {
		start = total
		for i, msg := range s.history {
			if msg.ID > cursor {
				start = i
				break
			}
		}
		if start >= total {
			return []Message{}, cursor, false
		}
	}

	end := start + limit
	if end > total {
		end = total
	}

	out := make([]Message, end-start)
	copy(out, s.history[start:end])

	nextCursor := cursor
	if len(out) > 0 {
		nextCursor = out[len(out)-1].ID
	}
	return out, nextCursor, end < total
}

// LogrusHook mirrors log entries onto a Stream.
type LogrusHook struct {
	stream *Stream
	levels []log.Level
}

// NewLogrusHook creates a hook that forwards entries at or above minLevel.
func NewLogrusHook(stream *Stream, minLevel log.Level) *LogrusHook {
	levels := make([]log.Level, 0, len(log.AllLevels))
	for _, lvl := range log.AllLevels {
		if lvl <= minLevel {
			levels = append(levels, lvl)
		}
	}
	return &LogrusHook{stream: stream, levels: levels}
}

// Levels returns the log levels this hook will fire for
func (hook *LogrusHook) Levels() []log.Level {
	return hook.levels
}

// Fire is called when a log event occurs
func (hook *LogrusHook) Fire(entry *log.Entry) error {
	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			fields[k] = err.Error()
			continue
		}
		fields[k] = v
	}

	hook.stream.Publish(Message{
		Kind:      "log",
		Timestamp: entry.Time.UTC().Format(time.RFC3339),
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    fields,
	})
	return nil
}
