package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseRingBufferSize is how many recent events are kept for Last-Event-ID
	// replay.
	sseRingBufferSize = 1000

	sseKeepaliveInterval = 15 * time.Second
	sseClientBuffer      = 64
)

type sseEvent struct {
	ID    uint64
	Topic string
	Tag   string // session tag, when the payload carries one
	Data  []byte
}

// sseClient is one connected stream consumer.
type sseClient struct {
	topics  []string // NATS-style patterns; empty = all
	session string   // empty = every session
	ch      chan *sseEvent
}

func (c *sseClient) wants(evt *sseEvent) bool {
	if c.session != "" && evt.Tag != c.session {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, p := range c.topics {
		if matchTopicPattern(p, evt.Topic) {
			return true
		}
	}
	return false
}

// EventHub fans lifecycle events out to SSE clients and keeps the most recent
// ones for reconnecting clients. It implements events.Publisher.
type EventHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	lastID  uint64
	ring    []sseEvent // oldest first once full, starting at head
	head    int
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[*sseClient]struct{}),
		ring:    make([]sseEvent, 0, sseRingBufferSize),
	}
}

// Publish marshals event and broadcasts it under topic.
func (h *EventHub) Publish(_ context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	h.broadcast(topic, payload)
	return nil
}

// Close is a no-op; SSE clients end with their requests.
func (h *EventHub) Close() error { return nil }

func (h *EventHub) broadcast(topic string, payload []byte) {
	var tagged struct {
		Tag string `json:"tag"`
	}
	_ = json.Unmarshal(payload, &tagged)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := sseEvent{ID: h.lastID, Topic: topic, Tag: tagged.Tag, Data: payload}
	if len(h.ring) < sseRingBufferSize {
		h.ring = append(h.ring, evt)
	} else {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % sseRingBufferSize
	}

	for c := range h.clients {
		if !c.wants(&evt) {
			continue
		}
		select {
		case c.ch <- &evt:
		default:
			// Slow client; drop.
		}
	}
}

func (h *EventHub) subscribe(topics []string, session string) *sseClient {
	c := &sseClient{topics: topics, session: session, ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *EventHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns buffered events with ID > lastID, oldest first.
func (h *EventHub) eventsSince(lastID uint64) []*sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*sseEvent
	for i := range h.ring {
		evt := h.ring[(h.head+i)%len(h.ring)]
		if evt.ID > lastID {
			out = append(out, &evt)
		}
	}
	return out
}

// matchTopicPattern matches a dot-separated topic against a NATS-style
// pattern: "*" is one segment, a trailing ">" is one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(top)
		}
		if i >= len(top) || (p != "*" && p != top[i]) {
			return false
		}
	}
	return len(pat) == len(top)
}

// handleEventStream handles GET /v1/events/stream. Optional query parameters:
// topics (comma-separated patterns) and session (a session tag).
func (s *NegoServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	client := s.hub.subscribe(topics, r.URL.Query().Get("session"))
	defer s.hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		for _, evt := range s.hub.eventsSince(lastID) {
			if client.wants(evt) {
				writeSSEEvent(w, evt)
			}
		}
		flusher.Flush()
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			io.WriteString(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
