package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/sanyexieai/sevino/internal/objectstore"
)

// EventBus distributes store events to SSE subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[chan []byte]struct{}),
	}
}

// Publish broadcasts an event without blocking. Subscribers with full
// channels miss the event.
func (eb *EventBus) Publish(ev objectstore.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for ch := range eb.subscribers {
		select {
		case ch <- data:
		default:
		}
	}
}

func (eb *EventBus) subscribe() chan []byte {
	ch := make(chan []byte, 64)
	eb.mu.Lock()
	eb.subscribers[ch] = struct{}{}
	eb.mu.Unlock()
	return ch
}

func (eb *EventBus) unsubscribe(ch chan []byte) {
	eb.mu.Lock()
	delete(eb.subscribers, ch)
	eb.mu.Unlock()
	close(ch)
}

// handleEvents serves GET /api/events as a server-sent event stream.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "Event streaming not enabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.bus.subscribe()
	defer h.bus.unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
