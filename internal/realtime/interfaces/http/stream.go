package http

import (
	"encoding/json"
	"net/http"
	"sync"

	"building-monitor/internal/observability/metrics"
	realtime "building-monitor/internal/realtime/domain"
)

// SSEBroker fans out widget updates to connected clients.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan []byte]struct{})}
}

// Publish implements application.Publisher.
func (b *SSEBroker) Publish(state realtime.State) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return
	}
	b.broadcast(payload)
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	n := len(b.clients)
	b.mu.Unlock()
	metrics.SetStreamSubscribers(n)
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.clients[ch]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.clients, ch)
	close(ch)
	n := len(b.clients)
	b.mu.Unlock()
	metrics.SetStreamSubscribers(n)
}

// broadcast sends under the lock so Unsubscribe cannot close a channel
// mid-send. Sends never block.
func (b *SSEBroker) broadcast(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// SnapshotSource lists the current widget states.
type SnapshotSource interface {
	Snapshot() []realtime.State
}

// StreamHandler serves the SSE widget stream.
type StreamHandler struct {
	broker *SSEBroker
	panel  SnapshotSource
}

// NewStreamHandler constructs a stream handler. panel may be nil.
func NewStreamHandler(broker *SSEBroker, panel SnapshotSource) *StreamHandler {
	return &StreamHandler{broker: broker, panel: panel}
}

// ServeHTTP handles GET /api/v1/realtime/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	if h.panel != nil {
		if payload, err := json.Marshal(h.panel.Snapshot()); err == nil {
			writeEvent(w, "snapshot", payload)
		}
	}
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, "widget", payload)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload []byte) {
	_, _ = w.Write([]byte("event: " + event + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
