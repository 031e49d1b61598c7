package application

import (
	"context"
	"errors"
	"log"
	"sync"

	"building-monitor/internal/observability/metrics"
	realtime "building-monitor/internal/realtime/domain"
)

// Subscriber receives readings of the channels it subscribed to.
type Subscriber func(r realtime.Reading)

// Source delivers readings from one push connection until ctx is done or
// the connection fails. Implementations do not reconnect.
type Source interface {
	Name() string
	Run(ctx context.Context, deliver func(realtime.Reading)) error
}

// Hub shares one source connection among all subscribers through a
// channel dispatch table.
type Hub struct {
	logger *log.Logger

	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   int
}

type subscription struct {
	id      int
	handler Subscriber
}

// NewHub constructs a hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{logger: logger, handlers: make(map[string][]subscription)}
}

// Subscribe registers handler for channel and returns a cancel func.
func (h *Hub) Subscribe(channel string, handler Subscriber) func() {
	if handler == nil {
		return func() {}
	}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.handlers[channel] = append(h.handlers[channel], subscription{id: id, handler: handler})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(channel, id) })
	}
}

func (h *Hub) unsubscribe(channel string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.handlers[channel]
	for i, sub := range subs {
		if sub.id == id {
			h.handlers[channel] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(h.handlers[channel]) == 0 {
		delete(h.handlers, channel)
	}
}

// Channels lists channels with at least one subscriber.
func (h *Hub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.handlers))
	for channel := range h.handlers {
		out = append(out, channel)
	}
	return out
}

// Dispatch delivers r to every subscriber of its channel, in subscription
// order, on the caller's goroutine.
func (h *Hub) Dispatch(r realtime.Reading) {
	h.mu.RLock()
	subs := append([]subscription(nil), h.handlers[r.Channel]...)
	h.mu.RUnlock()

	if len(subs) == 0 {
		metrics.IncReading(r.Channel, metrics.ResultIgnored)
		return
	}
	for _, sub := range subs {
		sub.handler(r)
	}
}

// Run pumps src into the hub until it stops. A lost connection is logged
// and not retried.
func (h *Hub) Run(ctx context.Context, src Source) error {
	if src == nil {
		return errors.New("realtime hub: nil source")
	}
	h.logger.Printf("realtime: source %s started", src.Name())
	err := src.Run(ctx, h.Dispatch)
	if err != nil && !errors.Is(err, context.Canceled) {
		metrics.IncSourceError(src.Name())
		h.logger.Printf("realtime: source %s stopped: %v", src.Name(), err)
		return err
	}
	h.logger.Printf("realtime: source %s stopped", src.Name())
	return nil
}
