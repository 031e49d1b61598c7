package application

import (
	"errors"
	"fmt"

	"building-monitor/internal/observability/metrics"
	realtime "building-monitor/internal/realtime/domain"
)

// Publisher receives widget states after accepted updates.
type Publisher interface {
	Publish(state realtime.State)
}

// Panel owns the widgets of the realtime dashboard.
type Panel struct {
	hub       *Hub
	widgets   []realtime.Widget
	byName    map[string]realtime.Widget
	publisher Publisher
	cancels   []func()
}

// NewPanel builds the widgets of catalog and subscribes them to hub.
// publisher may be nil.
func NewPanel(hub *Hub, catalog Catalog, publisher Publisher) (*Panel, error) {
	if hub == nil {
		return nil, errors.New("realtime panel: nil hub")
	}
	widgets, err := catalog.Build()
	if err != nil {
		return nil, err
	}
	p := &Panel{
		hub:       hub,
		widgets:   widgets,
		byName:    make(map[string]realtime.Widget, len(widgets)),
		publisher: publisher,
	}
	for _, w := range widgets {
		if _, dup := p.byName[w.Name()]; dup {
			return nil, fmt.Errorf("realtime panel: duplicate widget %q", w.Name())
		}
		p.byName[w.Name()] = w
		widget := w
		for _, channel := range w.Channels() {
			p.cancels = append(p.cancels, hub.Subscribe(channel, func(r realtime.Reading) {
				p.apply(widget, r)
			}))
		}
	}
	return p, nil
}

func (p *Panel) apply(w realtime.Widget, r realtime.Reading) {
	if !w.Apply(r) {
		metrics.IncReading(r.Channel, metrics.ResultIgnored)
		return
	}
	metrics.IncReading(r.Channel, metrics.ResultSuccess)
	if p.publisher != nil {
		p.publisher.Publish(w.State())
	}
}

// Snapshot returns every widget state in catalog order.
func (p *Panel) Snapshot() []realtime.State {
	out := make([]realtime.State, 0, len(p.widgets))
	for _, w := range p.widgets {
		out = append(out, w.State())
	}
	return out
}

// Widget returns the state of one widget.
func (p *Panel) Widget(name string) (realtime.State, bool) {
	w, ok := p.byName[name]
	if !ok {
		return realtime.State{}, false
	}
	return w.State(), true
}

// Close unsubscribes every widget. Widgets keep their last values.
func (p *Panel) Close() {
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = nil
}
