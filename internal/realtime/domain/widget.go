package realtime

import (
	"errors"
	"math"
	"sync"
	"time"
)

// LabelLayout formats trend and join labels from the reading time.
const LabelLayout = "15:04:05"

// DefaultWindow is the number of samples kept by trend and join widgets.
const DefaultWindow = 12

// WidgetKind names a widget family.
type WidgetKind string

const (
	KindValue   WidgetKind = "value"
	KindStatus  WidgetKind = "status"
	KindCounter WidgetKind = "counter"
	KindTrend   WidgetKind = "trend"
	KindJoin    WidgetKind = "join"
)

// Widget consumes readings of its channels and exposes a state copy.
type Widget interface {
	Name() string
	Channels() []string
	// Apply folds r into the widget and reports whether the state changed.
	Apply(r Reading) bool
	State() State
}

// Series is one line of a trend or join window.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// State is the serializable view of a widget.
type State struct {
	Name      string             `json:"name"`
	Kind      WidgetKind         `json:"kind"`
	Title     string             `json:"title"`
	Unit      string             `json:"unit,omitempty"`
	Channels  []string           `json:"channels"`
	Value     *float64           `json:"value,omitempty"`
	Status    *bool              `json:"status,omitempty"`
	Label     string             `json:"label,omitempty"`
	Count     *int64             `json:"count,omitempty"`
	Labels    []string           `json:"labels,omitempty"`
	Series    []Series           `json:"series,omitempty"`
	Extras    map[string]float64 `json:"extras,omitempty"`
	Pending   []string           `json:"pending,omitempty"`
	UpdatedAt *time.Time         `json:"updatedAt,omitempty"`
}

// Meta is the common description of a widget.
type Meta struct {
	Name  string
	Title string
	Unit  string
}

func (m Meta) validate() error {
	if m.Name == "" {
		return errors.New("realtime widget: empty name")
	}
	return nil
}

func round(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// ValueWidget shows the last value of one numeric field.
type ValueWidget struct {
	meta     Meta
	channel  string
	field    string
	decimals int

	mu        sync.Mutex
	value     *float64
	updatedAt time.Time
}

// NewValueWidget constructs a gauge widget.
func NewValueWidget(meta Meta, channel, field string, decimals int) (*ValueWidget, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if channel == "" || field == "" {
		return nil, errors.New("value widget: channel and field required")
	}
	return &ValueWidget{meta: meta, channel: channel, field: field, decimals: decimals}, nil
}

func (w *ValueWidget) Name() string       { return w.meta.Name }
func (w *ValueWidget) Channels() []string { return []string{w.channel} }

func (w *ValueWidget) Apply(r Reading) bool {
	if r.Channel != w.channel || r.Heartbeat() {
		return false
	}
	v, ok := r.Number(w.field)
	if !ok {
		return false
	}
	v = round(v, w.decimals)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.value = &v
	w.updatedAt = r.Timestamp
	return true
}

func (w *ValueWidget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := State{Name: w.meta.Name, Kind: KindValue, Title: w.meta.Title, Unit: w.meta.Unit, Channels: w.Channels()}
	if w.value != nil {
		v := *w.value
		s.Value = &v
		s.UpdatedAt = timePtr(w.updatedAt)
	}
	return s
}

// StatusWidget shows the last boolean field with a label per state.
type StatusWidget struct {
	meta       Meta
	channel    string
	field      string
	trueLabel  string
	falseLabel string

	mu        sync.Mutex
	status    *bool
	updatedAt time.Time
}

// NewStatusWidget constructs a status widget.
func NewStatusWidget(meta Meta, channel, field, trueLabel, falseLabel string) (*StatusWidget, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if channel == "" || field == "" {
		return nil, errors.New("status widget: channel and field required")
	}
	return &StatusWidget{meta: meta, channel: channel, field: field, trueLabel: trueLabel, falseLabel: falseLabel}, nil
}

func (w *StatusWidget) Name() string       { return w.meta.Name }
func (w *StatusWidget) Channels() []string { return []string{w.channel} }

func (w *StatusWidget) Apply(r Reading) bool {
	if r.Channel != w.channel || r.Heartbeat() {
		return false
	}
	b, ok := r.Bool(w.field)
	if !ok {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = &b
	w.updatedAt = r.Timestamp
	return true
}

func (w *StatusWidget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := State{Name: w.meta.Name, Kind: KindStatus, Title: w.meta.Title, Channels: w.Channels()}
	if w.status != nil {
		b := *w.status
		s.Status = &b
		s.Label = w.falseLabel
		if b {
			s.Label = w.trueLabel
		}
		s.UpdatedAt = timePtr(w.updatedAt)
	}
	return s
}

// CounterWidget shows the last integer field.
type CounterWidget struct {
	meta    Meta
	channel string
	field   string

	mu        sync.Mutex
	count     *int64
	updatedAt time.Time
}

// NewCounterWidget constructs a counter widget.
func NewCounterWidget(meta Meta, channel, field string) (*CounterWidget, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if channel == "" || field == "" {
		return nil, errors.New("counter widget: channel and field required")
	}
	return &CounterWidget{meta: meta, channel: channel, field: field}, nil
}

func (w *CounterWidget) Name() string       { return w.meta.Name }
func (w *CounterWidget) Channels() []string { return []string{w.channel} }

func (w *CounterWidget) Apply(r Reading) bool {
	if r.Channel != w.channel || r.Heartbeat() {
		return false
	}
	v, ok := r.Number(w.field)
	if !ok {
		return false
	}
	n := int64(math.Round(v))
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count = &n
	w.updatedAt = r.Timestamp
	return true
}

func (w *CounterWidget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := State{Name: w.meta.Name, Kind: KindCounter, Title: w.meta.Title, Unit: w.meta.Unit, Channels: w.Channels()}
	if w.count != nil {
		n := *w.count
		s.Count = &n
		s.UpdatedAt = timePtr(w.updatedAt)
	}
	return s
}

// window is a bounded FIFO of labeled rows.
type window struct {
	capacity int
	labels   []string
	rows     [][]float64
}

func newWindow(capacity int) window {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return window{capacity: capacity}
}

func (w *window) push(label string, row []float64) {
	w.labels = append(w.labels, label)
	w.rows = append(w.rows, row)
	if over := len(w.labels) - w.capacity; over > 0 {
		w.labels = append([]string(nil), w.labels[over:]...)
		w.rows = append([][]float64(nil), w.rows[over:]...)
	}
}

func (w *window) series(names []string) ([]string, []Series) {
	labels := append([]string{}, w.labels...)
	out := make([]Series, len(names))
	for i, name := range names {
		values := make([]float64, len(w.rows))
		for j, row := range w.rows {
			values[j] = row[i]
		}
		out[i] = Series{Name: name, Values: values}
	}
	return labels, out
}

// TrendWidget keeps the last N samples of one field plus the last values of
// secondary fields.
type TrendWidget struct {
	meta     Meta
	channel  string
	field    string
	extras   []string
	decimals int

	mu        sync.Mutex
	win       window
	last      map[string]float64
	updatedAt time.Time
}

// NewTrendWidget constructs a trend widget keeping capacity samples.
func NewTrendWidget(meta Meta, channel, field string, extras []string, decimals, capacity int) (*TrendWidget, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if channel == "" || field == "" {
		return nil, errors.New("trend widget: channel and field required")
	}
	return &TrendWidget{
		meta:     meta,
		channel:  channel,
		field:    field,
		extras:   append([]string(nil), extras...),
		decimals: decimals,
		win:      newWindow(capacity),
		last:     make(map[string]float64),
	}, nil
}

func (w *TrendWidget) Name() string       { return w.meta.Name }
func (w *TrendWidget) Channels() []string { return []string{w.channel} }

func (w *TrendWidget) Apply(r Reading) bool {
	if r.Channel != w.channel || r.Heartbeat() {
		return false
	}
	v, ok := r.Number(w.field)
	if !ok {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.win.push(r.Timestamp.Format(LabelLayout), []float64{round(v, w.decimals)})
	for _, extra := range w.extras {
		if x, ok := r.Number(extra); ok {
			w.last[extra] = round(x, w.decimals)
		}
	}
	w.updatedAt = r.Timestamp
	return true
}

func (w *TrendWidget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := State{Name: w.meta.Name, Kind: KindTrend, Title: w.meta.Title, Unit: w.meta.Unit, Channels: w.Channels()}
	s.Labels, s.Series = w.win.series([]string{w.field})
	if len(w.last) > 0 {
		s.Extras = make(map[string]float64, len(w.last))
		for k, v := range w.last {
			s.Extras[k] = v
		}
	}
	if !w.updatedAt.IsZero() {
		s.UpdatedAt = timePtr(w.updatedAt)
	}
	return s
}

// JoinInput is one channel contributing a column to a join widget.
type JoinInput struct {
	Channel string
	Field   string
	Series  string
}

// JoinWidget waits until every input channel has reported since the last
// flush, then appends one row and starts waiting again.
type JoinWidget struct {
	meta     Meta
	inputs   []JoinInput
	decimals int

	mu        sync.Mutex
	pending   map[string]float64
	win       window
	updatedAt time.Time
}

// NewJoinWidget constructs a join widget over distinct channels.
func NewJoinWidget(meta Meta, inputs []JoinInput, decimals, capacity int) (*JoinWidget, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if len(inputs) < 2 {
		return nil, errors.New("join widget: at least two inputs required")
	}
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if in.Channel == "" || in.Field == "" {
			return nil, errors.New("join widget: channel and field required")
		}
		if _, dup := seen[in.Channel]; dup {
			return nil, errors.New("join widget: duplicate channel " + in.Channel)
		}
		seen[in.Channel] = struct{}{}
	}
	return &JoinWidget{
		meta:     meta,
		inputs:   append([]JoinInput(nil), inputs...),
		decimals: decimals,
		pending:  make(map[string]float64, len(inputs)),
		win:      newWindow(capacity),
	}, nil
}

func (w *JoinWidget) Name() string { return w.meta.Name }

func (w *JoinWidget) Channels() []string {
	out := make([]string, len(w.inputs))
	for i, in := range w.inputs {
		out[i] = in.Channel
	}
	return out
}

func (w *JoinWidget) Apply(r Reading) bool {
	if r.Heartbeat() {
		return false
	}
	var input *JoinInput
	for i := range w.inputs {
		if w.inputs[i].Channel == r.Channel {
			input = &w.inputs[i]
			break
		}
	}
	if input == nil {
		return false
	}
	v, ok := r.Number(input.Field)
	if !ok {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[input.Channel] = round(v, w.decimals)
	if len(w.pending) < len(w.inputs) {
		return true
	}
	row := make([]float64, len(w.inputs))
	for i, in := range w.inputs {
		row[i] = w.pending[in.Channel]
	}
	w.win.push(r.Timestamp.Format(LabelLayout), row)
	w.pending = make(map[string]float64, len(w.inputs))
	w.updatedAt = r.Timestamp
	return true
}

func (w *JoinWidget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := State{Name: w.meta.Name, Kind: KindJoin, Title: w.meta.Title, Unit: w.meta.Unit, Channels: w.Channels()}
	names := make([]string, len(w.inputs))
	for i, in := range w.inputs {
		names[i] = in.Series
		if names[i] == "" {
			names[i] = in.Channel
		}
		if _, ok := w.pending[in.Channel]; !ok {
			s.Pending = append(s.Pending, in.Channel)
		}
	}
	s.Labels, s.Series = w.win.series(names)
	if !w.updatedAt.IsZero() {
		s.UpdatedAt = timePtr(w.updatedAt)
	}
	return s
}
