package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidReading indicates a payload that is not a sensor event.
	ErrInvalidReading = errors.New("realtime: invalid reading")
	// ErrInvalidFrame indicates a push frame without channel or payload.
	ErrInvalidFrame = errors.New("realtime: invalid frame")
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05.000",
}

// Reading is one sensor event received on a named channel. A zero Timestamp
// marks a heartbeat that widgets ignore.
type Reading struct {
	Channel   string
	Timestamp time.Time
	Sensor    map[string]any
}

type readingPayload struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Data      *struct {
		Timestamp json.RawMessage `json:"timestamp"`
	} `json:"data"`
	Sensor map[string]any `json:"sensor"`
}

// DecodeReading parses a sensor event payload for channel. Both the flat
// {"timestamp","sensor"} shape and the nested {"data":{"timestamp"},"sensor"}
// shape are accepted. A missing or unparseable timestamp yields a zero
// Timestamp, not an error.
func DecodeReading(channel string, payload []byte) (Reading, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return Reading{}, fmt.Errorf("%w: empty channel", ErrInvalidReading)
	}
	var p readingPayload
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}
	raw := p.Timestamp
	if len(raw) == 0 && p.Data != nil {
		raw = p.Data.Timestamp
	}
	sensor := p.Sensor
	if sensor == nil {
		sensor = map[string]any{}
	}
	return Reading{Channel: channel, Timestamp: parseTimestamp(raw), Sensor: sensor}, nil
}

// DecodeFrame parses a push frame carrying its channel name, either
// {"channel": name, "payload": {...}} or [name, {...}].
func DecodeFrame(frame []byte) (Reading, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return Reading{}, ErrInvalidFrame
	}
	if frame[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(frame, &parts); err != nil || len(parts) < 2 {
			return Reading{}, ErrInvalidFrame
		}
		var channel string
		if err := json.Unmarshal(parts[0], &channel); err != nil {
			return Reading{}, ErrInvalidFrame
		}
		return DecodeReading(channel, parts[1])
	}
	var envelope struct {
		Channel string          `json:"channel"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil || len(envelope.Payload) == 0 {
		return Reading{}, ErrInvalidFrame
	}
	return DecodeReading(envelope.Channel, envelope.Payload)
}

// EncodeFrame builds the [name, payload] frame used for outbound commands.
func EncodeFrame(channel string, payload json.RawMessage) ([]byte, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" || len(payload) == 0 {
		return nil, ErrInvalidFrame
	}
	return json.Marshal([]any{channel, payload})
}

func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				return t
			}
		}
		return time.Time{}
	}
	value, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || value <= 0 {
		return time.Time{}
	}
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC()
	}
	return time.Unix(value, 0).UTC()
}

// Number returns a numeric sensor field. Booleans and numeric strings are
// coerced.
func (r Reading) Number(field string) (float64, bool) {
	switch v := r.Sensor[field].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Bool returns a boolean sensor field. Numbers are true when non-zero.
func (r Reading) Bool(field string) (bool, bool) {
	switch v := r.Sensor[field].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	if f, ok := r.Number(field); ok {
		return f != 0, true
	}
	return false, false
}

// Heartbeat reports whether the reading carries no timestamp.
func (r Reading) Heartbeat() bool {
	return r.Timestamp.IsZero()
}
