package realtime

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCounterForm(t *testing.T) {
	f := NewCounterForm()
	if _, err := CounterFromForm(f); !errors.Is(err, ErrInvalidCounter) {
		t.Fatalf("blank counter must be invalid, got %v", err)
	}
	if f.Message("counter") != MessageCounterInvalid {
		t.Fatalf("unexpected message %q", f.Message("counter"))
	}

	cases := []struct {
		value any
		want  int
		ok    bool
	}{
		{"12", 12, true},
		{"0", 0, true},
		{float64(4), 4, true},
		{json.Number("9"), 9, true},
		{"-2", 0, false},
		{"3.5", 0, false},
		{"diez", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tc := range cases {
		f.Change("counter", tc.value)
		n, err := CounterFromForm(f)
		if tc.ok && (err != nil || n != tc.want) {
			t.Fatalf("%v: got %d %v want %d", tc.value, n, err, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidCounter) {
			t.Fatalf("%v: expected invalid counter, got %d %v", tc.value, n, err)
		}
	}
}

func TestConfirmsCounter(t *testing.T) {
	echo := mustReading(t, ChannelCountPeople, `{"timestamp":"2024-05-01T10:00:00Z","sensor":{"count":5}}`)
	if !Confirms(echo, 5) {
		t.Fatalf("expected echo to confirm 5")
	}
	if Confirms(echo, 6) {
		t.Fatalf("different count must not confirm")
	}
	heartbeat := mustReading(t, ChannelCountPeople, `{"sensor":{"count":5}}`)
	if Confirms(heartbeat, 5) {
		t.Fatalf("heartbeat must not confirm")
	}
	other := mustReading(t, "doorsStatus", `{"timestamp":"2024-05-01T10:00:00Z","sensor":{"count":5}}`)
	if Confirms(other, 5) {
		t.Fatalf("other channel must not confirm")
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	frame, err := EncodeFrame(CommandSetCounter, json.RawMessage(`12`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(frame) != `["setCounter",12]` {
		t.Fatalf("unexpected frame %s", frame)
	}
	if _, err := EncodeFrame("", json.RawMessage(`1`)); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected invalid frame for empty channel, got %v", err)
	}
}
