package realtime

import (
	"errors"
	"strconv"

	"building-monitor/internal/form"
)

// People counter channels. The gateway accepts the setCounter command and
// answers with a countPeople event carrying the new count.
const (
	ChannelCountPeople = "countPeople"
	CommandSetCounter  = "setCounter"
	CountField         = "count"
)

// MessageCounterInvalid is shown when the requested count is not a whole number.
const MessageCounterInvalid = "Ingrese un número válido"

// ErrInvalidCounter indicates a counter value that is not a whole number.
var ErrInvalidCounter = errors.New("realtime: invalid counter")

// NewCounterForm returns the people counter adjustment form.
func NewCounterForm() *form.Form {
	return form.New(
		map[string]any{"counter": ""},
		map[string]form.Rule{"counter": form.Digits(MessageCounterInvalid)},
	)
}

// CounterFromForm returns the requested count of a valid form.
func CounterFromForm(f *form.Form) (int, error) {
	if f == nil || !f.Valid() {
		return 0, ErrInvalidCounter
	}
	n, err := strconv.Atoi(f.String("counter"))
	if err != nil {
		return 0, ErrInvalidCounter
	}
	return n, nil
}

// Confirms reports whether r is a counter event showing count n.
func Confirms(r Reading, n int) bool {
	if r.Channel != ChannelCountPeople || r.Heartbeat() {
		return false
	}
	v, ok := r.Number(CountField)
	return ok && v == float64(n)
}
