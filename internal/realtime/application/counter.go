package application

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	realtime "building-monitor/internal/realtime/domain"
)

// DefaultConfirmTimeout bounds the wait for the gateway echo.
const DefaultConfirmTimeout = 3 * time.Second

// ErrCounterUnconfirmed indicates that no countPeople event showed the
// requested count before the timeout.
var ErrCounterUnconfirmed = errors.New("realtime: counter update not confirmed")

// Commander sends a command to the sensor gateway over the push connection.
type Commander interface {
	Send(ctx context.Context, channel string, payload []byte) error
}

// CounterAdjuster overrides the people counter and waits for the gateway
// to report the new count.
type CounterAdjuster struct {
	hub       *Hub
	commander Commander
	timeout   time.Duration
	logger    *log.Logger
}

// NewCounterAdjuster constructs an adjuster. A non-positive timeout uses
// DefaultConfirmTimeout.
func NewCounterAdjuster(hub *Hub, commander Commander, timeout time.Duration, logger *log.Logger) (*CounterAdjuster, error) {
	if hub == nil {
		return nil, errors.New("counter adjuster: nil hub")
	}
	if commander == nil {
		return nil, errors.New("counter adjuster: nil commander")
	}
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CounterAdjuster{hub: hub, commander: commander, timeout: timeout, logger: logger}, nil
}

// Adjust validates values through the counter form, sends setCounter and
// returns the count once a countPeople event echoes it.
func (a *CounterAdjuster) Adjust(ctx context.Context, values map[string]any) (int, error) {
	f := realtime.NewCounterForm()
	f.ChangeAll(values)
	n, err := realtime.CounterFromForm(f)
	if err != nil {
		return 0, err
	}

	confirmed := make(chan struct{}, 1)
	cancel := a.hub.Subscribe(realtime.ChannelCountPeople, func(r realtime.Reading) {
		if !realtime.Confirms(r, n) {
			return
		}
		select {
		case confirmed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	if err := a.commander.Send(ctx, realtime.CommandSetCounter, []byte(strconv.Itoa(n))); err != nil {
		a.logger.Printf("realtime: setCounter %d: %v", n, err)
		return 0, err
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case <-confirmed:
		a.logger.Printf("realtime: people counter set to %d", n)
		return n, nil
	case <-timer.C:
		a.logger.Printf("realtime: setCounter %d not confirmed after %s", n, a.timeout)
		return 0, ErrCounterUnconfirmed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
