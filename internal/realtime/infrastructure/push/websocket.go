package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"building-monitor/internal/observability/metrics"
	realtime "building-monitor/internal/realtime/domain"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

// ErrNotConnected indicates a command sent while the source is not running.
var ErrNotConnected = errors.New("push: source not connected")

// WebsocketSource reads channel frames from a websocket endpoint.
type WebsocketSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *log.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebsocketSource constructs a websocket source. header is sent on the
// handshake and may carry the service token.
func NewWebsocketSource(url string, header http.Header, logger *log.Logger) (*WebsocketSource, error) {
	if url == "" {
		return nil, errors.New("websocket source: empty url")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WebsocketSource{url: url, header: header, dialer: websocket.DefaultDialer, logger: logger}, nil
}

// Name implements application.Source.
func (s *WebsocketSource) Name() string { return "websocket" }

// Run dials once and delivers frames until ctx is done or the connection drops.
func (s *WebsocketSource) Run(ctx context.Context, deliver func(realtime.Reading)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return fmt.Errorf("websocket source: dial %s: %w", s.url, err)
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	s.setConn(conn)
	defer s.setConn(nil)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("websocket source: closed by peer: %w", err)
			}
			return fmt.Errorf("websocket source: read: %w", err)
		}
		r, err := realtime.DecodeFrame(message)
		if err != nil {
			metrics.IncReading("", metrics.ResultInvalid)
			s.logger.Printf("websocket source: drop frame: %v", err)
			continue
		}
		deliver(r)
	}
}

func (s *WebsocketSource) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// Send writes a [channel, payload] command frame on the live connection.
func (s *WebsocketSource) Send(ctx context.Context, channel string, payload []byte) error {
	frame, err := realtime.EncodeFrame(channel, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("websocket source: send %s: %w", channel, err)
	}
	return nil
}
