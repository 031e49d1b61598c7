package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	realtimeapp "building-monitor/internal/realtime/application"
	realtime "building-monitor/internal/realtime/domain"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newPanel(t *testing.T) (*realtimeapp.Hub, *realtimeapp.Panel, *SSEBroker) {
	t.Helper()
	hub := realtimeapp.NewHub(quietLogger())
	broker := NewSSEBroker()
	panel, err := realtimeapp.NewPanel(hub, realtimeapp.DefaultCatalog(), broker)
	if err != nil {
		t.Fatalf("new panel: %v", err)
	}
	t.Cleanup(panel.Close)
	return hub, panel, broker
}

func TestIngestDispatchesFrames(t *testing.T) {
	hub, panel, _ := newPanel(t)
	ingest, err := NewIngestHandler(hub, quietLogger())
	if err != nil {
		t.Fatalf("new ingest: %v", err)
	}

	cases := []struct {
		name     string
		body     string
		status   int
		accepted int
	}{
		{"object frame", `{"channel":"doorsStatus","payload":{"timestamp":"2024-05-01T10:00:00Z","sensor":{"o":true}}}`, http.StatusAccepted, 1},
		{"array frame", `["countPeople",{"timestamp":"2024-05-01T10:00:00Z","sensor":{"count":7}}]`, http.StatusAccepted, 1},
		{"batch", `[{"channel":"countPeople","payload":{"timestamp":"2024-05-01T10:00:02Z","sensor":{"count":8}}},["doorsStatus",{"timestamp":"2024-05-01T10:00:02Z","sensor":{"o":false}}]]`, http.StatusAccepted, 2},
		{"garbage", `not json`, http.StatusBadRequest, 0},
		{"empty", ``, http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/realtime/ingest", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			ingest.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status %d want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if tc.status != http.StatusAccepted {
				return
			}
			var resp struct {
				Accepted int `json:"accepted"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Accepted != tc.accepted {
				t.Fatalf("accepted %d want %d", resp.Accepted, tc.accepted)
			}
		})
	}

	doors, _ := panel.Widget("doors")
	if doors.Status == nil || *doors.Status || doors.Label != "Puertas cerradas" {
		t.Fatalf("unexpected doors state %+v", doors)
	}
	people, _ := panel.Widget("people")
	if people.Count == nil || *people.Count != 8 {
		t.Fatalf("unexpected people state %+v", people)
	}

	rec := httptest.NewRecorder()
	ingest.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime/ingest", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSnapshotRoutes(t *testing.T) {
	hub, panel, _ := newPanel(t)
	h, err := NewHandler(panel)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	r, err := realtime.DecodeReading("countPeople", []byte(`{"timestamp":"2024-05-01T10:00:00Z","sensor":{"count":3}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	hub.Dispatch(r)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime/snapshot", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status %d", rec.Code)
	}
	var snap struct {
		Widgets []realtime.State `json:"widgets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Widgets) != len(realtimeapp.DefaultCatalog().Widgets) {
		t.Fatalf("unexpected widget count %d", len(snap.Widgets))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime/widgets/people", nil))
	var people realtime.State
	if err := json.Unmarshal(rec.Body.Bytes(), &people); err != nil {
		t.Fatalf("decode widget: %v", err)
	}
	if people.Count == nil || *people.Count != 3 {
		t.Fatalf("unexpected people %+v", people)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime/widgets/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if _, err := NewHandler(nil); err == nil {
		t.Fatalf("expected nil panel error")
	}
}

func TestBrokerDropsSlowClients(t *testing.T) {
	broker := NewSSEBroker()
	ch := broker.Subscribe()
	for i := 0; i < 20; i++ {
		broker.Publish(realtime.State{Name: "people"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected buffered updates up to capacity, got %d", len(ch))
	}
	broker.Unsubscribe(ch)
	drained := 0
	for range ch {
		drained++
	}
	if drained != cap(ch) {
		t.Fatalf("expected %d buffered updates, drained %d", cap(ch), drained)
	}
	broker.Publish(realtime.State{Name: "people"})
}

func TestBrokerPublishDuringDisconnects(t *testing.T) {
	broker := NewSSEBroker()
	clients := make([]chan []byte, 500)
	for i := range clients {
		clients[i] = broker.Subscribe()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			broker.Publish(realtime.State{Name: "people"})
		}
	}()
	go func() {
		defer wg.Done()
		for _, ch := range clients {
			broker.Unsubscribe(ch)
			broker.Unsubscribe(ch)
		}
	}()
	wg.Wait()

	for _, ch := range clients {
		for range ch {
		}
	}
	broker.mu.Lock()
	remaining := len(broker.clients)
	broker.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected every client removed, %d left", remaining)
	}
}

func TestStreamSendsSnapshotThenUpdates(t *testing.T) {
	hub, panel, broker := newPanel(t)
	srv := httptest.NewServer(NewStreamHandler(broker, panel))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var events []string
	dispatched := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		event := strings.TrimPrefix(line, "event: ")
		events = append(events, event)
		if event == "snapshot" && !dispatched {
			dispatched = true
			r, err := realtime.DecodeReading("doorsStatus", []byte(`{"timestamp":"2024-05-01T10:00:00Z","sensor":{"o":true}}`))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			hub.Dispatch(r)
		}
		if event == "widget" {
			break
		}
	}
	want := []string{"ready", "snapshot", "widget"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("events %v want %v", events, want)
	}
}

func TestStreamRejectsWrongMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStreamHandler(NewSSEBroker(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/realtime/stream", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	NewStreamHandler(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
