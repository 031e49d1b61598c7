package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"building-monitor/internal/observability/metrics"
	realtimeapp "building-monitor/internal/realtime/application"
	realtime "building-monitor/internal/realtime/domain"
)

const maxIngestBody = 1 << 20

// Handler serves widget snapshots.
type Handler struct {
	panel *realtimeapp.Panel
}

// NewHandler constructs a snapshot handler.
func NewHandler(panel *realtimeapp.Panel) (*Handler, error) {
	if panel == nil {
		return nil, errors.New("realtime handler: nil panel")
	}
	return &Handler{panel: panel}, nil
}

// ServeHTTP handles /api/v1/realtime/snapshot and /api/v1/realtime/widgets/{name}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Path
	switch {
	case path == "/api/v1/realtime/snapshot":
		writeJSON(w, http.StatusOK, map[string]any{"widgets": h.panel.Snapshot()})
	case strings.HasPrefix(path, "/api/v1/realtime/widgets/"):
		name := strings.TrimPrefix(path, "/api/v1/realtime/widgets/")
		state, ok := h.panel.Widget(name)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, state)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Dispatcher accepts decoded readings.
type Dispatcher interface {
	Dispatch(r realtime.Reading)
}

// IngestHandler accepts readings pushed by sensor gateways over HTTP.
type IngestHandler struct {
	hub    Dispatcher
	logger *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(hub Dispatcher, logger *log.Logger) (*IngestHandler, error) {
	if hub == nil {
		return nil, errors.New("realtime ingest: nil hub")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{hub: hub, logger: logger}, nil
}

// ServeHTTP handles POST /api/v1/realtime/ingest. The body is one frame or
// an array of frames.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("realtime ingest: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	readings, err := decodeBatch(body)
	if err != nil {
		result = metrics.ResultInvalid
		h.logger.Printf("realtime ingest: invalid payload: %v", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	for _, reading := range readings {
		h.hub.Dispatch(reading)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(readings)})
}

func decodeBatch(body []byte) ([]realtime.Reading, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, realtime.ErrInvalidFrame
	}
	if body[0] != '[' {
		r, err := realtime.DecodeFrame(body)
		if err != nil {
			return nil, err
		}
		return []realtime.Reading{r}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, realtime.ErrInvalidFrame
	}
	if len(items) > 0 && bytes.HasPrefix(bytes.TrimSpace(items[0]), []byte(`"`)) {
		r, err := realtime.DecodeFrame(body)
		if err != nil {
			return nil, err
		}
		return []realtime.Reading{r}, nil
	}
	out := make([]realtime.Reading, 0, len(items))
	for _, item := range items {
		r, err := realtime.DecodeFrame(item)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
