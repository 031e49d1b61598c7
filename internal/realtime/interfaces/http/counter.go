package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"building-monitor/internal/audit"
	"building-monitor/internal/auth"
	realtimeapp "building-monitor/internal/realtime/application"
	realtime "building-monitor/internal/realtime/domain"
)

// CounterAdjuster overrides the people counter.
type CounterAdjuster interface {
	Adjust(ctx context.Context, values map[string]any) (int, error)
}

// CounterHandler serves POST /api/v1/realtime/people-counter.
type CounterHandler struct {
	adjuster    CounterAdjuster
	auditLogger audit.Logger
}

// NewCounterHandler constructs a counter handler. A nil adjuster answers
// 503 because the configured source cannot carry commands.
func NewCounterHandler(adjuster CounterAdjuster, auditLogger audit.Logger) *CounterHandler {
	return &CounterHandler{adjuster: adjuster, auditLogger: auditLogger}
}

func (h *CounterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.adjuster == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "counter commands unavailable"})
		return
	}
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	n, err := h.adjuster.Adjust(r.Context(), values)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"counter": n})
		h.logAudit(r, strconv.Itoa(n), "success")
	case errors.Is(err, realtime.ErrInvalidCounter):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": realtime.MessageCounterInvalid})
	case errors.Is(err, realtimeapp.ErrCounterUnconfirmed):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "counter update not confirmed"})
		h.logAudit(r, "", "unconfirmed")
	default:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "counter command failed"})
		h.logAudit(r, "", "error")
	}
}

func (h *CounterHandler) logAudit(r *http.Request, counter, result string) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.WithRequest(audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		ActorName:    auth.DisplayNameFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       audit.ActionCounterAdjust,
		ResourceType: "people_counter",
		ResourceID:   counter,
		Result:       result,
	}, r))
}
