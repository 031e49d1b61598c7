package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"building-monitor/internal/audit"
	"building-monitor/internal/auth"
	mdapp "building-monitor/internal/masterdata/application"
	masterdata "building-monitor/internal/masterdata/domain"
)

// Handler serves organization and environment reference data.
type Handler struct {
	service     *mdapp.ReferenceService
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *mdapp.ReferenceService, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("masterdata handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles /api/v1/organization and /api/v1/environments.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/environments":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleEnvironments(w, r)
	case "/api/v1/organization":
		switch r.Method {
		case http.MethodGet:
			h.handleGetOrganization(w, r)
		case http.MethodPut:
			h.handleUpdateOrganization(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "/api/v1/organization/logo":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleLogo(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleEnvironments(w http.ResponseWriter, r *http.Request) {
	envs, err := h.service.Environments(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if envs == nil {
		envs = []masterdata.Environment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"environments": envs})
}

func (h *Handler) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.Organization(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organization": org})
}

func (h *Handler) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	org, err := h.service.UpdateOrganization(r.Context(), values)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organization": org})
	h.logAudit(r, org.ID, values)
}

func (h *Handler) handleLogo(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.Organization(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	data := h.service.Logo(r.Context(), org)
	if len(data) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) logAudit(r *http.Request, orgID string, values map[string]any) {
	if h.auditLogger == nil {
		return
	}
	fields := make([]string, 0, len(values))
	for name := range values {
		fields = append(fields, name)
	}
	payload, _ := json.Marshal(map[string]any{"fields": fields})
	_ = h.auditLogger.Log(r.Context(), audit.WithRequest(audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		ActorName:    auth.DisplayNameFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       audit.ActionOrgUpdate,
		ResourceType: "organization",
		ResourceID:   orgID,
		Result:       "success",
		Metadata:     payload,
	}, r))
}

func respondServiceError(w http.ResponseWriter, err error) {
	var verr *masterdata.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message})
	case errors.Is(err, masterdata.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "backend request failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
