package http

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"building-monitor/internal/audit"
	"building-monitor/internal/auth"
	"building-monitor/internal/observability/metrics"
	reportapp "building-monitor/internal/reports/application"
	reports "building-monitor/internal/reports/domain"
)

const (
	basePath    = "/api/v1/reports"
	historyPath = basePath + "/history"

	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handler exposes the report builders over HTTP.
type Handler struct {
	sessions    *reportapp.Sessions
	auditLogger audit.Logger
	history     audit.Reader
	loc         *time.Location
}

// NewHandler constructs a handler. auditLogger and history may be nil.
func NewHandler(sessions *reportapp.Sessions, auditLogger audit.Logger, history audit.Reader, loc *time.Location) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("reports handler: nil sessions")
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handler{sessions: sessions, auditLogger: auditLogger, history: history, loc: loc}, nil
}

// ServeHTTP handles /api/v1/reports and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == basePath {
		switch r.Method {
		case http.MethodGet:
			h.handleKinds(w)
		case http.MethodDelete:
			h.sessions.Drop(auth.SubjectFromContext(r.Context()))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if path == historyPath && r.Method == http.MethodGet {
		h.handleHistory(w, r)
		return
	}
	if !strings.HasPrefix(path, basePath+"/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	parts := strings.Split(strings.TrimPrefix(path, basePath+"/"), "/")
	kind := reports.Kind(parts[0])
	builder, err := h.sessions.Get(auth.SubjectFromContext(r.Context()), kind)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown report type")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, builder.Snapshot())
	case len(parts) == 2 && parts[1] == "generate" && r.Method == http.MethodPost:
		h.handleGenerate(w, r, builder)
	case len(parts) == 2 && parts[1] == "reset" && r.Method == http.MethodPost:
		builder.Reset()
		w.WriteHeader(http.StatusNoContent)
		h.logAudit(r, kind, audit.ActionReportReset, "", metrics.ResultSuccess, nil)
	case len(parts) == 2 && parts[1] == "export.pdf" && r.Method == http.MethodGet:
		h.handleExportPDF(w, r, builder)
	case len(parts) == 2 && parts[1] == "export.xlsx" && r.Method == http.MethodGet:
		h.handleExportXLSX(w, r, builder)
	case len(parts) == 3 && parts[1] == "charts" && r.Method == http.MethodGet:
		h.handleChart(w, builder, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleKinds(w http.ResponseWriter) {
	type item struct {
		Kind   reports.Kind `json:"kind"`
		Title  string       `json:"title"`
		Charts []string     `json:"charts"`
	}
	kinds := reports.Kinds()
	out := make([]item, 0, len(kinds))
	for _, kind := range kinds {
		def, err := reports.Lookup(kind)
		if err != nil {
			continue
		}
		charts := def.Charts
		if charts == nil {
			charts = []string{}
		}
		out = append(out, item{Kind: kind, Title: def.Title, Charts: charts})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request, builder *reportapp.Builder) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	f := reports.NewQueryForm()
	f.ChangeAll(req)
	q, err := reports.QueryFromForm(f, h.loc)
	if err != nil {
		respondGenerateError(w, err)
		return
	}

	kind := builder.Definition().Kind
	snap, err := builder.Generate(r.Context(), q)
	if err != nil {
		respondGenerateError(w, err)
		if !errors.Is(err, reportapp.ErrStaleResponse) {
			h.logAudit(r, kind, audit.ActionReportGenerate, q.EnvironmentID, metrics.ResultError, map[string]any{
				"fromDate": q.From.Format(reports.QueryTimeLayout),
				"toDate":   q.To.Format(reports.QueryTimeLayout),
			})
		}
		return
	}
	writeJSON(w, http.StatusOK, snap)
	h.logAudit(r, kind, audit.ActionReportGenerate, q.EnvironmentID, metrics.ResultSuccess, map[string]any{
		"runId":    snap.RunID,
		"fromDate": snap.Query.FromDate,
		"toDate":   snap.Query.ToDate,
		"missing":  snap.Missing,
	})
}

func (h *Handler) handleChart(w http.ResponseWriter, builder *reportapp.Builder, file string) {
	name, ok := strings.CutSuffix(file, ".png")
	if !ok || name == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	surface, ok := builder.Surface(name)
	if !ok {
		writeError(w, http.StatusNotFound, reportapp.MessageSurfaceMissing)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Surface-Generation", strconv.FormatUint(surface.Generation, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(surface.PNG)
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request, builder *reportapp.Builder) {
	def := builder.Definition()
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportExport(string(def.Kind), "pdf", result, time.Since(start))
	}()

	operator := auth.DisplayNameFromContext(r.Context())
	if operator == "" {
		operator = auth.SubjectFromContext(r.Context())
	}
	doc, err := builder.ExportPDF(r.Context(), operator)
	if err != nil {
		result = respondExportError(w, err)
		h.logAudit(r, def.Kind, audit.ActionReportExport, "", result, map[string]any{"format": "pdf"})
		return
	}
	writeAttachment(w, contentTypePDF, doc.Name, doc.Bytes)
	h.logAudit(r, def.Kind, audit.ActionReportExport, "", result, map[string]any{
		"format": "pdf",
		"pages":  doc.Pages,
	})
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request, builder *reportapp.Builder) {
	def := builder.Definition()
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportExport(string(def.Kind), "xlsx", result, time.Since(start))
	}()

	data, err := builder.ExportXLSX(r.Context())
	if err != nil {
		result = respondExportError(w, err)
		h.logAudit(r, def.Kind, audit.ActionReportExport, "", result, map[string]any{"format": "xlsx"})
		return
	}
	writeAttachment(w, contentTypeXLSX, def.XLSXFileName(), data)
	h.logAudit(r, def.Kind, audit.ActionReportExport, "", result, map[string]any{"format": "xlsx"})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}
	query := r.URL.Query()
	filter := audit.Filter{
		Action:       query.Get("action"),
		ResourceType: query.Get("resource_type"),
		Actor:        query.Get("actor"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	entries, err := h.history.List(r.Context(), filter)
	if err != nil {
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) logAudit(r *http.Request, kind reports.Kind, action, environmentID, result string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	var payload []byte
	if meta != nil {
		payload, _ = json.Marshal(meta)
	}
	entry := audit.WithRequest(audit.Entry{
		Actor:         auth.SubjectFromContext(r.Context()),
		ActorName:     auth.DisplayNameFromContext(r.Context()),
		Role:          string(auth.RoleFromContext(r.Context())),
		Action:        action,
		ResourceType:  "report",
		ResourceID:    string(kind),
		EnvironmentID: environmentID,
		Result:        result,
		Metadata:      payload,
	}, r)
	_ = h.auditLogger.Log(r.Context(), entry)
}

func respondGenerateError(w http.ResponseWriter, err error) {
	var verr *reports.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, reportapp.ErrStaleResponse):
		writeError(w, http.StatusConflict, "stale response discarded")
	default:
		writeError(w, http.StatusBadGateway, reportapp.MessageGenerateFailed)
	}
}

func respondExportError(w http.ResponseWriter, err error) string {
	switch {
	case errors.Is(err, reportapp.ErrNothingToExport):
		writeError(w, http.StatusConflict, reportapp.MessageNothingToExport)
		return metrics.ResultRefused
	case errors.Is(err, reportapp.ErrSurfaceMissing):
		writeError(w, http.StatusConflict, reportapp.MessageSurfaceMissing)
		return metrics.ResultRefused
	default:
		writeError(w, http.StatusInternalServerError, "export failed")
		return metrics.ResultError
	}
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
