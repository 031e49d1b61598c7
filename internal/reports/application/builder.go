package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"building-monitor/internal/charts"
	"building-monitor/internal/document"
	masterdata "building-monitor/internal/masterdata/domain"
	"building-monitor/internal/observability/metrics"
	reports "building-monitor/internal/reports/domain"
)

// User-facing messages.
const (
	MessageGenerateFailed  = "¡Ocurrió un error al generar el reporte!"
	MessageNothingToExport = "¡No hay datos para exportar!"
	MessageSurfaceMissing  = "¡Los gráficos del reporte no están disponibles, vuelva a generarlo!"
)

var (
	// ErrStaleResponse indicates a response superseded by a newer generate or a reset.
	ErrStaleResponse = errors.New("reports: stale response discarded")
	// ErrRequestFailed indicates the aggregation request failed.
	ErrRequestFailed = errors.New("reports: aggregation request failed")
	// ErrMalformedResponse indicates a payload that could not be mapped.
	ErrMalformedResponse = errors.New("reports: malformed aggregation response")
	// ErrNothingToExport indicates export before a successful generate.
	ErrNothingToExport = errors.New("reports: nothing to export")
	// ErrSurfaceMissing indicates a required chart surface is absent or stale.
	ErrSurfaceMissing = document.ErrSurfaceMissing
)

// Fetcher issues the aggregation request.
type Fetcher interface {
	FetchAggregation(ctx context.Context, path string, q reports.Query) ([]byte, error)
}

// ChartRenderer paints a dataset into a surface.
type ChartRenderer interface {
	Render(ds reports.Dataset, generation uint64) (charts.Surface, error)
}

// ReferenceData supplies the document header and environment names.
type ReferenceData interface {
	Organization(ctx context.Context) (masterdata.Organization, error)
	Logo(ctx context.Context, org masterdata.Organization) []byte
	Environment(ctx context.Context, id string) (masterdata.Environment, error)
}

// Snapshot is a copy of the builder state.
type Snapshot struct {
	Kind        reports.Kind    `json:"kind"`
	Title       string          `json:"title"`
	RunID       string          `json:"runId,omitempty"`
	Query       *QueryView      `json:"query,omitempty"`
	Result      *reports.Result `json:"result,omitempty"`
	GeneratedAt *time.Time      `json:"generatedAt,omitempty"`
	Charts      []string        `json:"charts"`
	Missing     []string        `json:"missingCharts,omitempty"`
}

// QueryView is the wire form of a query.
type QueryView struct {
	Environment string `json:"environment"`
	FromDate    string `json:"fromDate"`
	ToDate      string `json:"toDate"`
}

func viewOf(q reports.Query) *QueryView {
	return &QueryView{
		Environment: q.EnvironmentID,
		FromDate:    q.From.Format(reports.QueryTimeLayout),
		ToDate:      q.To.Format(reports.QueryTimeLayout),
	}
}

// Builder owns the generate/export state of one report type for one operator.
type Builder struct {
	def      reports.Definition
	fetcher  Fetcher
	renderer ChartRenderer
	surfaces *charts.SurfaceRegistry
	refs     ReferenceData
	logger   *log.Logger
	now      func() time.Time

	mu          sync.Mutex
	token       uint64
	query       *reports.Query
	result      *reports.Result
	runID       string
	generatedAt time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithReferenceData sets the organization and environment source.
func WithReferenceData(refs ReferenceData) BuilderOption {
	return func(b *Builder) {
		b.refs = refs
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder constructs a builder for one report definition.
func NewBuilder(def reports.Definition, fetcher Fetcher, renderer ChartRenderer, opts ...BuilderOption) (*Builder, error) {
	if def.Map == nil || def.Path == "" {
		return nil, errors.New("report builder: incomplete definition")
	}
	if fetcher == nil {
		return nil, errors.New("report builder: nil fetcher")
	}
	if renderer == nil {
		return nil, errors.New("report builder: nil renderer")
	}
	b := &Builder{
		def:      def,
		fetcher:  fetcher,
		renderer: renderer,
		surfaces: charts.NewSurfaceRegistry(),
		logger:   log.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Definition returns the report definition.
func (b *Builder) Definition() reports.Definition {
	return b.def
}

// Generate validates q, issues exactly one aggregation request and, when the
// response is still current, replaces the results and renders every chart.
// Failures leave the previous results untouched.
func (b *Builder) Generate(ctx context.Context, q reports.Query) (Snapshot, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportGenerate(string(b.def.Kind), result, time.Since(start))
	}()

	if err := q.Validate(); err != nil {
		result = metrics.ResultInvalid
		return Snapshot{}, err
	}

	b.mu.Lock()
	b.token++
	token := b.token
	b.mu.Unlock()

	payload, fetchErr := b.fetcher.FetchAggregation(ctx, b.def.Path, q)

	b.mu.Lock()
	defer b.mu.Unlock()
	if token != b.token {
		result = metrics.ResultStale
		return Snapshot{}, ErrStaleResponse
	}
	if fetchErr != nil {
		result = metrics.ResultError
		b.logger.Printf("reports: %s fetch failed: %v", b.def.Kind, fetchErr)
		return Snapshot{}, fmt.Errorf("%w: %w", ErrRequestFailed, fetchErr)
	}
	mapped, err := b.def.Map(payload)
	if err != nil {
		result = metrics.ResultError
		b.logger.Printf("reports: %s mapping failed: %v", b.def.Kind, err)
		return Snapshot{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	query := q
	b.query = &query
	b.result = &mapped
	b.runID = uuid.NewString()
	b.generatedAt = b.now()

	generation := b.surfaces.Advance()
	for _, ds := range mapped.Datasets {
		surface, err := b.renderer.Render(ds, generation)
		if err != nil {
			metrics.IncChartRender(metrics.ResultError)
			b.logger.Printf("reports: %s render %s failed: %v", b.def.Kind, ds.Name, err)
			continue
		}
		if err := b.surfaces.Register(surface); err != nil {
			metrics.IncChartRender(metrics.ResultError)
			b.logger.Printf("reports: %s register %s failed: %v", b.def.Kind, ds.Name, err)
			continue
		}
		metrics.IncChartRender(metrics.ResultSuccess)
	}
	return b.snapshotLocked(), nil
}

// Reset clears the query, results and surfaces and invalidates any
// in-flight request. Calling it repeatedly is harmless.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token++
	b.query = nil
	b.result = nil
	b.runID = ""
	b.generatedAt = time.Time{}
	b.surfaces.Invalidate()
}

// Snapshot returns a copy of the current state.
func (b *Builder) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Builder) snapshotLocked() Snapshot {
	s := Snapshot{Kind: b.def.Kind, Title: b.def.Title, RunID: b.runID, Charts: []string{}}
	if b.query != nil {
		s.Query = viewOf(*b.query)
	}
	if b.result != nil {
		res := b.result.Clone()
		s.Result = &res
		at := b.generatedAt
		s.GeneratedAt = &at
		names := make([]string, 0, len(res.Datasets))
		for _, ds := range res.Datasets {
			names = append(names, ds.Name)
		}
		found, missing := b.surfaces.Collect(names)
		for _, surface := range found {
			s.Charts = append(s.Charts, surface.Name)
		}
		s.Missing = missing
	}
	return s
}

// Surface returns a current chart surface.
func (b *Builder) Surface(name string) (charts.Surface, bool) {
	return b.surfaces.Lookup(name)
}

// exportState is the state of one generate run, copied for export.
type exportState struct {
	query    reports.Query
	result   reports.Result
	runID    string
	surfaces charts.SurfaceSet
}

// exportable copies the query, results and chart surfaces of the current
// run in one critical section, refusing when there is nothing to export.
func (b *Builder) exportable() (exportState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result == nil || b.query == nil || !hasData(*b.result) {
		return exportState{}, ErrNothingToExport
	}
	found, _ := b.surfaces.Collect(b.def.Charts)
	return exportState{
		query:    *b.query,
		result:   b.result.Clone(),
		runID:    b.runID,
		surfaces: charts.SurfaceSet(found),
	}, nil
}

func hasData(res reports.Result) bool {
	if res.Table != nil && len(res.Table.Rows) > 0 {
		return true
	}
	for _, ds := range res.Datasets {
		if len(ds.Labels) > 0 {
			return true
		}
	}
	return false
}

// ExportPDF assembles the report document. It refuses when no generate has
// succeeded or when any required chart surface is missing.
func (b *Builder) ExportPDF(ctx context.Context, operator string) (document.Document, error) {
	spec, surfaces, err := b.pdfSpec(ctx, operator)
	if err != nil {
		return document.Document{}, err
	}
	return document.Assemble(spec, surfaces)
}

// pdfSpec describes the document of the current run. The surfaces belong to
// the same run as the header metadata even if a generate completes while
// reference data is looked up.
func (b *Builder) pdfSpec(ctx context.Context, operator string) (document.Spec, charts.SurfaceSet, error) {
	st, err := b.exportable()
	if err != nil {
		return document.Spec{}, nil, err
	}

	header, envName := b.headerFor(ctx, st.query)
	spec := document.Spec{
		Name:   b.def.FileName,
		Header: header,
		Meta: document.Meta{
			Title:       b.def.Title,
			Environment: envName,
			From:        st.query.From,
			To:          st.query.To,
		},
		Operator:      operator,
		GeneratedAt:   b.now(),
		Charts:        b.def.Charts,
		ImagesPerPage: b.def.ImagesPerPage,
		Sections:      summarySections(st.result),
	}
	if st.result.Table != nil {
		spec.Table = &document.Table{Columns: st.result.Table.Columns, Rows: st.result.Table.Rows, Flagged: st.result.Table.Flagged}
	}
	return spec, st.surfaces, nil
}

// ExportXLSX writes the datasets as a workbook.
func (b *Builder) ExportXLSX(ctx context.Context) ([]byte, error) {
	st, err := b.exportable()
	if err != nil {
		return nil, err
	}
	_, envName := b.headerFor(ctx, st.query)
	return BuildWorkbook(b.def, st.query, envName, st.runID, st.result)
}

func (b *Builder) headerFor(ctx context.Context, q reports.Query) (document.Header, string) {
	envName := q.EnvironmentID
	if b.refs == nil {
		return document.Header{}, envName
	}
	var header document.Header
	org, err := b.refs.Organization(ctx)
	if err != nil {
		b.logger.Printf("reports: organization lookup failed: %v", err)
	} else {
		header = document.Header{
			Name:    org.Name,
			Address: org.Address,
			City:    org.CityName,
			Phone:   org.Phone,
			Email:   org.Email,
			Webpage: org.Webpage,
			Logo:    b.refs.Logo(ctx, org),
		}
	}
	if env, err := b.refs.Environment(ctx, q.EnvironmentID); err == nil {
		envName = env.Name
	}
	return header, envName
}

func summarySections(res reports.Result) []document.Section {
	var sections []document.Section
	if len(res.Summary) > 0 {
		lines := make([]string, 0, len(res.Summary)+1)
		for _, s := range res.Summary {
			lines = append(lines, fmt.Sprintf("Línea: %s - Consumo total: %.2f kWh - Consumo promedio por hora: %.2f kWh",
				s.Title, s.Total, s.Hourly))
		}
		if res.Lapse != "" {
			lines = append(lines, "Lapso de tiempo: "+res.Lapse)
		}
		sections = append(sections, document.Section{Heading: "Consumos", Lines: lines})
	}
	return sections
}
