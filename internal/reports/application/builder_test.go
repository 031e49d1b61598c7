package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"building-monitor/internal/charts"
	"building-monitor/internal/document"
	masterdata "building-monitor/internal/masterdata/domain"
	reports "building-monitor/internal/reports/domain"
)

type fetchFunc func(ctx context.Context, path string, q reports.Query) ([]byte, error)

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	fn    fetchFunc
}

func (s *stubFetcher) FetchAggregation(ctx context.Context, path string, q reports.Query) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	fn := s.fn
	s.mu.Unlock()
	return fn(ctx, path, q)
}

func (s *stubFetcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubRenderer struct {
	png  []byte
	fail map[string]bool
}

func newStubRenderer(t *testing.T) *stubRenderer {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 120, 45))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &stubRenderer{png: buf.Bytes(), fail: map[string]bool{}}
}

func (r *stubRenderer) Render(ds reports.Dataset, generation uint64) (charts.Surface, error) {
	if r.fail[ds.Name] {
		return charts.Surface{}, errors.New("render failed")
	}
	return charts.Surface{Name: ds.Name, Width: 1200, Height: 450, PNG: r.png, Generation: generation}, nil
}

type stubRefs struct{}

func (stubRefs) Organization(ctx context.Context) (masterdata.Organization, error) {
	return masterdata.Organization{ID: "o1", Name: "Edificio Central", Address: "Calle 1", CityName: "Córdoba"}, nil
}

func (stubRefs) Logo(ctx context.Context, org masterdata.Organization) []byte { return nil }

func (stubRefs) Environment(ctx context.Context, id string) (masterdata.Environment, error) {
	return masterdata.Environment{ID: id, Name: "Laboratorio"}, nil
}

func energyPayload(t *testing.T, buckets int) []byte {
	t.Helper()
	labels := make([]string, buckets)
	values := make([]float64, buckets)
	for i := range labels {
		labels[i] = fmt.Sprintf("%02d:00", i)
		values[i] = float64(i)
	}
	payload := map[string]any{"labels": labels, "totalEnergyConsumptionAC": 3.2, "hourlyEnergyConsumptionAC": 0.13}
	for _, metric := range []string{"Voltage", "Current", "Power", "Pf"} {
		for _, line := range []string{"AC", "Devices", "Lighting"} {
			payload["averaged"+metric+"Data"+line] = values
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func validQuery(env string) reports.Query {
	return reports.Query{
		EnvironmentID: env,
		From:          time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		To:            time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
}

func newTestBuilder(t *testing.T, fetcher Fetcher, renderer ChartRenderer) *Builder {
	t.Helper()
	def, err := reports.Lookup(reports.KindEnergyConsumption)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	b, err := NewBuilder(def, fetcher, renderer,
		WithReferenceData(stubRefs{}),
		WithLogger(log.New(io.Discard, "", 0)),
		WithClock(func() time.Time { return time.Date(2024, 5, 3, 9, 30, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	return b
}

func TestGenerateValidationIssuesNoRequest(t *testing.T) {
	fetcher := &stubFetcher{fn: func(context.Context, string, reports.Query) ([]byte, error) {
		t.Fatalf("fetch must not be called")
		return nil, nil
	}}
	b := newTestBuilder(t, fetcher, newStubRenderer(t))

	q := validQuery("lab")
	q.From, q.To = q.To, q.From
	_, err := b.Generate(context.Background(), q)
	var verr *reports.ValidationError
	if !errors.As(err, &verr) || verr.Message != reports.MessageInvertedRange {
		t.Fatalf("expected inverted range error, got %v", err)
	}
	_, err = b.Generate(context.Background(), reports.Query{})
	if !errors.As(err, &verr) || verr.Message != reports.MessageRequired {
		t.Fatalf("expected required error, got %v", err)
	}
	if fetcher.Calls() != 0 {
		t.Fatalf("expected no fetch, got %d", fetcher.Calls())
	}
	if b.Snapshot().Result != nil {
		t.Fatalf("validation failure must not change state")
	}
}

func TestGenerateTwentyFourBucketsRendersEveryChart(t *testing.T) {
	payload := energyPayload(t, 24)
	fetcher := &stubFetcher{fn: func(_ context.Context, path string, q reports.Query) ([]byte, error) {
		if path != "/reports/energy-consumption/resume/" {
			t.Fatalf("unexpected path %s", path)
		}
		return payload, nil
	}}
	b := newTestBuilder(t, fetcher, newStubRenderer(t))

	snap, err := b.Generate(context.Background(), validQuery("lab"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if fetcher.Calls() != 1 {
		t.Fatalf("expected exactly one fetch, got %d", fetcher.Calls())
	}
	for _, ds := range snap.Result.Datasets {
		if len(ds.Labels) != 24 {
			t.Fatalf("%s: expected 24 labels, got %d", ds.Name, len(ds.Labels))
		}
		for _, s := range ds.Series {
			if len(s.Values) != 24 {
				t.Fatalf("%s/%s: expected 24 values", ds.Name, s.Name)
			}
		}
	}
	if strings.Join(snap.Charts, ",") != "power,voltage,current,pf" || len(snap.Missing) != 0 {
		t.Fatalf("unexpected charts %v missing %v", snap.Charts, snap.Missing)
	}
	if snap.RunID == "" || snap.Query.FromDate != "2024-05-01 00:00:00" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	doc, err := b.ExportPDF(context.Background(), "Ana")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if doc.Name != "Reporte de consumo energético.pdf" || doc.Pages < 2 {
		t.Fatalf("unexpected document %s pages=%d", doc.Name, doc.Pages)
	}
	last := doc.Footers[len(doc.Footers)-1]
	if !strings.HasSuffix(last, fmt.Sprintf("Página %d de %d", doc.Pages, doc.Pages)) {
		t.Fatalf("unexpected footer %q", last)
	}

	xlsx, err := b.ExportXLSX(context.Background())
	if err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	if !bytes.HasPrefix(xlsx, []byte("PK")) {
		t.Fatalf("expected zip container")
	}
}

func TestGenerateFailureKeepsPreviousResults(t *testing.T) {
	payload := energyPayload(t, 3)
	fail := errors.New("connection refused")
	var mode string
	fetcher := &stubFetcher{fn: func(context.Context, string, reports.Query) ([]byte, error) {
		switch mode {
		case "error":
			return nil, fail
		case "malformed":
			return []byte(`{"labels":["a"],"averagedPowerDataAC":[1,2]}`), nil
		}
		return payload, nil
	}}
	b := newTestBuilder(t, fetcher, newStubRenderer(t))
	if _, err := b.Generate(context.Background(), validQuery("lab")); err != nil {
		t.Fatalf("generate: %v", err)
	}
	before := b.Snapshot()

	mode = "error"
	_, err := b.Generate(context.Background(), validQuery("other"))
	if !errors.Is(err, ErrRequestFailed) || !errors.Is(err, fail) {
		t.Fatalf("expected wrapped request failure, got %v", err)
	}
	mode = "malformed"
	_, err = b.Generate(context.Background(), validQuery("other"))
	if !errors.Is(err, ErrMalformedResponse) || !errors.Is(err, reports.ErrShapeMismatch) {
		t.Fatalf("expected malformed response, got %v", err)
	}

	after := b.Snapshot()
	if after.RunID != before.RunID || after.Query.Environment != "lab" {
		t.Fatalf("previous results must be kept, got %+v", after.Query)
	}
	if _, ok := b.Surface("power"); !ok {
		t.Fatalf("previous surfaces must be kept")
	}
}

func TestResetDiscardsInFlightResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	payload := energyPayload(t, 2)
	fetcher := &stubFetcher{fn: func(context.Context, string, reports.Query) ([]byte, error) {
		close(started)
		<-release
		return payload, nil
	}}
	b := newTestBuilder(t, fetcher, newStubRenderer(t))

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Generate(context.Background(), validQuery("lab"))
		errCh <- err
	}()
	<-started
	b.Reset()
	close(release)

	if err := <-errCh; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected stale response, got %v", err)
	}
	if snap := b.Snapshot(); snap.Result != nil || snap.Query != nil {
		t.Fatalf("stale response must not populate state")
	}
}

func TestNewerGenerateWins(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	payload := energyPayload(t, 2)
	fetcher := &stubFetcher{fn: func(_ context.Context, _ string, q reports.Query) ([]byte, error) {
		if q.EnvironmentID == "slow" {
			started <- struct{}{}
			<-release
		}
		return payload, nil
	}}
	b := newTestBuilder(t, fetcher, newStubRenderer(t))

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Generate(context.Background(), validQuery("slow"))
		errCh <- err
	}()
	<-started
	if _, err := b.Generate(context.Background(), validQuery("fast")); err != nil {
		t.Fatalf("generate fast: %v", err)
	}
	close(release)
	if err := <-errCh; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected stale response for older request, got %v", err)
	}
	if env := b.Snapshot().Query.Environment; env != "fast" {
		t.Fatalf("expected latest query to win, got %s", env)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	payload := energyPayload(t, 2)
	b := newTestBuilder(t, &stubFetcher{fn: func(context.Context, string, reports.Query) ([]byte, error) {
		return payload, nil
	}}, newStubRenderer(t))
	if _, err := b.Generate(context.Background(), validQuery("lab")); err != nil {
		t.Fatalf("generate: %v", err)
	}
	b.Reset()
	first := b.Snapshot()
	b.Reset()
	second := b.Snapshot()
	if first.Result != nil || second.Result != nil || first.Query != nil || second.Query != nil {
		t.Fatalf("reset must clear state")
	}
	if _, ok := b.Surface("power"); ok {
		t.Fatalf("reset must drop surfaces")
	}
	if _, err := b.ExportPDF(context.Background(), "Ana"); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("expected nothing to export after reset, got %v", err)
	}
}

func TestExportRefusedWhenSurfaceMissing(t *testing.T) {
	payload := energyPayload(t, 4)
	renderer := newStubRenderer(t)
	renderer.fail["pf"] = true
	b := newTestBuilder(t, &stubFetcher{fn: func(context.Context, string, reports.Query) ([]byte, error) {
		return payload, nil
	}}, renderer)

	snap, err := b.Generate(context.Background(), validQuery("lab"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(snap.Missing) != 1 || snap.Missing[0] != "pf" {
		t.Fatalf("expected pf to be missing, got %v", snap.Missing)
	}
	doc, err := b.ExportPDF(context.Background(), "Ana")
	if !errors.Is(err, ErrSurfaceMissing) {
		t.Fatalf("expected surface missing refusal, got %v", err)
	}
	if doc.Bytes != nil {
		t.Fatalf("no document must be produced")
	}
}

func TestExportWithoutDataIsRefused(t *testing.T) {
	b := newTestBuilder(t, &stubFetcher{fn: func(context.Context, string, reports.Query) ([]byte, error) {
		return energyPayload(t, 0), nil
	}}, newStubRenderer(t))
	if _, err := b.ExportXLSX(context.Background()); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("expected nothing to export before generate, got %v", err)
	}
	if _, err := b.Generate(context.Background(), validQuery("lab")); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := b.ExportPDF(context.Background(), "Ana"); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("expected nothing to export for empty result, got %v", err)
	}
}

func TestSessionsKeyBySubjectAndKind(t *testing.T) {
	renderer := newStubRenderer(t)
	fetcher := &stubFetcher{fn: func(context.Context, string, reports.Query) ([]byte, error) { return nil, nil }}
	sessions, err := NewSessions(func(def reports.Definition) (*Builder, error) {
		return NewBuilder(def, fetcher, renderer)
	})
	if err != nil {
		t.Fatalf("new sessions: %v", err)
	}
	a1, _ := sessions.Get("ana", reports.KindAirQuality)
	a2, _ := sessions.Get("ana", reports.KindAirQuality)
	b1, _ := sessions.Get("bob", reports.KindAirQuality)
	a3, _ := sessions.Get("ana", reports.KindEnergyWaste)
	if a1 != a2 {
		t.Fatalf("same subject and kind must share a builder")
	}
	if a1 == b1 || a1 == a3 {
		t.Fatalf("builders must be isolated per subject and kind")
	}
	if _, err := sessions.Get("ana", "bogus"); !errors.Is(err, reports.ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
	sessions.Drop("ana")
	a4, _ := sessions.Get("ana", reports.KindAirQuality)
	if a4 == a1 {
		t.Fatalf("drop must forget builders")
	}
}

type blockingRefs struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingRefs) Organization(ctx context.Context) (masterdata.Organization, error) {
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return masterdata.Organization{ID: "o1", Name: "Edificio Central"}, nil
}

func (r *blockingRefs) Logo(ctx context.Context, org masterdata.Organization) []byte { return nil }

func (r *blockingRefs) Environment(ctx context.Context, id string) (masterdata.Environment, error) {
	return masterdata.Environment{ID: id, Name: "Ambiente " + id}, nil
}

func TestExportKeepsChartsOfTheExportedRun(t *testing.T) {
	fetcher := &stubFetcher{fn: func(ctx context.Context, path string, q reports.Query) ([]byte, error) {
		return energyPayload(t, 24), nil
	}}
	def, err := reports.Lookup(reports.KindEnergyConsumption)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	refs := &blockingRefs{entered: make(chan struct{}), release: make(chan struct{})}
	b, err := NewBuilder(def, fetcher, newStubRenderer(t), WithReferenceData(refs), WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	if _, err := b.Generate(context.Background(), validQuery("E1")); err != nil {
		t.Fatalf("generate E1: %v", err)
	}
	first, ok := b.Surface(def.Charts[0])
	if !ok {
		t.Fatalf("missing surface after first generate")
	}

	type built struct {
		spec     document.Spec
		surfaces charts.SurfaceSet
		err      error
	}
	done := make(chan built, 1)
	go func() {
		spec, surfaces, err := b.pdfSpec(context.Background(), "ana")
		done <- built{spec, surfaces, err}
	}()

	<-refs.entered
	if _, err := b.Generate(context.Background(), validQuery("E2")); err != nil {
		t.Fatalf("generate E2: %v", err)
	}
	close(refs.release)
	got := <-done
	if got.err != nil {
		t.Fatalf("pdf spec: %v", got.err)
	}
	if got.spec.Meta.Environment != "Ambiente E1" {
		t.Fatalf("expected E1 metadata, got %q", got.spec.Meta.Environment)
	}
	if len(got.surfaces) != len(def.Charts) {
		t.Fatalf("expected %d surfaces, got %d", len(def.Charts), len(got.surfaces))
	}
	for _, s := range got.surfaces {
		if s.Generation != first.Generation {
			t.Fatalf("surface %s from generation %d, want %d", s.Name, s.Generation, first.Generation)
		}
	}
	if _, err := document.Assemble(got.spec, got.surfaces); err != nil {
		t.Fatalf("assemble: %v", err)
	}
}
