package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"building-monitor/internal/charts"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type stubSurfaces map[string]charts.Surface

func (s stubSurfaces) Collect(names []string) ([]charts.Surface, []string) {
	var found []charts.Surface
	var missing []string
	for _, n := range names {
		if surface, ok := s[n]; ok {
			found = append(found, surface)
		} else {
			missing = append(missing, n)
		}
	}
	return found, missing
}

func surfaces(t *testing.T, names ...string) stubSurfaces {
	data := pngBytes(t, 120, 45)
	out := stubSurfaces{}
	for _, n := range names {
		out[n] = charts.Surface{Name: n, Width: 1200, Height: 450, PNG: data, Generation: 1}
	}
	return out
}

func baseSpec(names ...string) Spec {
	return Spec{
		Name: "Reporte.pdf",
		Header: Header{
			Name:    "Edificio Central",
			Address: "Av. Siempre Viva 742",
			City:    "Córdoba",
			Phone:   "555-1234",
			Email:   "info@example.com",
			Webpage: "example.com",
		},
		Meta: Meta{
			Title:       "Reporte de consumo de energía eléctrica",
			Environment: "Laboratorio",
			From:        time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			To:          time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		},
		Operator:      "Ana Operadora",
		GeneratedAt:   time.Date(2024, 5, 3, 9, 30, 0, 0, time.UTC),
		Charts:        names,
		ImagesPerPage: 2,
	}
}

func TestAssembleTwoImagesPerPage(t *testing.T) {
	names := []string{"power", "voltage", "current", "pf"}
	doc, err := Assemble(baseSpec(names...), surfaces(t, names...))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if doc.Pages != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.Pages)
	}
	if !bytes.HasPrefix(doc.Bytes, []byte("%PDF")) {
		t.Fatalf("expected PDF output")
	}
	for i, footer := range doc.Footers {
		want := fmt.Sprintf("Página %d de 2", i+1)
		if !strings.HasSuffix(footer, want) {
			t.Fatalf("footer %d: expected suffix %q, got %q", i, want, footer)
		}
		if !strings.Contains(footer, "03/05/2024 09:30:00 por Ana Operadora") {
			t.Fatalf("footer %d missing timestamp/operator: %q", i, footer)
		}
	}
	if doc.Name != "Reporte.pdf" {
		t.Fatalf("unexpected name %q", doc.Name)
	}
}

func TestAssembleSixImagesSpansThreePages(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f"}
	doc, err := Assemble(baseSpec(names...), surfaces(t, names...))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if doc.Pages != 3 || len(doc.Footers) != 3 {
		t.Fatalf("expected 3 pages, got %d (%d footers)", doc.Pages, len(doc.Footers))
	}
	if !strings.HasSuffix(doc.Footers[2], "Página 3 de 3") {
		t.Fatalf("unexpected last footer %q", doc.Footers[2])
	}
}

func TestAssembleRefusesMissingSurface(t *testing.T) {
	names := []string{"power", "voltage", "current", "pf"}
	available := surfaces(t, "power", "voltage", "current")
	doc, err := Assemble(baseSpec(names...), available)
	if !errors.Is(err, ErrSurfaceMissing) {
		t.Fatalf("expected ErrSurfaceMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "pf") {
		t.Fatalf("error should name the missing surface: %v", err)
	}
	if doc.Bytes != nil {
		t.Fatalf("no document must be produced")
	}
}

func TestAssembleSectionsAndTable(t *testing.T) {
	spec := baseSpec()
	spec.Sections = []Section{{
		Heading: "Consumos",
		Lines:   []string{"Línea: Iluminación - Consumo total: 1.5 kWh - Consumo promedio por hora: 0.1 kWh"},
	}}
	rows := make([][]string, 80)
	for i := range rows {
		rows[i] = []string{"2024-05-01 09:00", "2024-05-01 10:00", "SI", "1"}
	}
	spec.Table = &Table{Columns: []string{"DESDE", "HASTA", "DETECTADO", "MOVIMIENTOS"}, Rows: rows}
	doc, err := Assemble(spec, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if doc.Pages < 2 {
		t.Fatalf("expected the table to span pages, got %d", doc.Pages)
	}
}

func TestAssembleRejectsRaggedTable(t *testing.T) {
	spec := baseSpec()
	spec.Table = &Table{Columns: []string{"A", "B"}, Rows: [][]string{{"1"}}}
	if _, err := Assemble(spec, nil); err == nil {
		t.Fatalf("expected ragged table error")
	}
}

func TestAssembleShadesFlaggedRows(t *testing.T) {
	spec := baseSpec()
	spec.Table = &Table{
		Columns: []string{"DESDE", "HASTA"},
		Rows:    [][]string{{"09:00", "10:00"}, {"10:00", "11:00"}, {"11:00", "12:00"}},
		Flagged: []bool{false, true, true},
	}
	doc, err := Assemble(spec, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if doc.Highlighted != 2 {
		t.Fatalf("expected 2 shaded rows, got %d", doc.Highlighted)
	}

	spec.Table.Flagged = []bool{true}
	if _, err := Assemble(spec, nil); err == nil {
		t.Fatalf("expected row flag count error")
	}
}

func TestLayoutOverflowStartsNewPage(t *testing.T) {
	l := NewLayout(baseSpec().Header, baseSpec().Meta, WithImagesPerPage(10))
	s := charts.Surface{Name: "x", Width: 1200, Height: 450, PNG: pngBytes(t, 120, 45)}
	for i := 0; i < 3; i++ {
		if err := l.PlaceImage(s); err != nil {
			t.Fatalf("place: %v", err)
		}
	}
	doc, err := l.Finish("x.pdf", "op", time.Now())
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if doc.Pages != 2 {
		t.Fatalf("expected overflow onto a second page, got %d", doc.Pages)
	}
}

func TestLogoIsOptional(t *testing.T) {
	for name, logo := range map[string][]byte{
		"valid":   pngBytes(t, 40, 30),
		"garbage": []byte("not an image"),
		"none":    nil,
	} {
		spec := baseSpec()
		spec.Header.Logo = logo
		doc, err := Assemble(spec, nil)
		if err != nil {
			t.Fatalf("%s: assemble: %v", name, err)
		}
		if doc.Pages != 1 {
			t.Fatalf("%s: expected 1 page, got %d", name, doc.Pages)
		}
	}
}
