package document

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"building-monitor/internal/charts"
)

// ErrSurfaceMissing indicates a required chart surface is absent or stale.
var ErrSurfaceMissing = errors.New("document: required chart surface missing")

// SurfaceSource yields the surfaces to embed.
type SurfaceSource interface {
	Collect(names []string) ([]charts.Surface, []string)
}

// Section is a block of text printed before the charts.
type Section struct {
	Heading string
	Lines   []string
}

// Table is a bordered table printed after the charts.
type Table struct {
	Columns []string
	Rows    [][]string
	Flagged []bool
}

// Spec describes one document to assemble.
type Spec struct {
	Name          string
	Header        Header
	Meta          Meta
	Operator      string
	GeneratedAt   time.Time
	Charts        []string
	ImagesPerPage int
	Sections      []Section
	Table         *Table
}

// Assemble lays out the sections, the chart surfaces in order and the table.
// It refuses to produce a document when any required surface is missing.
func Assemble(spec Spec, surfaces SurfaceSource) (Document, error) {
	var found []charts.Surface
	if len(spec.Charts) > 0 {
		if surfaces == nil {
			return Document{}, fmt.Errorf("%w: %s", ErrSurfaceMissing, strings.Join(spec.Charts, ", "))
		}
		var missing []string
		found, missing = surfaces.Collect(spec.Charts)
		if len(missing) > 0 {
			return Document{}, fmt.Errorf("%w: %s", ErrSurfaceMissing, strings.Join(missing, ", "))
		}
	}
	if spec.GeneratedAt.IsZero() {
		spec.GeneratedAt = time.Now()
	}

	l := NewLayout(spec.Header, spec.Meta, WithImagesPerPage(spec.ImagesPerPage))
	for _, section := range spec.Sections {
		l.Text(section.Heading, section.Lines...)
	}
	for _, s := range found {
		if err := l.PlaceImage(s); err != nil {
			return Document{}, err
		}
	}
	if spec.Table != nil {
		if err := l.Table(spec.Table.Columns, spec.Table.Rows, spec.Table.Flagged); err != nil {
			return Document{}, err
		}
	}
	return l.Finish(spec.Name, spec.Operator, spec.GeneratedAt)
}
