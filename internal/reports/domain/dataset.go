package reports

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch indicates a series not aligned with its labels.
var ErrShapeMismatch = errors.New("reports: series length does not match labels")

// Series is one named numeric line aligned with the dataset labels.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Dataset is one chart-ready reshape of an aggregation response.
type Dataset struct {
	Name   string   `json:"name"`
	Title  string   `json:"title"`
	Unit   string   `json:"unit,omitempty"`
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
}

// Validate enforces index alignment between labels and every series.
func (d Dataset) Validate() error {
	if d.Name == "" {
		return errors.New("reports: dataset without name")
	}
	for _, s := range d.Series {
		if len(s.Values) != len(d.Labels) {
			return fmt.Errorf("%w: dataset %s series %q has %d values for %d labels",
				ErrShapeMismatch, d.Name, s.Name, len(s.Values), len(d.Labels))
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d Dataset) Clone() Dataset {
	out := d
	out.Labels = append([]string(nil), d.Labels...)
	out.Series = make([]Series, len(d.Series))
	for i, s := range d.Series {
		out.Series[i] = Series{Name: s.Name, Values: append([]float64(nil), s.Values...)}
	}
	return out
}

// SummaryLine is a per-line consumption figure printed above the charts.
type SummaryLine struct {
	Title  string  `json:"title"`
	Total  float64 `json:"total"`
	Hourly float64 `json:"hourly"`
}

// Table is a tabular section of a report.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	// Flagged marks rows with a warning; nil or one entry per row.
	Flagged []bool `json:"flagged,omitempty"`
}

// Result is the full reshape of one aggregation response.
type Result struct {
	Datasets []Dataset     `json:"datasets"`
	Summary  []SummaryLine `json:"summary,omitempty"`
	Lapse    string        `json:"lapse,omitempty"`
	Table    *Table        `json:"table,omitempty"`
}

// Validate validates every dataset.
func (r Result) Validate() error {
	for _, d := range r.Datasets {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	if r.Table != nil {
		for i, row := range r.Table.Rows {
			if len(row) != len(r.Table.Columns) {
				return fmt.Errorf("%w: table row %d has %d cells for %d columns",
					ErrShapeMismatch, i, len(row), len(r.Table.Columns))
			}
		}
		if r.Table.Flagged != nil && len(r.Table.Flagged) != len(r.Table.Rows) {
			return fmt.Errorf("%w: %d row flags for %d rows", ErrShapeMismatch, len(r.Table.Flagged), len(r.Table.Rows))
		}
	}
	return nil
}

// Dataset returns the dataset with the given name.
func (r Result) Dataset(name string) (Dataset, bool) {
	for _, d := range r.Datasets {
		if d.Name == name {
			return d, true
		}
	}
	return Dataset{}, false
}

// Clone returns a deep copy.
func (r Result) Clone() Result {
	out := Result{Lapse: r.Lapse}
	for _, d := range r.Datasets {
		out.Datasets = append(out.Datasets, d.Clone())
	}
	out.Summary = append([]SummaryLine(nil), r.Summary...)
	if r.Table != nil {
		t := &Table{Columns: append([]string(nil), r.Table.Columns...), Flagged: append([]bool(nil), r.Table.Flagged...)}
		for _, row := range r.Table.Rows {
			t.Rows = append(t.Rows, append([]string(nil), row...))
		}
		out.Table = t
	}
	return out
}
