package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2"

	reports "building-monitor/internal/reports/domain"
)

const (
	DefaultWidth  = 1200
	DefaultHeight = 450

	maxTicks = 8
)

// Renderer paints datasets as line charts.
type Renderer struct {
	width  int
	height int
}

func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Renderer{width: width, height: height}
}

// Render paints the dataset into a PNG surface tagged with generation.
func (r *Renderer) Render(ds reports.Dataset, generation uint64) (Surface, error) {
	if err := ds.Validate(); err != nil {
		return Surface{}, err
	}
	if len(ds.Series) == 0 {
		return Surface{}, errors.New("charts: dataset has no series")
	}

	n := len(ds.Labels)
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	// go-chart cannot render a zero-width x range.
	padded := n < 2
	if padded {
		xs = []float64{0, 1}
	}

	minY, maxY := math.MaxFloat64, -math.MaxFloat64
	series := make([]chart.Series, 0, len(ds.Series))
	for i, s := range ds.Series {
		ys := append([]float64(nil), s.Values...)
		for _, v := range ys {
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
		style := chart.Style{
			StrokeColor: chart.GetDefaultColor(i),
			StrokeWidth: 2,
		}
		switch len(ys) {
		case 0:
			ys = []float64{0, 0}
			style.Hidden = true
		case 1:
			ys = []float64{ys[0], ys[0]}
			style.DotColor = style.StrokeColor
			style.DotWidth = 4
		}
		series = append(series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style:   style,
		})
	}
	if minY > maxY {
		minY, maxY = 0, 1
	}
	if maxY <= minY {
		minY, maxY = minY-1, maxY+1
	}

	ch := chart.Chart{
		Title:      ds.Title,
		Width:      r.width,
		Height:     r.height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 28}},
		XAxis: chart.XAxis{
			Ticks: xTicks(ds.Labels, padded),
			Range: &chart.ContinuousRange{Min: xs[0], Max: xs[len(xs)-1]},
		},
		YAxis: chart.YAxis{
			Name:  ds.Unit,
			Range: &chart.ContinuousRange{Min: minY, Max: maxY},
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return Surface{}, fmt.Errorf("charts: render %s: %w", ds.Name, err)
	}
	return Surface{
		Name:       ds.Name,
		Width:      r.width,
		Height:     r.height,
		PNG:        buf.Bytes(),
		Generation: generation,
	}, nil
}

func xTicks(labels []string, padded bool) []chart.Tick {
	if padded {
		label := ""
		if len(labels) == 1 {
			label = labels[0]
		}
		return []chart.Tick{{Value: 0, Label: label}, {Value: 1, Label: ""}}
	}
	step := (len(labels) + maxTicks - 1) / maxTicks
	if step < 1 {
		step = 1
	}
	ticks := make([]chart.Tick, 0, maxTicks+1)
	for i := 0; i < len(labels); i += step {
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: labels[i]})
	}
	return ticks
}
