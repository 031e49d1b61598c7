package document

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jung-kurt/gofpdf"

	"building-monitor/internal/charts"
)

const (
	margin       = 20.0
	ruleY        = 45.0
	titleY       = 60.0
	bodyTop      = 105.0
	bottomMargin = 20.0
	footerOffset = 10.0
	lineHeight   = 6.0

	defaultImagesPerPage = 2
	defaultGap           = 10.0

	timeLayout = "02/01/2006 15:04:05"

	// warning row shade, light red
	warnR, warnG, warnB = 241, 210, 210
)

// Header is the organization identity printed on every page.
type Header struct {
	Name    string
	Address string
	City    string
	Phone   string
	Email   string
	Webpage string
	// Logo is optional PNG, JPEG or GIF data.
	Logo []byte
}

// Meta is the query metadata printed below the title.
type Meta struct {
	Title       string
	Environment string
	From        time.Time
	To          time.Time
}

// Document is an assembled PDF.
type Document struct {
	Name        string
	Pages       int
	Footers     []string
	Highlighted int
	Bytes       []byte
}

// Option configures a Layout.
type Option func(*Layout)

// WithImagesPerPage caps the number of images on one page.
func WithImagesPerPage(n int) Option {
	return func(l *Layout) {
		if n > 0 {
			l.maxImages = n
		}
	}
}

// WithGap sets the vertical space left after each image.
func WithGap(gap float64) Option {
	return func(l *Layout) {
		if gap >= 0 {
			l.gap = gap
		}
	}
}

// Layout is a cursor over a multi-page A4 document. Each new page starts
// with the organization header, the rule, the title and the metadata block.
type Layout struct {
	pdf    *gofpdf.Fpdf
	tr     func(string) string
	header Header
	meta   Meta

	logoName string
	logoType string

	pageW, pageH float64
	y            float64
	images       int
	maxImages    int
	gap          float64
	seq          int
	highlighted  int
}

// NewLayout starts a document with its first page.
func NewLayout(header Header, meta Meta, opts ...Option) *Layout {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(margin, margin, margin)

	l := &Layout{
		pdf:       pdf,
		tr:        pdf.UnicodeTranslatorFromDescriptor(""),
		header:    header,
		meta:      meta,
		maxImages: defaultImagesPerPage,
		gap:       defaultGap,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.pageW, l.pageH = pdf.GetPageSize()
	if typ := logoType(header.Logo); typ != "" {
		l.logoName = "logo"
		l.logoType = typ
		pdf.RegisterImageOptionsReader(l.logoName, gofpdf.ImageOptions{ImageType: typ}, bytes.NewReader(header.Logo))
	}
	pdf.SetHeaderFunc(l.drawHeader)
	l.newPage()
	return l
}

// logoType returns the gofpdf image type of data, or "" when the data
// cannot be embedded.
func logoType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var typ string
	switch http.DetectContentType(data) {
	case "image/png":
		typ = "PNG"
	case "image/jpeg":
		typ = "JPG"
	case "image/gif":
		typ = "GIF"
	default:
		return ""
	}
	scratch := gofpdf.New("P", "mm", "A4", "")
	scratch.RegisterImageOptionsReader("logo", gofpdf.ImageOptions{ImageType: typ}, bytes.NewReader(data))
	if !scratch.Ok() {
		return ""
	}
	return typ
}

func (l *Layout) newPage() {
	l.pdf.AddPage()
	l.y = bodyTop
	l.images = 0
}

func (l *Layout) bottom() float64 {
	return l.pageH - bottomMargin
}

func (l *Layout) drawHeader() {
	pdf := l.pdf
	h := l.header
	if l.logoName != "" {
		pdf.ImageOptions(l.logoName, margin, 10, 30, 0, false, gofpdf.ImageOptions{ImageType: l.logoType}, 0, "")
	}

	pdf.SetXY(margin, 15)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(l.pageW-2*margin, 5, l.tr(h.Name), "", 0, "C", false, 0, "")

	pdf.SetXY(margin, 20)
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(l.pageW-2*margin, 5, l.tr(joinNonEmpty(" - ", h.Address, h.City)), "", 0, "C", false, 0, "")

	pdf.SetXY(margin, 25)
	pdf.SetFont("Arial", "I", 8)
	contact := joinNonEmpty(" - ", h.Phone, h.Email, h.Webpage)
	if contact != "" {
		contact = "Teléfono: " + contact
	}
	pdf.CellFormat(l.pageW-2*margin, 5, l.tr(contact), "", 0, "C", false, 0, "")

	pdf.SetLineWidth(0.4)
	pdf.Line(margin, ruleY, l.pageW-margin, ruleY)

	pdf.SetXY(margin, titleY)
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(l.pageW-2*margin, 8, l.tr(l.meta.Title), "", 0, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	for i, line := range []string{
		"Ambiente: " + l.meta.Environment,
		"Desde: " + formatMetaTime(l.meta.From),
		"Hasta: " + formatMetaTime(l.meta.To),
	} {
		pdf.SetXY(margin, 75+float64(i)*10)
		pdf.CellFormat(l.pageW-2*margin, 6, l.tr(line), "", 0, "L", false, 0, "")
	}
}

// PlaceImage scales a surface to the page width keeping its aspect ratio
// and places it at the cursor. A new page is started when the image would
// overflow or the per-page image cap is reached.
func (l *Layout) PlaceImage(s charts.Surface) error {
	if len(s.PNG) == 0 {
		return fmt.Errorf("%w: %s", ErrSurfaceMissing, s.Name)
	}
	l.seq++
	name := fmt.Sprintf("surface-%d-%s", l.seq, s.Name)
	info := l.pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(s.PNG))
	if !l.pdf.Ok() {
		return fmt.Errorf("document: embed %s: %w", s.Name, l.pdf.Error())
	}

	srcW, srcH := float64(s.Width), float64(s.Height)
	if srcW <= 0 || srcH <= 0 {
		srcW, srcH = info.Extent()
	}
	w := l.pageW - 2*margin
	h := w * srcH / srcW
	if maxH := l.bottom() - bodyTop; h > maxH {
		h = maxH
		w = h * srcW / srcH
	}

	if l.images >= l.maxImages || l.y+h > l.bottom() {
		l.newPage()
	}
	x := (l.pageW - w) / 2
	l.pdf.ImageOptions(name, x, l.y, w, h, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	l.y += h + l.gap
	l.images++
	return nil
}

// Text writes an optional bold heading followed by lines at the cursor.
func (l *Layout) Text(heading string, lines ...string) {
	if heading != "" {
		l.ensure(lineHeight * 2)
		l.pdf.SetFont("Arial", "B", 11)
		l.pdf.SetXY(margin, l.y)
		l.pdf.CellFormat(l.pageW-2*margin, lineHeight, l.tr(heading), "", 0, "L", false, 0, "")
		l.y += lineHeight
	}
	l.pdf.SetFont("Arial", "", 9)
	for _, line := range lines {
		l.ensure(lineHeight)
		l.pdf.SetXY(margin, l.y)
		l.pdf.CellFormat(l.pageW-2*margin, lineHeight, l.tr(line), "", 0, "L", false, 0, "")
		l.y += lineHeight
	}
	l.y += lineHeight / 2
}

// Table writes a bordered table at the cursor, repeating the column header
// on every page it spans.
// Table draws a bordered table, repeating the header row on new pages.
// Rows marked in flagged are shaded.
func (l *Layout) Table(columns []string, rows [][]string, flagged []bool) error {
	if len(columns) == 0 {
		return errors.New("document: table without columns")
	}
	if flagged != nil && len(flagged) != len(rows) {
		return fmt.Errorf("document: %d row flags for %d rows", len(flagged), len(rows))
	}
	const rowH = 6.0
	colW := (l.pageW - 2*margin) / float64(len(columns))
	head := func() {
		l.pdf.SetFont("Arial", "B", 7)
		l.pdf.SetXY(margin, l.y)
		for _, c := range columns {
			l.pdf.CellFormat(colW, rowH, l.tr(c), "1", 0, "C", false, 0, "")
		}
		l.y += rowH
		l.pdf.SetFont("Arial", "", 7)
	}
	l.ensure(rowH * 2)
	head()
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("document: table row %d has %d cells for %d columns", i, len(row), len(columns))
		}
		if l.y+rowH > l.bottom() {
			l.newPage()
			head()
		}
		shade := flagged != nil && flagged[i]
		if shade {
			l.pdf.SetFillColor(warnR, warnG, warnB)
			l.highlighted++
		}
		l.pdf.SetXY(margin, l.y)
		for _, cell := range row {
			l.pdf.CellFormat(colW, rowH, l.tr(cell), "1", 0, "C", shade, 0, "")
		}
		l.y += rowH
	}
	l.y += l.gap
	return nil
}

func (l *Layout) ensure(h float64) {
	if l.y+h > l.bottom() {
		l.newPage()
	}
}

// Finish stamps every page footer with the final page total and writes
// the document.
func (l *Layout) Finish(name, operator string, generatedAt time.Time) (Document, error) {
	pdf := l.pdf
	total := pdf.PageCount()
	footers := make([]string, 0, total)
	pdf.SetFont("Arial", "", 8)
	for page := 1; page <= total; page++ {
		pdf.SetPage(page)
		text := fmt.Sprintf("Reporte generado el %s por %s - Página %d de %d",
			generatedAt.Format(timeLayout), operator, page, total)
		pdf.SetXY(margin, l.pageH-footerOffset-4)
		pdf.CellFormat(l.pageW-2*margin, 4, l.tr(text), "", 0, "C", false, 0, "")
		footers = append(footers, text)
	}
	pdf.SetPage(total)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Document{}, fmt.Errorf("document: write pdf: %w", err)
	}
	return Document{Name: name, Pages: total, Footers: footers, Highlighted: l.highlighted, Bytes: buf.Bytes()}, nil
}

func formatMetaTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}
