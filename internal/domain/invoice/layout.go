package invoice

import (
	"strings"
	"unicode/utf8"
)

// FontStyle selects the weight a text run is measured and drawn with
type FontStyle int

const (
	StyleRegular FontStyle = iota
	StyleBold
)

// Align is the horizontal alignment of text inside its box
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// RowKind distinguishes the three kinds of table rows
type RowKind int

const (
	RowHeader RowKind = iota
	RowItem
	RowTotals
)

// TextMeasurer supplies font metrics to the layout pass. The PDF backend
// implements it with real glyph widths; tests use a fixed-pitch fake.
type TextMeasurer interface {
	// TextWidth returns the rendered width of text in millimeters
	TextWidth(style FontStyle, text string) float64
	// LineHeight returns the height of one text line in millimeters
	LineHeight() float64
}

// LayoutOptions controls the table layout
type LayoutOptions struct {
	Geometry PageGeometry
	// RowGap is the fixed vertical gap added after every table row
	RowGap float64
	// CellPadding is the horizontal inset of text inside a column
	CellPadding float64
	Currency    string
	Title       string
}

// DefaultLayoutOptions returns A4 portrait options with default margins
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		Geometry:    NewPageGeometry(PaperSizeA4, OrientationPortrait, DefaultMargins()),
		RowGap:      2,
		CellPadding: 1,
		Currency:    DefaultCurrency,
		Title:       "INVOICE",
	}
}

// Document is the laid-out invoice: a list of pages with absolute positions
type Document struct {
	Geometry PageGeometry
	Columns  Columns
	Pages    []*Page
}

// Page holds free-standing text lines and the part of the table on that page
type Page struct {
	Number int
	Lines  []TextLine
	Table  *Table
}

// Table is the slice of the invoice table placed on one page
type Table struct {
	Rows []*Row
}

// Row is a table row positioned at Top with the height of its tallest cell
type Row struct {
	Kind   RowKind
	Top    float64
	Height float64
	Cells  []Cell
}

// Cell is the wrapped content of one column within a row
type Cell struct {
	Column int
	X      float64
	Width  float64
	Lines  []string
	Style  FontStyle
	Align  Align
}

// TextLine is a single line of text outside the table
type TextLine struct {
	X     float64
	Top   float64
	Width float64
	Text  string
	Style FontStyle
	Align Align
}

// Cursor is the running write position. It orders first by page, then by Y,
// and only ever moves forward during one layout.
type Cursor struct {
	Page int
	Y    float64
}

// Before reports whether c is strictly before other
func (c Cursor) Before(other Cursor) bool {
	if c.Page != other.Page {
		return c.Page < other.Page
	}
	return c.Y < other.Y
}

// RowLayout is the measured shape of a row before it is placed
type RowLayout struct {
	Lines  [][]string
	Height float64
}

// MeasureRow wraps every cell of a row to the column width and returns the
// wrapped lines together with the row height, which is the height of the
// tallest cell. No cell is placed until all of them have been measured.
func MeasureRow(cells []string, columnWidth, padding float64, style FontStyle, m TextMeasurer) RowLayout {
	layout := RowLayout{Lines: make([][]string, len(cells))}
	maxLines := 0
	inner := columnWidth - 2*padding
	for i, text := range cells {
		lines := WrapText(text, inner, func(s string) float64 {
			return m.TextWidth(style, s)
		})
		layout.Lines[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	if maxLines == 0 {
		maxLines = 1
	}
	layout.Height = float64(maxLines) * m.LineHeight()
	return layout
}

// WrapText greedily breaks text into lines no wider than width. Explicit
// newlines are kept, words longer than a line are split by rune. The result
// always has at least one (possibly empty) line.
func WrapText(text string, width float64, measure func(string) float64) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		lines = append(lines, wrapParagraph(paragraph, width, measure)...)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

func wrapParagraph(paragraph string, width float64, measure func(string) float64) []string {
	words := strings.Fields(paragraph)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if measure(candidate) <= width {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
		if measure(word) <= width {
			current = word
			continue
		}
		// hard-break an overlong word
		pieces := breakWord(word, width, measure)
		lines = append(lines, pieces[:len(pieces)-1]...)
		current = pieces[len(pieces)-1]
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

func breakWord(word string, width float64, measure func(string) float64) []string {
	var pieces []string
	start := 0
	for start < len(word) {
		end := start
		for end < len(word) {
			_, size := utf8.DecodeRuneInString(word[end:])
			if end > start && measure(word[start:end+size]) > width {
				break
			}
			end += size
		}
		pieces = append(pieces, word[start:end])
		start = end
	}
	return pieces
}

// HeaderBlock returns the text shown above the table
func HeaderBlock(req *Request) []string {
	lines := []string{"Customer: " + req.CustomerName}
	if req.Address != "" {
		lines = append(lines, "Address: "+req.Address)
	}
	if req.Brand != "" {
		lines = append(lines, "Brand: "+req.Brand)
	}
	if req.SerialNumber != "" {
		lines = append(lines, "Serial #: "+req.SerialNumber)
	}
	return lines
}

// GrandTotalLabel returns the bold summary line printed below the table
func GrandTotalLabel(total string) string {
	return "Grand Total: " + total
}

// LayoutInvoice runs the single layout pass over a validated request and
// returns the positioned document. It is pure: the measurer is the only
// collaborator and nothing is drawn.
func LayoutInvoice(req *Request, opts LayoutOptions, m TextMeasurer) (*Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Geometry.Validate(); err != nil {
		return nil, err
	}
	if opts.Currency == "" {
		opts.Currency = DefaultCurrency
	}

	l := &layouter{
		opts:  opts,
		m:     m,
		lineH: m.LineHeight(),
		doc: &Document{
			Geometry: opts.Geometry,
			Columns:  ComputeColumns(opts.Geometry, ColumnCount),
		},
	}
	l.newPage()

	// header block
	g := opts.Geometry
	if opts.Title != "" {
		l.placeLine(opts.Title, StyleBold, AlignLeft)
	}
	for _, text := range HeaderBlock(req) {
		for _, line := range WrapText(text, g.UsableWidth(), func(s string) float64 {
			return m.TextWidth(StyleRegular, s)
		}) {
			l.placeLine(line, StyleRegular, AlignLeft)
		}
	}
	l.advance(l.lineH)

	header := l.measure(HeaderLabels[:], StyleBold)
	if !l.fits(header.Height) && !l.fresh() {
		l.newPage()
	}
	l.placeRow(RowHeader, header, StyleBold)

	for _, item := range req.Items {
		row := l.measure(item.Cells(opts.Currency), StyleRegular)
		if !l.fits(row.Height) && !l.fresh() {
			l.newPage()
			l.placeRow(RowHeader, header, StyleBold)
		}
		l.placeRow(RowItem, row, StyleRegular)
	}

	grandTotal := FormatMoney(req.Total, opts.Currency)
	totalsCells := make([]string, ColumnCount)
	totalsCells[0] = "Total"
	totalsCells[ColumnCount-1] = grandTotal
	totals := l.measure(totalsCells, StyleRegular)
	if !l.fits(totals.Height) && !l.fresh() {
		l.newPage()
		l.placeRow(RowHeader, header, StyleBold)
	}
	l.placeRow(RowTotals, totals, StyleRegular)
	l.placeLine(GrandTotalLabel(grandTotal), StyleBold, AlignRight)

	return l.doc, nil
}

type layouter struct {
	opts           LayoutOptions
	m              TextMeasurer
	lineH          float64
	doc            *Document
	page           *Page
	cursor         Cursor
	itemRowsOnPage int
}

func (l *layouter) newPage() {
	l.page = &Page{Number: len(l.doc.Pages) + 1, Table: &Table{}}
	l.doc.Pages = append(l.doc.Pages, l.page)
	l.cursor = Cursor{Page: l.page.Number, Y: l.opts.Geometry.Top()}
	l.itemRowsOnPage = 0
}

func (l *layouter) fits(height float64) bool {
	return l.cursor.Y+height <= l.opts.Geometry.Bottom()
}

// fresh reports whether the page holds nothing but an optional table header
// row. Content that does not fit on a fresh page is placed there anyway.
func (l *layouter) fresh() bool {
	return len(l.page.Lines) == 0 && l.itemRowsOnPage == 0 && len(l.page.Table.Rows) <= 1
}

func (l *layouter) advance(dy float64) {
	if dy > 0 {
		l.cursor.Y += dy
	}
}

func (l *layouter) measure(cells []string, style FontStyle) RowLayout {
	return MeasureRow(cells, l.doc.Columns.Widths[0], l.opts.CellPadding, style, l.m)
}

func (l *layouter) placeLine(text string, style FontStyle, align Align) {
	if !l.fits(l.lineH) && !l.fresh() {
		l.newPage()
	}
	g := l.opts.Geometry
	l.page.Lines = append(l.page.Lines, TextLine{
		X:     g.Margins.Left,
		Top:   l.cursor.Y,
		Width: g.UsableWidth(),
		Text:  text,
		Style: style,
		Align: align,
	})
	l.advance(l.lineH)
}

func (l *layouter) placeRow(kind RowKind, measured RowLayout, style FontStyle) {
	cols := l.doc.Columns
	row := &Row{
		Kind:   kind,
		Top:    l.cursor.Y,
		Height: measured.Height,
		Cells:  make([]Cell, len(measured.Lines)),
	}
	for i, lines := range measured.Lines {
		row.Cells[i] = Cell{
			Column: i,
			X:      cols.X[i],
			Width:  cols.Widths[i],
			Lines:  lines,
			Style:  style,
			Align:  AlignLeft,
		}
	}
	l.page.Table.Rows = append(l.page.Table.Rows, row)
	if kind == RowItem {
		l.itemRowsOnPage++
	}
	l.advance(measured.Height + l.opts.RowGap)
}

// Rows returns every table row of the document in drawing order
func (d *Document) Rows() []*Row {
	var rows []*Row
	for _, p := range d.Pages {
		rows = append(rows, p.Table.Rows...)
	}
	return rows
}

// CountRows returns the number of rows of the given kind
func (d *Document) CountRows(kind RowKind) int {
	n := 0
	for _, r := range d.Rows() {
		if r.Kind == kind {
			n++
		}
	}
	return n
}
