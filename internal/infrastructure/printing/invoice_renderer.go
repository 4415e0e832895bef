package printing

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

// InvoiceRendererConfig contains configuration for the invoice PDF renderer
type InvoiceRendererConfig struct {
	PaperSize   invoice.PaperSize
	Orientation invoice.Orientation
	Margins     invoice.Margins
	// FontFamily is one of the core PDF fonts: Helvetica, Arial, Times or Courier
	FontFamily string
	// FontSize in points
	FontSize float64
	// LineSpacing is the line height as a multiple of the font size
	LineSpacing float64
	// RowGap is the vertical space after each table row, in millimeters
	RowGap float64
	// CellPadding is the horizontal inset of cell text, in millimeters
	CellPadding float64
	Currency    string
	Title       string
	Creator     string
	// Compress enables zlib compression of page content streams
	Compress bool
	Logger   *zap.Logger
}

// DefaultInvoiceRendererConfig returns an A4 portrait configuration
func DefaultInvoiceRendererConfig() *InvoiceRendererConfig {
	return &InvoiceRendererConfig{
		PaperSize:   invoice.PaperSizeA4,
		Orientation: invoice.OrientationPortrait,
		Margins:     invoice.DefaultMargins(),
		FontFamily:  "Helvetica",
		FontSize:    9,
		LineSpacing: 1.4,
		RowGap:      2,
		CellPadding: 1,
		Currency:    invoice.DefaultCurrency,
		Title:       "INVOICE",
		Creator:     "storefront invoicing",
		Compress:    true,
	}
}

var coreFonts = map[string]bool{
	"helvetica": true,
	"arial":     true,
	"times":     true,
	"courier":   true,
}

// InvoicePDFRenderer renders invoices into PDF documents
type InvoicePDFRenderer struct {
	config   *InvoiceRendererConfig
	geometry invoice.PageGeometry
	logger   *zap.Logger
}

// NewInvoicePDFRenderer validates the configuration and creates a renderer
func NewInvoicePDFRenderer(config *InvoiceRendererConfig) (*InvoicePDFRenderer, error) {
	if config == nil {
		config = DefaultInvoiceRendererConfig()
	}
	if !config.PaperSize.IsValid() {
		return nil, NewRenderError(ErrCodeInvalidPaperSize,
			fmt.Sprintf("unsupported paper size: %s", config.PaperSize), nil)
	}
	if config.Orientation == "" {
		config.Orientation = invoice.OrientationPortrait
	}
	if config.Orientation != invoice.OrientationPortrait && config.Orientation != invoice.OrientationLandscape {
		return nil, NewRenderError(ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported orientation: %s", config.Orientation), nil)
	}
	if !coreFonts[strings.ToLower(config.FontFamily)] {
		return nil, NewRenderError(ErrCodeInvalidConfig,
			fmt.Sprintf("font family %q is not a core PDF font", config.FontFamily), nil)
	}
	if config.FontSize <= 0 {
		return nil, NewRenderError(ErrCodeInvalidConfig, "font size must be positive", nil)
	}
	if config.LineSpacing < 1 {
		config.LineSpacing = 1
	}
	if config.RowGap < 0 || config.CellPadding < 0 {
		return nil, NewRenderError(ErrCodeInvalidConfig, "row gap and cell padding cannot be negative", nil)
	}
	if config.Currency == "" {
		config.Currency = invoice.DefaultCurrency
	}

	geometry := invoice.NewPageGeometry(config.PaperSize, config.Orientation, config.Margins)
	if err := geometry.Validate(); err != nil {
		return nil, NewRenderError(ErrCodeInvalidConfig, "invalid page geometry", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &InvoicePDFRenderer{
		config:   config,
		geometry: geometry,
		logger:   logger,
	}, nil
}

// Geometry returns the page geometry every document is laid out on
func (r *InvoicePDFRenderer) Geometry() invoice.PageGeometry {
	return r.geometry
}

// Render lays out req and writes the finished PDF to sink. The request is
// validated before anything is written. A failing sink yields
// *invoice.SinkWriteError and is not retried.
func (r *InvoicePDFRenderer) Render(ctx context.Context, req *invoice.Request, sink io.Writer) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "invoice.render")
	defer span.End()

	start := time.Now()
	lifecycle := invoice.NewRenderLifecycle()
	defer func() {
		if err != nil {
			lifecycle.Fail()
			telemetry.RecordError(span, err)
			r.logger.Warn("invoice render failed",
				zap.String("state", string(lifecycle.State())),
				zap.Error(err))
		}
	}()

	if sink == nil {
		return invoice.NewInvalidRequestError("output sink is required")
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = req.Validate(); err != nil {
		return err
	}

	pdf := r.newDocument()
	measurer := newFpdfMeasurer(pdf, r.config.FontFamily, r.config.FontSize, r.config.LineSpacing)

	doc, err := invoice.LayoutInvoice(req, r.layoutOptions(), measurer)
	if err != nil {
		return err
	}

	if err = r.paint(pdf, measurer, doc, lifecycle); err != nil {
		return err
	}

	pdf.Close()
	if pdf.Err() {
		return NewRenderError(ErrCodeRenderFailed, "failed to generate PDF", pdf.Error())
	}

	counter := &countingWriter{w: sink}
	if werr := pdf.Output(counter); werr != nil {
		return &invoice.SinkWriteError{Op: "write", Err: werr}
	}
	if flusher, ok := sink.(interface{ Flush() error }); ok {
		if ferr := flusher.Flush(); ferr != nil {
			return &invoice.SinkWriteError{Op: "flush", Err: ferr}
		}
	}
	if err = lifecycle.Advance(invoice.StateFinalized); err != nil {
		return err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPageCount, len(doc.Pages),
		telemetry.SpanAttrItemCount, len(req.Items),
		telemetry.SpanAttrBytes, counter.n,
	)
	r.logger.Debug("invoice rendered",
		zap.Int("pages", len(doc.Pages)),
		zap.Int("items", len(req.Items)),
		zap.Int64("bytes", counter.n),
		zap.Duration("duration", time.Since(start)))

	return nil
}

func (r *InvoicePDFRenderer) layoutOptions() invoice.LayoutOptions {
	return invoice.LayoutOptions{
		Geometry:    r.geometry,
		RowGap:      r.config.RowGap,
		CellPadding: r.config.CellPadding,
		Currency:    r.config.Currency,
		Title:       r.config.Title,
	}
}

func (r *InvoicePDFRenderer) newDocument() *fpdf.Fpdf {
	g := r.geometry
	// geometry is already oriented, so the page is always created portrait
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: g.Width, Ht: g.Height},
	})
	pdf.SetMargins(g.Margins.Left, g.Margins.Top, g.Margins.Right)
	pdf.SetAutoPageBreak(false, g.Margins.Bottom)
	pdf.SetCompression(r.config.Compress)
	pdf.SetLineWidth(0.2)
	if r.config.Title != "" {
		pdf.SetTitle(r.config.Title, true)
	}
	if r.config.Creator != "" {
		pdf.SetCreator(r.config.Creator, true)
	}
	return pdf
}

// paint draws the laid-out document in cursor order and drives the lifecycle.
// Once painting starts the render runs to completion or failure.
func (r *InvoicePDFRenderer) paint(pdf *fpdf.Fpdf, m *fpdfMeasurer, doc *invoice.Document, lc *invoice.RenderLifecycle) error {
	for _, page := range doc.Pages {
		pdf.AddPage()

		lines := page.Lines
		for _, row := range page.Table.Rows {
			for len(lines) > 0 && lines[0].Top < row.Top {
				r.drawLine(pdf, m, lines[0])
				lines = lines[1:]
			}
			r.drawRow(pdf, m, doc, row)
			if err := advanceForRow(lc, row.Kind); err != nil {
				return err
			}
		}
		for _, line := range lines {
			r.drawLine(pdf, m, line)
		}
	}
	return nil
}

func advanceForRow(lc *invoice.RenderLifecycle, kind invoice.RowKind) error {
	switch kind {
	case invoice.RowHeader:
		// repeated headers on continuation pages do not change state
		if lc.State() == invoice.StateInitialized {
			return lc.Advance(invoice.StateHeaderDrawn)
		}
		return nil
	case invoice.RowItem:
		return lc.Advance(invoice.StateRowDrawn)
	default:
		return lc.Advance(invoice.StateTotalsDrawn)
	}
}

func (r *InvoicePDFRenderer) drawLine(pdf *fpdf.Fpdf, m *fpdfMeasurer, line invoice.TextLine) {
	m.use(line.Style)
	text := m.translate(line.Text)
	x := line.X
	if line.Align == invoice.AlignRight {
		x = line.X + line.Width - pdf.GetStringWidth(text)
	}
	pdf.Text(x, line.Top+m.baseline(), text)
}

func (r *InvoicePDFRenderer) drawRow(pdf *fpdf.Fpdf, m *fpdfMeasurer, doc *invoice.Document, row *invoice.Row) {
	padding := r.config.CellPadding
	for _, cell := range row.Cells {
		m.use(cell.Style)
		for i, line := range cell.Lines {
			if line == "" {
				continue
			}
			text := m.translate(line)
			x := cell.X + padding
			if cell.Align == invoice.AlignRight {
				x = cell.X + cell.Width - padding - pdf.GetStringWidth(text)
			}
			pdf.Text(x, row.Top+float64(i)*m.LineHeight()+m.baseline(), text)
		}
	}

	left := doc.Geometry.Margins.Left
	right := left + doc.Columns.TotalWidth()
	switch row.Kind {
	case invoice.RowHeader:
		y := row.Top + row.Height + r.config.RowGap/2
		pdf.Line(left, y, right, y)
	case invoice.RowTotals:
		y := row.Top - r.config.RowGap/2
		pdf.Line(left, y, right, y)
	}
}

// countingWriter counts bytes accepted by the sink
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

var _ invoice.Renderer = (*InvoicePDFRenderer)(nil)
