package printing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/invoice"
)

func newTestRenderer(t *testing.T, mutate ...func(*InvoiceRendererConfig)) *InvoicePDFRenderer {
	t.Helper()
	config := DefaultInvoiceRendererConfig()
	config.Compress = false
	for _, m := range mutate {
		m(config)
	}
	renderer, err := NewInvoicePDFRenderer(config)
	require.NoError(t, err)
	return renderer
}

func widgetRequest() *invoice.Request {
	return &invoice.Request{
		CustomerName: "Jane Doe",
		Address:      "1 Main St",
		Brand:        "Acme",
		SerialNumber: "ORD-1",
		Items: []invoice.LineItem{{
			Name:         "Widget",
			Distributor:  "Acme",
			Model:        "W1",
			SerialNumber: "SN1",
			Qty:          2,
			Price:        decimal.RequireFromString("9.99"),
			Total:        decimal.RequireFromString("19.98"),
		}},
		Total: decimal.RequireFromString("19.98"),
	}
}

// pdfText returns the literal string operand as written by an uncompressed content stream
func pdfText(s string) string {
	return "(" + s + ")"
}

type failingWriter struct {
	err error
}

func (w failingWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

type failingFlusher struct {
	bytes.Buffer
	err error
}

func (f *failingFlusher) Flush() error {
	return f.err
}

func TestNewInvoicePDFRenderer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*InvoiceRendererConfig)
		wantErr string
	}{
		{"defaults", func(c *InvoiceRendererConfig) {}, ""},
		{"letter landscape courier", func(c *InvoiceRendererConfig) {
			c.PaperSize = invoice.PaperSizeLetter
			c.Orientation = invoice.OrientationLandscape
			c.FontFamily = "Courier"
		}, ""},
		{"unknown paper size", func(c *InvoiceRendererConfig) { c.PaperSize = "B5" }, ErrCodeInvalidPaperSize},
		{"unknown orientation", func(c *InvoiceRendererConfig) { c.Orientation = "DIAGONAL" }, ErrCodeInvalidConfig},
		{"non core font", func(c *InvoiceRendererConfig) { c.FontFamily = "Comic Sans" }, ErrCodeInvalidConfig},
		{"zero font size", func(c *InvoiceRendererConfig) { c.FontSize = 0 }, ErrCodeInvalidConfig},
		{"negative gap", func(c *InvoiceRendererConfig) { c.RowGap = -1 }, ErrCodeInvalidConfig},
		{"margins too wide", func(c *InvoiceRendererConfig) {
			c.Margins = invoice.Margins{Top: 10, Right: 110, Bottom: 10, Left: 110}
		}, ErrCodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultInvoiceRendererConfig()
			tt.mutate(config)

			renderer, err := NewInvoicePDFRenderer(config)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, renderer)
				return
			}
			var renderErr *RenderError
			require.ErrorAs(t, err, &renderErr)
			assert.Equal(t, tt.wantErr, renderErr.Code)
		})
	}
}

func TestInvoicePDFRenderer_Geometry(t *testing.T) {
	renderer := newTestRenderer(t, func(c *InvoiceRendererConfig) {
		c.Orientation = invoice.OrientationLandscape
	})

	g := renderer.Geometry()
	assert.Equal(t, 297.0, g.Width)
	assert.Equal(t, 210.0, g.Height)
}

func TestInvoicePDFRenderer_EmptyItems(t *testing.T) {
	renderer := newTestRenderer(t)
	req := &invoice.Request{CustomerName: "Jane Doe", Total: decimal.Zero}

	var buf bytes.Buffer
	require.NoError(t, renderer.Render(context.Background(), req, &buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "%PDF-"))
	for _, label := range invoice.HeaderLabels {
		assert.Contains(t, out, pdfText(label))
	}
	assert.Contains(t, out, pdfText("Total"))
	assert.Contains(t, out, pdfText("0.00 USD"))
	assert.Contains(t, out, pdfText("Grand Total: 0.00 USD"))
	assert.Contains(t, out, pdfText("Customer: Jane Doe"))
}

func TestInvoicePDFRenderer_SingleItem(t *testing.T) {
	renderer := newTestRenderer(t)

	var buf bytes.Buffer
	require.NoError(t, renderer.Render(context.Background(), widgetRequest(), &buf))

	out := buf.String()
	for _, cell := range []string{"Widget", "Acme", "W1", "SN1", "2", "9.99 USD", "19.98 USD"} {
		assert.Contains(t, out, pdfText(cell))
	}
	assert.Contains(t, out, pdfText("Grand Total: 19.98 USD"))
	assert.Less(t, strings.Index(out, pdfText("Widget")), strings.Index(out, pdfText("Grand Total: 19.98 USD")))
}

func TestInvoicePDFRenderer_CustomCurrency(t *testing.T) {
	renderer := newTestRenderer(t, func(c *InvoiceRendererConfig) { c.Currency = "EUR" })

	var buf bytes.Buffer
	require.NoError(t, renderer.Render(context.Background(), widgetRequest(), &buf))

	assert.Contains(t, buf.String(), pdfText("Grand Total: 19.98 EUR"))
	assert.NotContains(t, buf.String(), "USD")
}

func TestInvoicePDFRenderer_RepeatsHeaderAcrossPages(t *testing.T) {
	renderer := newTestRenderer(t)
	req := widgetRequest()
	for range 150 {
		req.Items = append(req.Items, req.Items[0])
	}

	var buf bytes.Buffer
	require.NoError(t, renderer.Render(context.Background(), req, &buf))

	headers := strings.Count(buf.String(), pdfText("Distributor"))
	assert.Greater(t, headers, 1)
	// the grand total is taken from the request, never summed from the rows
	assert.Equal(t, 1, strings.Count(buf.String(), pdfText("Grand Total: 19.98 USD")))
}

func TestInvoicePDFRenderer_NonLatinText(t *testing.T) {
	renderer := newTestRenderer(t)
	req := widgetRequest()
	req.CustomerName = "Zoë Ångström"
	req.Items[0].Name = "Schneemann ☃ Ünïcode ünd sehr lange Beschreibung ohne Umbruch"

	var buf bytes.Buffer
	require.NoError(t, renderer.Render(context.Background(), req, &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "%PDF-"))
}

func TestInvoicePDFRenderer_Compressed(t *testing.T) {
	plain := newTestRenderer(t)
	compressed := newTestRenderer(t, func(c *InvoiceRendererConfig) { c.Compress = true })

	var a, b bytes.Buffer
	require.NoError(t, plain.Render(context.Background(), widgetRequest(), &a))
	require.NoError(t, compressed.Render(context.Background(), widgetRequest(), &b))

	assert.NotContains(t, b.String(), pdfText("Grand Total: 19.98 USD"))
	assert.Less(t, b.Len(), a.Len())
}

func TestInvoicePDFRenderer_InvalidRequestWritesNothing(t *testing.T) {
	renderer := newTestRenderer(t)

	tests := []struct {
		name string
		req  *invoice.Request
	}{
		{"nil request", nil},
		{"negative quantity", func() *invoice.Request {
			r := widgetRequest()
			r.Items[0].Qty = -1
			return r
		}()},
		{"missing customer", func() *invoice.Request {
			r := widgetRequest()
			r.CustomerName = ""
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := renderer.Render(context.Background(), tt.req, &buf)
			assert.True(t, invoice.IsInvalidRequest(err))
			assert.Zero(t, buf.Len())
		})
	}
}

func TestInvoicePDFRenderer_NilSink(t *testing.T) {
	renderer := newTestRenderer(t)
	err := renderer.Render(context.Background(), widgetRequest(), nil)
	assert.True(t, invoice.IsInvalidRequest(err))
}

func TestInvoicePDFRenderer_SinkWriteError(t *testing.T) {
	renderer := newTestRenderer(t)
	boom := errors.New("disk full")

	err := renderer.Render(context.Background(), widgetRequest(), failingWriter{err: boom})

	var sinkErr *invoice.SinkWriteError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "write", sinkErr.Op)
	assert.ErrorIs(t, err, boom)
}

func TestInvoicePDFRenderer_SinkFlushError(t *testing.T) {
	renderer := newTestRenderer(t)
	sink := &failingFlusher{err: errors.New("flush refused")}

	err := renderer.Render(context.Background(), widgetRequest(), sink)

	var sinkErr *invoice.SinkWriteError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "flush", sinkErr.Op)
}

func TestInvoicePDFRenderer_CancelledContext(t *testing.T) {
	renderer := newTestRenderer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := renderer.Render(ctx, widgetRequest(), &buf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

// cancelledAfterStart reports cancellation on every Err call after the first
type cancelledAfterStart struct {
	context.Context
	calls int
}

func (c *cancelledAfterStart) Err() error {
	c.calls++
	if c.calls > 1 {
		return context.Canceled
	}
	return nil
}

func TestInvoicePDFRenderer_CancelAfterStartCompletes(t *testing.T) {
	renderer := newTestRenderer(t)
	req := widgetRequest()
	for range 150 {
		req.Items = append(req.Items, req.Items[0])
	}
	ctx := &cancelledAfterStart{Context: context.Background()}

	var buf bytes.Buffer
	require.NoError(t, renderer.Render(ctx, req, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, strings.Count(buf.String(), pdfText("Distributor")), 1)
	assert.Equal(t, 1, strings.Count(buf.String(), pdfText("Grand Total: 19.98 USD")))
}

func TestFpdfMeasurer(t *testing.T) {
	renderer := newTestRenderer(t)
	pdf := renderer.newDocument()
	m := newFpdfMeasurer(pdf, "Helvetica", 10, 1.5)

	assert.InDelta(t, 10*mmPerPoint*1.5, m.LineHeight(), 1e-9)
	assert.Greater(t, m.TextWidth(invoice.StyleBold, "Widget"), m.TextWidth(invoice.StyleRegular, "Widget"))
	assert.Zero(t, m.TextWidth(invoice.StyleRegular, ""))
	assert.Greater(t, m.TextWidth(invoice.StyleRegular, "☃"), 0.0)
	assert.Greater(t, m.baseline(), 0.0)
	assert.Less(t, m.baseline(), m.LineHeight())
}
