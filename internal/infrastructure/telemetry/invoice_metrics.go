package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// InvoiceMetrics records the invoicing workload: renders, deliveries and
// artifact cleanup.
type InvoiceMetrics struct {
	logger *zap.Logger

	renderTotal    *Counter
	renderDuration *Histogram
	documentSize   *Histogram
	emailTotal     *Counter
	emailDuration  *Histogram
	artifactsSwept *Counter
}

// InvoiceMetricsConfig holds configuration for invoice metrics.
type InvoiceMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewInvoiceMetrics creates the invoice instruments on cfg.Meter
func NewInvoiceMetrics(cfg InvoiceMetricsConfig) (*InvoiceMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &InvoiceMetrics{logger: logger}
	var err error

	if m.renderTotal, err = NewCounter(cfg.Meter,
		"storefront_invoice_render_total",
		"Invoice documents rendered, by outcome",
		"{invoices}",
	); err != nil {
		return nil, err
	}
	if m.renderDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "storefront_invoice_render_duration_seconds",
		Description: "Time to lay out, render and store one invoice",
		Unit:        "s",
		Boundaries:  RenderDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.documentSize, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "storefront_invoice_document_size_bytes",
		Description: "Size of rendered invoice documents",
		Unit:        "By",
		Boundaries:  DocumentSizeBuckets,
	}); err != nil {
		return nil, err
	}
	if m.emailTotal, err = NewCounter(cfg.Meter,
		"storefront_invoice_email_total",
		"Invoice emails sent, by outcome",
		"{emails}",
	); err != nil {
		return nil, err
	}
	if m.emailDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "storefront_invoice_email_duration_seconds",
		Description: "Time to hand one invoice email to the SMTP server",
		Unit:        "s",
		Boundaries:  RenderDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.artifactsSwept, err = NewCounter(cfg.Meter,
		"storefront_invoice_artifacts_removed_total",
		"Stored invoice artifacts removed by retention cleanup",
		"{artifacts}",
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRender records one render attempt. errKind is empty on success.
func (m *InvoiceMetrics) RecordRender(ctx context.Context, d time.Duration, size int64, errKind string) {
	if m == nil {
		return
	}
	attrs := outcomeAttrs(errKind)
	m.renderTotal.Inc(ctx, attrs...)
	m.renderDuration.RecordDuration(ctx, d, attrs...)
	if errKind == "" {
		m.documentSize.Record(ctx, float64(size))
	}
}

// RecordEmail records one delivery attempt. errKind is empty on success.
func (m *InvoiceMetrics) RecordEmail(ctx context.Context, d time.Duration, errKind string) {
	if m == nil {
		return
	}
	attrs := outcomeAttrs(errKind)
	m.emailTotal.Inc(ctx, attrs...)
	m.emailDuration.RecordDuration(ctx, d, attrs...)
}

// RecordCleanup records artifacts removed by one cleanup run
func (m *InvoiceMetrics) RecordCleanup(ctx context.Context, removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.artifactsSwept.Add(ctx, int64(removed))
}

func outcomeAttrs(errKind string) []attribute.KeyValue {
	if errKind == "" {
		return []attribute.KeyValue{AttrOutcome.String(OutcomeSuccess)}
	}
	return []attribute.KeyValue{AttrOutcome.String(OutcomeFailure), AttrErrorKind.String(errKind)}
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewInvoiceMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
