package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the invoicing spans
const TracerName = "storefront-backend"

// Span attribute keys of the invoicing spans
const (
	SpanAttrOrderID      = "order_id"
	SpanAttrArtifactName = "invoice.artifact"
	SpanAttrItemCount    = "invoice.items"
	SpanAttrPageCount    = "invoice.pages"
	SpanAttrBytes        = "invoice.bytes"
	SpanAttrRecipient    = "email.recipient_domain"
	SpanAttrCacheHit     = "cache.hit"
)

// SpanOption configures a span started by StartSpan
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind  trace.SpanKind
	attrs []attribute.KeyValue
}

// WithAttribute sets an attribute at span start
func WithAttribute(key string, value any) SpanOption {
	return func(c *spanConfig) {
		c.attrs = append(c.attrs, toAttribute(key, value))
	}
}

// WithSpanKind overrides the default internal span kind
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(c *spanConfig) {
		c.kind = kind
	}
}

// StartSpan starts a span on the global tracer provider. The caller ends it.
//
//	ctx, span := telemetry.StartSpan(ctx, "invoice.render")
//	defer span.End()
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	c := spanConfig{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(&c)
	}

	startOpts := []trace.SpanStartOption{trace.WithSpanKind(c.kind)}
	if len(c.attrs) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(c.attrs...))
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, startOpts...)
}

// StartServiceSpan starts a span named "{service}.{method}"
func StartServiceSpan(ctx context.Context, service, method string, opts ...SpanOption) (context.Context, trace.Span) {
	return StartSpan(ctx, service+"."+method, opts...)
}

// SetAttribute sets one attribute. A nil span is ignored.
func SetAttribute(span trace.Span, key string, value any) {
	if span != nil {
		span.SetAttributes(toAttribute(key, value))
	}
}

// SetAttributes sets alternating key/value pairs. Pairs with a non-string
// key are skipped.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span != nil {
		span.SetAttributes(pairsToAttributes(keyValues)...)
	}
}

// AddEvent adds an event carrying alternating key/value pairs
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span != nil {
		span.AddEvent(name, trace.WithAttributes(pairsToAttributes(keyValues)...))
	}
}

// RecordError records err and marks the span failed. A nil err is ignored.
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span successful
func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

func pairsToAttributes(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		if key, ok := keyValues[i].(string); ok {
			attrs = append(attrs, toAttribute(key, keyValues[i+1]))
		}
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case []int:
		return attribute.IntSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
