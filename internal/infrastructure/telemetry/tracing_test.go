package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs a tracer provider backed by an in-memory recorder
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestStartSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartSpan(context.Background(), "invoice.render",
		telemetry.WithAttribute(telemetry.SpanAttrItemCount, 3),
		telemetry.WithSpanKind(trace.SpanKindServer),
	)
	require.NotNil(t, ctx)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "invoice.render", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Equal(t, telemetry.TracerName, spans[0].InstrumentationScope().Name)
	assert.Equal(t, int64(3), attrMap(spans[0].Attributes())[telemetry.SpanAttrItemCount].AsInt64())
}

func TestStartServiceSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "invoice_service", "generate")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "invoice_service.generate", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
}

func TestNestedSpans(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, parent := telemetry.StartServiceSpan(context.Background(), "invoice_service", "email")
	_, child := telemetry.StartSpan(ctx, "invoice.render")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[0].SpanContext().TraceID())
}

func TestSetAttributes(t *testing.T) {
	sr := setupTestTracer(t)
	orderID := uuid.New()

	_, span := telemetry.StartSpan(context.Background(), "attrs")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, orderID,
		telemetry.SpanAttrBytes, int64(2048),
		42, "skipped",
		telemetry.SpanAttrCacheHit, true,
		"dangling",
	)
	telemetry.SetAttribute(span, telemetry.SpanAttrArtifactName, "invoice.pdf")
	span.End()

	attrs := attrMap(sr.Ended()[0].Attributes())
	assert.Len(t, attrs, 4)
	assert.Equal(t, orderID.String(), attrs[telemetry.SpanAttrOrderID].AsString())
	assert.Equal(t, int64(2048), attrs[telemetry.SpanAttrBytes].AsInt64())
	assert.True(t, attrs[telemetry.SpanAttrCacheHit].AsBool())
	assert.Equal(t, "invoice.pdf", attrs[telemetry.SpanAttrArtifactName].AsString())
}

func TestAttributeTypes(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "types")
	telemetry.SetAttributes(span,
		"float", 1.5,
		"strings", []string{"a", "b"},
		"ints", []int{1, 2},
		"flag", true,
		"other", struct{ N int }{7},
	)
	span.End()

	attrs := attrMap(sr.Ended()[0].Attributes())
	assert.Equal(t, 1.5, attrs["float"].AsFloat64())
	assert.Equal(t, []string{"a", "b"}, attrs["strings"].AsStringSlice())
	assert.Equal(t, []int64{1, 2}, attrs["ints"].AsInt64Slice())
	assert.True(t, attrs["flag"].AsBool())
	assert.Equal(t, "{7}", attrs["other"].AsString())
}

func TestRecordErrorAndSetOK(t *testing.T) {
	sr := setupTestTracer(t)

	_, failed := telemetry.StartSpan(context.Background(), "failed")
	telemetry.RecordError(failed, errors.New("sink closed"))
	failed.End()

	_, ok := telemetry.StartSpan(context.Background(), "ok")
	telemetry.RecordError(ok, nil)
	telemetry.SetOK(ok)
	ok.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "sink closed", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)

	assert.Equal(t, codes.Ok, spans[1].Status().Code)
	assert.Empty(t, spans[1].Events())
}

func TestAddEvent(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "events")
	telemetry.AddEvent(span, "artifact.stored", telemetry.SpanAttrBytes, 512)
	span.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "artifact.stored", events[0].Name)
	assert.Equal(t, int64(512), attrMap(events[0].Attributes)[telemetry.SpanAttrBytes].AsInt64())
}

func TestNilSpanHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.SetAttributes(nil, "k", "v")
		telemetry.SetAttribute(nil, "k", "v")
		telemetry.RecordError(nil, errors.New("x"))
		telemetry.SetOK(nil)
		telemetry.AddEvent(nil, "e")
	})
}
