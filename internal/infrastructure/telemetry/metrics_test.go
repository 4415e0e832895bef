package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

// setupTestMeter returns a meter provider collecting into a manual reader
func setupTestMeter(t *testing.T) (*telemetry.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	original := otel.GetMeterProvider()
	reader := sdkmetric.NewManualReader()
	mp, err := telemetry.NewMeterProviderWithReader(telemetry.MetricsConfig{
		ServiceName: "storefront-test",
	}, reader, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		_ = mp.Shutdown(context.Background())
	})
	return mp, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ExportInterval:    60 * time.Second,
		ServiceName:       "storefront-test",
	}

	mp, err := telemetry.NewMeterProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestNewMeterProvider_Enabled(t *testing.T) {
	ctx := context.Background()
	original := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(original) })

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "storefront-test",
		Insecure:          true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.True(t, mp.IsEnabled())
	// the final export may fail without a collector listening
	_ = mp.Shutdown(ctx)
}

func TestCounter(t *testing.T) {
	mp, reader := setupTestMeter(t)
	ctx := context.Background()

	counter, err := telemetry.NewCounter(mp.Meter("test"), "test_counter", "Test counter", "{calls}")
	require.NoError(t, err)

	counter.Add(ctx, 5, telemetry.AttrOutcome.String(telemetry.OutcomeSuccess))
	counter.Inc(ctx, telemetry.AttrOutcome.String(telemetry.OutcomeSuccess))
	counter.Inc(ctx, telemetry.AttrOutcome.String(telemetry.OutcomeFailure))

	sum, ok := collect(t, reader)["test_counter"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.True(t, sum.IsMonotonic)

	byOutcome := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(telemetry.AttrOutcome)
		byOutcome[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"success": 6, "failure": 1}, byOutcome)
}

func TestHistogram(t *testing.T) {
	tests := []struct {
		name       string
		boundaries []float64
		record     func(ctx context.Context, h *telemetry.Histogram)
		count      uint64
		sum        float64
	}{
		{
			name:       "render duration buckets",
			boundaries: telemetry.RenderDurationBuckets,
			record: func(ctx context.Context, h *telemetry.Histogram) {
				h.RecordDuration(ctx, 250*time.Millisecond)
				h.RecordDuration(ctx, 750*time.Millisecond)
			},
			count: 2,
			sum:   1.0,
		},
		{
			name:       "document size buckets",
			boundaries: telemetry.DocumentSizeBuckets,
			record: func(ctx context.Context, h *telemetry.Histogram) {
				h.Record(ctx, 2048)
			},
			count: 1,
			sum:   2048,
		},
		{
			name: "default buckets",
			record: func(ctx context.Context, h *telemetry.Histogram) {
				h.Record(ctx, 3)
			},
			count: 1,
			sum:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp, reader := setupTestMeter(t)

			h, err := telemetry.NewHistogram(mp.Meter("test"), telemetry.HistogramOpts{
				Name:        "test_histogram",
				Description: "Test histogram",
				Unit:        "s",
				Boundaries:  tt.boundaries,
			})
			require.NoError(t, err)
			tt.record(context.Background(), h)

			hist, ok := collect(t, reader)["test_histogram"].Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			require.Len(t, hist.DataPoints, 1)
			dp := hist.DataPoints[0]
			assert.Equal(t, tt.count, dp.Count)
			assert.InDelta(t, tt.sum, dp.Sum, 1e-9)
			if tt.boundaries != nil {
				assert.Equal(t, tt.boundaries, dp.Bounds)
			}
		})
	}
}

func TestBucketsAreSorted(t *testing.T) {
	for _, buckets := range [][]float64{telemetry.RenderDurationBuckets, telemetry.DocumentSizeBuckets} {
		assert.IsIncreasing(t, buckets)
	}
}
