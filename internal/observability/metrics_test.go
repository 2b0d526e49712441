package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"resourcekit/internal/resterr"
)

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

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewMetrics(provider.Meter(MeterName))
	require.NoError(t, err)
	return metrics, reader
}

func sumFor(t *testing.T, m metricdata.Metrics, attr attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
			total += dp.Value
		}
	}
	return total
}

func TestRecordCompile(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordCompile(ctx, "articles", CompileStats{
		ByStrategy: map[string]int{"basic": 2, "cross_table": 1, "polymorphic": 0},
		Skipped:    1,
		Joins:      3,
	}, nil)
	metrics.RecordCompile(ctx, "articles", CompileStats{}, resterr.Configurationf("bad path"))

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, got["resourcekit.filters.compiled"], attribute.String("strategy", "basic")))
	assert.Equal(t, int64(1), sumFor(t, got["resourcekit.filters.compiled"], attribute.String("strategy", "cross_table")))
	assert.Equal(t, int64(0), sumFor(t, got["resourcekit.filters.compiled"], attribute.String("strategy", "polymorphic")))
	assert.Equal(t, int64(1), sumFor(t, got["resourcekit.filters.skipped"], attribute.String("resource", "articles")))
	assert.Equal(t, int64(3), sumFor(t, got["resourcekit.joins.emitted"], attribute.String("resource", "articles")))
	assert.Equal(t, int64(1), sumFor(t, got["resourcekit.filters.errors"], attribute.String("kind", "configuration")))
}

func TestRecordSync(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordSync(ctx, "tags", 2, 1, 5*time.Millisecond, nil)
	metrics.RecordSync(ctx, "tags", 0, 0, time.Millisecond, errors.New("driver exploded"))

	got := collect(t, reader)
	rel := attribute.String("relationship", "tags")
	assert.Equal(t, int64(2), sumFor(t, got["resourcekit.pivot.rows_added"], rel))
	assert.Equal(t, int64(1), sumFor(t, got["resourcekit.pivot.rows_removed"], rel))
	assert.Equal(t, int64(1), sumFor(t, got["resourcekit.pivot.sync.errors"], attribute.String("kind", "internal")))

	hist, ok := got["resourcekit.pivot.sync.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)

	gauge, ok := got["resourcekit.pivot.sync.last_success_unix"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Greater(t, gauge.DataPoints[0].Value, int64(0))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.RecordCompile(context.Background(), "articles", CompileStats{Joins: 1}, nil)
		metrics.RecordSync(context.Background(), "tags", 1, 1, time.Millisecond, nil)
	})
}
