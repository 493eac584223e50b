package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = m.Data
		}
	}
	return found
}

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), zap.NewNop())

	ctx := context.Background()
	m.RecordGeneration(ctx, "hash-xxh64-8", "encode", 10*time.Millisecond, 3, nil)
	m.RecordGeneration(ctx, "hash-xxh64-8", "encode", 5*time.Millisecond, 1, errors.New("boom"))

	found := collect(t, reader)
	require.Contains(t, found, "gitmem.embedding.encode_duration_seconds")
	require.Contains(t, found, "gitmem.embedding.batch_size")
	require.Contains(t, found, "gitmem.embedding.errors_total")

	sum, ok := found["gitmem.embedding.errors_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestMetrics_NoErrorNoCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), nil)

	m.RecordGeneration(context.Background(), "m", "encode", time.Millisecond, 0, nil)

	found := collect(t, reader)
	assert.Contains(t, found, "gitmem.embedding.encode_duration_seconds")
	assert.NotContains(t, found, "gitmem.embedding.errors_total")
	assert.NotContains(t, found, "gitmem.embedding.batch_size")
}
