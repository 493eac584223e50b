package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	tel, err := New(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.False(t, tel.IsEnabled())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledWithOverrides(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	core, logs := observer.New(zap.InfoLevel)
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	tel, err := New(context.Background(), cfg, zap.New(core),
		WithSpanExporter(spans), WithMetricReader(reader), WithoutGlobals())
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())
	assert.Equal(t, 1, logs.FilterMessage("telemetry enabled").Len())

	ctx := context.Background()
	_, span := tel.Tracer("test").Start(ctx, "memory.capture")
	span.End()

	counter, err := tel.Meter("test").Int64Counter("captures")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	require.NoError(t, tel.ForceFlush(ctx))
	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "memory.capture", got[0].Name)
	service, ok := got[0].Resource.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "gitmem", service.AsString())

	require.NoError(t, tel.Shutdown(ctx))
	assert.False(t, tel.IsEnabled())
	assert.False(t, tel.Health().Healthy)
}

func TestNew_MetricsDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Metrics.Enabled = false

	tel, err := New(context.Background(), cfg, nil,
		WithSpanExporter(tracetest.NewInMemoryExporter()), WithoutGlobals())
	require.NoError(t, err)
	assert.Nil(t, tel.meterProvider)
	assert.NotNil(t, tel.tracerProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: false, Degraded: true}, tel.Health())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
}

func TestSetDegraded_LogsComponent(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tel := &Telemetry{config: NewDefaultConfig(), logger: zap.New(core)}
	tel.healthy.Store(true)

	tel.setDegraded("tracer provider", assert.AnError)

	assert.True(t, tel.Health().Degraded)
	entries := logs.FilterMessage("telemetry degraded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tracer provider", entries[0].ContextMap()["component"])
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "memory.search")
	span.SetAttributes(attribute.String("namespace", "decisions"))
	span.End()

	tt.AssertSpanExists(t, "memory.search")
	tt.AssertSpanAttribute(t, "memory.search", "namespace", "decisions")
	assert.Nil(t, tt.SpanByName("missing"))

	hist, err := tt.Meter("test").Float64Histogram("latency")
	require.NoError(t, err)
	hist.Record(ctx, 0.5)

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, "latency", rm.ScopeMetrics[0].Metrics[0].Name)
}
