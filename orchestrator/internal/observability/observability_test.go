package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.False(t, cfg.Enabled)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.ObservabilityConfig{
		Enabled:    true,
		Endpoint:   "otel:4317",
		Insecure:   true,
		SampleRate: 0.25,
	}, "1.2.3")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otel:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "warehousepulse-orchestrator", cfg.ServiceName)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())

	_, done := p.TrackOperation(context.Background(), "stage.execute")
	assert.NotPanics(t, func() { done(errors.New("boom")) })
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTrackOperation(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	p, err := NewWithProviders(tp, mp)
	require.NoError(t, err)

	ctx := context.Background()
	_, done := p.TrackOperation(ctx, "stage.execute", attribute.String("stage", "extract"))
	done(nil)
	_, done = p.TrackOperation(ctx, "stage.execute", attribute.String("stage", "load"))
	done(errors.New("connection refused"))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "stage.execute", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "connection refused", ended[1].Status().Description)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), totals["warehousepulse.operations.total"])
	assert.Equal(t, int64(1), totals["warehousepulse.errors.total"])
	assert.Equal(t, int64(0), totals["warehousepulse.operations.active"])
}

func TestTrackOperationNilProvider(t *testing.T) {
	var p *Provider
	ctx, done := p.TrackOperation(context.Background(), "noop")
	require.NotNil(t, ctx)
	assert.NotPanics(t, func() { done(nil) })
}
