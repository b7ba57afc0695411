package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
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

func TestHTTPMetrics_RecordsAskTraffic(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewHTTPMetrics(mp.Meter(httpInstrumentationName), zap.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/ask", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/ask"},
		{http.MethodPost, "/api/v1/ask"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	got := collect(t, reader)
	require.Contains(t, got, "paperqa.http.requests_total")
	require.Contains(t, got, "paperqa.http.request_duration_seconds")
	assert.Contains(t, got, "paperqa.http.response_size_bytes")

	sum, ok := got["paperqa.http.requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byStatus := map[int64]int64{}
	for _, dp := range sum.DataPoints {
		status, ok := dp.Attributes.Value("status")
		require.True(t, ok)
		byStatus[status.AsInt64()] += dp.Value
	}
	assert.Equal(t, map[int64]int64{http.StatusOK: 1, http.StatusBadRequest: 2}, byStatus)

	hist, ok := got["paperqa.http.request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var recorded uint64
	for _, dp := range hist.DataPoints {
		recorded += dp.Count
	}
	assert.Equal(t, uint64(3), recorded)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/", normalizePath(""))
	assert.Equal(t, "/api/v1/documents/status", normalizePath("/api/v1/documents/status"))
}
