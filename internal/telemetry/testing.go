package telemetry

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// TestTelemetry records spans, metrics and log records in memory.
type TestTelemetry struct {
	*Telemetry

	SpanRecorder *tracetest.SpanRecorder
	LogRecorder  *LogRecorder
	reader       *sdkmetric.ManualReader
}

// NewTestTelemetry creates telemetry backed by in-memory exporters.
// Providers are not installed globally.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	recorder := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	logs := &LogRecorder{}

	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			logger:         zap.NewNop(),
			tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
			logProvider:    logs,
		},
		SpanRecorder: recorder,
		LogRecorder:  logs,
		reader:       reader,
	}
}

// Spans returns all ended spans.
func (t *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return t.SpanRecorder.Ended()
}

// SpanByName finds an ended span by name, or nil.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, span := range t.Spans() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// AssertSpanExists verifies a span with the given name ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.SpanByName(name) == nil {
		names := make([]string, 0, len(t.Spans()))
		for _, s := range t.Spans() {
			names = append(names, s.Name())
		}
		tb.Errorf("expected span %q not found, got: %v", name, names)
	}
}

// Collect gathers current metric data.
func (t *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.reader.Collect(ctx, &rm)
	return rm, err
}

// MetricNames lists every metric recorded so far.
func (t *TestTelemetry) MetricNames(ctx context.Context) []string {
	rm, err := t.Collect(ctx)
	if err != nil {
		return nil
	}
	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	return names
}

// LogRecord is one emitted log entry.
type LogRecord struct {
	Scope    string
	Severity log.Severity
	Body     string
	Attrs    map[string]string
}

// LogRecorder is a log.LoggerProvider keeping every record in memory.
type LogRecorder struct {
	embedded.LoggerProvider

	mu      sync.Mutex
	records []LogRecord
}

// Logger returns a logger recording under scope name.
func (r *LogRecorder) Logger(name string, _ ...log.LoggerOption) log.Logger {
	return &recordingLogger{scope: name, recorder: r}
}

// Records returns a copy of everything emitted so far.
func (r *LogRecorder) Records() []LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogRecord(nil), r.records...)
}

type recordingLogger struct {
	embedded.Logger

	scope    string
	recorder *LogRecorder
}

func (l *recordingLogger) Emit(_ context.Context, rec log.Record) {
	out := LogRecord{
		Scope:    l.scope,
		Severity: rec.Severity(),
		Body:     rec.Body().AsString(),
		Attrs:    make(map[string]string, rec.AttributesLen()),
	}
	rec.WalkAttributes(func(kv log.KeyValue) bool {
		out.Attrs[kv.Key] = kv.Value.String()
		return true
	})

	l.recorder.mu.Lock()
	l.recorder.records = append(l.recorder.records, out)
	l.recorder.mu.Unlock()
}

func (l *recordingLogger) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}
