package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"

	"github.com/fyrsmithlabs/paperqa/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)
	assert.False(t, tel.Degraded())

	_, span := tel.Tracer("test").Start(context.Background(), "noop")
	span.End()
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Degraded())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled local", func(c *Config) { c.Enabled = true }, false},
		{"enabled loopback v6", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"http local with scheme", func(c *Config) {
			c.Enabled = true
			c.Protocol = "http/protobuf"
			c.Endpoint = "http://127.0.0.1:4318"
		}, false},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "collector.example.com:4317" }, true},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "collector.example.com:4317"
			c.Insecure = false
		}, false},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, true},
		{"bad rate", func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 }, true},
		{"zero interval", func(c *Config) { c.Enabled = true; c.ExportInterval = 0 }, true},
		{"zero shutdown", func(c *Config) { c.Enabled = true; c.ShutdownAfter = config.Duration(0) }, true},
		{"missing service", func(c *Config) { c.Enabled = true; c.ServiceName = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTestTelemetry_RecordsSpans(t *testing.T) {
	tel := NewTestTelemetry()
	ctx, span := tel.Tracer("paperqa.test").Start(context.Background(), "pipeline.ask")
	span.SetAttributes(attribute.String("section", "all"))
	_, child := tel.Tracer("paperqa.test").Start(ctx, "pipeline.retrieve")
	child.End()
	span.End()

	tel.AssertSpanExists(t, "pipeline.ask")
	tel.AssertSpanExists(t, "pipeline.retrieve")
	assert.Nil(t, tel.SpanByName("missing"))

	root := tel.SpanByName("pipeline.ask")
	assert.Equal(t, root.SpanContext().TraceID(), tel.SpanByName("pipeline.retrieve").Parent().TraceID())
}

func TestTestTelemetry_RecordsMetrics(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	counter, err := tel.Meter("paperqa.test").Int64Counter("paperqa.test.calls")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	assert.Contains(t, tel.MetricNames(ctx), "paperqa.test.calls")
}

func TestTestTelemetry_RecordsLogs(t *testing.T) {
	tel := NewTestTelemetry()

	var rec log.Record
	rec.SetSeverity(log.SeverityWarn)
	rec.SetBody(log.StringValue("ocr failed"))
	rec.AddAttributes(log.String("source", "a.pdf"))
	tel.LoggerProvider().Logger("paperqa").Emit(context.Background(), rec)

	records := tel.LogRecorder.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "paperqa", records[0].Scope)
	assert.Equal(t, log.SeverityWarn, records[0].Severity)
	assert.Equal(t, "ocr failed", records[0].Body)
	assert.Equal(t, "a.pdf", records[0].Attrs["source"])
}

func TestNew_DisabledHasNoLoggerProvider(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)
	assert.Nil(t, tel.LoggerProvider())

	var nilTel *Telemetry
	assert.Nil(t, nilTel.LoggerProvider())
}

func TestTelemetry_ShutdownWithProviders(t *testing.T) {
	tel := NewTestTelemetry()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tel.Shutdown(ctx))
}
