package logging

import (
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// WithOTel returns a logger that also emits every entry at or above the
// configured level to provider through the otelzap bridge, under the
// instrumentation scope name. A nil provider returns l unchanged.
//
// Redaction applies to the local encoder only; the collector receives
// fields as logged.
func (l *Logger) WithOTel(provider log.LoggerProvider, name string) (*Logger, error) {
	if provider == nil {
		return l, nil
	}

	var otelCore zapcore.Core = otelzap.NewCore(name, otelzap.WithLoggerProvider(provider))
	otelCore, err := zapcore.NewIncreaseLevelCore(otelCore, l.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create otel core: %w", err)
	}
	if len(l.fields) > 0 {
		otelCore = otelCore.With(l.fields)
	}

	zl := l.zap.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, otelCore)
	}))
	return &Logger{zap: zl, level: l.level, fields: l.fields}, nil
}
