// Package logging builds the zap loggers used across paperqa.
//
// Components accept a plain *zap.Logger. Logger wraps one with
// context-aware methods that attach request, document and trace fields:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	ctx = logging.WithRequestID(ctx, requestID)
//	logger.Info(ctx, "query answered", zap.Int("docs", 5))
//
// Tests use NewTestLogger, which records entries in memory for assertions.
package logging
