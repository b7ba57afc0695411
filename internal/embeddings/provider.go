package embeddings

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/config"
	"github.com/fyrsmithlabs/paperqa/internal/vectorstore"
)

// Provider is an embedder with a known vector size.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// NewProvider builds the configured provider, rate limited when
// cfg.RateLimit is positive.
func NewProvider(ctx context.Context, cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := NewMetrics(nil, logger)

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "tei":
		p, err = NewService(ctx, TEIConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		}, metrics, logger)
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			APIKey:     cfg.APIKey.Value(),
			Dimensions: cfg.Dimensions,
		}, metrics)
	case "fastembed":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		}, metrics)
	case "hash":
		p, err = NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", p.Dimension()),
	)

	if cfg.RateLimit > 0 {
		return NewRateLimited(p, cfg.RateLimit, cfg.Burst), nil
	}
	return p, nil
}
