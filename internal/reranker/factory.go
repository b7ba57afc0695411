package reranker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/config"
)

// New builds the configured cross-encoder. The tei provider checks the
// service and fails when it is unavailable.
func New(ctx context.Context, cfg config.RerankerConfig, logger *zap.Logger) (*CrossEncoder, error) {
	var scorer Scorer
	switch cfg.Provider {
	case "tei":
		s, err := NewTEIScorer(ctx, TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout.Duration(),
		}, logger)
		if err != nil {
			return nil, err
		}
		scorer = s
	case "lexical":
		scorer = NewLexicalScorer()
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrScorerUnavailable, cfg.Provider)
	}
	return NewCrossEncoder(scorer, cfg.TopN, cfg.BatchSize, logger)
}
