// Package reranker reorders retrieved chunks by query relevance and keeps
// the best few.
package reranker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/document"
)

var tracer = otel.Tracer("paperqa.reranker")

const (
	// DefaultTopN is the number of chunks kept after reranking.
	DefaultTopN = 5

	// DefaultBatchSize is the number of texts scored per scorer call, TEI's
	// default --max-client-batch-size.
	DefaultBatchSize = 32
)

var (
	// ErrScorerUnavailable is returned when no relevance scorer can be used.
	ErrScorerUnavailable = errors.New("relevance scorer unavailable")

	// ErrScoreCount is returned when a scorer returns the wrong number of scores.
	ErrScoreCount = errors.New("scorer returned wrong number of scores")
)

// Reranker orders candidates by relevance to a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []document.Chunk) ([]document.Chunk, error)
}

// Scorer assigns a relevance score to each text, in input order.
// Higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float32, error)
}

// CrossEncoder reranks with a pairwise (query, text) scorer.
type CrossEncoder struct {
	scorer    Scorer
	topN      int
	batchSize int
	logger    *zap.Logger
}

// NewCrossEncoder creates a reranker. Non-positive topN or batchSize take
// the defaults.
func NewCrossEncoder(scorer Scorer, topN, batchSize int, logger *zap.Logger) (*CrossEncoder, error) {
	if scorer == nil {
		return nil, ErrScorerUnavailable
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrossEncoder{scorer: scorer, topN: topN, batchSize: batchSize, logger: logger}, nil
}

// TopN returns the result bound.
func (r *CrossEncoder) TopN() int {
	return r.topN
}

// Rerank scores every candidate and returns at most TopN of them by
// descending score. Equal scores keep their input order.
func (r *CrossEncoder) Rerank(ctx context.Context, query string, candidates []document.Chunk) ([]document.Chunk, error) {
	if len(candidates) == 0 {
		return []document.Chunk{}, nil
	}

	ctx, span := tracer.Start(ctx, "CrossEncoder.Rerank")
	defer span.End()
	span.SetAttributes(attribute.Int("candidates", len(candidates)), attribute.Int("top_n", r.topN))

	scores, err := r.scoreAll(ctx, query, candidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring failed")
		return nil, err
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	n := min(r.topN, len(candidates))
	out := make([]document.Chunk, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[order[i]]
	}

	r.logger.Debug("reranked candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", n),
		zap.Float32("top_score", scores[order[0]]),
	)
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

func (r *CrossEncoder) scoreAll(ctx context.Context, query string, candidates []document.Chunk) ([]float32, error) {
	scores := make([]float32, 0, len(candidates))
	for start := 0; start < len(candidates); start += r.batchSize {
		end := min(start+r.batchSize, len(candidates))
		texts := make([]string, 0, end-start)
		for _, c := range candidates[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := r.scorer.Score(ctx, query, texts)
		if err != nil {
			return nil, fmt.Errorf("scoring batch %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: got %d for %d texts", ErrScoreCount, len(batch), len(texts))
		}
		scores = append(scores, batch...)
	}
	return scores, nil
}
