package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultModel is the cross-encoder served by TEI by default.
const DefaultModel = "cross-encoder/ms-marco-MiniLM-L-6-v2"

// TEIConfig configures a text-embeddings-inference reranker endpoint.
type TEIConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// TEIScorer scores (query, text) pairs with a TEI /rerank endpoint.
type TEIScorer struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// NewTEIScorer creates a scorer and checks the service's /health endpoint.
// An unreachable service fails with ErrScorerUnavailable.
func NewTEIScorer(ctx context.Context, cfg TEIConfig, logger *zap.Logger) (*TEIScorer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrScorerUnavailable)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &TEIScorer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
	if err := s.health(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}

	logger.Info("reranker ready", zap.String("url", s.baseURL), zap.String("model", s.model))
	return s, nil
}

func (s *TEIScorer) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Score returns the service's score for each text, in input order.
func (s *TEIScorer) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return []float32{}, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", ErrScoreCount, len(results), len(texts))
	}

	scores := make([]float32, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) || seen[r.Index] {
			return nil, fmt.Errorf("rerank response has invalid index %d", r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	return scores, nil
}
