package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrUnavailable indicates the embedding service failed its startup check.
	ErrUnavailable = errors.New("embedding service unavailable")
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// DefaultBatchSize matches TEI's default --max-client-batch-size.
const DefaultBatchSize = 32

// TEIConfig configures the text-embeddings-inference client.
type TEIConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration

	// BatchSize caps the inputs sent in one /embed request.
	BatchSize int
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", ErrInvalidConfig)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Service calls the TEI /embed endpoint.
type Service struct {
	config  TEIConfig
	client  *http.Client
	metrics *Metrics
}

// NewService creates a TEI client and checks that the service is up.
func NewService(ctx context.Context, cfg TEIConfig, metrics *Metrics, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil, logger)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	s := &Service{
		config:  cfg,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
	}
	if err := s.health(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, cfg.BaseURL, err)
	}
	logger.Info("tei embedding service ready",
		zap.String("url", cfg.BaseURL),
		zap.Int("batch_size", cfg.BatchSize),
	)
	return s, nil
}

func (s *Service) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+"/health", nil)
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

type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// EmbedDocuments embeds texts in requests of at most BatchSize inputs and
// returns the vectors in input order.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(texts))
		batch := texts[start:end]

		vectors, err := s.embed(ctx, "embed_documents", batch, len(batch))
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(batch))
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := s.embed(ctx, "embed_query", text, 1)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

func (s *Service) embed(ctx context.Context, operation string, inputs interface{}, batch int) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.Record(ctx, s.config.Model, operation, time.Since(start), batch, err)
	}()

	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// Dimension returns the configured vector size.
func (s *Service) Dimension() int {
	return s.config.Dimensions
}

// Close is a no-op for the HTTP client.
func (s *Service) Close() error {
	return nil
}
