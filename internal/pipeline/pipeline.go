// Package pipeline answers questions over the indexed papers:
// RETRIEVE -> RERANK -> FORMAT -> GENERATE.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/document"
	"github.com/fyrsmithlabs/paperqa/internal/generation"
	"github.com/fyrsmithlabs/paperqa/internal/logging"
	"github.com/fyrsmithlabs/paperqa/internal/reranker"
)

var tracer = otel.Tracer("paperqa.pipeline")

const (
	// AllSections disables section filtering.
	AllSections = "all"

	// DefaultBaseK is the number of candidates retrieved before reranking.
	DefaultBaseK = 25

	// NoContextSentinel is the formatted context when no evidence survives.
	NoContextSentinel = "No relevant context found."
)

// ErrEmptyQuestion is returned for blank questions before any work is done.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// Stage names a pipeline step.
type Stage string

const (
	StageRetrieve Stage = "RETRIEVE"
	StageRerank   Stage = "RERANK"
	StageFormat   Stage = "FORMAT"
	StageGenerate Stage = "GENERATE"
	StageDone     Stage = "DONE"
	StageFailed   Stage = "FAILED"
)

// StageError reports the stage a query failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Searcher retrieves candidate chunks.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int, filter map[string]string) ([]document.Chunk, error)
}

// Query is one question, optionally restricted to a section.
type Query struct {
	Question string
	// Section restricts retrieval to chunks with this section label.
	// Empty or AllSections searches everything.
	Section string
}

// Result is the answer with the evidence it was generated from.
type Result struct {
	Answer           string           `json:"answer"`
	ContextDocs      []document.Chunk `json:"context_docs"`
	FormattedContext string           `json:"formatted_context"`
}

// Pipeline wires retrieval, reranking and generation.
type Pipeline struct {
	searcher  Searcher
	reranker  reranker.Reranker
	generator generation.Generator
	baseK     int
	logger    *logging.Logger
}

// New creates a pipeline. A non-positive baseK takes DefaultBaseK.
func New(searcher Searcher, rr reranker.Reranker, gen generation.Generator, baseK int, logger *zap.Logger) (*Pipeline, error) {
	if searcher == nil || rr == nil || gen == nil {
		return nil, fmt.Errorf("searcher, reranker and generator are required")
	}
	if baseK <= 0 {
		baseK = DefaultBaseK
	}
	return &Pipeline{
		searcher:  searcher,
		reranker:  rr,
		generator: gen,
		baseK:     baseK,
		logger:    logging.Wrap(logger),
	}, nil
}

// Ask runs one question through every stage. It returns either a complete
// result or an error; a stage failure is a *StageError.
func (p *Pipeline) Ask(ctx context.Context, q Query) (*Result, error) {
	question := strings.TrimSpace(q.Question)
	if question == "" {
		QueriesTotal.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyQuestion
	}
	section := strings.TrimSpace(q.Section)

	ctx, span := tracer.Start(ctx, "Pipeline.Ask")
	defer span.End()
	span.SetAttributes(attribute.String("section", sectionLabel(section)))

	var (
		candidates []document.Chunk
		evidence   []document.Chunk
		formatted  string
		answer     string
	)

	stages := []struct {
		stage Stage
		run   func() error
	}{
		{StageRetrieve, func() (err error) {
			candidates, err = p.searcher.SimilaritySearch(ctx, question, p.baseK, sectionFilter(section))
			return err
		}},
		{StageRerank, func() (err error) {
			evidence, err = p.reranker.Rerank(ctx, question, candidates)
			return err
		}},
		{StageFormat, func() error {
			formatted = FormatContext(evidence)
			return nil
		}},
		{StageGenerate, func() (err error) {
			answer, err = p.generator.Generate(ctx, generation.BuildPrompt(formatted, question))
			return err
		}},
	}

	for _, s := range stages {
		start := time.Now()
		err := s.run()
		StageDuration.WithLabelValues(string(s.stage)).Observe(time.Since(start).Seconds())
		if err != nil {
			QueriesTotal.WithLabelValues("failed").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, string(s.stage))
			p.logger.Error(ctx, "query failed",
				zap.String("stage", string(s.stage)),
				zap.String("section", sectionLabel(section)),
				zap.Error(err),
			)
			return nil, &StageError{Stage: s.stage, Err: err}
		}
	}

	QueriesTotal.WithLabelValues("done").Inc()
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("evidence", len(evidence)),
	)
	span.SetStatus(codes.Ok, string(StageDone))
	p.logger.Info(ctx, "query answered",
		zap.String("section", sectionLabel(section)),
		zap.Int("candidates", len(candidates)),
		zap.Int("evidence", len(evidence)),
	)

	return &Result{
		Answer:           answer,
		ContextDocs:      evidence,
		FormattedContext: formatted,
	}, nil
}

// FormatContext renders evidence as numbered, labelled blocks separated by a
// blank line. No evidence yields NoContextSentinel.
func FormatContext(chunks []document.Chunk) string {
	if len(chunks) == 0 {
		return NoContextSentinel
	}
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("--- Document %d (Source: %s, Page: %d, Section: %s) ---\n%s",
			i+1, c.Metadata.Source, c.Metadata.Page, c.Metadata.Section, c.Text)
	}
	return strings.Join(blocks, "\n\n")
}

func sectionFilter(section string) map[string]string {
	if section == "" || strings.EqualFold(section, AllSections) {
		return nil
	}
	return map[string]string{document.KeySection: section}
}

func sectionLabel(section string) string {
	if section == "" {
		return AllSections
	}
	return section
}
