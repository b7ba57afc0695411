// Package ingest turns pending PDFs into indexed chunks: OCR, extraction,
// a language quality gate, chunking and a retried idempotent insert.
// Every document ends succeeded, quarantined in the failed directory, or
// left pending for a later retry.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/document"
	"github.com/fyrsmithlabs/paperqa/internal/extraction"
	"github.com/fyrsmithlabs/paperqa/internal/logging"
	"github.com/fyrsmithlabs/paperqa/internal/signature"
	"github.com/fyrsmithlabs/paperqa/internal/vectorindex"
)

var tracer = otel.Tracer("paperqa.ingest")

var (
	// ErrExtraction is returned when no pages can be read from a document.
	ErrExtraction = extraction.ErrExtraction

	// ErrRetriesExhausted is returned when every insert attempt failed.
	ErrRetriesExhausted = errors.New("insert retries exhausted")
)

// Outcome is the terminal state of one document.
type Outcome string

const (
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeQuarantined Outcome = "quarantined"
	OutcomeRetryable   Outcome = "retryable"
)

// Quarantine reasons.
const (
	ReasonEncrypted   = "encrypted"
	ReasonCorrupt     = "corrupt"
	ReasonOCR         = "ocr"
	ReasonExtraction  = "extraction"
	ReasonUnsupported = "unsupported_content"
	ReasonExhausted   = "exhausted"
	ReasonTimeout     = "timeout"
	ReasonIndex       = "index"
	ReasonInternal    = "internal"
)

// Defaults for Options.
const (
	DefaultMaxAttempts   = 3
	DefaultTimeout       = 15 * time.Minute
	DefaultRetryInterval = time.Second
)

// Result describes how a document was handled.
type Result struct {
	Path        string
	Source      string
	Outcome     Outcome
	Reason      string
	Degraded    bool
	Language    string
	Pages       int
	Chunks      int
	ChunksAdded int
	Attempts    int
	Duration    time.Duration
	Err         error
}

// Extractor reads a PDF into pages.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]document.Page, error)
}

// Splitter cuts pages into chunks.
type Splitter interface {
	Split(pages []document.Page) ([]document.Chunk, error)
}

// Inserter stores chunks idempotently.
type Inserter interface {
	InsertBatch(ctx context.Context, chunks []document.Chunk) (int, error)
}

// Gate rejects low-quality documents, returning the detected language.
type Gate interface {
	Check(pages []document.Page) (string, error)
}

// Components are the steps a Processor runs.
type Components struct {
	OCR       OCR
	Extractor Extractor
	Gate      Gate
	Splitter  Splitter
	Index     Inserter
}

// Options tune retries and limits.
type Options struct {
	MaxAttempts        int
	Timeout            time.Duration
	RetryInterval      time.Duration
	FallbackToOriginal bool
}

// Processor runs one document through ingestion.
type Processor struct {
	dirs Dirs
	c    Components
	opts Options
	log  *logging.Logger
}

// NewProcessor creates a processor. A nil OCR copies input unchanged.
func NewProcessor(dirs Dirs, c Components, opts Options, logger *zap.Logger) (*Processor, error) {
	if c.Extractor == nil || c.Gate == nil || c.Splitter == nil || c.Index == nil {
		return nil, fmt.Errorf("extractor, gate, splitter and index are required")
	}
	if c.OCR == nil {
		c.OCR = NoopOCR{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	return &Processor{dirs: dirs, c: c, opts: opts, log: logging.Wrap(logger)}, nil
}

// Dirs returns the directories the processor moves files between.
func (p *Processor) Dirs() Dirs {
	return p.dirs
}

// Process handles the PDF at pendingPath. Cancelling ctx leaves the file
// pending; any other failure moves it to the failed directory.
func (p *Processor) Process(ctx context.Context, pendingPath string) Result {
	start := time.Now()
	name := filepath.Base(pendingPath)
	ctx = logging.WithDocument(ctx, name)

	ctx, span := tracer.Start(ctx, "Ingest.Process")
	defer span.End()
	span.SetAttributes(attribute.String("document", name))

	res := Result{Path: pendingPath, Source: name}
	p.log.Info(ctx, "processing document")

	unitCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	err := p.run(unitCtx, pendingPath, &res)
	timedOut := errors.Is(unitCtx.Err(), context.DeadlineExceeded)
	cancel()

	processed := p.dirs.processedPath(name)
	switch {
	case err == nil:
		res.Outcome = OutcomeSucceeded
		if rmErr := os.Remove(pendingPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.log.Warn(ctx, "failed to remove pending file", zap.Error(rmErr))
		}
		span.SetStatus(codes.Ok, "success")
		p.log.Info(ctx, "document indexed",
			zap.Int("pages", res.Pages),
			zap.Int("chunks", res.Chunks),
			zap.Int("added", res.ChunksAdded),
			zap.Bool("degraded", res.Degraded),
		)

	case ctx.Err() != nil:
		res.Outcome = OutcomeRetryable
		res.Err = ctx.Err()
		removeIfExists(processed)
		span.SetStatus(codes.Error, "cancelled")
		p.log.Warn(ctx, "document processing cancelled, left pending", zap.Error(ctx.Err()))

	default:
		res.Outcome = OutcomeQuarantined
		res.Reason = reasonFor(err)
		if timedOut {
			res.Reason = ReasonTimeout
		}
		res.Err = err
		p.quarantine(ctx, pendingPath, processed)
		span.RecordError(err)
		span.SetStatus(codes.Error, res.Reason)
		p.log.Error(ctx, "document quarantined",
			zap.String("reason", res.Reason),
			zap.Int("attempts", res.Attempts),
			zap.Error(err),
		)
	}

	res.Duration = time.Since(start)
	DocumentsTotal.WithLabelValues(string(res.Outcome), res.Reason).Inc()
	DocumentDuration.Observe(res.Duration.Seconds())
	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Int("chunks_added", res.ChunksAdded),
	)
	return res
}

func (p *Processor) run(ctx context.Context, pendingPath string, res *Result) error {
	processed := p.dirs.processedPath(res.Source)

	if err := p.c.OCR.Run(ctx, pendingPath, processed); err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrEncrypted) || errors.Is(err, ErrCorruptInput) {
			return err
		}
		if !p.opts.FallbackToOriginal {
			if errors.Is(err, ErrOCR) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrOCR, err)
		}
		p.log.Warn(ctx, "ocr failed, continuing with original file", zap.Error(err))
		if err := copyFile(pendingPath, processed); err != nil {
			return fmt.Errorf("copying original: %w", err)
		}
		res.Degraded = true
	}

	pages, err := p.c.Extractor.Extract(ctx, processed)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrExtraction) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if len(pages) == 0 {
		return fmt.Errorf("%w: no pages extracted", ErrExtraction)
	}
	res.Pages = len(pages)

	lang, err := p.c.Gate.Check(pages)
	res.Language = lang
	if err != nil {
		return err
	}

	chunks, err := p.c.Splitter.Split(pages)
	if err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks produced", ErrUnsupportedContent)
	}
	res.Chunks = len(chunks)

	added, err := p.insert(ctx, chunks, res)
	res.ChunksAdded = added
	return err
}

// insert retries store-write failures with exponential backoff. Other
// index errors are not retried.
func (p *Processor) insert(ctx context.Context, chunks []document.Chunk, res *Result) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.RetryInterval

	op := func() (int, error) {
		res.Attempts++
		n, err := p.c.Index.InsertBatch(ctx, chunks)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, vectorindex.ErrStoreWrite) {
			return 0, err
		}
		return n, backoff.Permanent(err)
	}

	n, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			InsertRetries.Inc()
			p.log.Warn(ctx, "chunk insert failed, retrying",
				zap.Int("attempt", res.Attempts),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil && ctx.Err() == nil && errors.Is(err, vectorindex.ErrStoreWrite) {
		return n, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, res.Attempts, err)
	}
	return n, err
}

func (p *Processor) quarantine(ctx context.Context, pendingPath, processed string) {
	if _, err := os.Stat(pendingPath); err == nil {
		if err := moveFile(pendingPath, p.dirs.failedPath(filepath.Base(pendingPath))); err != nil {
			p.log.Error(ctx, "failed to move document to failed directory", zap.Error(err))
		}
	}
	removeIfExists(processed)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrEncrypted):
		return ReasonEncrypted
	case errors.Is(err, ErrCorruptInput):
		return ReasonCorrupt
	case errors.Is(err, ErrOCR):
		return ReasonOCR
	case errors.Is(err, ErrExtraction):
		return ReasonExtraction
	case errors.Is(err, ErrUnsupportedContent):
		return ReasonUnsupported
	case errors.Is(err, ErrRetriesExhausted):
		return ReasonExhausted
	case errors.Is(err, vectorindex.ErrIndexPersist),
		errors.Is(err, vectorindex.ErrStoreWrite),
		errors.Is(err, signature.ErrCorruptIndex):
		return ReasonIndex
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonInternal
	}
}

func removeIfExists(path string) {
	_ = os.Remove(path) // best-effort
}
