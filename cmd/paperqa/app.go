package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/chunker"
	"github.com/fyrsmithlabs/paperqa/internal/config"
	"github.com/fyrsmithlabs/paperqa/internal/embeddings"
	"github.com/fyrsmithlabs/paperqa/internal/extraction"
	"github.com/fyrsmithlabs/paperqa/internal/generation"
	"github.com/fyrsmithlabs/paperqa/internal/ingest"
	"github.com/fyrsmithlabs/paperqa/internal/logging"
	"github.com/fyrsmithlabs/paperqa/internal/pipeline"
	"github.com/fyrsmithlabs/paperqa/internal/reranker"
	"github.com/fyrsmithlabs/paperqa/internal/signature"
	"github.com/fyrsmithlabs/paperqa/internal/telemetry"
	"github.com/fyrsmithlabs/paperqa/internal/vectorindex"
	"github.com/fyrsmithlabs/paperqa/internal/vectorstore"
)

// app holds the configuration and shared services of one command run.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Telemetry

	// closers run in reverse order on Close.
	closers []func() error
}

// newApp loads configuration and initializes logging and telemetry.
func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logCfg := logging.NewDefaultConfig()
	if err := cfg.Section("logging", logCfg); err != nil {
		return nil, err
	}
	log, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := log.Underlying()

	telCfg := telemetry.NewDefaultConfig()
	if err := cfg.Section("telemetry", telCfg); err != nil {
		return nil, err
	}
	tel, err := telemetry.New(ctx, telCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if log, err = log.WithOTel(tel.LoggerProvider(), telCfg.ServiceName); err != nil {
		return nil, err
	}
	logger = log.Underlying()

	a := &app{cfg: cfg, logger: logger, telemetry: tel}
	a.onClose(func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telCfg.ShutdownAfter.Duration())
		defer cancel()
		return tel.Shutdown(shutdownCtx)
	})
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases everything opened by the app.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error during shutdown", zap.Error(err))
		}
	}
	_ = a.logger.Sync() // Best-effort sync on shutdown
}

// index opens the embedder, vector store and signature index.
func (a *app) index(ctx context.Context) (*vectorindex.Index, error) {
	embedder, err := embeddings.NewProvider(ctx, a.cfg.Embeddings, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	a.onClose(embedder.Close)

	store, err := vectorstore.NewStore(a.cfg.Storage, embedder, embedder.Dimension(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	a.onClose(store.Close)

	sigs, err := a.signatures()
	if err != nil {
		return nil, err
	}

	a.logger.Info("vector index ready",
		zap.String("backend", a.cfg.Storage.Backend),
		zap.String("collection", a.cfg.Storage.Collection),
		zap.String("embeddings", a.cfg.Embeddings.Provider),
		zap.String("signatures", sigs.Path()))

	return vectorindex.New(store, sigs, signature.Hasher{PrefixChars: a.cfg.Dedup.SignaturePrefixChars}, a.logger)
}

// signatures loads the Signature Index kept beside the vector store.
func (a *app) signatures() (*signature.Index, error) {
	dir, err := vectorstore.ExpandPath(a.cfg.Storage.PersistDir)
	if err != nil {
		return nil, fmt.Errorf("invalid persist dir: %w", err)
	}
	sigs := signature.NewIndex(dir, a.logger)
	if err := sigs.Load(); err != nil {
		return nil, err
	}
	return sigs, nil
}

// pipeline builds retrieval, reranking and generation over idx.
func (a *app) pipeline(ctx context.Context, idx *vectorindex.Index) (*pipeline.Pipeline, error) {
	rr, err := reranker.New(ctx, a.cfg.Reranker, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reranker: %w", err)
	}
	gen, err := generation.NewOpenAIGenerator(ctx, a.cfg.Generation, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	return pipeline.New(idx, rr, gen, a.cfg.Retrieval.BaseK, a.logger)
}

// processor builds the ingestion processor writing into idx.
func (a *app) processor(idx *vectorindex.Index) (*ingest.Processor, error) {
	dirs := ingest.NewDirs(a.cfg.Dirs)
	if err := dirs.Ensure(); err != nil {
		return nil, err
	}

	gate, err := ingest.NewQualityGate(a.cfg.Ingest.MinSampleChars, a.cfg.Ingest.Languages)
	if err != nil {
		return nil, err
	}
	splitter, err := chunker.New(chunker.Config{
		ChunkSize:    a.cfg.Chunking.ChunkSize,
		ChunkOverlap: a.cfg.Chunking.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	return ingest.NewProcessor(dirs, ingest.Components{
		OCR:       ingest.NewOCR(a.cfg.Ingest.OCR, a.logger),
		Extractor: extraction.NewExtractor(a.logger),
		Gate:      gate,
		Splitter:  splitter,
		Index:     idx,
	}, ingest.Options{
		MaxAttempts:        a.cfg.Ingest.MaxAttempts,
		Timeout:            a.cfg.Ingest.Timeout.Duration(),
		RetryInterval:      time.Second,
		FallbackToOriginal: a.cfg.Ingest.OCR.FallbackToOriginal,
	}, a.logger)
}
