// Package vectorindex pairs a vector store with the signature index to give
// idempotent chunk insertion and metadata-filtered similarity search.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/document"
	"github.com/fyrsmithlabs/paperqa/internal/signature"
	"github.com/fyrsmithlabs/paperqa/internal/vectorstore"
)

var tracer = otel.Tracer("paperqa.vectorindex")

var (
	// ErrStoreWrite is returned when the store rejects a batch. The signature
	// index is left untouched, so the batch can be retried.
	ErrStoreWrite = errors.New("vector store write failed")

	// ErrIndexPersist is returned when chunks were stored but the signature
	// index file could not be written.
	ErrIndexPersist = errors.New("signature index persist failed")
)

// Index is the deduplicating chunk index.
type Index struct {
	store      vectorstore.Store
	signatures *signature.Index
	hasher     signature.Hasher
	logger     *zap.Logger

	// mu serialises the check, insert and commit sequence.
	mu sync.Mutex
}

// New creates an index over store, keeping signatures in sigs.
func New(store vectorstore.Store, sigs *signature.Index, hasher signature.Hasher, logger *zap.Logger) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if sigs == nil {
		return nil, fmt.Errorf("signature index cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{store: store, signatures: sigs, hasher: hasher, logger: logger}, nil
}

// InsertBatch stores the chunks whose signature is not yet indexed and
// returns how many were added. Chunks repeated within the batch count once.
//
// On a store failure nothing is recorded and the error wraps ErrStoreWrite.
// If the store accepted the batch but the index file could not be written,
// the count is returned together with an error wrapping ErrIndexPersist.
func (x *Index) InsertBatch(ctx context.Context, chunks []document.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	ctx, span := tracer.Start(ctx, "VectorIndex.InsertBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.signatures.Load(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "signature index load failed")
		return 0, fmt.Errorf("loading signature index: %w", err)
	}

	seen := make(map[string]bool, len(chunks))
	docs := make([]vectorstore.Document, 0, len(chunks))
	records := make(map[string]signature.Record, len(chunks))
	for _, c := range chunks {
		sig := x.hasher.Chunk(c)
		if seen[sig] {
			continue
		}
		seen[sig] = true

		exists, err := x.signatures.Contains(sig)
		if err != nil {
			return 0, fmt.Errorf("checking signature: %w", err)
		}
		if exists {
			continue
		}
		docs = append(docs, vectorstore.Document{
			ID:       sig,
			Content:  c.Text,
			Metadata: c.Metadata.Map(),
		})
		records[sig] = signature.Record{Source: c.Metadata.Source, Page: c.Metadata.Page}
	}

	skipped := len(chunks) - len(docs)
	ChunksSkipped.Add(float64(skipped))
	span.SetAttributes(attribute.Int("new", len(docs)), attribute.Int("skipped", skipped))

	if len(docs) == 0 {
		x.logger.Info("no new chunks to add", zap.Int("skipped", skipped))
		span.SetStatus(codes.Ok, "nothing new")
		return 0, nil
	}

	if _, err := x.store.AddDocuments(ctx, docs); err != nil {
		InsertFailures.WithLabelValues("store").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store write failed")
		x.logger.Error("failed to add chunks to vector store",
			zap.Int("chunks", len(docs)),
			zap.Error(err),
		)
		return 0, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	ChunksInserted.Add(float64(len(docs)))

	if err := x.signatures.Commit(records); err != nil {
		InsertFailures.WithLabelValues("persist").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "index persist failed")
		x.logger.Error("chunks stored but signature index not persisted",
			zap.Int("chunks", len(docs)),
			zap.String("path", x.signatures.Path()),
			zap.Error(err),
		)
		return len(docs), fmt.Errorf("%w: %v", ErrIndexPersist, err)
	}

	x.logger.Info("added chunks to vector store",
		zap.Int("added", len(docs)),
		zap.Int("skipped", skipped),
	)
	span.SetStatus(codes.Ok, "success")
	return len(docs), nil
}

// SimilaritySearch returns up to k chunks by decreasing similarity to query.
// Every filter entry must equal the chunk's metadata value; a nil or empty
// filter searches all chunks.
func (x *Index) SimilaritySearch(ctx context.Context, query string, k int, filter map[string]string) ([]document.Chunk, error) {
	ctx, span := tracer.Start(ctx, "VectorIndex.SimilaritySearch")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k), attribute.Int("filters", len(filter)))

	results, err := x.store.SearchWithFilters(ctx, query, k, storeFilter(filter))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	chunks := make([]document.Chunk, len(results))
	for i, r := range results {
		chunks[i] = document.Chunk{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: document.MetadataFromMap(r.Metadata),
		}
	}
	span.SetAttributes(attribute.Int("results", len(chunks)))
	return chunks, nil
}

// Count returns the number of stored chunks.
func (x *Index) Count(ctx context.Context) (int, error) {
	return x.store.Count(ctx)
}

// storeFilter types well-known keys so that backends with typed payloads
// match them; other keys stay strings.
func storeFilter(filter map[string]string) map[string]interface{} {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(filter))
	for k, v := range filter {
		switch k {
		case document.KeyPage:
			if n, err := strconv.Atoi(v); err == nil {
				out[k] = n
				continue
			}
		case document.KeyContainsImage, document.KeyContainsTable:
			if b, err := strconv.ParseBool(v); err == nil {
				out[k] = b
				continue
			}
		}
		out[k] = v
	}
	return out
}
