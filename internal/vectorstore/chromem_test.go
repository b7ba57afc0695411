package vectorstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/paperqa/internal/config"
	"github.com/fyrsmithlabs/paperqa/internal/embeddings"
	"github.com/fyrsmithlabs/paperqa/internal/vectorstore"
)

func newChromem(t *testing.T, dir string) *vectorstore.ChromemStore {
	t.Helper()
	emb, err := embeddings.NewHashEmbedder(128)
	require.NoError(t, err)
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir, Collection: "papers"}, emb, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func paperDocs() []vectorstore.Document {
	return []vectorstore.Document{
		{ID: "a", Content: "Cas9 is an RNA-guided endonuclease used for genome editing.", Metadata: map[string]interface{}{
			"source": "cas9.pdf", "page": 1, "section": "Introduction", "contains_table": false,
		}},
		{ID: "b", Content: "Cells were cultured in DMEM supplemented with serum.", Metadata: map[string]interface{}{
			"source": "cas9.pdf", "page": 2, "section": "Methods", "contains_table": false,
		}},
		{ID: "c", Content: "Editing efficiency reached 80 percent with Cas9.", Metadata: map[string]interface{}{
			"source": "cas9.pdf", "page": 3, "section": "Results", "contains_table": true,
		}},
	}
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newChromem(t, t.TempDir())

	ids, err := store.AddDocuments(ctx, paperDocs())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := store.SearchWithFilters(ctx, "what is cas9 used for", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestChromemStore_FilterExactMatch(t *testing.T) {
	ctx := context.Background()
	store := newChromem(t, t.TempDir())
	_, err := store.AddDocuments(ctx, paperDocs())
	require.NoError(t, err)

	results, err := store.SearchWithFilters(ctx, "cas9", 25, map[string]interface{}{"section": "Introduction"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "Introduction", results[0].Metadata["section"])
	assert.Equal(t, "1", results[0].Metadata["page"])

	results, err = store.SearchWithFilters(ctx, "cas9", 25, map[string]interface{}{"contains_table": true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].ID)

	results, err = store.SearchWithFilters(ctx, "cas9", 25, map[string]interface{}{"section": "Discussion"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_EmptyCollection(t *testing.T) {
	store := newChromem(t, t.TempDir())
	results, err := store.SearchWithFilters(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := newChromem(t, dir)
	_, err := first.AddDocuments(ctx, paperDocs())
	require.NoError(t, err)

	second := newChromem(t, dir)
	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestChromemStore_ReaddReplaces(t *testing.T) {
	ctx := context.Background()
	store := newChromem(t, t.TempDir())
	_, err := store.AddDocuments(ctx, paperDocs())
	require.NoError(t, err)
	_, err = store.AddDocuments(ctx, paperDocs()[:1])
	require.NoError(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestChromemStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := newChromem(t, t.TempDir())

	_, err := store.AddDocuments(ctx, nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)

	_, err = store.AddDocuments(ctx, []vectorstore.Document{{Content: "no id"}})
	assert.Error(t, err)

	_, err = store.SearchWithFilters(ctx, "", 5, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidQuery)

	_, err = store.SearchWithFilters(ctx, "q", 0, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidQuery)
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model offline")
}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("model offline")
}

func TestChromemStore_EmbedderFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: t.TempDir()}, failingEmbedder{}, nil)
	require.NoError(t, err)

	_, err = store.AddDocuments(ctx, paperDocs())
	assert.ErrorIs(t, err, vectorstore.ErrEmbeddingFailed)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewChromemStore_Validation(t *testing.T) {
	emb, err := embeddings.NewHashEmbedder(8)
	require.NoError(t, err)

	_, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: t.TempDir()}, nil, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)

	_, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: t.TempDir(), Collection: "Bad-Name"}, emb, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
}

func TestNewStore(t *testing.T) {
	emb, err := embeddings.NewHashEmbedder(8)
	require.NoError(t, err)

	store, err := vectorstore.NewStore(config.StorageConfig{
		Backend:    "chromem",
		PersistDir: t.TempDir(),
		Collection: "papers",
	}, emb, 8, nil)
	require.NoError(t, err)
	_, ok := store.(*vectorstore.ChromemStore)
	assert.True(t, ok)

	_, err = vectorstore.NewStore(config.StorageConfig{Backend: "faiss"}, emb, 8, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
