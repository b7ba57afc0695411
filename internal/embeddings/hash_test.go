package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	h, err := NewHashEmbedder(64)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := h.EmbedQuery(ctx, "CRISPR-Cas9 genome editing")
	require.NoError(t, err)
	b, err := h.EmbedQuery(ctx, "crispr cas9 GENOME editing")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-5)
}

func TestHashEmbedder_SharedTermsAreCloser(t *testing.T) {
	h, err := NewHashEmbedder(256)
	require.NoError(t, err)

	vs, err := h.EmbedDocuments(context.Background(), []string{
		"cas9 genome editing tool",
		"the cas9 enzyme cuts the genome",
		"ocean tides follow the moon",
	})
	require.NoError(t, err)
	require.Len(t, vs, 3)

	assert.Greater(t, cosine(vs[0], vs[1]), cosine(vs[0], vs[2]))
}

func TestHashEmbedder_NoTokens(t *testing.T) {
	h, err := NewHashEmbedder(8)
	require.NoError(t, err)

	v, err := h.EmbedQuery(context.Background(), "--- !!")
	require.NoError(t, err)
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestHashEmbedder_Errors(t *testing.T) {
	_, err := NewHashEmbedder(0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	h, err := NewHashEmbedder(8)
	require.NoError(t, err)
	_, err = h.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.EmbedQuery(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"crispr", "cas9", "i", "çalışma"}, Tokenize("CRISPR-Cas9, I çalışma."))
	assert.Empty(t, Tokenize(" \n\t"))
}
