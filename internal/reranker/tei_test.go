package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/paperqa/internal/config"
)

func teiServer(t *testing.T, rerank http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/rerank", rerank)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTEIScorer_ScoresInInputOrder(t *testing.T) {
	srv := teiServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is cas9", req.Query)
		assert.True(t, req.Truncate)
		require.Len(t, req.Texts, 3)
		// TEI returns results sorted by score, not by index.
		_ = json.NewEncoder(w).Encode([]rerankResult{
			{Index: 2, Score: 0.9},
			{Index: 0, Score: 0.4},
			{Index: 1, Score: 0.1},
		})
	})

	s, err := NewTEIScorer(context.Background(), TEIConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	scores, err := s.Score(context.Background(), "what is cas9", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.4, 0.1, 0.9}, scores)
}

func TestTEIScorer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "overloaded", http.StatusTooManyRequests) }},
		{"malformed", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("[{")) }},
		{"short", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 1}})
		}},
		{"bad index", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 1}, {Index: 5, Score: 1}})
		}},
		{"duplicate index", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 1}, {Index: 0, Score: 1}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := teiServer(t, tt.handler)
			s, err := NewTEIScorer(context.Background(), TEIConfig{BaseURL: srv.URL}, nil)
			require.NoError(t, err)
			_, err = s.Score(context.Background(), "q", []string{"a", "b"})
			assert.Error(t, err)
		})
	}
}

func TestNewTEIScorer_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewTEIScorer(context.Background(), TEIConfig{BaseURL: srv.URL}, nil)
	assert.ErrorIs(t, err, ErrScorerUnavailable)

	_, err = NewTEIScorer(context.Background(), TEIConfig{}, nil)
	assert.ErrorIs(t, err, ErrScorerUnavailable)
}

func TestNew_TEIFactory(t *testing.T) {
	srv := teiServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 0.2}, {Index: 1, Score: 0.8}})
	})

	r, err := New(context.Background(), config.RerankerConfig{Provider: "tei", BaseURL: srv.URL, TopN: 1}, nil)
	require.NoError(t, err)

	out, err := r.Rerank(context.Background(), "q", chunks("low", "high"))
	require.NoError(t, err)
	assert.Equal(t, []string{"high"}, texts(out))
}
