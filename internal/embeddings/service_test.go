package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// teiMux answers /health and sends everything else to handler.
func teiMux(handler http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/", handler)
	return mux
}

func newTEIServer(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	return newTEIServerWithBatch(t, 0, handler)
}

func newTEIServerWithBatch(t *testing.T, batch int, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(teiMux(handler))
	t.Cleanup(srv.Close)

	svc, err := NewService(context.Background(), TEIConfig{
		BaseURL:    srv.URL + "/",
		Model:      "test-model",
		Dimensions: 2,
		BatchSize:  batch,
	}, nil, nil)
	require.NoError(t, err)
	return svc
}

func TestService_EmbedDocuments(t *testing.T) {
	var got teiRequest
	svc := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode([][]float32{{1, 0}, {0, 1}})
	})

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	assert.Equal(t, []interface{}{"a", "b"}, got.Inputs)
	assert.True(t, got.Truncate)
}

func TestService_EmbedDocuments_SplitsBatches(t *testing.T) {
	const limit = 3
	var sizes []int
	svc := newTEIServerWithBatch(t, limit, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Inputs) > limit {
			http.Error(w, `{"error":"batch size > max client batch size"}`, http.StatusRequestEntityTooLarge)
			return
		}
		sizes = append(sizes, len(req.Inputs))
		out := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			out[i] = []float32{float32(len(in)), 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	texts := make([]string, 8)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	vectors, err := svc.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, v := range vectors {
		assert.Equal(t, float32(i+1), v[0], "vector %d out of order", i)
	}
	assert.Equal(t, []int{3, 3, 2}, sizes)
}

func TestService_DefaultBatchSize(t *testing.T) {
	svc := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.Equal(t, DefaultBatchSize, svc.config.BatchSize)
}

func TestNewService_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewService(context.Background(), TEIConfig{BaseURL: url, Dimensions: 2}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewService_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewService(context.Background(), TEIConfig{BaseURL: srv.URL, Dimensions: 2}, nil, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "status 503")
}

func TestService_EmbedQuery(t *testing.T) {
	svc := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is cas9", req.Inputs)
		_ = json.NewEncoder(w).Encode([][]float32{{0.6, 0.8}})
	})

	v, err := svc.EmbedQuery(context.Background(), "what is cas9")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, v)
}

func TestService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		call    func(*Service) error
		want    error
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { http.Error(w, "model loading", http.StatusServiceUnavailable) },
			call: func(s *Service) error {
				_, err := s.EmbedDocuments(context.Background(), []string{"a"})
				return err
			},
			want: ErrEmbeddingFailed,
		},
		{
			name:    "count mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) { _ = json.NewEncoder(w).Encode([][]float32{{1, 0}}) },
			call: func(s *Service) error {
				_, err := s.EmbedDocuments(context.Background(), []string{"a", "b"})
				return err
			},
			want: ErrEmbeddingFailed,
		},
		{
			name:    "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("{")) },
			call: func(s *Service) error {
				_, err := s.EmbedQuery(context.Background(), "q")
				return err
			},
			want: ErrEmbeddingFailed,
		},
		{
			name:    "empty documents",
			handler: func(w http.ResponseWriter, r *http.Request) { t.Error("server should not be called") },
			call: func(s *Service) error {
				_, err := s.EmbedDocuments(context.Background(), nil)
				return err
			},
			want: ErrEmptyInput,
		},
		{
			name:    "empty query",
			handler: func(w http.ResponseWriter, r *http.Request) { t.Error("server should not be called") },
			call: func(s *Service) error {
				_, err := s.EmbedQuery(context.Background(), "")
				return err
			},
			want: ErrEmptyInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTEIServer(t, tt.handler)
			assert.ErrorIs(t, tt.call(svc), tt.want)
		})
	}
}

func TestTEIConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, TEIConfig{Dimensions: 3}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, TEIConfig{BaseURL: "http://x"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, TEIConfig{BaseURL: "http://x", Dimensions: 3, BatchSize: -1}.Validate(), ErrInvalidConfig)
	assert.NoError(t, TEIConfig{BaseURL: "http://x", Dimensions: 3}.Validate())
}
