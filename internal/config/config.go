// Package config loads paperqa configuration from a YAML file and
// PAPERQA_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// AllSections is the query section value that disables section filtering.
const AllSections = "all"

// Config holds the complete paperqa configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Dirs       DirsConfig       `koanf:"dirs"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Reranker   RerankerConfig   `koanf:"reranker"`
	Generation GenerationConfig `koanf:"generation"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Dedup      DedupConfig      `koanf:"dedup"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Queue      QueueConfig      `koanf:"queue"`

	// k keeps the merged sources so other packages can decode their own
	// sections (logging, telemetry) with the same precedence rules.
	k *koanf.Koanf
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig selects and configures the vector store backend.
type StorageConfig struct {
	// Backend is "chromem" (embedded, default) or "qdrant".
	Backend string `koanf:"backend"`

	// PersistDir holds the chromem database and the signature index.
	PersistDir string `koanf:"persist_dir"`

	Collection string       `koanf:"collection"`
	Compress   bool         `koanf:"compress"`
	Qdrant     QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
	VectorSize int    `koanf:"vector_size"`
}

// DirsConfig holds the ingestion directories.
type DirsConfig struct {
	Pending   string `koanf:"pending"`
	Processed string `koanf:"processed"`
	Failed    string `koanf:"failed"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "tei", "openai", "fastembed" or "hash".
	Provider   string `koanf:"provider"`
	BaseURL    string `koanf:"base_url"`
	Model      string `koanf:"model"`
	APIKey     Secret `koanf:"api_key"`
	Dimensions int    `koanf:"dimensions"`
	CacheDir   string `koanf:"cache_dir"`

	// BatchSize caps inputs per TEI /embed request. TEI rejects requests
	// above its --max-client-batch-size, 32 by default.
	BatchSize int `koanf:"batch_size"`

	// RateLimit caps embedding requests per second. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// RerankerConfig configures the cross-encoder stage.
type RerankerConfig struct {
	// Provider is "tei" (cross-encoder service) or "lexical" (offline).
	Provider  string   `koanf:"provider"`
	BaseURL   string   `koanf:"base_url"`
	Model     string   `koanf:"model"`
	TopN      int      `koanf:"top_n"`
	BatchSize int      `koanf:"batch_size"`
	Timeout   Duration `koanf:"timeout"`
}

// GenerationConfig configures the answer model.
type GenerationConfig struct {
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`

	// CheckOnStartup lists the server's models before the first question
	// so an unreachable server fails the command instead of the first ask.
	CheckOnStartup bool `koanf:"check_on_startup"`
}

// RetrievalConfig configures candidate retrieval.
type RetrievalConfig struct {
	BaseK int `koanf:"base_k"`
}

// ChunkingConfig configures the text splitter.
type ChunkingConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// DedupConfig configures content signatures.
type DedupConfig struct {
	// SignaturePrefixChars limits the hashed text to a prefix. Zero hashes
	// the full chunk; 200 matches indexes built with prefix signatures.
	SignaturePrefixChars int `koanf:"signature_prefix_chars"`
}

// IngestConfig configures the ingestion worker.
type IngestConfig struct {
	Workers        int       `koanf:"workers"`
	MaxAttempts    int       `koanf:"max_attempts"`
	Timeout        Duration  `koanf:"timeout"`
	MinSampleChars int       `koanf:"min_sample_chars"`
	Languages      []string  `koanf:"languages"`
	Watch          bool      `koanf:"watch"`
	OCR            OCRConfig `koanf:"ocr"`
}

// OCRConfig configures the external OCR step.
type OCRConfig struct {
	Enabled            bool   `koanf:"enabled"`
	Command            string `koanf:"command"`
	Languages          string `koanf:"languages"`
	FallbackToOriginal bool   `koanf:"fallback_to_original"`
}

// QueueConfig configures the ingestion job transport.
type QueueConfig struct {
	// Backend is "local" (in-process) or "nats".
	Backend string `koanf:"backend"`
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
	Group   string `koanf:"group"`
	Buffer  int    `koanf:"buffer"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Backend:    "chromem",
			PersistDir: "data/vectorstore",
			Collection: "papers",
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				VectorSize: 384,
			},
		},
		Dirs: DirsConfig{
			Pending:   "data/pending",
			Processed: "data/processed",
			Failed:    "data/failed",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "tei",
			BaseURL:    "http://localhost:8080",
			Model:      "intfloat/multilingual-e5-small",
			Dimensions: 384,
			CacheDir:   "data/models",
			BatchSize:  32,
		},
		Reranker: RerankerConfig{
			Provider:  "tei",
			BaseURL:   "http://localhost:8081",
			Model:     "cross-encoder/ms-marco-MiniLM-L-6-v2",
			TopN:      5,
			BatchSize: 32,
			Timeout:   Duration(30 * time.Second),
		},
		Generation: GenerationConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:          "llama3.1",
			Timeout:        Duration(2 * time.Minute),
			CheckOnStartup: true,
		},
		Retrieval: RetrievalConfig{BaseK: 25},
		Chunking: ChunkingConfig{
			ChunkSize:    1500,
			ChunkOverlap: 250,
		},
		Ingest: IngestConfig{
			Workers:        2,
			MaxAttempts:    3,
			Timeout:        Duration(15 * time.Minute),
			MinSampleChars: 100,
			Languages:      []string{"en", "tr"},
			Watch:          true,
			OCR: OCRConfig{
				Enabled:            true,
				Command:            "ocrmypdf",
				Languages:          "eng+tur",
				FallbackToOriginal: true,
			},
		},
		Queue: QueueConfig{
			Backend: "local",
			URL:     "nats://127.0.0.1:4222",
			Subject: "paperqa.ingest",
			Group:   "paperqa-workers",
			Buffer:  64,
		},
	}
}

// Section decodes the configuration subtree at key into out. Fields of out
// that are absent from every source keep their current values, so callers
// pass a struct pre-filled with defaults.
func (c *Config) Section(key string, out interface{}) error {
	if c.k == nil || !c.k.Exists(key) {
		return nil
	}
	if err := c.k.Unmarshal(key, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", key, err)
	}
	return nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Storage.Backend {
	case "chromem":
	case "qdrant":
		if c.Storage.Qdrant.Host == "" {
			add("storage.qdrant.host is required")
		}
		if c.Storage.Qdrant.VectorSize <= 0 {
			add("storage.qdrant.vector_size must be positive")
		}
	default:
		add("storage.backend must be chromem or qdrant, got %q", c.Storage.Backend)
	}
	if c.Storage.PersistDir == "" {
		add("storage.persist_dir is required")
	}

	if c.Dirs.Pending == "" || c.Dirs.Processed == "" || c.Dirs.Failed == "" {
		add("dirs.pending, dirs.processed and dirs.failed are required")
	}

	switch c.Embeddings.Provider {
	case "tei", "openai", "fastembed", "hash":
	default:
		add("embeddings.provider must be tei, openai, fastembed or hash, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.RateLimit < 0 {
		add("embeddings.rate_limit must not be negative")
	}
	if c.Embeddings.BatchSize <= 0 {
		add("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	switch c.Reranker.Provider {
	case "tei", "lexical":
	default:
		add("reranker.provider must be tei or lexical, got %q", c.Reranker.Provider)
	}
	if c.Reranker.TopN <= 0 {
		add("reranker.top_n must be positive, got %d", c.Reranker.TopN)
	}
	if c.Reranker.BatchSize <= 0 {
		add("reranker.batch_size must be positive, got %d", c.Reranker.BatchSize)
	}

	if c.Retrieval.BaseK <= 0 {
		add("retrieval.base_k must be positive, got %d", c.Retrieval.BaseK)
	}

	if c.Chunking.ChunkSize <= 0 {
		add("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		add("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}

	if c.Dedup.SignaturePrefixChars < 0 {
		add("dedup.signature_prefix_chars must not be negative")
	}

	if c.Ingest.Workers <= 0 {
		add("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Ingest.MaxAttempts <= 0 {
		add("ingest.max_attempts must be positive, got %d", c.Ingest.MaxAttempts)
	}
	if c.Ingest.Timeout.Duration() <= 0 {
		add("ingest.timeout must be positive")
	}
	if len(c.Ingest.Languages) == 0 {
		add("ingest.languages must list at least one language")
	}

	switch c.Queue.Backend {
	case "local":
	case "nats":
		if c.Queue.URL == "" || c.Queue.Subject == "" {
			add("queue.url and queue.subject are required for nats")
		}
	default:
		add("queue.backend must be local or nats, got %q", c.Queue.Backend)
	}

	return errors.Join(errs...)
}

// normalize cleans values that env vars deliver in flattened form.
func (c *Config) normalize() {
	var langs []string
	for _, l := range c.Ingest.Languages {
		for _, part := range strings.Split(l, ",") {
			if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
				langs = append(langs, part)
			}
		}
	}
	c.Ingest.Languages = langs
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	c.Embeddings.Provider = strings.ToLower(c.Embeddings.Provider)
	c.Reranker.Provider = strings.ToLower(c.Reranker.Provider)
	c.Queue.Backend = strings.ToLower(c.Queue.Backend)
}
