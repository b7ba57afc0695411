package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Retrieval.BaseK)
	assert.Equal(t, 5, cfg.Reranker.TopN)
	assert.Equal(t, 32, cfg.Reranker.BatchSize)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.True(t, cfg.Generation.CheckOnStartup)
	assert.Equal(t, 1500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 250, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 0, cfg.Dedup.SignaturePrefixChars)
	assert.Equal(t, 3, cfg.Ingest.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Ingest.Timeout.Duration())
	assert.Equal(t, 100, cfg.Ingest.MinSampleChars)
	assert.Equal(t, []string{"en", "tr"}, cfg.Ingest.Languages)
	assert.True(t, cfg.Ingest.OCR.Enabled)
	assert.True(t, cfg.Ingest.OCR.FallbackToOriginal)
	assert.Equal(t, "chromem", cfg.Storage.Backend)
	assert.Equal(t, "local", cfg.Queue.Backend)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  backend: qdrant
  qdrant:
    host: qdrant.internal
    vector_size: 768
retrieval:
  base_k: 40
ingest:
  timeout: 5m
  languages: [de]
  ocr:
    enabled: false
generation:
  api_key: sk-test
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.Storage.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Storage.Qdrant.Host)
	assert.Equal(t, 768, cfg.Storage.Qdrant.VectorSize)
	assert.Equal(t, 6334, cfg.Storage.Qdrant.Port, "unset nested fields keep defaults")
	assert.Equal(t, 40, cfg.Retrieval.BaseK)
	assert.Equal(t, 5*time.Minute, cfg.Ingest.Timeout.Duration())
	assert.Equal(t, []string{"de"}, cfg.Ingest.Languages)
	assert.False(t, cfg.Ingest.OCR.Enabled)
	assert.True(t, cfg.Ingest.OCR.FallbackToOriginal)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Generation.APIKey.String())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "retrieval:\n  base_k: 40\n")

	t.Setenv("PAPERQA_RETRIEVAL_BASE_K", "12")
	t.Setenv("PAPERQA_STORAGE_QDRANT_HOST", "env-host")
	t.Setenv("PAPERQA_INGEST_OCR_FALLBACK_TO_ORIGINAL", "false")
	t.Setenv("PAPERQA_INGEST_LANGUAGES", "EN, fr")
	t.Setenv("PAPERQA_RERANKER_PROVIDER", "lexical")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Retrieval.BaseK)
	assert.Equal(t, "env-host", cfg.Storage.Qdrant.Host)
	assert.False(t, cfg.Ingest.OCR.FallbackToOriginal)
	assert.Equal(t, []string{"en", "fr"}, cfg.Ingest.Languages)
	assert.Equal(t, "lexical", cfg.Reranker.Provider)
}

func TestLoad_ValidationErrors(t *testing.T) {
	path := writeConfig(t, `
retrieval:
  base_k: 0
chunking:
  chunk_size: 100
  chunk_overlap: 100
storage:
  backend: sqlite
embeddings:
  batch_size: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "retrieval.base_k")
	assert.Contains(t, err.Error(), "chunking.chunk_overlap")
	assert.Contains(t, err.Error(), "storage.backend")
	assert.Contains(t, err.Error(), "embeddings.batch_size")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsOversizedFile(t *testing.T) {
	path := writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize+1))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_RejectsWorldWritableFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	require.NoError(t, os.Chmod(path, 0o666))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"PAPERQA_RETRIEVAL_BASE_K":                "retrieval.base_k",
		"PAPERQA_SERVER_PORT":                     "server.port",
		"PAPERQA_STORAGE_QDRANT_API_KEY":          "storage.qdrant.api_key",
		"PAPERQA_INGEST_OCR_FALLBACK_TO_ORIGINAL": "ingest.ocr.fallback_to_original",
		"PAPERQA_STORAGE_PERSIST_DIR":             "storage.persist_dir",
		"PAPERQA_DEBUG":                           "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

type sampleSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func TestSection(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	out := sampleSection{Level: "info", Format: "json"}
	require.NoError(t, cfg.Section("logging", &out))
	assert.Equal(t, "debug", out.Level)
	assert.Equal(t, "json", out.Format)

	untouched := sampleSection{Level: "warn"}
	require.NoError(t, cfg.Section("telemetry", &untouched))
	assert.Equal(t, "warn", untouched.Level)
}
