package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix marks environment variables that override file settings.
	EnvPrefix = "PAPERQA_"
)

// nestedSections are two-level keys whose env names would otherwise be
// split after the first word.
var nestedSections = []string{"storage_qdrant", "ingest_ocr"}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then environment variables, and validates
// the result.
//
// Environment variables are uppercased keys with the PAPERQA_ prefix:
//
//	PAPERQA_RETRIEVAL_BASE_K        -> retrieval.base_k
//	PAPERQA_STORAGE_QDRANT_HOST     -> storage.qdrant.host
//	PAPERQA_INGEST_LANGUAGES=en,tr  -> ingest.languages
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		// rawbytes avoids re-opening the file after validation.
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	// Slices are decoded element-wise over existing values, so configured
	// lists must start empty rather than merge with the defaults.
	if k.Exists("ingest.languages") {
		cfg.Ingest.Languages = nil
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// readConfigFile opens the file once and validates it through the open
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: config path %s is not a regular file", ErrInvalidConfig, path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrInvalidConfig, info.Size(), maxConfigFileSize)
	}
	if info.Mode().Perm()&0o002 != 0 {
		return nil, fmt.Errorf("%w: config file %s is world-writable", ErrInvalidConfig, path)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envKey maps PAPERQA_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	for _, nested := range nestedSections {
		if strings.HasPrefix(key, nested+"_") {
			return strings.Replace(nested, "_", ".", 1) + "." + key[len(nested)+1:]
		}
	}

	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 {
		return key
	}
	return parts[0] + "." + parts[1]
}
