// Package chunker splits page text into overlapping, size-bounded chunks.
package chunker

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/paperqa/internal/document"
)

// ErrInvalidConfig is returned for unusable size/overlap settings.
var ErrInvalidConfig = errors.New("invalid chunker config")

// DefaultSeparators are tried coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Config controls chunk sizing. Sizes are measured in characters (runes).
type Config struct {
	ChunkSize    int      `koanf:"chunk_size"`
	ChunkOverlap int      `koanf:"chunk_overlap"`
	Separators   []string `koanf:"separators"`
}

// DefaultConfig returns 1500-character chunks with 250 characters of overlap.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1500,
		ChunkOverlap: 250,
		Separators:   append([]string(nil), DefaultSeparators...),
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Chunker splits pages into chunks. It holds no mutable state and is safe
// for concurrent use.
type Chunker struct {
	cfg      Config
	splitter textsplitter.RecursiveCharacter
}

// New creates a chunker. Empty separators fall back to DefaultSeparators.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = append([]string(nil), DefaultSeparators...)
	}

	return &Chunker{
		cfg: cfg,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators(cfg.Separators),
		),
	}, nil
}

// Config returns the effective configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Split chunks each page in order. Every chunk carries a copy of its page's
// metadata. Pages without text contribute nothing.
func (c *Chunker) Split(pages []document.Page) ([]document.Chunk, error) {
	var chunks []document.Chunk
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		parts, err := c.splitter.SplitText(p.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s page %d: %w", p.Source, p.Number, err)
		}
		md := p.Metadata()
		for _, part := range parts {
			if part == "" {
				continue
			}
			chunks = append(chunks, document.Chunk{Text: part, Metadata: md})
		}
	}
	return chunks, nil
}
