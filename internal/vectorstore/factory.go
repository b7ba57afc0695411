package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/config"
)

// NewStore creates the configured backend. dimension overrides the
// configured Qdrant vector size when positive.
func NewStore(cfg config.StorageConfig, embedder Embedder, dimension int, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", backendChromem:
		return NewChromemStore(ChromemConfig{
			Path:       cfg.PersistDir,
			Compress:   cfg.Compress,
			Collection: cfg.Collection,
		}, embedder, logger)
	case backendQdrant:
		size := cfg.Qdrant.VectorSize
		if dimension > 0 {
			size = dimension
		}
		if size <= 0 {
			return nil, fmt.Errorf("%w: qdrant vector size must be positive", ErrInvalidConfig)
		}
		return NewQdrantStore(QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			CollectionName: cfg.Collection,
			VectorSize:     uint64(size),
			UseTLS:         cfg.Qdrant.UseTLS,
			APIKey:         cfg.Qdrant.APIKey.Value(),
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, cfg.Backend)
	}
}
