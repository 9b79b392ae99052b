package retrieval

import (
	"fmt"

	"github.com/unifeast/feastd/internal/config"
)

// NewSearcher creates the configured vector store backend.
//
// Supported providers:
//   - "chromem": embedded, zero-infrastructure (default)
//   - "qdrant": external server over gRPC
func NewSearcher(cfg config.VectorStoreConfig, embedder Embedder) (Searcher, error) {
	switch cfg.Provider {
	case "chromem":
		path, err := config.ExpandPath(cfg.Chromem.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return NewChromemStore(ChromemConfig{
			Path:       path,
			Collection: cfg.Chromem.Collection,
			Compress:   cfg.Chromem.Compress,
		}, embedder)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			VectorSize: cfg.Qdrant.VectorSize,
			UseTLS:     cfg.Qdrant.UseTLS,
		}, embedder)

	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
