// Package retrieval defines the interface to semantic search over indexed
// menu items, with implementations backed by Qdrant (gRPC) and chromem-go
// (embedded).
package retrieval

import (
	"context"
	"errors"

	"github.com/unifeast/feastd/internal/filter"
)

// Sentinel errors for retrieval operations.
var (
	// ErrUnavailable indicates the vector index could not be reached or
	// timed out. Callers degrade to a zero-result response.
	ErrUnavailable = errors.New("retrieval unavailable")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid retrieval configuration")

	// ErrConnectionFailed indicates the backend connection could not be
	// established.
	ErrConnectionFailed = errors.New("failed to connect to vector index")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrEmptyQuery indicates an empty query string.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher executes filtered semantic search over the menu index.
//
// Implementations must honor context cancellation and deadlines: a search
// against an unreachable backend returns an error wrapping ErrUnavailable
// rather than hanging.
type Searcher interface {
	// Search returns up to limit items most similar to the query text,
	// restricted to items satisfying every condition in f. Results are
	// ordered by relevance, highest score first. A nil filter applies no
	// metadata constraints.
	Search(ctx context.Context, query string, f *filter.Filter, limit int) ([]ScoredItem, error)

	// Index upserts menu items into the store.
	Index(ctx context.Context, items []Item) error

	// Close releases backend resources.
	Close() error
}
