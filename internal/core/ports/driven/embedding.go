// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// EmbeddingService generates vector embeddings from text.
// This is an optional service - when nil, chunks are never indexed and
// search reports domain.ErrEmbeddingUnavailable.
//
// Implementations wrap transient failures (network, 429, 5xx) in
// domain.ErrEmbeddingService so callers can retry them.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
//   - The built-in hashing embedder
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	// This is more efficient than calling Embed in a loop for large batches.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 1536, 3072).
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// ModelVersion returns "provider/model". Embeddings are only comparable
	// with queries embedded under the same version.
	ModelVersion() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// AIConfigValidator checks embedding settings against the live provider.
type AIConfigValidator interface {
	// ValidateEmbedding creates a client for settings and pings it.
	ValidateEmbedding(settings *domain.EmbeddingSettings) error
}
