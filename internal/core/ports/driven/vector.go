package driven

import (
	"context"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// EmbeddingIndex stores chunk vectors keyed by (chunk ID, model version).
// Similarity is computed by the retrieval service, so the index only
// needs to return candidates consistently.
type EmbeddingIndex interface {
	// PutEmbedding upserts an embedding.
	// Returns domain.ErrNotFound if the chunk no longer exists.
	PutEmbedding(ctx context.Context, emb domain.Embedding) error

	// HasEmbedding reports whether the chunk already has a vector for modelVersion.
	HasEmbedding(ctx context.Context, chunkID, modelVersion string) (bool, error)

	// Candidates returns the chunks of a document, ordered by sequence,
	// joined with their vectors for modelVersion. The read is a single
	// consistent snapshot: either the old or the new chunk set, never a mix.
	Candidates(ctx context.Context, documentID, modelVersion string) ([]domain.IndexedChunk, error)
}
