package driven

import (
	"context"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// DocumentStore persists documents and their ingestion status.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns the documents matching filter, ordered by ID.
	ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)

	// UpdateStatus moves the document to status within the given generation.
	// A write for a generation other than the stored one is ignored and
	// reports applied=false. A disallowed transition returns
	// domain.ErrInvalidTransition.
	UpdateStatus(
		ctx context.Context, id string, generation int, status domain.DocumentStatus, reason string,
	) (applied bool, err error)

	// SetCollections replaces the collection tags of a document without
	// touching its content, status or generation.
	// Returns domain.ErrNotFound if it does not exist.
	SetCollections(ctx context.Context, id string, collections []string) error

	// DeleteDocument removes a document, its chunks and their embeddings.
	// Returns domain.ErrNotFound if it does not exist.
	DeleteDocument(ctx context.Context, id string) error
}

// ChunkStore holds chunks with stable identity.
type ChunkStore interface {
	// ReplaceChunks atomically swaps the chunk set of a document.
	// Chunks whose IDs are absent from the new set are removed together
	// with their embeddings. On failure the prior set is untouched.
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// GetChunks retrieves all chunks for a document ordered by sequence.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)
}
