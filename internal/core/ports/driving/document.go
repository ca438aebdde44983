package driving

import (
	"context"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// DocumentService manages uploaded documents for the document-management UI.
type DocumentService interface {
	// List returns documents matching the filter, ordered by ID.
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Chunks returns the current chunk set of a document ordered by sequence.
	Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// Status reports the ingestion status for polling.
	Status(ctx context.Context, documentID string) (*domain.StatusReport, error)

	// Delete cancels in-flight ingestion and removes the document,
	// its chunks and their embeddings.
	Delete(ctx context.Context, documentID string) error

	// SetCollections replaces the collection tags of a document.
	SetCollections(ctx context.Context, documentID string, collections []string) (*domain.Document, error)

	// UpdateCollections adds and removes collection tags on a document.
	UpdateCollections(ctx context.Context, documentID string, add, remove []string) (*domain.Document, error)

	// Collections lists the distinct collection tags with document counts.
	Collections(ctx context.Context) ([]domain.CollectionSummary, error)

	// DeleteCollection strips a tag from every document and returns how
	// many documents changed.
	DeleteCollection(ctx context.Context, name string) (int, error)
}

// IngestService accepts documents and ingests them in the background.
type IngestService interface {
	// Upload persists a new document as pending, schedules ingestion and
	// returns immediately. A zero ChunkConfig selects the configured default.
	Upload(ctx context.Context, doc domain.NewDocument, cfg domain.ChunkConfig) (*domain.Document, error)

	// Ingest re-ingests an existing document as a new generation. Empty
	// content re-chunks the stored text. Earlier in-flight work for the
	// document is cancelled first.
	Ingest(ctx context.Context, documentID, content string, cfg domain.ChunkConfig) (*domain.Document, error)

	// Wait blocks until the current background job for the document ends.
	Wait(ctx context.Context, documentID string) error

	// Resume re-schedules documents a previous process left pending or
	// processing. Returns the number of scheduled documents.
	Resume(ctx context.Context) (int, error)
}
