package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DocumentStatus is the ingestion state of a document.
type DocumentStatus string

// Document ingestion states.
const (
	// StatusPending means the document is stored but ingestion has not started.
	StatusPending DocumentStatus = "pending"

	// StatusProcessing means chunking or indexing is in progress.
	StatusProcessing DocumentStatus = "processing"

	// StatusCompleted means every chunk is indexed and the document is searchable.
	StatusCompleted DocumentStatus = "completed"

	// StatusFailed means ingestion stopped; ProcessingError holds the reason.
	StatusFailed DocumentStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed and failed.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether next may follow s within one generation.
// Allowed: pending → processing → completed|failed, and pending → failed.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// String returns the string representation.
func (s DocumentStatus) String() string {
	return string(s)
}

// Chunking defaults, in model tokens.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64
)

// ChunkConfig controls how a document is split into chunks.
// Both values count model tokens.
type ChunkConfig struct {
	// Size is the maximum number of tokens per chunk.
	Size int

	// Overlap is the number of tokens shared by consecutive chunks.
	Overlap int
}

// DefaultChunkConfig returns the default chunking configuration.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

// Validate checks 0 <= Overlap < Size.
func (c ChunkConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfiguration, c.Size, c.Overlap)
	}
	return nil
}

// Document is an uploaded text document and its ingestion state.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Title is the human-readable title used in context provenance.
	Title string

	// FileType is the declared type of the source file (e.g. "pdf", "md").
	FileType string

	// Language is the document language code (e.g. "en").
	Language string

	// Content is the raw extracted text. It is kept so interrupted
	// ingestion can be resumed and documents can be re-chunked.
	Content string

	// ContentHash is the hex SHA-256 of Content.
	ContentHash string

	// Collections are the collection tags the document belongs to.
	Collections []string

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// Status is the ingestion state of the current generation.
	Status DocumentStatus

	// ProcessingError is the failure reason when Status is failed.
	ProcessingError string

	// Generation increments every time the document is re-ingested.
	// Status writes for an older generation are ignored.
	Generation int

	// ChunkConfig is the configuration used by the current generation.
	ChunkConfig ChunkConfig

	// CreatedAt is the upload timestamp.
	CreatedAt time.Time

	// UpdatedAt is when the document or its status last changed.
	UpdatedAt time.Time
}

// InCollection returns true if the document carries any of the given collection tags.
func (d *Document) InCollection(ids []string) bool {
	for _, id := range ids {
		if slices.Contains(d.Collections, id) {
			return true
		}
	}
	return false
}

// NormalizeCollections trims tags, drops empty ones and removes duplicates
// while keeping first-seen order. The result is never nil.
func NormalizeCollections(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// CollectionSummary is one distinct collection tag and how many documents carry it.
type CollectionSummary struct {
	Name      string
	Documents int
}

// NewDocument is the input for uploading a document.
type NewDocument struct {
	Title       string
	FileType    string
	Language    string
	Content     string
	Collections []string
	Metadata    map[string]any
}

// DocumentFilter narrows a document listing. Empty fields match everything.
type DocumentFilter struct {
	IDs         []string
	Statuses    []DocumentStatus
	Collections []string
	Languages   []string
	FileTypes   []string
}

// Matches reports whether doc satisfies every non-empty criterion.
func (f DocumentFilter) Matches(doc *Document) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, doc.ID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, doc.Status) {
		return false
	}
	if len(f.Collections) > 0 && !doc.InCollection(f.Collections) {
		return false
	}
	if len(f.Languages) > 0 && !slices.Contains(f.Languages, doc.Language) {
		return false
	}
	if len(f.FileTypes) > 0 && !slices.Contains(f.FileTypes, doc.FileType) {
		return false
	}
	return true
}

// NormalizeFileType returns a file type as a lowercase extension without
// the leading dot, so ".MD" and "md" compare equal.
func NormalizeFileType(t string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
}

// Chunk is an immutable token-bounded slice of a document's normalized text.
type Chunk struct {
	// ID is derived from the document, sequence and content, so it is
	// never reused for different text.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Sequence is the stable index of the chunk within its document.
	Sequence int

	// Content is the chunk text.
	Content string

	// TokenCount is the number of model tokens in Content.
	TokenCount int

	// StartOffset and EndOffset are byte offsets into the normalized text.
	StartOffset int
	EndOffset   int

	// Page is the source page the chunk starts on, or 0 when unknown.
	Page int

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any

	// CreatedAt is when the chunk was stored.
	CreatedAt time.Time
}

// Embedding is the vector of one chunk under one model version.
type Embedding struct {
	// ChunkID is the embedded chunk.
	ChunkID string

	// ModelVersion identifies the producing model as "provider/model".
	ModelVersion string

	// Vector is the embedding.
	Vector []float32

	// Dimensions is len(Vector).
	Dimensions int

	// CreatedAt is when the embedding was stored.
	CreatedAt time.Time
}

// IndexedChunk is a chunk joined with its embedding for one model version.
// Vector is nil when the chunk has no embedding for that version yet.
type IndexedChunk struct {
	Chunk  Chunk
	Vector []float32
}

// ContentHash returns the hex SHA-256 of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
