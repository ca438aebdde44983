// Package storagetest holds the behaviour every storage backend must share.
// Backend test files call Run with a constructor for a fresh, empty store.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
)

// Stores groups the three storage ports of one backend.
type Stores struct {
	Documents  driven.DocumentStore
	Chunks     driven.ChunkStore
	Embeddings driven.EmbeddingIndex

	// Close shuts the backend down early. Nil for backends that cannot fail.
	Close func() error
}

// Opener returns an empty backend. Cleanup is registered on t.
type Opener func(t *testing.T) Stores

// Run executes the shared storage tests.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s Stores)
	}{
		{"SaveAndGetDocument", testSaveAndGetDocument},
		{"GetDocumentNotFound", testGetDocumentNotFound},
		{"SaveDocumentUpdates", testSaveDocumentUpdates},
		{"ListDocumentsFiltered", testListDocumentsFiltered},
		{"UpdateStatus", testUpdateStatus},
		{"SetCollectionsLeavesStatus", testSetCollectionsLeavesStatus},
		{"DeleteDocumentCascades", testDeleteDocumentCascades},
		{"ReplaceChunksKeepsSurvivors", testReplaceChunksKeepsSurvivors},
		{"ReplaceChunksUnknownDocument", testReplaceChunksUnknownDocument},
		{"ReplaceChunksFailureKeepsPriorSet", testReplaceChunksFailureKeepsPriorSet},
		{"ClosedStoreReportsStorageError", testClosedStoreReportsStorageError},
		{"PutEmbeddingMissingChunk", testPutEmbeddingMissingChunk},
		{"PutEmbeddingUpserts", testPutEmbeddingUpserts},
		{"CandidatesByModelVersion", testCandidatesByModelVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// NewDocument builds a pending first-generation document.
func NewDocument(id string) *domain.Document {
	now := time.Now().UTC().Truncate(time.Millisecond)
	content := "content of " + id
	return &domain.Document{
		ID:          id,
		Title:       "Title " + id,
		FileType:    "md",
		Language:    "en",
		Content:     content,
		ContentHash: domain.ContentHash(content),
		Collections: []string{"default"},
		Metadata:    map[string]any{"author": "tester"},
		Status:      domain.StatusPending,
		Generation:  1,
		ChunkConfig: domain.DefaultChunkConfig(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewChunk builds a chunk with a deterministic ID.
func NewChunk(docID string, seq int, content string) domain.Chunk {
	return domain.Chunk{
		ID:          docID + "-chunk-" + content,
		DocumentID:  docID,
		Sequence:    seq,
		Content:     content,
		TokenCount:  len(content),
		StartOffset: seq * 10,
		EndOffset:   seq*10 + len(content),
		Page:        seq + 1,
		Metadata:    map[string]any{},
	}
}

// Embedding builds an embedding for chunkID.
func Embedding(chunkID, model string, vec ...float32) domain.Embedding {
	return domain.Embedding{ChunkID: chunkID, ModelVersion: model, Vector: vec, Dimensions: len(vec)}
}

func testSaveAndGetDocument(t *testing.T, s Stores) {
	ctx := context.Background()
	doc := NewDocument("doc-1")
	require.NoError(t, s.Documents.SaveDocument(ctx, doc))

	got, err := s.Documents.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.FileType, got.FileType)
	assert.Equal(t, doc.Language, got.Language)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, doc.Collections, got.Collections)
	assert.Equal(t, "tester", got.Metadata["author"])
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.Generation)
	assert.Equal(t, doc.ChunkConfig, got.ChunkConfig)
	assert.WithinDuration(t, doc.CreatedAt, got.CreatedAt, time.Second)
}

func testGetDocumentNotFound(t *testing.T, s Stores) {
	_, err := s.Documents.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testSaveDocumentUpdates(t *testing.T, s Stores) {
	ctx := context.Background()
	doc := NewDocument("doc-1")
	require.NoError(t, s.Documents.SaveDocument(ctx, doc))

	doc.Title = "Renamed"
	doc.Generation = 2
	doc.Status = domain.StatusProcessing
	require.NoError(t, s.Documents.SaveDocument(ctx, doc))

	got, err := s.Documents.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 2, got.Generation)
	assert.Equal(t, domain.StatusProcessing, got.Status)
}

func testListDocumentsFiltered(t *testing.T, s Stores) {
	ctx := context.Background()

	b := NewDocument("b")
	b.Status = domain.StatusCompleted
	b.Collections = []string{"legal"}
	a := NewDocument("a")
	a.Status = domain.StatusCompleted
	a.Language = "de"
	c := NewDocument("c")
	c.FileType = "pdf"

	for _, d := range []*domain.Document{b, a, c} {
		require.NoError(t, s.Documents.SaveDocument(ctx, d))
	}

	all, err := s.Documents.ListDocuments(ctx, domain.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))

	completed, err := s.Documents.ListDocuments(ctx, domain.DocumentFilter{
		Statuses: []domain.DocumentStatus{domain.StatusCompleted},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(completed))

	legal, err := s.Documents.ListDocuments(ctx, domain.DocumentFilter{Collections: []string{"legal"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(legal))

	german, err := s.Documents.ListDocuments(ctx, domain.DocumentFilter{Languages: []string{"de"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(german))

	pdfs, err := s.Documents.ListDocuments(ctx, domain.DocumentFilter{FileTypes: []string{"pdf"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(pdfs))

	byID, err := s.Documents.ListDocuments(ctx, domain.DocumentFilter{IDs: []string{"c", "a", "zzz"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(byID))
}

func testUpdateStatus(t *testing.T, s Stores) {
	ctx := context.Background()
	doc := NewDocument("doc-1")
	doc.Generation = 3
	require.NoError(t, s.Documents.SaveDocument(ctx, doc))

	applied, err := s.Documents.UpdateStatus(ctx, "doc-1", 2, domain.StatusProcessing, "")
	require.NoError(t, err)
	assert.False(t, applied, "stale generation must be ignored")

	applied, err = s.Documents.UpdateStatus(ctx, "doc-1", 3, domain.StatusProcessing, "")
	require.NoError(t, err)
	assert.True(t, applied)

	_, err = s.Documents.UpdateStatus(ctx, "doc-1", 3, domain.StatusPending, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	applied, err = s.Documents.UpdateStatus(ctx, "doc-1", 3, domain.StatusFailed, "embedding service down")
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.Documents.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "embedding service down", got.ProcessingError)

	_, err = s.Documents.UpdateStatus(ctx, "missing", 1, domain.StatusProcessing, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testSetCollectionsLeavesStatus(t *testing.T, s Stores) {
	ctx := context.Background()
	doc := NewDocument("doc-1")
	doc.Generation = 2
	require.NoError(t, s.Documents.SaveDocument(ctx, doc))
	_, err := s.Documents.UpdateStatus(ctx, "doc-1", 2, domain.StatusProcessing, "")
	require.NoError(t, err)

	require.NoError(t, s.Documents.SetCollections(ctx, "doc-1", []string{"legal", "hr"}))

	got, err := s.Documents.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"legal", "hr"}, got.Collections)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, 2, got.Generation)
	assert.Equal(t, doc.Content, got.Content)

	hr, err := s.Documents.ListDocuments(ctx, domain.DocumentFilter{Collections: []string{"hr"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, ids(hr))
	old, err := s.Documents.ListDocuments(ctx, domain.DocumentFilter{Collections: []string{"default"}})
	require.NoError(t, err)
	assert.Empty(t, old)

	require.NoError(t, s.Documents.SetCollections(ctx, "doc-1", nil))
	got, err = s.Documents.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, got.Collections)

	assert.ErrorIs(t, s.Documents.SetCollections(ctx, "missing", []string{"x"}), domain.ErrNotFound)
}

func testDeleteDocumentCascades(t *testing.T, s Stores) {
	ctx := context.Background()
	require.NoError(t, s.Documents.SaveDocument(ctx, NewDocument("doc-1")))
	chunk := NewChunk("doc-1", 0, "alpha")
	require.NoError(t, s.Chunks.ReplaceChunks(ctx, "doc-1", []domain.Chunk{chunk}))
	require.NoError(t, s.Embeddings.PutEmbedding(ctx, Embedding(chunk.ID, "local/test", 1, 0)))

	require.NoError(t, s.Documents.DeleteDocument(ctx, "doc-1"))

	_, err := s.Documents.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Chunks.GetChunk(ctx, chunk.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	chunks, err := s.Chunks.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	has, err := s.Embeddings.HasEmbedding(ctx, chunk.ID, "local/test")
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, s.Documents.DeleteDocument(ctx, "doc-1"), domain.ErrNotFound)
}

func testReplaceChunksKeepsSurvivors(t *testing.T, s Stores) {
	ctx := context.Background()
	require.NoError(t, s.Documents.SaveDocument(ctx, NewDocument("doc-1")))

	keep := NewChunk("doc-1", 0, "keep")
	drop := NewChunk("doc-1", 1, "drop")
	require.NoError(t, s.Chunks.ReplaceChunks(ctx, "doc-1", []domain.Chunk{drop, keep}))
	require.NoError(t, s.Embeddings.PutEmbedding(ctx, Embedding(keep.ID, "m", 1, 0)))
	require.NoError(t, s.Embeddings.PutEmbedding(ctx, Embedding(drop.ID, "m", 0, 1)))

	chunks, err := s.Chunks.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, keep.ID, chunks[0].ID, "ordered by sequence")

	added := NewChunk("doc-1", 1, "added")
	require.NoError(t, s.Chunks.ReplaceChunks(ctx, "doc-1", []domain.Chunk{keep, added}))

	has, err := s.Embeddings.HasEmbedding(ctx, keep.ID, "m")
	require.NoError(t, err)
	assert.True(t, has, "surviving chunk keeps its embedding")

	has, err = s.Embeddings.HasEmbedding(ctx, drop.ID, "m")
	require.NoError(t, err)
	assert.False(t, has, "removed chunk loses its embedding")

	_, err = s.Chunks.GetChunk(ctx, drop.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := s.Chunks.GetChunk(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "added", got.Content)
	assert.Equal(t, 1, got.Sequence)
	assert.Equal(t, added.TokenCount, got.TokenCount)
	assert.Equal(t, added.StartOffset, got.StartOffset)
	assert.Equal(t, added.EndOffset, got.EndOffset)
	assert.Equal(t, added.Page, got.Page)

	require.NoError(t, s.Chunks.ReplaceChunks(ctx, "doc-1", nil))
	chunks, err = s.Chunks.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func testReplaceChunksUnknownDocument(t *testing.T, s Stores) {
	err := s.Chunks.ReplaceChunks(context.Background(), "missing", []domain.Chunk{NewChunk("missing", 0, "x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// A set that repeats a sequence is rejected after the stale chunk has
// already been removed inside the transaction.
func testReplaceChunksFailureKeepsPriorSet(t *testing.T, s Stores) {
	ctx := context.Background()
	require.NoError(t, s.Documents.SaveDocument(ctx, NewDocument("doc-1")))

	first := NewChunk("doc-1", 0, "first")
	second := NewChunk("doc-1", 1, "second")
	require.NoError(t, s.Chunks.ReplaceChunks(ctx, "doc-1", []domain.Chunk{first, second}))
	require.NoError(t, s.Embeddings.PutEmbedding(ctx, Embedding(first.ID, "m", 1, 0)))
	require.NoError(t, s.Embeddings.PutEmbedding(ctx, Embedding(second.ID, "m", 0, 1)))

	clashA := NewChunk("doc-1", 2, "clash-a")
	clashB := NewChunk("doc-1", 2, "clash-b")
	err := s.Chunks.ReplaceChunks(ctx, "doc-1", []domain.Chunk{first, clashA, clashB})
	require.Error(t, err)

	chunks, err := s.Chunks.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, chunkIDs(chunks))

	for _, id := range []string{first.ID, second.ID} {
		has, err := s.Embeddings.HasEmbedding(ctx, id, "m")
		require.NoError(t, err)
		assert.True(t, has, "embedding of %s survives the failed replace", id)
	}
	_, err = s.Chunks.GetChunk(ctx, clashA.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testClosedStoreReportsStorageError(t *testing.T, s Stores) {
	if s.Close == nil {
		t.Skip("backend has no failure mode to close")
	}
	ctx := context.Background()
	require.NoError(t, s.Documents.SaveDocument(ctx, NewDocument("doc-1")))
	require.NoError(t, s.Close())

	_, err := s.Documents.ListDocuments(ctx, domain.DocumentFilter{})
	assert.ErrorIs(t, err, domain.ErrStorage)

	err = s.Chunks.ReplaceChunks(ctx, "doc-1", []domain.Chunk{NewChunk("doc-1", 0, "x")})
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = s.Chunks.GetChunks(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrStorage)

	err = s.Embeddings.PutEmbedding(ctx, Embedding("doc-1-chunk-x", "m", 1))
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func testPutEmbeddingMissingChunk(t *testing.T, s Stores) {
	err := s.Embeddings.PutEmbedding(context.Background(), Embedding("nope", "m", 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testPutEmbeddingUpserts(t *testing.T, s Stores) {
	ctx := context.Background()
	require.NoError(t, s.Documents.SaveDocument(ctx, NewDocument("doc-1")))
	chunk := NewChunk("doc-1", 0, "alpha")
	require.NoError(t, s.Chunks.ReplaceChunks(ctx, "doc-1", []domain.Chunk{chunk}))

	require.NoError(t, s.Embeddings.PutEmbedding(ctx, Embedding(chunk.ID, "m", 1, 0)))
	require.NoError(t, s.Embeddings.PutEmbedding(ctx, Embedding(chunk.ID, "m", 0, 1)))

	cands, err := s.Embeddings.Candidates(ctx, "doc-1", "m")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, []float32{0, 1}, cands[0].Vector)
}

func testCandidatesByModelVersion(t *testing.T, s Stores) {
	ctx := context.Background()
	require.NoError(t, s.Documents.SaveDocument(ctx, NewDocument("doc-1")))
	first := NewChunk("doc-1", 0, "first")
	second := NewChunk("doc-1", 1, "second")
	require.NoError(t, s.Chunks.ReplaceChunks(ctx, "doc-1", []domain.Chunk{first, second}))
	require.NoError(t, s.Embeddings.PutEmbedding(ctx, Embedding(first.ID, "a", 0.5, 0.25, -1)))
	require.NoError(t, s.Embeddings.PutEmbedding(ctx, Embedding(second.ID, "b", 1, 1, 1)))

	cands, err := s.Embeddings.Candidates(ctx, "doc-1", "a")
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, first.ID, cands[0].Chunk.ID)
	assert.Equal(t, []float32{0.5, 0.25, -1}, cands[0].Vector)
	assert.Equal(t, second.ID, cands[1].Chunk.ID)
	assert.Nil(t, cands[1].Vector)

	none, err := s.Embeddings.Candidates(ctx, "unknown", "a")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func chunkIDs(chunks []domain.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}

func ids(docs []domain.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
