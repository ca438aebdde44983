package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragctx/internal/core/domain"
)

func TestDocumentService_ListAndChunks(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})
	ctx := context.Background()

	a, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "A", Content: longText(30), Language: "en"}, domain.ChunkConfig{})
	require.NoError(t, err)
	b, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "B", Content: "short", Language: "de"}, domain.ChunkConfig{})
	require.NoError(t, err)
	f.wait(t, a.ID)
	f.wait(t, b.ID)

	all, err := f.docs.List(ctx, domain.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	german, err := f.docs.List(ctx, domain.DocumentFilter{Languages: []string{"de"}})
	require.NoError(t, err)
	require.Len(t, german, 1)
	assert.Equal(t, b.ID, german[0].ID)

	chunks, err := f.docs.Chunks(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	_, err = f.docs.Chunks(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_Status_InFlight(t *testing.T) {
	g := newGate()
	f := newIngestFixture(t, &mockEmbeddingService{embedFn: g.embed})
	ctx := context.Background()

	doc, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "T", Content: longText(30)}, domain.ChunkConfig{})
	require.NoError(t, err)
	g.waitEntered(t)

	report, err := f.docs.Status(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, report.Status)
	assert.Equal(t, 2, report.TotalChunks)
	assert.Zero(t, report.IndexedChunks)
	assert.Zero(t, report.FailedChunks)

	g.open()
	f.wait(t, doc.ID)

	report, err = f.docs.Status(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, report.Status)
	assert.Equal(t, 2, report.IndexedChunks)
	assert.Equal(t, doc.Generation, report.Generation)
}

func TestDocumentService_Status_Failed(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{
		embedFn: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("model rejected input")
		},
	})
	ctx := context.Background()

	doc, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "T", Content: longText(30)}, domain.ChunkConfig{})
	require.NoError(t, err)
	f.wait(t, doc.ID)

	report, err := f.docs.Status(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, report.Status)
	assert.Contains(t, report.ProcessingError, "model rejected input")
	assert.Equal(t, 2, report.TotalChunks)
	assert.Less(t, report.IndexedChunks, 2)
}

func TestDocumentService_Status_FromStore(t *testing.T) {
	store := memory.NewStore()
	docs := NewDocumentService(store, store, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: "waiting", Title: "W", Status: domain.StatusPending, Generation: 1}))
	seedDocument(t, store, domain.Document{ID: "done"}, "mock/mock-embed",
		seedChunk{tokens: 4, similarity: 0.9},
		seedChunk{tokens: 4, similarity: 0.8},
		seedChunk{tokens: 4, similarity: 0.7},
	)

	pending, err := docs.Status(ctx, "waiting")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status)
	assert.Zero(t, pending.TotalChunks)

	done, err := docs.Status(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 3, done.TotalChunks)
	assert.Equal(t, 3, done.IndexedChunks)

	_, err = docs.Status(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_Delete_WithoutIngest(t *testing.T) {
	store := memory.NewStore()
	docs := NewDocumentService(store, store, nil)
	ctx := context.Background()

	seedDocument(t, store, domain.Document{ID: "doc"}, "mock/mock-embed", seedChunk{tokens: 4, similarity: 0.9})

	require.NoError(t, docs.Delete(ctx, "doc"))

	_, err := docs.Get(ctx, "doc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	chunks, err := store.GetChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDocumentService_List_NormalizesFileTypes(t *testing.T) {
	store := memory.NewStore()
	docs := NewDocumentService(store, store, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: "notes", Title: "N", FileType: "md", Status: domain.StatusCompleted}))
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: "plain", Title: "P", FileType: "txt", Status: domain.StatusCompleted}))

	types := []string{".MD"}
	got, err := docs.List(ctx, domain.DocumentFilter{FileTypes: types})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "notes", got[0].ID)
	assert.Equal(t, []string{".MD"}, types, "caller's filter is not modified")
}

func TestDocumentService_UpdateCollections(t *testing.T) {
	store := memory.NewStore()
	docs := NewDocumentService(store, store, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveDocument(ctx, &domain.Document{
		ID: "doc", Status: domain.StatusCompleted, Generation: 4, Collections: []string{"hr"},
	}))

	got, err := docs.UpdateCollections(ctx, "doc", []string{" legal ", "hr", "", "ops"}, []string{"ops"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hr", "legal"}, got.Collections)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 4, got.Generation, "tagging does not start a new generation")

	got, err = docs.UpdateCollections(ctx, "doc", nil, []string{"hr"})
	require.NoError(t, err)
	assert.Equal(t, []string{"legal"}, got.Collections)

	_, err = docs.UpdateCollections(ctx, "missing", []string{"x"}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_SetCollections(t *testing.T) {
	store := memory.NewStore()
	docs := NewDocumentService(store, store, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: "doc", Collections: []string{"hr"}}))

	got, err := docs.SetCollections(ctx, "doc", []string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, got.Collections)

	got, err = docs.SetCollections(ctx, "doc", nil)
	require.NoError(t, err)
	assert.Empty(t, got.Collections)

	_, err = docs.SetCollections(ctx, "missing", []string{"x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_CollectionsAndDelete(t *testing.T) {
	store := memory.NewStore()
	docs := NewDocumentService(store, store, nil)
	ctx := context.Background()

	for id, tags := range map[string][]string{
		"a": {"legal", "hr"},
		"b": {"legal"},
		"c": nil,
	} {
		require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: id, Collections: tags}))
	}

	summary, err := docs.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.CollectionSummary{
		{Name: "hr", Documents: 1},
		{Name: "legal", Documents: 2},
	}, summary)

	n, err := docs.DeleteCollection(ctx, "legal")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, err := docs.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"hr"}, a.Collections)
	_, err = docs.Get(ctx, "b")
	require.NoError(t, err, "documents survive collection deletion")

	n, err = docs.DeleteCollection(ctx, "legal")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = docs.DeleteCollection(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
