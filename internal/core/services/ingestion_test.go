package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragctx/internal/adapters/driven/tokenizer/words"
	"github.com/custodia-labs/ragctx/internal/chunker"
	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
)

type ingestFixture struct {
	store    *memory.Store
	embedder *mockEmbeddingService
	ingest   *IngestService
	docs     *DocumentService
}

func newIngestFixture(t *testing.T, embedder driven.EmbeddingService) *ingestFixture {
	t.Helper()
	store := memory.NewStore()
	idx := NewIndexer(store, embedder, testIndexerSettings())
	ingest := NewIngestService(store, store, chunker.New(words.New()), idx, domain.ChunkConfig{Size: 20, Overlap: 5})
	t.Cleanup(func() { _ = ingest.Close() })

	f := &ingestFixture{
		store:  store,
		ingest: ingest,
		docs:   NewDocumentService(store, store, ingest),
	}
	if m, ok := embedder.(*mockEmbeddingService); ok {
		f.embedder = m
	}
	return f
}

func (f *ingestFixture) wait(t *testing.T, id string) *domain.Document {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.ingest.Wait(ctx, id))

	doc, err := f.store.GetDocument(ctx, id)
	require.NoError(t, err)
	return doc
}

func longText(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "token"
	}
	return strings.Join(parts, " ")
}

func TestIngestService_Upload(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})
	ctx := context.Background()

	doc, err := f.ingest.Upload(ctx, domain.NewDocument{
		Title:       "Handbook",
		FileType:    ".PDF",
		Language:    "en",
		Content:     longText(60),
		Collections: []string{"hr"},
	}, domain.ChunkConfig{})
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, domain.StatusPending, doc.Status)
	assert.Equal(t, 1, doc.Generation)
	assert.Equal(t, "pdf", doc.FileType)
	assert.Equal(t, domain.ChunkConfig{Size: 20, Overlap: 5}, doc.ChunkConfig)
	assert.Equal(t, domain.ContentHash(longText(60)), doc.ContentHash)

	done := f.wait(t, doc.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Empty(t, done.ProcessingError)

	chunks, err := f.store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		has, err := f.store.HasEmbedding(ctx, c.ID, "mock/mock-embed")
		require.NoError(t, err)
		assert.True(t, has)
	}

	report, err := f.docs.Status(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, report.Status)
	assert.Equal(t, 4, report.TotalChunks)
	assert.Equal(t, 4, report.IndexedChunks)
	assert.Zero(t, report.FailedChunks)
}

func TestIngestService_Upload_Validation(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})
	ctx := context.Background()

	_, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "x", Content: "y"}, domain.ChunkConfig{Size: 10, Overlap: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = f.ingest.Upload(ctx, domain.NewDocument{Title: "  ", Content: "y"}, domain.ChunkConfig{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	docs, err := f.store.ListDocuments(ctx, domain.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs, "rejected uploads are not stored")
}

func TestIngestService_Upload_EmptyContent(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})

	doc, err := f.ingest.Upload(context.Background(), domain.NewDocument{Title: "Empty"}, domain.ChunkConfig{})
	require.NoError(t, err)

	done := f.wait(t, doc.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)

	chunks, err := f.store.GetChunks(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngestService_PermanentFailure(t *testing.T) {
	embedder := &mockEmbeddingService{embedFn: func(_ context.Context, text string) ([]float32, error) {
		if strings.Contains(text, "poison") {
			return nil, errors.New("status 400: rejected")
		}
		return []float32{1, 1}, nil
	}}
	f := newIngestFixture(t, embedder)
	ctx := context.Background()

	bad, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "Bad", Content: "poison pill"}, domain.ChunkConfig{})
	require.NoError(t, err)
	good, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "Good", Content: "healthy text"}, domain.ChunkConfig{})
	require.NoError(t, err)

	failed := f.wait(t, bad.ID)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Contains(t, failed.ProcessingError, "rejected")

	assert.Equal(t, domain.StatusCompleted, f.wait(t, good.ID).Status, "other documents are unaffected")

	report, err := f.docs.Status(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedChunks)
}

func TestIngestService_TransientFailureRecovers(t *testing.T) {
	var failed bool
	embedder := &mockEmbeddingService{embedFn: func(context.Context, string) ([]float32, error) {
		if !failed {
			failed = true
			return nil, domain.ErrEmbeddingService
		}
		return []float32{1, 1}, nil
	}}
	f := newIngestFixture(t, embedder)

	doc, err := f.ingest.Upload(context.Background(), domain.NewDocument{Title: "T", Content: "one chunk"}, domain.ChunkConfig{})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, f.wait(t, doc.ID).Status)
	assert.EqualValues(t, 2, embedder.calls.Load())
}

func TestIngestService_NoEmbedder(t *testing.T) {
	f := newIngestFixture(t, nil)

	doc, err := f.ingest.Upload(context.Background(), domain.NewDocument{Title: "T", Content: "text"}, domain.ChunkConfig{})
	require.NoError(t, err)

	done := f.wait(t, doc.ID)
	assert.Equal(t, domain.StatusFailed, done.Status)
	assert.Contains(t, done.ProcessingError, domain.ErrEmbeddingUnavailable.Error())

	chunks, err := f.store.GetChunks(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1, "chunks are stored even when indexing fails")
}

func TestIngestService_Reingest_KeepsUnchangedEmbeddings(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})
	ctx := context.Background()

	content := longText(60)
	doc, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "T", Content: content}, domain.ChunkConfig{})
	require.NoError(t, err)
	f.wait(t, doc.ID)
	before, err := f.store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	calls := f.embedder.calls.Load()

	again, err := f.ingest.Ingest(ctx, doc.ID, "", domain.ChunkConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Generation)
	assert.Equal(t, domain.StatusPending, again.Status)

	done := f.wait(t, doc.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 2, done.Generation)

	after, err := f.store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, calls, f.embedder.calls.Load(), "unchanged chunks are not re-embedded")
}

func TestIngestService_Reingest_NewContentAndConfig(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})
	ctx := context.Background()

	doc, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "T", Content: longText(60)}, domain.ChunkConfig{})
	require.NoError(t, err)
	f.wait(t, doc.ID)

	_, err = f.ingest.Ingest(ctx, doc.ID, longText(10), domain.ChunkConfig{Size: 4, Overlap: 1})
	require.NoError(t, err)
	done := f.wait(t, doc.ID)

	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, domain.ChunkConfig{Size: 4, Overlap: 1}, done.ChunkConfig)
	assert.Equal(t, longText(10), done.Content)

	chunks, err := f.store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestIngestService_Reingest_CancelsInFlight(t *testing.T) {
	g := newGate()
	embedder := &mockEmbeddingService{embedFn: g.embed}
	f := newIngestFixture(t, embedder)
	ctx := context.Background()

	doc, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "T", Content: "first version"}, domain.ChunkConfig{})
	require.NoError(t, err)
	g.waitEntered(t)

	// The first job is blocked in the embedder; re-ingest must cancel it.
	_, err = f.ingest.Ingest(ctx, doc.ID, "second version", domain.ChunkConfig{})
	require.NoError(t, err)
	g.open()

	done := f.wait(t, doc.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 2, done.Generation)

	chunks, err := f.store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "second version", chunks[0].Content)
}

func TestIngestService_Ingest_Unknown(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})

	_, err := f.ingest.Ingest(context.Background(), "missing", "text", domain.ChunkConfig{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestService_Delete(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})
	ctx := context.Background()

	doc, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "T", Content: longText(30)}, domain.ChunkConfig{})
	require.NoError(t, err)
	f.wait(t, doc.ID)

	require.NoError(t, f.docs.Delete(ctx, doc.ID))

	_, err = f.docs.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.docs.Status(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, f.docs.Delete(ctx, doc.ID), domain.ErrNotFound)
}

func TestIngestService_Delete_CancelsInFlight(t *testing.T) {
	g := newGate()
	f := newIngestFixture(t, &mockEmbeddingService{embedFn: g.embed})
	ctx := context.Background()

	doc, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "T", Content: "in flight"}, domain.ChunkConfig{})
	require.NoError(t, err)
	g.waitEntered(t)

	require.NoError(t, f.docs.Delete(ctx, doc.ID))

	_, err = f.store.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	chunks, err := f.store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngestService_Resume(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})
	ctx := context.Background()

	for _, st := range []domain.DocumentStatus{domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted} {
		require.NoError(t, f.store.SaveDocument(ctx, &domain.Document{
			ID:          "doc-" + string(st),
			Title:       string(st),
			Content:     "left over " + string(st),
			Status:      st,
			Generation:  3,
			ChunkConfig: domain.ChunkConfig{Size: 8, Overlap: 2},
		}))
	}

	n, err := f.ingest.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"doc-pending", "doc-processing"} {
		done := f.wait(t, id)
		assert.Equal(t, domain.StatusCompleted, done.Status, id)
		assert.Equal(t, 4, done.Generation, id)
		assert.Equal(t, domain.ChunkConfig{Size: 8, Overlap: 2}, done.ChunkConfig, id)
	}

	untouched, err := f.store.GetDocument(ctx, "doc-completed")
	require.NoError(t, err)
	assert.Equal(t, 3, untouched.Generation)
}

func TestIngestService_Close(t *testing.T) {
	g := newGate()
	f := newIngestFixture(t, &mockEmbeddingService{embedFn: g.embed})
	ctx := context.Background()

	doc, err := f.ingest.Upload(ctx, domain.NewDocument{Title: "T", Content: "text"}, domain.ChunkConfig{})
	require.NoError(t, err)
	g.waitEntered(t)

	require.NoError(t, f.ingest.Close())

	stored, err := f.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.Status, "interrupted work is left for Resume")

	_, err = f.ingest.Upload(ctx, domain.NewDocument{Title: "late"}, domain.ChunkConfig{})
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestIngestService_Wait_NoJob(t *testing.T) {
	f := newIngestFixture(t, &mockEmbeddingService{})
	assert.NoError(t, f.ingest.Wait(context.Background(), "nothing"))
}
