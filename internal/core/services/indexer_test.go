package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragctx/internal/core/domain"
)

func storeChunks(t *testing.T, store *memory.Store, docID string, n int) []domain.Chunk {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{
		ID: docID, Title: docID, Status: domain.StatusProcessing, Generation: 1,
	}))

	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i),
			DocumentID: docID,
			Sequence:   i,
			Content:    fmt.Sprintf("content %d", i),
			TokenCount: 2,
		}
	}
	require.NoError(t, store.ReplaceChunks(ctx, docID, chunks))
	return chunks
}

// recorder collects reported chunk states.
type recorder struct {
	mu     sync.Mutex
	states map[string]domain.ChunkIndexState
}

func newRecorder() *recorder {
	return &recorder{states: make(map[string]domain.ChunkIndexState)}
}

func (r *recorder) report(id string, st domain.ChunkIndexState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = st
}

func TestIndexer_Unavailable(t *testing.T) {
	idx := NewIndexer(memory.NewStore(), nil, testIndexerSettings())

	assert.False(t, idx.Available())
	assert.Empty(t, idx.ModelVersion())

	_, err := idx.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	err = idx.IndexDocument(context.Background(), []domain.Chunk{{ID: "c"}}, nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestIndexer_Index(t *testing.T) {
	store := memory.NewStore()
	chunks := storeChunks(t, store, "doc", 1)
	embedder := &mockEmbeddingService{vector: []float32{0.6, 0.8}}
	idx := NewIndexer(store, embedder, testIndexerSettings())

	emb, err := idx.Index(context.Background(), chunks[0])
	require.NoError(t, err)
	assert.Equal(t, chunks[0].ID, emb.ChunkID)
	assert.Equal(t, "mock/mock-embed", emb.ModelVersion)
	assert.Equal(t, 2, emb.Dimensions)

	// Idempotent upsert.
	_, err = idx.Index(context.Background(), chunks[0])
	require.NoError(t, err)

	has, err := store.HasEmbedding(context.Background(), chunks[0].ID, "mock/mock-embed")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestIndexer_Index_ReplacedChunk(t *testing.T) {
	store := memory.NewStore()
	chunks := storeChunks(t, store, "doc", 1)
	require.NoError(t, store.ReplaceChunks(context.Background(), "doc", nil))

	idx := NewIndexer(store, &mockEmbeddingService{}, testIndexerSettings())

	_, err := idx.Index(context.Background(), chunks[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexer_Index_EmptyVector(t *testing.T) {
	store := memory.NewStore()
	chunks := storeChunks(t, store, "doc", 1)
	embedder := &mockEmbeddingService{embedFn: func(context.Context, string) ([]float32, error) {
		return []float32{}, nil
	}}
	idx := NewIndexer(store, embedder, testIndexerSettings())

	_, err := idx.Index(context.Background(), chunks[0])
	assert.Error(t, err)
}

func TestIndexer_IndexDocument(t *testing.T) {
	store := memory.NewStore()
	chunks := storeChunks(t, store, "doc", 7)
	embedder := &mockEmbeddingService{}
	idx := NewIndexer(store, embedder, testIndexerSettings())
	rec := newRecorder()

	require.NoError(t, idx.IndexDocument(context.Background(), chunks, rec.report))

	assert.Len(t, rec.states, 7)
	for _, c := range chunks {
		assert.Equal(t, domain.ChunkIndexed, rec.states[c.ID])
		has, err := store.HasEmbedding(context.Background(), c.ID, embedder.ModelVersion())
		require.NoError(t, err)
		assert.True(t, has)
	}
	assert.EqualValues(t, 7, embedder.calls.Load())
}

func TestIndexer_IndexDocument_SkipsExisting(t *testing.T) {
	store := memory.NewStore()
	chunks := storeChunks(t, store, "doc", 4)
	embedder := &mockEmbeddingService{}
	idx := NewIndexer(store, embedder, testIndexerSettings())

	require.NoError(t, idx.IndexDocument(context.Background(), chunks[:2], nil))
	require.EqualValues(t, 2, embedder.calls.Load())

	rec := newRecorder()
	require.NoError(t, idx.IndexDocument(context.Background(), chunks, rec.report))

	assert.EqualValues(t, 4, embedder.calls.Load(), "only the two new chunks are embedded")
	assert.Len(t, rec.states, 4)
}

func TestIndexer_IndexDocument_OtherModelVersionNotReused(t *testing.T) {
	store := memory.NewStore()
	chunks := storeChunks(t, store, "doc", 2)

	first := &mockEmbeddingService{version: "mock/v1"}
	require.NoError(t, NewIndexer(store, first, testIndexerSettings()).IndexDocument(context.Background(), chunks, nil))

	second := &mockEmbeddingService{version: "mock/v2"}
	require.NoError(t, NewIndexer(store, second, testIndexerSettings()).IndexDocument(context.Background(), chunks, nil))

	assert.EqualValues(t, 2, second.calls.Load())
}

func TestIndexer_IndexDocument_RetriesTransient(t *testing.T) {
	store := memory.NewStore()
	chunks := storeChunks(t, store, "doc", 3)

	var mu sync.Mutex
	failures := map[string]int{}
	embedder := &mockEmbeddingService{embedFn: func(_ context.Context, text string) ([]float32, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures[text] < 2 {
			failures[text]++
			return nil, fmt.Errorf("%w: status 503", domain.ErrEmbeddingService)
		}
		return []float32{1, 1}, nil
	}}
	idx := NewIndexer(store, embedder, testIndexerSettings())

	require.NoError(t, idx.IndexDocument(context.Background(), chunks, nil))
	assert.EqualValues(t, 9, embedder.calls.Load())
}

func TestIndexer_IndexDocument_PermanentFailure(t *testing.T) {
	store := memory.NewStore()
	chunks := storeChunks(t, store, "doc", 5)

	permanent := errors.New("status 400: input too long")
	embedder := &mockEmbeddingService{embedFn: func(_ context.Context, text string) ([]float32, error) {
		if text == "content 2" {
			return nil, permanent
		}
		return []float32{1, 1}, nil
	}}
	idx := NewIndexer(store, embedder, testIndexerSettings())
	rec := newRecorder()

	err := idx.IndexDocument(context.Background(), chunks, rec.report)
	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Contains(t, err.Error(), "embed chunk 2")
	assert.Equal(t, domain.ChunkFailed, rec.states["doc-2"])
}

func TestIndexer_IndexDocument_Cancelled(t *testing.T) {
	store := memory.NewStore()
	chunks := storeChunks(t, store, "doc", 3)

	g := newGate()
	idx := NewIndexer(store, &mockEmbeddingService{embedFn: g.embed}, testIndexerSettings())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- idx.IndexDocument(ctx, chunks, nil) }()

	g.waitEntered(t)
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
}
