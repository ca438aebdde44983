package services

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// --- Mock implementations ---

// mockEmbeddingService implements driven.EmbeddingService for testing.
// embedFn, when set, decides the result of every call.
type mockEmbeddingService struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	vector  []float32
	version string
	calls   atomic.Int64
}

func (m *mockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	if m.vector != nil {
		return m.vector, nil
	}
	return []float32{1, float32(len(text))}, nil
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	return 2
}

func (m *mockEmbeddingService) ModelName() string {
	return "mock-embed"
}

func (m *mockEmbeddingService) ModelVersion() string {
	if m.version != "" {
		return m.version
	}
	return "mock/mock-embed"
}

func (m *mockEmbeddingService) Ping(_ context.Context) error {
	return nil
}

func (m *mockEmbeddingService) Close() error {
	return nil
}

// gate blocks embedding calls until released or cancelled.
type gate struct {
	once    sync.Once
	release chan struct{}
	entered chan struct{}
}

func newGate() *gate {
	return &gate{release: make(chan struct{}), entered: make(chan struct{}, 64)}
}

func (g *gate) embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return []float32{1, float32(len(text))}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gate) open() {
	g.once.Do(func() { close(g.release) })
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("embedding call never started")
	}
}

// testIndexerSettings retries quickly and does not throttle.
func testIndexerSettings() domain.IndexerSettings {
	return domain.IndexerSettings{
		Concurrency: 2,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		Burst:       1,
	}
}

// seedChunk describes a stored chunk with a chosen similarity to unitQuery.
type seedChunk struct {
	tokens     int
	similarity float64
}

// unitQuery is the query vector every seeded chunk is scored against.
var unitQuery = []float32{1, 0}

// vectorWith returns a unit vector whose cosine with unitQuery is sim.
func vectorWith(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

// seedDocument stores a document with embedded chunks directly in the store.
func seedDocument(
	t *testing.T, store *memory.Store, doc domain.Document, version string, chunks ...seedChunk,
) {
	t.Helper()
	ctx := context.Background()

	if doc.Title == "" {
		doc.Title = "Title " + doc.ID
	}
	if doc.Status == "" {
		doc.Status = domain.StatusCompleted
	}
	if doc.Generation == 0 {
		doc.Generation = 1
	}
	require.NoError(t, store.SaveDocument(ctx, &doc))

	stored := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		stored[i] = domain.Chunk{
			ID:         doc.ID + "-" + string(rune('a'+i)),
			DocumentID: doc.ID,
			Sequence:   i,
			Content:    "chunk " + string(rune('a'+i)) + " of " + doc.ID,
			TokenCount: c.tokens,
		}
	}
	require.NoError(t, store.ReplaceChunks(ctx, doc.ID, stored))

	for i, c := range chunks {
		vec := vectorWith(c.similarity)
		require.NoError(t, store.PutEmbedding(ctx, domain.Embedding{
			ChunkID:      stored[i].ID,
			ModelVersion: version,
			Vector:       vec,
			Dimensions:   len(vec),
		}))
	}
}
