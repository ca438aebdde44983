package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// Indexer embeds chunks and stores their vectors under the active model version.
// Embedding calls are bounded by a worker limit and a shared token bucket,
// so concurrent documents together stay under the provider's rate.
type Indexer struct {
	index       driven.EmbeddingIndex
	embedder    driven.EmbeddingService
	limiter     *rate.Limiter
	concurrency int
	retry       retryPolicy
}

// NewIndexer creates an indexer. The embedder is optional; without it every
// call fails with domain.ErrEmbeddingUnavailable.
func NewIndexer(index driven.EmbeddingIndex, embedder driven.EmbeddingService, cfg domain.IndexerSettings) *Indexer {
	defaults := domain.DefaultAppSettings().Indexer
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Indexer{
		index:       index,
		embedder:    embedder,
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		concurrency: cfg.Concurrency,
		retry:       newRetryPolicy(cfg),
	}
}

// Available reports whether an embedding service is configured.
func (i *Indexer) Available() bool {
	return i.embedder != nil
}

// ModelVersion returns the active model version, or "" without an embedder.
func (i *Indexer) ModelVersion() string {
	if i.embedder == nil {
		return ""
	}
	return i.embedder.ModelVersion()
}

// Embed turns text into a vector with throttling and retries.
func (i *Indexer) Embed(ctx context.Context, text string) ([]float32, error) {
	if i.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	var vec []float32
	err := i.retry.do(ctx, "embed", func(ctx context.Context) error {
		if err := i.limiter.Wait(ctx); err != nil {
			return err
		}
		v, err := i.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%s returned an empty vector", i.embedder.ModelVersion())
	}
	return vec, nil
}

// Index embeds one chunk and upserts its vector. Repeating it for the same
// chunk and model version overwrites the previous vector.
// Returns domain.ErrNotFound if the chunk was replaced in the meantime.
func (i *Indexer) Index(ctx context.Context, chunk domain.Chunk) (*domain.Embedding, error) {
	vec, err := i.Embed(ctx, chunk.Content)
	if err != nil {
		return nil, fmt.Errorf("embed chunk %d: %w", chunk.Sequence, err)
	}

	emb := domain.Embedding{
		ChunkID:      chunk.ID,
		ModelVersion: i.embedder.ModelVersion(),
		Vector:       vec,
		Dimensions:   len(vec),
		CreatedAt:    time.Now(),
	}
	if err := i.index.PutEmbedding(ctx, emb); err != nil {
		return nil, fmt.Errorf("store embedding for chunk %d: %w", chunk.Sequence, err)
	}
	return &emb, nil
}

// IndexDocument embeds every chunk that has no vector for the active model
// yet. report is called once per chunk with its final state and must be safe
// for concurrent use. The first failure cancels the remaining work.
func (i *Indexer) IndexDocument(
	ctx context.Context, chunks []domain.Chunk, report func(chunkID string, state domain.ChunkIndexState),
) error {
	if i.embedder == nil {
		return domain.ErrEmbeddingUnavailable
	}
	if report == nil {
		report = func(string, domain.ChunkIndexState) {}
	}

	start := time.Now()
	defer logger.Since(fmt.Sprintf("indexing %d chunks", len(chunks)), start)

	version := i.embedder.ModelVersion()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for _, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			has, err := i.index.HasEmbedding(gctx, chunk.ID, version)
			if err != nil {
				report(chunk.ID, domain.ChunkFailed)
				return fmt.Errorf("check embedding for chunk %d: %w", chunk.Sequence, err)
			}
			if has {
				report(chunk.ID, domain.ChunkIndexed)
				return nil
			}

			if _, err := i.Index(gctx, chunk); err != nil {
				if !errors.Is(err, context.Canceled) {
					report(chunk.ID, domain.ChunkFailed)
				}
				return err
			}
			report(chunk.ID, domain.ChunkIndexed)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
