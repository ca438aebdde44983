package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
	"github.com/custodia-labs/ragctx/internal/core/ports/driving"
	"github.com/custodia-labs/ragctx/internal/logger"
	"github.com/custodia-labs/ragctx/internal/vector"
)

// Ensure RetrievalService implements the interface.
var _ driving.SearchService = (*RetrievalService)(nil)

// scoredChunk is a candidate that passed the similarity threshold.
type scoredChunk struct {
	doc        *domain.Document
	chunk      domain.Chunk
	similarity float64
}

// RetrievalService ranks chunks of completed documents against a query
// and selects those that fit the token budget.
type RetrievalService struct {
	docStore driven.DocumentStore
	index    driven.EmbeddingIndex
	indexer  *Indexer
	defaults domain.SearchSettings
}

// Reserve returns the tokens an accepted chunk costs beyond its own count.
// position is the number of chunks already accepted.
type Reserve func(title string, position int) int

// NewRetrievalService creates a retrieval service.
func NewRetrievalService(
	docStore driven.DocumentStore,
	index driven.EmbeddingIndex,
	indexer *Indexer,
	defaults domain.SearchSettings,
) *RetrievalService {
	return &RetrievalService{
		docStore: docStore,
		index:    index,
		indexer:  indexer,
		defaults: defaults,
	}
}

// Search embeds the query, scores candidates and accepts chunks while
// their own token counts fit the budget.
func (s *RetrievalService) Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	return s.SearchReserving(ctx, q, nil)
}

// SearchReserving is Search with reserve charged on top of each accepted
// chunk. A nil reserve charges nothing.
func (s *RetrievalService) SearchReserving(
	ctx context.Context, q domain.SearchQuery, reserve Reserve,
) (*domain.SearchResult, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q", q.Query)

	if err := q.Validate(); err != nil {
		return nil, err
	}

	maxTokens := q.MaxTokens
	if maxTokens == 0 {
		maxTokens = s.defaults.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = domain.DefaultMaxTokens
	}
	result := &domain.SearchResult{Items: []domain.SearchItem{}, MaxTokens: maxTokens}

	text := strings.TrimSpace(q.Query)
	if text == "" {
		logger.Debug("Empty query, returning no results")
		return result, nil
	}

	if s.indexer == nil || !s.indexer.Available() {
		return nil, domain.ErrEmbeddingUnavailable
	}

	queryVec, err := s.indexer.Embed(ctx, text)
	if err != nil {
		logger.Warn("Query embedding failed: %v", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	result.ModelVersion = s.indexer.ModelVersion()

	timeout := q.Timeout
	if timeout == 0 {
		timeout = s.defaults.Timeout
	}

	scored, partial, err := s.score(ctx, q, queryVec, result.ModelVersion, timeout)
	if err != nil {
		return nil, err
	}
	result.Partial = partial
	logger.Debug("Scored %d chunk(s) at or above %.2f (partial=%t)", len(scored), q.MinSimilarity, partial)

	rank(scored)
	selectWithin(result, scored, q.MaxChunks, reserve)

	logger.Info("Selected %d chunk(s), %d/%d tokens", len(result.Items), result.TotalTokens, maxTokens)
	return result, nil
}

// score reads every candidate document and keeps chunks at or above the
// threshold. When timeout expires mid-scan it returns what it has with
// partial set.
func (s *RetrievalService) score(
	ctx context.Context, q domain.SearchQuery, queryVec []float32, version string, timeout time.Duration,
) ([]scoredChunk, bool, error) {
	docs, err := s.docStore.ListDocuments(ctx, q.DocumentFilter())
	if err != nil {
		return nil, false, fmt.Errorf("list candidate documents: %w", err)
	}
	logger.Debug("Candidate documents: %d", len(docs))

	scanCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var scored []scoredChunk
	for i := range docs {
		doc := &docs[i]
		if scanCtx.Err() != nil {
			return s.interrupted(ctx, scored)
		}

		candidates, err := s.index.Candidates(scanCtx, doc.ID, version)
		if err != nil {
			if scanCtx.Err() != nil {
				return s.interrupted(ctx, scored)
			}
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, false, fmt.Errorf("read candidates of %s: %w", doc.ID, err)
		}

		for _, c := range candidates {
			if c.Vector == nil || len(c.Vector) != len(queryVec) {
				continue
			}
			sim := vector.Similarity(queryVec, c.Vector)
			if sim < q.MinSimilarity {
				continue
			}
			scored = append(scored, scoredChunk{doc: doc, chunk: c.Chunk, similarity: sim})
		}
	}
	return scored, false, nil
}

// interrupted distinguishes the scan timeout, which yields a partial
// result, from cancellation by the caller, which is an error.
func (s *RetrievalService) interrupted(ctx context.Context, scored []scoredChunk) ([]scoredChunk, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	logger.Warn("Search timed out, ranking %d scored chunk(s)", len(scored))
	return scored, true, nil
}

// rank orders by similarity descending, then document ID and sequence ascending.
func rank(scored []scoredChunk) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if a.doc.ID != b.doc.ID {
			return a.doc.ID < b.doc.ID
		}
		return a.chunk.Sequence < b.chunk.Sequence
	})
}

// selectWithin accepts chunks greedily in ranked order. A chunk that does
// not fit the remaining budget is skipped, never truncated. maxChunks caps
// the accepted count last.
func selectWithin(result *domain.SearchResult, scored []scoredChunk, maxChunks int, reserve Reserve) {
	used := 0
	for _, sc := range scored {
		cost := sc.chunk.TokenCount
		if reserve != nil {
			cost += reserve(sc.doc.Title, len(result.Items))
		}
		if used+cost > result.MaxTokens {
			continue
		}
		used += cost

		result.Items = append(result.Items, domain.SearchItem{
			DocumentID:    sc.doc.ID,
			DocumentTitle: sc.doc.Title,
			ChunkID:       sc.chunk.ID,
			Sequence:      sc.chunk.Sequence,
			Page:          sc.chunk.Page,
			Content:       sc.chunk.Content,
			Similarity:    sc.similarity,
			TokenCount:    sc.chunk.TokenCount,
		})
		result.TotalTokens += sc.chunk.TokenCount

		if maxChunks > 0 && len(result.Items) == maxChunks {
			return
		}
	}
}
