package driving

import (
	"context"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// SearchService provides ranked, budgeted chunk retrieval.
type SearchService interface {
	// Search embeds the query, scores completed documents' chunks and
	// returns the ranked selection that fits the token budget.
	Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResult, error)
}

// ContextService builds the context string injected into prompts.
type ContextService interface {
	// BuildContext searches and assembles the selected chunks.
	BuildContext(ctx context.Context, query domain.SearchQuery) (*domain.AssembledContext, error)
}
