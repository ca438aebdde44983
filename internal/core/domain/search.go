package domain

import (
	"fmt"
	"time"
)

// Retrieval defaults.
const (
	DefaultMaxTokens     = 2000
	DefaultMaxChunks     = 5
	DefaultMinSimilarity = 0.5
)

// SearchQuery is an immutable retrieval request.
// MinSimilarity and MaxChunks are taken literally; surfaces fill them from
// the configured defaults when a caller leaves them out.
type SearchQuery struct {
	// Query is the natural-language query text.
	Query string

	// DocumentIDs restricts the search to these documents.
	// Unknown IDs are skipped silently.
	DocumentIDs []string

	// CollectionIDs restricts the search to documents in any of these collections.
	CollectionIDs []string

	// MinSimilarity discards chunks scoring below this value (0.0-1.0).
	MinSimilarity float64

	// MaxTokens is the token budget for the selected chunks.
	// Zero selects the configured default.
	MaxTokens int

	// MaxChunks caps the number of selected chunks after the similarity
	// threshold and the budget are applied. Zero means unlimited.
	MaxChunks int

	// Languages keeps only documents in these languages.
	Languages []string

	// DocumentTypes keeps only documents of these file types.
	DocumentTypes []string

	// Timeout bounds the candidate scan. Zero selects the configured default.
	Timeout time.Duration
}

// Validate checks value ranges.
func (q SearchQuery) Validate() error {
	if q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return fmt.Errorf("%w: min similarity must be within [0, 1], got %v", ErrInvalidInput, q.MinSimilarity)
	}
	if q.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens must not be negative", ErrInvalidInput)
	}
	if q.MaxChunks < 0 {
		return fmt.Errorf("%w: max chunks must not be negative", ErrInvalidInput)
	}
	if q.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidInput)
	}
	return nil
}

// DocumentFilter returns the metadata filter implied by the query.
// Only completed documents are candidates.
func (q SearchQuery) DocumentFilter() DocumentFilter {
	var types []string
	for _, t := range q.DocumentTypes {
		types = append(types, NormalizeFileType(t))
	}
	return DocumentFilter{
		IDs:         q.DocumentIDs,
		Statuses:    []DocumentStatus{StatusCompleted},
		Collections: q.CollectionIDs,
		Languages:   q.Languages,
		FileTypes:   types,
	}
}

// SearchItem is one selected chunk.
type SearchItem struct {
	DocumentID    string
	DocumentTitle string
	ChunkID       string
	Sequence      int
	Page          int
	Content       string
	Similarity    float64
	TokenCount    int
}

// SearchResult is the ranked outcome of a search.
type SearchResult struct {
	// Items are in ranked order: similarity descending, then
	// (DocumentID, Sequence) ascending.
	Items []SearchItem

	// MaxTokens is the budget the selection was made against.
	MaxTokens int

	// TotalTokens is the sum of the selected chunks' token counts.
	TotalTokens int

	// ModelVersion is the embedding model used for the query.
	ModelVersion string

	// Partial is true when a timeout cut the candidate scan short.
	Partial bool
}

// AssembledContext is the context string built from a search result.
type AssembledContext struct {
	// Text is the provenance-annotated context injected into a prompt.
	Text string

	// TokenCount is the token count of Text under the active tokenizer.
	TokenCount int

	// Result is the selection Text was assembled from, after any
	// sections the final budget guard dropped.
	Result *SearchResult
}
