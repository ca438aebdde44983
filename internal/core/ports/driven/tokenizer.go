package driven

import "github.com/custodia-labs/ragctx/internal/core/domain"

// Token is a byte span [Start, End) of the tokenized text.
type Token struct {
	Start int
	End   int
}

// Tokenizer splits text into model tokens.
// The tokenizer used for chunking must match the one used for budgets,
// otherwise token counts drift between indexing and retrieval.
type Tokenizer interface {
	// Name identifies the tokenizer (e.g. "tiktoken/cl100k_base").
	Name() string

	// Tokenize returns spans that tile text: consecutive, non-overlapping,
	// starting at 0 and ending at len(text).
	Tokenize(text string) []Token

	// Count returns len(Tokenize(text)) without materialising spans where possible.
	Count(text string) int
}

// Chunker splits document text into overlapping token-bounded chunks.
type Chunker interface {
	// Chunk normalizes text and splits it. Returned chunks carry IDs,
	// sequences, token counts and offsets into the normalized text.
	// Returns domain.ErrInvalidConfiguration unless 0 <= overlap < size.
	Chunk(documentID, text string, cfg domain.ChunkConfig) ([]domain.Chunk, error)
}
