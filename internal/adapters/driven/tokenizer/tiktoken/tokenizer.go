// Package tiktoken provides a BPE tokenizer adapter matching OpenAI models.
// BPE ranks are bundled through the offline loader, so no network access
// is needed at runtime.
package tiktoken

import (
	"fmt"
	"sync"

	tiktokengo "github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
)

// Ensure Tokenizer implements the interface.
var _ driven.Tokenizer = (*Tokenizer)(nil)

// DefaultEncoding is used by every current OpenAI embedding model.
const DefaultEncoding = "cl100k_base"

// modelEncodings maps embedding models to their encodings.
var modelEncodings = map[string]string{
	"text-embedding-3-small": "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
	"text-embedding-ada-002": "cl100k_base",
}

var loaderOnce sync.Once

// Tokenizer splits text into BPE tokens.
type Tokenizer struct {
	enc      *tiktokengo.Tiktoken
	encoding string
}

// New creates a tokenizer for the named encoding (e.g. cl100k_base, o200k_base).
func New(encoding string) (*Tokenizer, error) {
	loaderOnce.Do(func() {
		tiktokengo.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})

	if encoding == "" {
		encoding = DefaultEncoding
	}

	enc, err := tiktokengo.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tiktoken: loading encoding %s: %w", encoding, err)
	}

	return &Tokenizer{enc: enc, encoding: encoding}, nil
}

// ForModel creates a tokenizer for an embedding model, falling back to DefaultEncoding.
func ForModel(model string) (*Tokenizer, error) {
	encoding, ok := modelEncodings[model]
	if !ok {
		encoding = DefaultEncoding
	}
	return New(encoding)
}

// Name identifies the tokenizer.
func (t *Tokenizer) Name() string {
	return "tiktoken/" + t.encoding
}

// Tokenize returns the byte span of every BPE token.
// A token may end inside a multi-byte rune; spans still tile the text.
func (t *Tokenizer) Tokenize(text string) []driven.Token {
	if text == "" {
		return nil
	}

	ids := t.enc.Encode(text, nil, nil)
	tokens := make([]driven.Token, 0, len(ids))

	pos := 0
	for _, id := range ids {
		n := len(t.enc.Decode([]int{id}))
		tokens = append(tokens, driven.Token{Start: pos, End: pos + n})
		pos += n
	}

	// Decoded lengths always sum to len(text); keep the tiling exact regardless.
	if len(tokens) > 0 && pos != len(text) {
		tokens[len(tokens)-1].End = len(text)
	}

	return tokens
}

// Count returns the number of BPE tokens in text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}
