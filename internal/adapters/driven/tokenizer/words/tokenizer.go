// Package words provides a Unicode word tokenizer for models without a
// published vocabulary (Ollama, the built-in embedder).
//
// Words, numbers and ideographs follow UAX #29 word boundaries. Every
// punctuation mark is its own token and whitespace is attached to the
// token that follows it, the way BPE vocabularies attach a leading space.
package words

import (
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/segment"

	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
)

// Ensure Tokenizer implements the interface.
var _ driven.Tokenizer = (*Tokenizer)(nil)

// Tokenizer splits text on word boundaries.
type Tokenizer struct{}

// New creates a word tokenizer.
func New() *Tokenizer {
	return &Tokenizer{}
}

// Name identifies the tokenizer.
func (t *Tokenizer) Name() string {
	return "words/uax29"
}

// Tokenize returns word spans that tile text.
func (t *Tokenizer) Tokenize(text string) []driven.Token {
	if text == "" {
		return nil
	}

	seg := segment.NewWordSegmenterDirect([]byte(text))

	var tokens []driven.Token
	start, pos := 0, 0
	for seg.Segment() {
		b := seg.Bytes()
		pos += len(b)
		if seg.Type() == segment.None && isSpace(b) {
			continue
		}
		tokens = append(tokens, driven.Token{Start: start, End: pos})
		start = pos
	}

	if seg.Err() != nil || pos < len(text) {
		// Unsegmentable tail; keep the tiling intact.
		tokens = append(tokens, driven.Token{Start: start, End: len(text)})
		start = len(text)
	}

	if start < len(text) {
		// Trailing whitespace joins the last token.
		if len(tokens) == 0 {
			return []driven.Token{{Start: 0, End: len(text)}}
		}
		tokens[len(tokens)-1].End = len(text)
	}

	return tokens
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.Tokenize(text))
}

func isSpace(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if !unicode.IsSpace(r) {
			return false
		}
		b = b[size:]
	}
	return true
}
