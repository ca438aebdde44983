// Package chunker splits normalized document text into overlapping,
// token-bounded chunks.
//
// A chunk never exceeds the configured token size. Cuts prefer a
// paragraph break, then a sentence end, within a tolerance window before
// the size limit, and fall back to a hard cut at the limit. Consecutive
// chunks share exactly Overlap tokens.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
)

// DefaultTolerance is the fraction of the chunk size searched for a
// natural boundary before the hard limit.
const DefaultTolerance = 0.1

// Ensure Chunker implements the interface.
var _ driven.Chunker = (*Chunker)(nil)

// Chunker splits text using a model tokenizer.
type Chunker struct {
	tokenizer driven.Tokenizer
	tolerance float64
}

// Option configures the chunker.
type Option func(*Chunker)

// WithTolerance sets the boundary search window as a fraction of the
// chunk size. Values outside [0, 1) are ignored.
func WithTolerance(fraction float64) Option {
	return func(c *Chunker) {
		if fraction >= 0 && fraction < 1 {
			c.tolerance = fraction
		}
	}
}

// New creates a chunker counting tokens with tokenizer.
func New(tokenizer driven.Tokenizer, opts ...Option) *Chunker {
	c := &Chunker{
		tokenizer: tokenizer,
		tolerance: DefaultTolerance,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Tokenizer returns the tokenizer chunks are measured with.
func (c *Chunker) Tokenizer() driven.Tokenizer {
	return c.tokenizer
}

// Span is a chunk boundary in token and byte coordinates.
type Span struct {
	// FirstToken and LastToken delimit the tokens [FirstToken, LastToken).
	FirstToken int
	LastToken  int

	// Start and End are byte offsets [Start, End) into the text.
	Start int
	End   int
}

// Tokens returns the number of tokens in the span.
func (s Span) Tokens() int {
	return s.LastToken - s.FirstToken
}

// Chunk normalizes text and splits it into chunks of documentID.
func (c *Chunker) Chunk(documentID, text string, cfg domain.ChunkConfig) ([]domain.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	normalized := Normalize(text)
	spans := c.Split(normalized, cfg)
	if len(spans) == 0 {
		return nil, nil
	}

	marks := findPages(normalized)
	chunks := make([]domain.Chunk, 0, len(spans))
	for seq, s := range spans {
		content := normalized[s.Start:s.End]
		chunks = append(chunks, domain.Chunk{
			ID:          ChunkID(documentID, seq, content),
			DocumentID:  documentID,
			Sequence:    seq,
			Content:     content,
			TokenCount:  s.Tokens(),
			StartOffset: s.Start,
			EndOffset:   s.End,
			Page:        pageFor(marks, s.Start, s.End),
			Metadata:    make(map[string]any),
		})
	}

	return chunks, nil
}

// Split computes chunk spans over already normalized text. The caller
// must have validated cfg.
func (c *Chunker) Split(text string, cfg domain.ChunkConfig) []Span {
	tokens := c.tokenizer.Tokenize(text)
	n := len(tokens)
	if n == 0 {
		return nil
	}

	b := boundaries{text: text, tokens: tokens}
	window := int(float64(cfg.Size) * c.tolerance)
	if window < 1 {
		window = 1
	}

	var spans []Span
	start := 0
	for {
		if start+cfg.Size >= n {
			spans = append(spans, b.span(start, n))
			return spans
		}

		end := b.cut(start, cfg.Size, cfg.Overlap, window)
		spans = append(spans, b.span(start, end))
		start = b.nextStart(start, end, cfg.Overlap)
	}
}

// boundaries answers questions about the gap before token i.
type boundaries struct {
	text   string
	tokens []driven.Token
}

func (b boundaries) span(first, last int) Span {
	return Span{
		FirstToken: first,
		LastToken:  last,
		Start:      b.offset(first),
		End:        b.offset(last),
	}
}

// offset is the byte position of the gap before token i.
func (b boundaries) offset(i int) int {
	if i >= len(b.tokens) {
		return len(b.text)
	}
	return b.tokens[i].Start
}

// valid reports whether cutting before token i keeps UTF-8 intact.
// Byte-level BPE can split a multi-byte rune across tokens.
func (b boundaries) valid(i int) bool {
	if i <= 0 || i >= len(b.tokens) {
		return true
	}
	return utf8.RuneStart(b.text[b.offset(i)])
}

// paragraph reports whether the gap before token i is a blank line.
func (b boundaries) paragraph(i int) bool {
	off := b.offset(i)
	if strings.HasSuffix(b.text[:off], "\n\n") {
		return true
	}
	rest := b.text[off:]
	lead := rest[:len(rest)-len(strings.TrimLeftFunc(rest, unicode.IsSpace))]
	return strings.Contains(lead, "\n\n")
}

// sentence reports whether the gap before token i follows terminal
// punctuation and sits on whitespace, so "3.14" and "e.g" never qualify.
func (b boundaries) sentence(i int) bool {
	off := b.offset(i)
	before := b.text[:off]
	trimmed := strings.TrimRightFunc(before, unicode.IsSpace)
	if trimmed == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	if last != '.' && last != '!' && last != '?' {
		return false
	}
	if len(trimmed) < len(before) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(b.text[off:])
	return unicode.IsSpace(next)
}

// cut picks the end token of a chunk starting at start. The result lies
// in (start+overlap, start+size] so the next chunk always advances.
func (b boundaries) cut(start, size, overlap, window int) int {
	target := start + size
	minCut := start + overlap + 1
	lo := target - window
	if lo < minCut {
		lo = minCut
	}

	for i := target; i >= lo; i-- {
		if b.valid(i) && b.paragraph(i) {
			return i
		}
	}
	for i := target; i >= lo; i-- {
		if b.valid(i) && b.sentence(i) {
			return i
		}
	}
	for i := target; i > start; i-- {
		if b.valid(i) {
			return i
		}
	}
	return target
}

// nextStart steps back overlap tokens from end, keeping the start on a
// rune boundary and strictly after the previous start.
func (b boundaries) nextStart(prev, end, overlap int) int {
	next := end - overlap
	for i := next; i > prev; i-- {
		if b.valid(i) {
			return i
		}
	}
	if next <= prev {
		next = prev
	}
	for i := next + 1; i < end; i++ {
		if b.valid(i) {
			return i
		}
	}
	return end
}
