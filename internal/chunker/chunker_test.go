package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragctx/internal/adapters/driven/tokenizer/words"
	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
)

// byteTokenizer makes every byte a token, splitting multi-byte runes.
type byteTokenizer struct{}

func (byteTokenizer) Name() string { return "bytes" }

func (byteTokenizer) Tokenize(text string) []driven.Token {
	tokens := make([]driven.Token, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = driven.Token{Start: i, End: i + 1}
	}
	return tokens
}

func (byteTokenizer) Count(text string) int { return len(text) }

func repeatWords(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func sampleText() string {
	var sb strings.Builder
	for p := 0; p < 8; p++ {
		for s := 0; s < 5; s++ {
			fmt.Fprintf(&sb, "Paragraph %d sentence %d talks about retrieval, chunking and budgets. ", p, s)
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func TestNew(t *testing.T) {
	t.Run("default tolerance", func(t *testing.T) {
		c := New(words.New())
		assert.InDelta(t, DefaultTolerance, c.tolerance, 1e-9)
		assert.Equal(t, "words/uax29", c.Tokenizer().Name())
	})

	t.Run("custom tolerance", func(t *testing.T) {
		c := New(words.New(), WithTolerance(0.25))
		assert.InDelta(t, 0.25, c.tolerance, 1e-9)
	})

	t.Run("out of range tolerance ignored", func(t *testing.T) {
		c := New(words.New(), WithTolerance(1.5), WithTolerance(-0.1))
		assert.InDelta(t, DefaultTolerance, c.tolerance, 1e-9)
	})
}

func TestChunk_EmptyText(t *testing.T) {
	c := New(words.New())

	chunks, err := c.Chunk("doc", "", domain.DefaultChunkConfig())
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = c.Chunk("doc", " \n\n\t ", domain.DefaultChunkConfig())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_InvalidConfig(t *testing.T) {
	c := New(words.New())

	tests := []domain.ChunkConfig{
		{Size: 0, Overlap: 0},
		{Size: 10, Overlap: 10},
		{Size: 10, Overlap: -1},
	}

	for _, cfg := range tests {
		t.Run(fmt.Sprintf("%d/%d", cfg.Size, cfg.Overlap), func(t *testing.T) {
			_, err := c.Chunk("doc", "some text", cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	c := New(words.New())

	chunks, err := c.Chunk("doc", "  A short note.  ", domain.DefaultChunkConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "A short note.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Sequence)
	assert.Equal(t, "doc", chunks[0].DocumentID)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len("A short note."), chunks[0].EndOffset)
	assert.Equal(t, 4, chunks[0].TokenCount)
	assert.NotNil(t, chunks[0].Metadata)
}

func TestChunk_FixedWindows(t *testing.T) {
	c := New(words.New())
	text := repeatWords(1000)

	chunks, err := c.Chunk("doc", text, domain.ChunkConfig{Size: 300, Overlap: 50})
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	counts := make([]int, len(chunks))
	for i, ch := range chunks {
		counts[i] = ch.TokenCount
		assert.Equal(t, i, ch.Sequence)
	}
	assert.Equal(t, []int{300, 300, 300, 250}, counts)

	spans := c.Split(text, domain.ChunkConfig{Size: 300, Overlap: 50})
	require.Len(t, spans, 4)
	assert.Equal(t, 0, spans[0].FirstToken)
	assert.Equal(t, 250, spans[1].FirstToken)
	assert.Equal(t, 500, spans[2].FirstToken)
	assert.Equal(t, 750, spans[3].FirstToken)
	assert.Equal(t, 1000, spans[3].LastToken)
}

func TestChunk_PrefersParagraphBreak(t *testing.T) {
	c := New(words.New(), WithTolerance(0.3))
	text := "a b c d e f g h.\n\ni j k l m n o p q r s t"

	chunks, err := c.Chunk("doc", text, domain.ChunkConfig{Size: 10, Overlap: 0})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal(t, "a b c d e f g h.", chunks[0].Content)
	assert.Equal(t, 9, chunks[0].TokenCount)
}

func TestChunk_PrefersSentenceEnd(t *testing.T) {
	c := New(words.New(), WithTolerance(0.3))
	text := "a b c d e f g. h i j k l m n o"

	chunks, err := c.Chunk("doc", text, domain.ChunkConfig{Size: 10, Overlap: 0})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal(t, "a b c d e f g.", chunks[0].Content)
}

func TestChunk_DecimalIsNotSentenceEnd(t *testing.T) {
	b := boundaries{text: "pi is 3.14 ok"}
	b.tokens = words.New().Tokenize(b.text)

	for i := range b.tokens {
		assert.False(t, b.sentence(i), "gap before token %d", i)
	}
}

func TestChunk_Invariants(t *testing.T) {
	text := sampleText()
	normalized := Normalize(text)

	configs := []domain.ChunkConfig{
		{Size: 50, Overlap: 10},
		{Size: 30, Overlap: 0},
		{Size: 20, Overlap: 19},
		{Size: 7, Overlap: 3},
		{Size: 512, Overlap: 64},
	}

	for _, cfg := range configs {
		t.Run(fmt.Sprintf("%d/%d", cfg.Size, cfg.Overlap), func(t *testing.T) {
			c := New(words.New())
			chunks, err := c.Chunk("doc", text, cfg)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			assert.Equal(t, 0, chunks[0].StartOffset)
			assert.Equal(t, len(normalized), chunks[len(chunks)-1].EndOffset)

			rebuilt := chunks[0].Content
			for i, ch := range chunks {
				assert.Equal(t, normalized[ch.StartOffset:ch.EndOffset], ch.Content)
				assert.LessOrEqual(t, ch.TokenCount, cfg.Size)
				assert.Positive(t, ch.TokenCount)
				if i > 0 {
					prev := chunks[i-1]
					require.LessOrEqual(t, ch.StartOffset, prev.EndOffset)
					require.Greater(t, ch.StartOffset, prev.StartOffset)
					rebuilt += normalized[prev.EndOffset:ch.EndOffset]
				}
			}
			assert.Equal(t, normalized, rebuilt)

			spans := c.Split(normalized, cfg)
			for i := 1; i < len(spans); i++ {
				assert.Equal(t, spans[i-1].LastToken-cfg.Overlap, spans[i].FirstToken)
			}
		})
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(words.New())
	cfg := domain.ChunkConfig{Size: 40, Overlap: 8}

	first, err := c.Chunk("doc", sampleText(), cfg)
	require.NoError(t, err)
	second, err := c.Chunk("doc", sampleText(), cfg)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestChunk_RuneSafe(t *testing.T) {
	c := New(byteTokenizer{})
	text := strings.Repeat("Grüße aus Köln, 東京 und naïve café. ", 6)

	configs := []domain.ChunkConfig{
		{Size: 5, Overlap: 1},
		{Size: 9, Overlap: 4},
		{Size: 16, Overlap: 0},
	}

	for _, cfg := range configs {
		chunks, err := c.Chunk("doc", text, cfg)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		normalized := Normalize(text)
		for i, ch := range chunks {
			assert.True(t, utf8.ValidString(ch.Content), "chunk %d: %q", i, ch.Content)
			assert.LessOrEqual(t, ch.TokenCount, cfg.Size)
			if i > 0 {
				assert.Greater(t, ch.StartOffset, chunks[i-1].StartOffset)
			}
		}
		assert.Equal(t, len(normalized), chunks[len(chunks)-1].EndOffset)
	}
}

func TestChunk_Pages(t *testing.T) {
	c := New(words.New())
	text := "[Page 1]\nalpha beta gamma\n[Page 2]\ndelta epsilon zeta"

	chunks, err := c.Chunk("doc", text, domain.ChunkConfig{Size: 4, Overlap: 0})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[len(chunks)-1].Page)
}

func TestChunk_NoPages(t *testing.T) {
	c := New(words.New())

	chunks, err := c.Chunk("doc", "plain text without markers", domain.DefaultChunkConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Zero(t, chunks[0].Page)
}

func TestFindPages(t *testing.T) {
	text := "intro [Page 2] a --- Page 3 --- b Page 7: c"
	marks := findPages(text)

	require.Len(t, marks, 3)
	assert.Equal(t, 2, marks[0].page)
	assert.Equal(t, 3, marks[1].page)
	assert.Equal(t, 7, marks[2].page)
	assert.Equal(t, strings.Index(text, "[Page 2]"), marks[0].offset)
}

func TestPageFor(t *testing.T) {
	marks := []pageMark{{offset: 10, page: 1}, {offset: 50, page: 2}}

	assert.Equal(t, 1, pageFor(marks, 0, 20), "first marker inside span")
	assert.Equal(t, 0, pageFor(marks, 0, 5), "no marker reached")
	assert.Equal(t, 1, pageFor(marks, 10, 30))
	assert.Equal(t, 1, pageFor(marks, 30, 60))
	assert.Equal(t, 2, pageFor(marks, 70, 90))
}

func TestChunkID(t *testing.T) {
	id := ChunkID("doc", 0, "hello")

	assert.Equal(t, id, ChunkID("doc", 0, "hello"))
	assert.NotEqual(t, id, ChunkID("doc", 1, "hello"))
	assert.NotEqual(t, id, ChunkID("doc", 0, "hello!"))
	assert.NotEqual(t, id, ChunkID("other", 0, "hello"))
	assert.Len(t, id, 36)
}
