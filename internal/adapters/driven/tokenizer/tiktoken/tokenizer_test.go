package tiktoken

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := New("")
	require.NoError(t, err)
	return tok
}

func TestNew(t *testing.T) {
	tok := newTestTokenizer(t)
	assert.Equal(t, "tiktoken/cl100k_base", tok.Name())

	_, err := New("no-such-encoding")
	assert.Error(t, err)
}

func TestForModel(t *testing.T) {
	tok, err := ForModel("text-embedding-3-large")
	require.NoError(t, err)
	assert.Equal(t, "tiktoken/cl100k_base", tok.Name())

	tok, err = ForModel("unknown-model")
	require.NoError(t, err)
	assert.Equal(t, "tiktoken/cl100k_base", tok.Name())
}

func TestTokenizer_TilesText(t *testing.T) {
	tok := newTestTokenizer(t)

	inputs := []string{
		"hello world",
		"The quick brown fox jumps over the lazy dog.\n\nA second paragraph!",
		"naïve café — Grüße, 日本語のテキスト 🙂",
	}

	for _, text := range inputs {
		t.Run(text, func(t *testing.T) {
			tokens := tok.Tokenize(text)
			require.NotEmpty(t, tokens)

			var b strings.Builder
			pos := 0
			for _, tk := range tokens {
				assert.Equal(t, pos, tk.Start)
				assert.Greater(t, tk.End, tk.Start)
				b.WriteString(text[tk.Start:tk.End])
				pos = tk.End
			}
			assert.Equal(t, len(text), pos)
			assert.Equal(t, text, b.String())
			assert.Equal(t, len(tokens), tok.Count(text))
		})
	}
}

func TestTokenizer_Empty(t *testing.T) {
	tok := newTestTokenizer(t)
	assert.Empty(t, tok.Tokenize(""))
	assert.Zero(t, tok.Count(""))
}

func TestTokenizer_KnownCount(t *testing.T) {
	tok := newTestTokenizer(t)
	// "hello world" is two cl100k tokens: "hello" and " world".
	tokens := tok.Tokenize("hello world")
	require.Len(t, tokens, 2)
	assert.Equal(t, 0, tokens[0].Start)
	assert.Equal(t, 5, tokens[0].End)
}
