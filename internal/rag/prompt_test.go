package rag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-agent/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	question := "What is the capital of France?"
	longContext := strings.Repeat("filler ", 1000) + "Paris"

	t.Run("Fits without truncation", func(t *testing.T) {
		prompt := BuildPrompt(WordTokenizer{}, "Paris is the capital of France.", question, 512)
		want := fmt.Sprintf(models.AnswerPromptTemplate, models.FallbackAnswer, "Paris is the capital of France.", question)
		assert.Equal(t, want, prompt)
	})

	t.Run("Context is truncated to the budget", func(t *testing.T) {
		prompt := BuildPrompt(WordTokenizer{}, longContext, question, 100)
		assert.LessOrEqual(t, WordTokenizer{}.Count(prompt), 100)
		assert.True(t, strings.HasSuffix(prompt, "Question: "+question+"\n\nAnswer:"))
		assert.Contains(t, prompt, models.FallbackAnswer)
		assert.NotContains(t, prompt, "Paris")
	})

	t.Run("Budget smaller than the instruction drops the context", func(t *testing.T) {
		prompt := BuildPrompt(WordTokenizer{}, longContext, question, 5)
		assert.NotContains(t, prompt, "filler")
		assert.Contains(t, prompt, question)
	})

	t.Run("No limit", func(t *testing.T) {
		assert.Contains(t, BuildPrompt(WordTokenizer{}, longContext, question, 0), "Paris")
		assert.Contains(t, BuildPrompt(nil, longContext, question, 10), "Paris")
	})
}

func TestWordTokenizer(t *testing.T) {
	tok := WordTokenizer{}
	assert.Equal(t, 3, tok.Count(" one  two\nthree "))
	assert.Equal(t, "one two", tok.Truncate("one  two three", 2))
	assert.Equal(t, "short", tok.Truncate("short", 10))
}

func TestTiktokenTokenizer(t *testing.T) {
	tok, err := NewTiktoken(promptEncoding)
	require.NoError(t, err)

	t.Run("Short text is unchanged", func(t *testing.T) {
		assert.Equal(t, "Paris", tok.Truncate("Paris", 10))
		assert.Positive(t, tok.Count("Paris is the capital of France."))
	})

	t.Run("Truncation keeps whole characters", func(t *testing.T) {
		text := "東京は日本の首都です 🌍🌎🌏 naïve café 𝔘𝔫𝔦𝔠𝔬𝔡𝔢"
		n := tok.Count(text)
		require.Greater(t, n, 1)
		for i := 1; i < n; i++ {
			out := tok.Truncate(text, i)
			assert.True(t, utf8.ValidString(out), "invalid truncation at %d tokens: %q", i, out)
			assert.True(t, strings.HasPrefix(text, out), "truncation at %d tokens is not a prefix: %q", i, out)
		}
	})
}
