package rag

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"document-agent/internal/models"
)

// Tokenizer counts and truncates text in model tokens.
type Tokenizer interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named BPE encoding, e.g. "cl100k_base", from the
// ranks embedded in the binary.
func NewTiktoken(encoding string) (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", encoding, err)
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *tiktokenTokenizer) Truncate(text string, maxTokens int) string {
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	// byte-level tokens can end inside a multi-byte character
	return strings.ToValidUTF8(t.enc.Decode(tokens[:maxTokens]), "")
}

// WordTokenizer treats whitespace separated words as tokens.
type WordTokenizer struct{}

func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func (WordTokenizer) Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

// BuildPrompt renders the answer prompt. When the prompt exceeds maxTokens
// only the context is shortened; the instruction and question stay whole.
// maxTokens <= 0 or a nil tokenizer disables the limit.
func BuildPrompt(tok Tokenizer, contextText, question string, maxTokens int) string {
	prompt := fmt.Sprintf(models.AnswerPromptTemplate, models.FallbackAnswer, contextText, question)
	if tok == nil || maxTokens <= 0 || tok.Count(prompt) <= maxTokens {
		return prompt
	}

	overhead := tok.Count(fmt.Sprintf(models.AnswerPromptTemplate, models.FallbackAnswer, "", question))
	budget := maxTokens - overhead
	if budget <= 0 {
		contextText = ""
	} else {
		contextText = tok.Truncate(contextText, budget)
	}
	return fmt.Sprintf(models.AnswerPromptTemplate, models.FallbackAnswer, contextText, question)
}
