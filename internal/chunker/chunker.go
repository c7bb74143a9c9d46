// Package chunker splits document text into overlapping retrieval units.
package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/tmc/langchaingo/textsplitter"

	"document-agent/internal/config"
)

// Token counts use BPE ranks compiled into the binary instead of fetching
// them at startup.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Splitter turns raw text into an ordered list of chunks.
type Splitter interface {
	Split(text string) ([]string, error)
}

// New builds the splitter selected by cfg.Splitter.
func New(cfg config.RAGConfig) (Splitter, error) {
	switch cfg.Splitter {
	case config.SplitterRecursive, "":
		return NewRecursive(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separators), nil
	case config.SplitterToken:
		return NewToken(cfg.ChunkSize, cfg.ChunkOverlap), nil
	case config.SplitterWindow:
		return NewWindow(cfg.ChunkSize, cfg.ChunkOverlap), nil
	default:
		return nil, fmt.Errorf("unknown splitter: %s", cfg.Splitter)
	}
}

// Recursive tries each separator in turn (paragraph, line, word, character)
// until the pieces fit, then merges neighbours back up to the chunk size.
// Lengths are counted in runes.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursive(chunkSize, chunkOverlap int, separators []string) *Recursive {
	return &Recursive{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators(separators),
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

func (r *Recursive) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	chunks, err := r.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	return dropBlank(chunks), nil
}

// Token measures chunk size and overlap in cl100k_base tokens.
type Token struct {
	splitter textsplitter.TokenSplitter
}

func NewToken(chunkSize, chunkOverlap int) *Token {
	return &Token{
		splitter: textsplitter.NewTokenSplitter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

func (t *Token) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	chunks, err := t.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	return dropBlank(chunks), nil
}

// Window cuts fixed byte windows with overlap, pulling each cut back to a
// space, newline or period found in the last tenth of the window.
type Window struct {
	maxChars     int
	overlapChars int
}

func NewWindow(maxChars, overlapChars int) *Window {
	return &Window{maxChars: maxChars, overlapChars: overlapChars}
}

func (w *Window) Split(text string) ([]string, error) {
	return chunkContent(text, w.maxChars, w.overlapChars), nil
}

// chunk content into chunks of at most maxChars runes, overlapping by overlapChars
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return []string{}
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	runes := []rune(strings.TrimSpace(content))
	contentLen := len(runes)
	if contentLen == 0 {
		return []string{}
	}
	if contentLen <= maxChars {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < contentLen {
		end := min(start+maxChars, contentLen)

		if end < contentLen {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= contentLen {
			break
		}

		next := end - overlapChars
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

func dropBlank(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}
