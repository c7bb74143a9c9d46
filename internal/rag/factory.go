package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-agent/internal/chromemdb"
	"document-agent/internal/chunker"
	"document-agent/internal/config"
	"document-agent/internal/db"
	"document-agent/internal/embedding"
	"document-agent/internal/llmservice"
	"document-agent/internal/parser"
)

const promptEncoding = "cl100k_base"

// Shared holds the model clients that every processor built from one config
// can reuse.
type Shared struct {
	Embedder  embeddings.Embedder
	Generator Generator
	Tokenizer Tokenizer
}

func NewShared(cfg *config.Config) (*Shared, error) {
	embedder, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	generator, err := llmservice.New(&cfg.InferenceLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	var tok Tokenizer
	tok, err = NewTiktoken(promptEncoding)
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to word counts for the prompt budget")
		tok = WordTokenizer{}
	}
	return &Shared{Embedder: embedder, Generator: generator, Tokenizer: tok}, nil
}

// Close releases the embedder's resources.
func (s *Shared) Close() error {
	if c, ok := s.Embedder.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// NewIndex opens the index backend selected by cfg.RAG.IndexBackend.
func NewIndex(ctx context.Context, cfg *config.Config) (Index, error) {
	switch cfg.RAG.IndexBackend {
	case config.IndexChromem, "":
		return chromemdb.NewIndex(cfg.RAG.Collection), nil
	case config.IndexPgvector:
		idx, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open pgvector index: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s", cfg.RAG.IndexBackend)
	}
}

// NewProcessor assembles an empty processor from cfg around the shared
// model clients.
func NewProcessor(ctx context.Context, cfg *config.Config, shared *Shared) (*DocumentProcessor, error) {
	splitter, err := chunker.New(cfg.RAG)
	if err != nil {
		return nil, err
	}
	index, err := NewIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewDocumentProcessor(Components{
		Loader:    parser.NewLoader(),
		Splitter:  splitter,
		Embedder:  shared.Embedder,
		Index:     index,
		Generator: shared.Generator,
		Tokenizer: shared.Tokenizer,
	}, Options{
		BatchSize:       cfg.EmbedLLM.BatchSize,
		TopK:            cfg.RAG.TopK,
		MaxPromptTokens: cfg.InferenceLLM.MaxPromptTokens,
	}), nil
}
