package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-agent/internal/embedding"
	"document-agent/internal/models"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNoDocument       = errors.New("no document loaded")
	ErrNoIndex          = errors.New("index not created")
	ErrEmptyQuestion    = errors.New("question is empty")
)

type Loader interface {
	Load(path string) (string, error)
}

type Splitter interface {
	Split(text string) ([]string, error)
}

// Index is a nearest-neighbour store over chunk embeddings. Build replaces
// the whole contents; Search returns hits best first.
type Index interface {
	Build(ctx context.Context, entries []models.IndexEntry) error
	Search(ctx context.Context, query []float32, k int) ([]models.Hit, error)
	Size() int
	Close() error
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Components are the pipeline stages a processor drives. Embedder must
// return unit-length vectors.
type Components struct {
	Loader    Loader
	Splitter  Splitter
	Embedder  embeddings.Embedder
	Index     Index
	Generator Generator
	Tokenizer Tokenizer
}

type Options struct {
	BatchSize       int
	TopK            int
	MaxPromptTokens int
}

// DocumentProcessor holds one document's chunks and the index built from
// them. Index position i always refers to chunks[i]; loading a new document
// invalidates the index until CreateIndex runs again.
type DocumentProcessor struct {
	c    Components
	opts Options

	mu      sync.RWMutex
	source  string
	chunks  []string
	indexed bool
}

func NewDocumentProcessor(c Components, opts Options) *DocumentProcessor {
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	return &DocumentProcessor{c: c, opts: opts}
}

// LoadDocument extracts and chunks the document at path, replacing any
// previously loaded chunks.
func (p *DocumentProcessor) LoadDocument(ctx context.Context, path string) ([]string, error) {
	log.Info().Str("path", path).Msg("Loading document")
	text, err := p.c.Loader.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrDocumentNotFound, path, err)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks, err := p.c.Splitter.Split(text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}

	p.mu.Lock()
	p.source = path
	p.chunks = chunks
	p.indexed = false
	p.mu.Unlock()

	log.Info().Str("path", path).Int("chars", len(text)).Int("chunks", len(chunks)).Msg("Document loaded")
	return append([]string(nil), chunks...), nil
}

// CreateIndex embeds every chunk and builds the index from them.
func (p *DocumentProcessor) CreateIndex(ctx context.Context) (Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.chunks) == 0 {
		return nil, ErrNoDocument
	}

	log.Info().Int("chunks", len(p.chunks)).Int("batch_size", p.opts.BatchSize).Msg("Creating embeddings")
	vectors, err := embedding.EmbedInBatches(ctx, p.c.Embedder, p.chunks, p.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(p.chunks) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(p.chunks))
	}

	entries := make([]models.IndexEntry, len(p.chunks))
	for i, chunk := range p.chunks {
		entries[i] = models.IndexEntry{Position: i, Content: chunk, Embedding: vectors[i]}
	}
	if err := p.c.Index.Build(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	if size := p.c.Index.Size(); size != len(p.chunks) {
		return nil, fmt.Errorf("index holds %d entries for %d chunks", size, len(p.chunks))
	}

	p.indexed = true
	log.Info().Int("size", p.c.Index.Size()).Msg("Index created")
	return p.c.Index, nil
}

// Ingest loads path and indexes it.
func (p *DocumentProcessor) Ingest(ctx context.Context, path string) (int, error) {
	chunks, err := p.LoadDocument(ctx, path)
	if err != nil {
		return 0, err
	}
	if _, err := p.CreateIndex(ctx); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// AnswerQuestion retrieves the topK chunks closest to question and asks the
// generator to answer from them alone. topK <= 0 uses the configured default.
func (p *DocumentProcessor) AnswerQuestion(ctx context.Context, question string, topK int) (*models.Answer, error) {
	answer, err := p.answer(ctx, question, topK)
	if err != nil {
		log.Error().Err(err).Str("question", question).Msg("Error answering question")
		return nil, err
	}
	return answer, nil
}

func (p *DocumentProcessor) answer(ctx context.Context, question string, topK int) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if topK <= 0 {
		topK = p.opts.TopK
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.indexed {
		return nil, ErrNoIndex
	}

	query, err := p.c.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	hits, err := p.c.Index.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	contextChunks := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(p.chunks) {
			return nil, fmt.Errorf("index returned position %d outside %d chunks", h.Position, len(p.chunks))
		}
		contextChunks = append(contextChunks, p.chunks[h.Position])
	}
	log.Debug().Interface("hits", hits).Msg("Retrieved chunks")

	prompt := BuildPrompt(p.c.Tokenizer, strings.Join(contextChunks, models.ContextSeparator), question, p.opts.MaxPromptTokens)
	text, err := p.c.Generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		text = models.FallbackAnswer
	}

	return &models.Answer{
		Question: question,
		Text:     text,
		Context:  contextChunks,
		Hits:     hits,
	}, nil
}

// Chunks returns a copy of the loaded chunks.
func (p *DocumentProcessor) Chunks() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.chunks...)
}

func (p *DocumentProcessor) Status() models.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return models.Status{Source: p.source, Chunks: len(p.chunks), Indexed: p.indexed}
}

// Close waits for in-flight work and releases the index. The embedder and
// generator may be shared and are left open.
func (p *DocumentProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexed = false
	if p.c.Index == nil {
		return nil
	}
	return p.c.Index.Close()
}
