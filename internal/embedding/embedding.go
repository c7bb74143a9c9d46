package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-agent/internal/config"
)

// New builds the embedder selected by cfg.Provider. Every vector it returns
// has unit L2 norm, so inner product equals cosine similarity.
func New(cfg *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Creating embedder")

	var (
		e   embeddings.Embedder
		err error
	)
	switch cfg.Provider {
	case config.ProviderLocal:
		e, err = NewLocalEmbedder(cfg.Model, cfg.ModelDir)
	case config.ProviderOllama:
		e, err = NewOllamaEmbedder(cfg)
	case config.ProviderOpenAI:
		e, err = NewOpenAIEmbedder(cfg)
	case config.ProviderHash:
		e = NewHashEmbedder(defaultHashDimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Normalize(e), nil
}

// NewOpenAIEmbedder talks to any OpenAI compatible /embeddings endpoint.
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// EmbedInBatches embeds texts batchSize at a time. The batch size bounds
// memory use only; the vectors are the same for any batch size.
func EmbedInBatches(ctx context.Context, e embeddings.Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := e.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), end-start)
		}
		for _, v := range batch {
			if len(vectors) > 0 && len(v) != len(vectors[0]) {
				return nil, fmt.Errorf("inconsistent embedding dimension: got %d, expected %d", len(v), len(vectors[0]))
			}
			vectors = append(vectors, v)
		}
		log.Debug().Int("done", end).Int("total", len(texts)).Msg("Embedded batch")
	}
	return vectors, nil
}

type normalized struct {
	embeddings.Embedder
}

// Normalize wraps e so that every returned vector is L2-normalized.
func Normalize(e embeddings.Embedder) embeddings.Embedder {
	if _, ok := e.(normalized); ok {
		return e
	}
	return normalized{e}
}

func (n normalized) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := n.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vectors {
		NormalizeL2(v)
	}
	return vectors, nil
}

func (n normalized) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := n.Embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	NormalizeL2(v)
	return v, nil
}

// Close releases the wrapped embedder's resources when it holds any.
func (n normalized) Close() error {
	if c, ok := n.Embedder.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// NormalizeL2 scales v in place to unit length. A zero vector is left as is.
func NormalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
}
