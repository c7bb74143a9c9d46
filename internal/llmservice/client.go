package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-agent/internal/config"
	"document-agent/internal/models"
)

var thinkTag = regexp.MustCompile(models.ThinkTag)

// NewModel creates the chat model client named by cfg.Provider.
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Creating inference model")

	switch cfg.Provider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return llm, nil
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown inference provider: %s", cfg.Provider)
	}
}

// Generator produces an answer for a single prompt with fixed sampling
// settings.
type Generator struct {
	llm  llms.Model
	opts []llms.CallOption
}

func New(cfg *config.LLMConfig) (*Generator, error) {
	llm, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewGenerator(llm, cfg), nil
}

// NewGenerator wraps llm. Zero sampling values in cfg are left to the model's
// own defaults.
func NewGenerator(llm llms.Model, cfg *config.LLMConfig) *Generator {
	return &Generator{llm: llm, opts: callOptions(cfg)}
}

func callOptions(cfg *config.LLMConfig) []llms.CallOption {
	var opts []llms.CallOption
	if cfg.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(cfg.Temperature))
	}
	if cfg.TopK > 0 {
		opts = append(opts, llms.WithTopK(cfg.TopK))
	}
	if cfg.TopP > 0 {
		opts = append(opts, llms.WithTopP(cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.RepetitionPenalty > 0 {
		opts = append(opts, llms.WithRepetitionPenalty(cfg.RepetitionPenalty))
	}
	if cfg.Seed != 0 {
		opts = append(opts, llms.WithSeed(cfg.Seed))
	}
	return opts
}

// Generate sends prompt to the model and returns the trimmed completion with
// any <think> blocks removed.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, g.opts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return CleanOutput(out), nil
}

// CleanOutput strips reasoning blocks and surrounding whitespace.
func CleanOutput(s string) string {
	return strings.TrimSpace(thinkTag.ReplaceAllString(s, ""))
}
