package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)

		assert.Equal(t, ProviderLocal, cfg.EmbedLLM.Provider)
		assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.EmbedLLM.Model)
		assert.Equal(t, 8, cfg.EmbedLLM.BatchSize)
		assert.Equal(t, 100, cfg.RAG.ChunkSize)
		assert.Equal(t, 20, cfg.RAG.ChunkOverlap)
		assert.Equal(t, []string{"\n\n", "\n", " ", ""}, cfg.RAG.Separators)
		assert.Equal(t, 2, cfg.RAG.TopK)
		assert.Equal(t, IndexChromem, cfg.RAG.IndexBackend)
		assert.InDelta(t, 0.3, cfg.InferenceLLM.Temperature, 1e-9)
		assert.Equal(t, 50, cfg.InferenceLLM.TopK)
		assert.InDelta(t, 0.95, cfg.InferenceLLM.TopP, 1e-9)
		assert.Equal(t, 150, cfg.InferenceLLM.MaxTokens)
		assert.Equal(t, 512, cfg.InferenceLLM.MaxPromptTokens)
		assert.Equal(t, 8000, cfg.Server.Port)
		assert.Equal(t, []string{".pdf"}, cfg.Server.AllowedExtensions)
	})

	t.Run("File values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
embed_llm:
  provider: ollama
  model: nomic-embed-text
rag:
  chunk_size: 400
  chunk_overlap: 50
  top_k: 4
server:
  port: 9090
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, ProviderOllama, cfg.EmbedLLM.Provider)
		assert.Equal(t, "http://localhost:11434", cfg.EmbedLLM.BaseURL)
		assert.Equal(t, "nomic-embed-text", cfg.EmbedLLM.Model)
		assert.Equal(t, 400, cfg.RAG.ChunkSize)
		assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
		assert.Equal(t, 4, cfg.RAG.TopK)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, SplitterRecursive, cfg.RAG.Splitter)
	})

	t.Run("Environment overrides secrets", func(t *testing.T) {
		t.Setenv(EnvInferenceKey, "Bearer secret")
		path := writeConfig(t, "inference_llm:\n  key: from-file\n")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "Bearer secret", cfg.InferenceLLM.Key)
	})

	t.Run("Invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "rag: [unclosed")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("Overlap not smaller than chunk size", func(t *testing.T) {
		path := writeConfig(t, "rag:\n  chunk_size: 10\n  chunk_overlap: 10\n")
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "chunk_overlap")
	})

	t.Run("Pgvector needs a dsn", func(t *testing.T) {
		path := writeConfig(t, "rag:\n  index_backend: pgvector\n")
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "database.dsn")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown splitter", func(c *Config) { c.RAG.Splitter = "semantic" }, "unknown splitter"},
		{"unknown backend", func(c *Config) { c.RAG.IndexBackend = "faiss" }, "unknown index backend"},
		{"unknown embed provider", func(c *Config) { c.EmbedLLM.Provider = "cohere" }, "unknown embedding provider"},
		{"hash embedder is not a generator", func(c *Config) { c.InferenceLLM.Provider = ProviderHash }, "unknown inference provider"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unknown database driver"},
		{"negative chunk size", func(c *Config) { c.RAG.ChunkSize = -1 }, "chunk_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAllowsExtension(t *testing.T) {
	s := ServerConfig{AllowedExtensions: []string{".pdf", ".docx"}}
	assert.True(t, s.AllowsExtension(".PDF"))
	assert.True(t, s.AllowsExtension(".docx"))
	assert.False(t, s.AllowsExtension(".exe"))
}
