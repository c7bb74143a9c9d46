package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel     string         `yaml:"log_level"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	RAG          RAGConfig      `yaml:"rag"`
	Database     DatabaseConfig `yaml:"database"`
	Server       ServerConfig   `yaml:"server"`
	Document     DocumentConfig `yaml:"document"`
}

// LLMConfig is shared by the embedding model and the answer model. Sampling
// fields are only read for the answer model.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	Model     string `yaml:"model"`
	ModelDir  string `yaml:"model_dir"`
	BatchSize int    `yaml:"batch_size"`

	Temperature       float64 `yaml:"temperature"`
	TopK              int     `yaml:"top_k"`
	TopP              float64 `yaml:"top_p"`
	MaxTokens         int     `yaml:"max_tokens"`
	MaxPromptTokens   int     `yaml:"max_prompt_tokens"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
	Seed              int     `yaml:"seed"`
}

type RAGConfig struct {
	Splitter     string   `yaml:"splitter"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
	TopK         int      `yaml:"top_k"`
	IndexBackend string   `yaml:"index_backend"`
	Collection   string   `yaml:"collection"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type ServerConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	StaticDir         string   `yaml:"static_dir"`
	UploadDir         string   `yaml:"upload_dir"`
	MaxUploadMB       int64    `yaml:"max_upload_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type DocumentConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
// Secrets may be supplied through a .env file or the environment.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvEmbedKey); v != "" {
		cfg.EmbedLLM.Key = v
	}
	if v := os.Getenv(EnvInferenceKey); v != "" {
		cfg.InferenceLLM.Key = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvDatabasePassword); v != "" {
		cfg.Database.Password = v
	}
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if !oneOf(c.RAG.Splitter, SplitterRecursive, SplitterToken, SplitterWindow) {
		return fmt.Errorf("unknown splitter: %s", c.RAG.Splitter)
	}
	if !oneOf(c.RAG.IndexBackend, IndexChromem, IndexPgvector) {
		return fmt.Errorf("unknown index backend: %s", c.RAG.IndexBackend)
	}
	if c.RAG.IndexBackend == IndexPgvector && c.Database.DSN == "" {
		return errors.New("database.dsn is required for the pgvector index backend")
	}
	if !oneOf(c.EmbedLLM.Provider, ProviderLocal, ProviderOllama, ProviderOpenAI, ProviderHash) {
		return fmt.Errorf("unknown embedding provider: %s", c.EmbedLLM.Provider)
	}
	if !oneOf(c.InferenceLLM.Provider, ProviderOllama, ProviderOpenAI) {
		return fmt.Errorf("unknown inference provider: %s", c.InferenceLLM.Provider)
	}
	if !oneOf(c.Database.Driver, DriverPgdriver, DriverPq) {
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}
	return nil
}

// AllowsExtension reports whether uploads with ext (".pdf") are accepted.
func (s ServerConfig) AllowsExtension(ext string) bool {
	for _, allowed := range s.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
