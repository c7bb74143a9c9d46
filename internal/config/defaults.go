package config

const (
	ProviderLocal  = "local"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"

	SplitterRecursive = "recursive"
	SplitterToken     = "token"
	SplitterWindow    = "window"

	IndexChromem  = "chromem"
	IndexPgvector = "pgvector"

	DriverPgdriver = "pgdriver"
	DriverPq       = "pq"

	EnvEmbedKey         = "DOC_AGENT_EMBED_KEY"
	EnvInferenceKey     = "DOC_AGENT_INFERENCE_KEY"
	EnvDatabaseDSN      = "DOC_AGENT_DATABASE_DSN"
	EnvDatabasePassword = "DOC_AGENT_DATABASE_PASSWORD"
)

const (
	defaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	defaultInferenceModel = "llama3.2"
	defaultOllamaURL      = "http://localhost:11434"
	defaultModelDir       = "./models"
	defaultBatchSize      = 8

	defaultChunkSize    = 100
	defaultChunkOverlap = 20
	defaultTopK         = 2
	defaultCollection   = "documents"

	defaultTemperature     = 0.3
	defaultSamplingTopK    = 50
	defaultTopP            = 0.95
	defaultMaxTokens       = 150
	defaultMaxPromptTokens = 512

	defaultPort          = 8000
	defaultUploadMB      = 32
	defaultLogLevel      = "info"
	defaultSampleDocPath = "./data/sample_geography.pdf"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values only, so partial files keep their settings.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	e := &cfg.EmbedLLM
	if e.Provider == "" {
		e.Provider = ProviderLocal
	}
	if e.Model == "" {
		e.Model = defaultEmbeddingModel
	}
	if e.ModelDir == "" {
		e.ModelDir = defaultModelDir
	}
	if e.BatchSize <= 0 {
		e.BatchSize = defaultBatchSize
	}
	if e.BaseURL == "" && e.Provider == ProviderOllama {
		e.BaseURL = defaultOllamaURL
	}

	g := &cfg.InferenceLLM
	if g.Provider == "" {
		g.Provider = ProviderOllama
	}
	if g.Model == "" {
		g.Model = defaultInferenceModel
	}
	if g.BaseURL == "" && g.Provider == ProviderOllama {
		g.BaseURL = defaultOllamaURL
	}
	if g.Temperature == 0 {
		g.Temperature = defaultTemperature
	}
	if g.TopK == 0 {
		g.TopK = defaultSamplingTopK
	}
	if g.TopP == 0 {
		g.TopP = defaultTopP
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = defaultMaxTokens
	}
	if g.MaxPromptTokens == 0 {
		g.MaxPromptTokens = defaultMaxPromptTokens
	}

	r := &cfg.RAG
	if r.Splitter == "" {
		r.Splitter = SplitterRecursive
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = defaultChunkSize
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = defaultChunkOverlap
	}
	if len(r.Separators) == 0 {
		r.Separators = append([]string(nil), defaultSeparators...)
	}
	if r.TopK <= 0 {
		r.TopK = defaultTopK
	}
	if r.IndexBackend == "" {
		r.IndexBackend = IndexChromem
	}
	if r.Collection == "" {
		r.Collection = defaultCollection
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPgdriver
	}

	s := &cfg.Server
	if s.Port == 0 {
		s.Port = defaultPort
	}
	if s.MaxUploadMB <= 0 {
		s.MaxUploadMB = defaultUploadMB
	}
	if len(s.AllowedExtensions) == 0 {
		s.AllowedExtensions = []string{".pdf"}
	}

	if cfg.Document.Path == "" {
		cfg.Document.Path = defaultSampleDocPath
	}
}
