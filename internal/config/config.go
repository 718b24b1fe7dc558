package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port               int      `yaml:"port"`
	Mode               string   `yaml:"mode"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

// RetrievalConfig bounds the candidate pool, the displayed set and the context.
type RetrievalConfig struct {
	K               int `yaml:"k"`
	TopN            int `yaml:"top_n"`
	MaxContextChars int `yaml:"max_context_chars"`
	HistoryTurns    int `yaml:"history_turns"`
}

// ChunkerConfig configures how course sections are split into chunks.
type ChunkerConfig struct {
	MaxChunkChars    int `yaml:"max_chunk_chars"`
	OverlapSentences int `yaml:"overlap_sentences"`
}

// OpenAIConfig holds configuration for OpenAI-compatible endpoints.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OllamaConfig holds connection details for an Ollama server.
type OllamaConfig struct {
	Host        string `yaml:"host"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// CacheConfig enables the Redis embedding cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string        `yaml:"type"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty"`
	Cache       CacheConfig   `yaml:"cache"`
	// TFIDFState is where the tfidf vocabulary is saved at ingestion and
	// loaded for queries.
	TFIDFState string `yaml:"tfidf_state,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SQLiteConfig locates the local index file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// GeneratorConfig selects the answer model.
type GeneratorConfig struct {
	Type         string        `yaml:"type"`
	Ollama       *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI       *OpenAIConfig `yaml:"openai,omitempty"`
	MaxSentences int           `yaml:"max_sentences"`
}

// IngestConfig locates course data and ingestion artifacts.
type IngestConfig struct {
	DataDir      string `yaml:"data_dir"`
	ArtifactsDir string `yaml:"artifacts_dir"`
	UpsertBatch  int    `yaml:"upsert_batch"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Ingest      IngestConfig      `yaml:"ingest"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied last.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, applyEnv(cfg)
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// LoadDefault tries ./config.yaml first, then ~/.config/handbook/config.yaml.
// If neither exists, it writes defaults to ~/.config/handbook/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, applyEnv(cfg)
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks cross-field constraints.
func (c *AppConfig) Validate() error {
	if c.Retrieval.TopN > c.Retrieval.K {
		return fmt.Errorf("retrieval.top_n (%d) must not exceed retrieval.k (%d)", c.Retrieval.TopN, c.Retrieval.K)
	}
	if c.Embedder.BatchSize < 1 || c.Embedder.BatchSize > 256 {
		return fmt.Errorf("embedder.batch_size must be between 1 and 256, got: %d", c.Embedder.BatchSize)
	}
	switch c.VectorStore.Type {
	case "memory", "qdrant", "sqlite":
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "handbook", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Generator:   GeneratorConfig{Type: "extractive"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:8080", "http://localhost:3000"}
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 180
	}
	if cfg.Log.Mode == "" {
		cfg.Log.Mode = "dev"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 30
	}
	if cfg.Retrieval.TopN == 0 {
		cfg.Retrieval.TopN = 8
	}
	if cfg.Retrieval.MaxContextChars == 0 {
		cfg.Retrieval.MaxContextChars = 4000
	}
	if cfg.Retrieval.HistoryTurns == 0 {
		cfg.Retrieval.HistoryTurns = 10
	}
	if cfg.Chunker.MaxChunkChars == 0 {
		cfg.Chunker.MaxChunkChars = 1200
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 2
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI == nil {
		cfg.Embedder.OpenAI = &OpenAIConfig{}
	}
	if o := cfg.Embedder.OpenAI; o != nil {
		defaultOpenAI(o, "text-embedding-3-small", 30)
	}
	if cfg.Embedder.Type == "ollama" && cfg.Embedder.Ollama == nil {
		cfg.Embedder.Ollama = &OllamaConfig{}
	}
	if o := cfg.Embedder.Ollama; o != nil {
		defaultOllama(o, "nomic-embed-text", 120)
	}
	if cfg.Embedder.Cache.Addr == "" {
		cfg.Embedder.Cache.Addr = "localhost:6379"
	}
	if cfg.Embedder.Cache.TTLHours == 0 {
		cfg.Embedder.Cache.TTLHours = 24 * 30
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant == nil {
		cfg.VectorStore.Qdrant = &QdrantConfig{}
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "courses"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.VectorStore.Type == "sqlite" && cfg.VectorStore.SQLite == nil {
		cfg.VectorStore.SQLite = &SQLiteConfig{}
	}
	if s := cfg.VectorStore.SQLite; s != nil && s.Path == "" {
		s.Path = filepath.Join("data", "index", "vectors.db")
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "ollama"
	}
	if cfg.Generator.Type == "ollama" && cfg.Generator.Ollama == nil {
		cfg.Generator.Ollama = &OllamaConfig{}
	}
	if o := cfg.Generator.Ollama; o != nil {
		defaultOllama(o, "qwen2.5:7b", 180)
	}
	if cfg.Generator.Type == "openai" && cfg.Generator.OpenAI == nil {
		cfg.Generator.OpenAI = &OpenAIConfig{}
	}
	if o := cfg.Generator.OpenAI; o != nil {
		defaultOpenAI(o, "gpt-4o-mini", 120)
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = 3
	}
	if cfg.Ingest.DataDir == "" {
		cfg.Ingest.DataDir = filepath.Join("data", "courses")
	}
	if cfg.Ingest.ArtifactsDir == "" {
		cfg.Ingest.ArtifactsDir = filepath.Join("data", "kb")
	}
	if cfg.Ingest.UpsertBatch == 0 {
		cfg.Ingest.UpsertBatch = 64
	}
	if cfg.Embedder.TFIDFState == "" {
		cfg.Embedder.TFIDFState = filepath.Join(cfg.Ingest.ArtifactsDir, "tfidf.json")
	}
}

func defaultOpenAI(o *OpenAIConfig, model string, timeout int) {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.Model == "" {
		o.Model = model
	}
	if o.TimeoutSecs == 0 {
		o.TimeoutSecs = timeout
	}
}

func defaultOllama(o *OllamaConfig, model string, timeout int) {
	if o.Host == "" {
		o.Host = "http://127.0.0.1:11434"
	}
	if o.Model == "" {
		o.Model = model
	}
	if o.TimeoutSecs == 0 {
		o.TimeoutSecs = timeout
	}
}

// applyEnv lets deployment environments override file settings.
func applyEnv(cfg *AppConfig) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"HANDBOOK_K", &cfg.Retrieval.K},
		{"HANDBOOK_TOPN", &cfg.Retrieval.TopN},
		{"HANDBOOK_MAX_CONTEXT_CHARS", &cfg.Retrieval.MaxContextChars},
		{"PORT", &cfg.Server.Port},
	}
	for _, e := range ints {
		raw := strings.TrimSpace(os.Getenv(e.key))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", e.key, raw)
		}
		*e.dst = n
	}
	if v := strings.TrimSpace(os.Getenv("HANDBOOK_MODEL")); v != "" {
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
			defaultOllama(cfg.Generator.Ollama, v, 180)
		}
		cfg.Generator.Ollama.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		for _, o := range []*OllamaConfig{cfg.Generator.Ollama, cfg.Embedder.Ollama} {
			if o != nil {
				o.Host = v
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_URL")); v != "" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{Collection: "courses", TimeoutSecs: 15}
		}
		cfg.VectorStore.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" && cfg.VectorStore.Qdrant != nil {
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("HANDBOOK_DEFAULT_COLLECTION")); v != "" && cfg.VectorStore.Qdrant != nil {
		cfg.VectorStore.Qdrant.Collection = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Embedder.Cache.Addr = v
	}
	return nil
}
