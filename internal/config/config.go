// Package config provides configuration loading and structs for docgenius.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned by ValidateLLM when the configured provider needs an API key.
var ErrMissingCredentials = errors.New("missing credentials")

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogFile   string          `yaml:"log_file"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Session   SessionConfig   `yaml:"session"`
	Watch     WatchConfig     `yaml:"watch"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the persisted index directory and the default source folder.
type StorageConfig struct {
	IndexDir  string `yaml:"index_dir"`
	SourceDir string `yaml:"source_dir"`
}

// EmbeddingConfig selects and tunes the embedder.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	ModelPath         string        `yaml:"model_path"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Dimensions        int           `yaml:"dimensions"`
	MaxTokens         int           `yaml:"max_tokens"`
	CacheSize         int           `yaml:"cache_size"`
	Workers           int           `yaml:"workers"`
	BatchSize         int           `yaml:"batch_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// ChunkingConfig holds chunker settings. ChunkOverlap is a pointer so an explicit 0 survives defaults.
type ChunkingConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap *int     `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

// OverlapOrDefault returns the configured overlap, or the default when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.ChunkOverlap != nil {
		return *c.ChunkOverlap
	}
	return DefaultChunkOverlap
}

// Retrieval modes.
const (
	RetrievalModeVector = "vector"
	RetrievalModeHybrid = "hybrid"
)

// RetrievalConfig holds retrieval and prompt assembly settings.
type RetrievalConfig struct {
	TopK            int     `yaml:"top_k"`
	IndexType       string  `yaml:"index_type"`
	Mode            string  `yaml:"mode"`
	KeywordWeight   float64 `yaml:"keyword_weight"`
	SemanticWeight  float64 `yaml:"semantic_weight"`
	MaxContextChars int     `yaml:"max_context_chars"`
}

// LLMConfig configures the language model collaborator.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
}

// IngestConfig holds loader settings.
type IngestConfig struct {
	Extensions   []string      `yaml:"extensions"`
	MaxPageBytes int64         `yaml:"max_page_bytes"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	UserAgent    string        `yaml:"user_agent"`
}

// SessionConfig holds HTTP session registry settings.
type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// WatchConfig holds source folder watch settings.
type WatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Recursive *bool         `yaml:"recursive"`
	Debounce  time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// TracingConfig enables OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Load reads the config file at path (optional: "" means no file), applies environment
// overrides and defaults, and expands paths. "./" paths are relative to the config file's
// directory, or the working directory when there is no file.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}
	if abs, err := filepath.Abs(configDir); err == nil {
		configDir = abs
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	cfg.Storage.SourceDir = expandPath(cfg.Storage.SourceDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.LogFile != "" {
		cfg.LogFile = expandPath(cfg.LogFile, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the numeric and enum settings that every command depends on.
func (c *Config) Validate() error {
	overlap := c.Chunking.OverlapOrDefault()
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if overlap < 0 || overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d", overlap, c.Chunking.ChunkSize)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Retrieval.TopK)
	}
	switch c.Retrieval.IndexType {
	case "memory", "faiss":
	default:
		return fmt.Errorf("unknown index type %q (want memory or faiss)", c.Retrieval.IndexType)
	}
	switch c.Retrieval.Mode {
	case RetrievalModeVector, RetrievalModeHybrid:
	default:
		return fmt.Errorf("unknown retrieval mode %q (want vector or hybrid)", c.Retrieval.Mode)
	}
	switch c.Embedding.Provider {
	case "onnx", "hash", "ollama":
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%w: embedding provider openai needs EMBEDDINGS_API_KEY", ErrMissingCredentials)
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Workers <= 0 {
		return fmt.Errorf("embedding workers must be positive, got %d", c.Embedding.Workers)
	}
	return nil
}

// ValidateLLM fails when the language model cannot be reached without more configuration.
// It never performs network I/O.
func (c *Config) ValidateLLM() error {
	switch c.LLM.Provider {
	case "groq":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: GROQ_API_KEY is not set", ErrMissingCredentials)
		}
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: LLM_API_KEY is not set for provider openai", ErrMissingCredentials)
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is not set")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
