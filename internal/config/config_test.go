package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EMBEDDINGS_PROVIDER", "EMBEDDINGS_MODEL", "EMBEDDINGS_BASE_URL", "EMBEDDINGS_API_KEY",
		"CHUNK_SIZE", "CHUNK_OVERLAP", "TOP_K",
		"LLM_PROVIDER", "GROQ_API_KEY", "GROQ_MODEL", "LLM_API_KEY", "LLM_MODEL", "LLM_BASE_URL",
		"DOCGENIUS_INDEX_DIR", "DOCGENIUS_SOURCE_DIR",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func mapLookup(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
chunking:
  chunk_size: 400
llm:
  timeout: 30s
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Chunking.ChunkSize != 400 {
		t.Errorf("chunk_size = %d, want 400", cfg.Chunking.ChunkSize)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("llm timeout = %v", cfg.LLM.Timeout)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_noFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.ChunkSize != DefaultChunkSize || cfg.Chunking.OverlapOrDefault() != DefaultChunkOverlap {
		t.Errorf("chunking = %d/%d", cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault())
	}
	if cfg.Retrieval.TopK != DefaultTopK {
		t.Errorf("top_k = %d", cfg.Retrieval.TopK)
	}
	if !filepath.IsAbs(cfg.Storage.IndexDir) {
		t.Errorf("index_dir should be absolute, got %s", cfg.Storage.IndexDir)
	}
}

func TestLoad_missingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  index_dir: "./data/index"
  source_dir: "./docs"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "index"); cfg.Storage.IndexDir != want {
		t.Errorf("index_dir = %s, want %s", cfg.Storage.IndexDir, want)
	}
	if want := filepath.Join(dir, "docs"); cfg.Storage.SourceDir != want {
		t.Errorf("source_dir = %s, want %s", cfg.Storage.SourceDir, want)
	}
}

func TestLoad_envOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "0")
	t.Setenv("TOP_K", "3")
	t.Setenv("GROQ_API_KEY", "secret")
	t.Setenv("GROQ_MODEL", "mixtral")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("chunking:\n  chunk_size: 900\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.ChunkSize != 500 {
		t.Errorf("chunk_size = %d, want 500", cfg.Chunking.ChunkSize)
	}
	if cfg.Chunking.OverlapOrDefault() != 0 {
		t.Errorf("explicit zero overlap should survive defaults, got %d", cfg.Chunking.OverlapOrDefault())
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("top_k = %d", cfg.Retrieval.TopK)
	}
	if cfg.LLM.APIKey != "secret" || cfg.LLM.Model != "mixtral" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
}

func TestApplyEnv_invalidInteger(t *testing.T) {
	var cfg Config
	err := ApplyEnv(&cfg, mapLookup(map[string]string{"TOP_K": "six"}))
	if err == nil {
		t.Fatal("expected error for non-numeric TOP_K")
	}
}

func TestApplyEnv_tracing(t *testing.T) {
	var cfg Config
	err := ApplyEnv(&cfg, mapLookup(map[string]string{
		"OTEL_ENABLED":                "true",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "jaeger:4318",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint != "jaeger:4318" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if err := ApplyEnv(&cfg, mapLookup(map[string]string{"OTEL_ENABLED": "maybe"})); err == nil {
		t.Error("expected error for invalid OTEL_ENABLED")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Embedding.Model != "sentence-transformers/all-MiniLM-L6-v2" {
		t.Errorf("embedding model default: %s", cfg.Embedding.Model)
	}
	if cfg.Chunking.ChunkSize != 800 || *cfg.Chunking.ChunkOverlap != 120 {
		t.Errorf("chunking defaults: %d/%d", cfg.Chunking.ChunkSize, *cfg.Chunking.ChunkOverlap)
	}
	if cfg.Retrieval.TopK != 6 {
		t.Errorf("top_k default: %d", cfg.Retrieval.TopK)
	}
	if cfg.LLM.Provider != "groq" || cfg.LLM.Model != "llama3-70b-8192" {
		t.Errorf("llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.BaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("groq base url: %s", cfg.LLM.BaseURL)
	}
	if len(cfg.Ingest.Extensions) != 3 || cfg.Ingest.Extensions[0] != ".pdf" {
		t.Errorf("ingest extensions: %v", cfg.Ingest.Extensions)
	}
	if len(cfg.Chunking.Separators) != 5 || cfg.Chunking.Separators[0] != "\n\n" {
		t.Errorf("separators: %q", cfg.Chunking.Separators)
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestValidate(t *testing.T) {
	overlap := func(n int) *int { return &n }
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"overlap equals size", func(c *Config) { c.Chunking.ChunkSize = 100; c.Chunking.ChunkOverlap = overlap(100) }, true},
		{"negative overlap", func(c *Config) { c.Chunking.ChunkOverlap = overlap(-1) }, true},
		{"zero overlap", func(c *Config) { c.Chunking.ChunkOverlap = overlap(0) }, false},
		{"negative top_k", func(c *Config) { c.Retrieval.TopK = -2 }, true},
		{"unknown mode", func(c *Config) { c.Retrieval.Mode = "fuzzy" }, true},
		{"openai embeddings without key", func(c *Config) { c.Embedding.Provider = "openai" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateLLM(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	err := cfg.ValidateLLM()
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}

	cfg.LLM.APIKey = "k"
	if err := cfg.ValidateLLM(); err != nil {
		t.Errorf("unexpected error with key set: %v", err)
	}

	local := &Config{LLM: LLMConfig{Provider: "ollama"}}
	ApplyDefaults(local)
	if err := local.ValidateLLM(); err != nil {
		t.Errorf("ollama needs no key: %v", err)
	}
}

func TestSave(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{Server: ServerConfig{Host: "localhost", Port: 9090}}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}

func TestLoadDotEnv_missingFileIgnored(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("DOCGENIUS_TEST_VAR", "")
	os.Unsetenv("DOCGENIUS_TEST_VAR")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DOCGENIUS_TEST_VAR=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("DOCGENIUS_TEST_VAR"); got != "from-file" {
		t.Errorf("DOCGENIUS_TEST_VAR = %q", got)
	}
}
