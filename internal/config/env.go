package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Missing files are ignored; variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with environment variables. Integer variables that do not parse are an error.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str("EMBEDDINGS_PROVIDER", &cfg.Embedding.Provider)
	str("EMBEDDINGS_MODEL", &cfg.Embedding.Model)
	str("EMBEDDINGS_BASE_URL", &cfg.Embedding.BaseURL)
	str("EMBEDDINGS_API_KEY", &cfg.Embedding.APIKey)

	if err := num("CHUNK_SIZE", &cfg.Chunking.ChunkSize); err != nil {
		return err
	}
	if v, ok := lookup("CHUNK_OVERLAP"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CHUNK_OVERLAP %q: %w", v, err)
		}
		cfg.Chunking.ChunkOverlap = &n
	}
	if err := num("TOP_K", &cfg.Retrieval.TopK); err != nil {
		return err
	}

	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("GROQ_API_KEY", &cfg.LLM.APIKey)
	str("GROQ_MODEL", &cfg.LLM.Model)
	str("LLM_API_KEY", &cfg.LLM.APIKey)
	str("LLM_MODEL", &cfg.LLM.Model)
	str("LLM_BASE_URL", &cfg.LLM.BaseURL)

	str("DOCGENIUS_INDEX_DIR", &cfg.Storage.IndexDir)
	str("DOCGENIUS_SOURCE_DIR", &cfg.Storage.SourceDir)

	if v, ok := lookup("OTEL_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED %q: %w", v, err)
		}
		cfg.Tracing.Enabled = enabled
	}
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	return nil
}
