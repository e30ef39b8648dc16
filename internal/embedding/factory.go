package embedding

import (
	"fmt"

	"github.com/hyperjump/docgenius/internal/config"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg, wrapped in an LRU cache when CacheSize > 0.
// When the ONNX runtime or model is unavailable it falls back to the hash embedder and
// logs a warning; indexes record the embedder name, so mixing the two is detected on load.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var inner Embedder
	switch cfg.Provider {
	case "onnx":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Model, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			logger.Warn("onnx embedder unavailable, falling back to hash embedder",
				zap.String("model_path", cfg.ModelPath), zap.Error(err))
			inner = NewHashEmbedder(cfg.Dimensions)
		} else {
			inner = e
		}
	case "hash":
		inner = NewHashEmbedder(cfg.Dimensions)
	case APIOllama, APIOpenAI:
		e, err := NewRemoteEmbedder(RemoteConfig{
			API:               cfg.Provider,
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	logger.Info("embedder ready", zap.String("name", inner.Name()), zap.Int("dimensions", inner.Dimensions()))
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}
