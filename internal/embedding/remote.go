package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyperjump/docgenius/pkg/utils"
	"golang.org/x/time/rate"
)

// API shapes understood by RemoteEmbedder.
const (
	APIOllama = "ollama"
	APIOpenAI = "openai"
)

// RemoteConfig configures an HTTP embeddings client.
type RemoteConfig struct {
	API     string // APIOllama or APIOpenAI
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// RequestsPerSecond limits outgoing calls; 0 disables limiting.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// RemoteEmbedder calls an Ollama (/api/embeddings) or OpenAI-compatible (/embeddings)
// endpoint. Returned vectors are L2-normalized. Calls are never retried; a failure
// aborts the enclosing build or query.
type RemoteEmbedder struct {
	api     string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
	dims    atomic.Int64
}

// NewRemoteEmbedder validates cfg and returns a client. No request is sent.
func NewRemoteEmbedder(cfg RemoteConfig) (*RemoteEmbedder, error) {
	switch cfg.API {
	case APIOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
	case APIOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("openai embeddings: API key is required")
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
	default:
		return nil, fmt.Errorf("unknown embeddings API %q", cfg.API)
	}
	if cfg.Model == "" {
		return nil, errors.New("embeddings model is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &RemoteEmbedder{
		api:     cfg.API,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  client,
		limiter: limiter,
	}, nil
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// embedOllama embeds one text; the Ollama API has no batch form.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.api == APIOpenAI {
		vecs, err := e.embedOpenAI(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	}
	return e.embedOllama(ctx, text)
}

// EmbedBatch sends one request per batch for OpenAI-compatible APIs and one per text for Ollama.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.api == APIOpenAI {
		return e.embedOpenAI(ctx, texts)
	}
	return embedEach(ctx, texts, e.embedOllama)
}

// Dimensions returns the dimension seen in the first response, or 0 before any call.
func (e *RemoteEmbedder) Dimensions() int {
	return int(e.dims.Load())
}

func (e *RemoteEmbedder) Name() string {
	return e.api + ":" + e.model
}

// Close releases idle connections.
func (e *RemoteEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *RemoteEmbedder) embedOllama(ctx context.Context, text string) ([]float32, error) {
	var out ollamaEmbeddingResponse
	if err := e.post(ctx, "/api/embeddings", ollamaEmbeddingRequest{Model: e.model, Prompt: text}, &out); err != nil {
		return nil, err
	}
	return e.finish(out.Embedding)
}

func (e *RemoteEmbedder) embedOpenAI(ctx context.Context, texts []string) ([][]float32, error) {
	var out openAIEmbeddingResponse
	if err := e.post(ctx, "/embeddings", openAIEmbeddingRequest{Model: e.model, Input: texts}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, Wrap(e.Name(), fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Data)))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, Wrap(e.Name(), fmt.Errorf("invalid embedding index %d", d.Index))
		}
		v, err := e.finish(d.Embedding)
		if err != nil {
			return nil, err
		}
		vecs[d.Index] = v
	}
	return vecs, nil
}

func (e *RemoteEmbedder) post(ctx context.Context, path string, body, out any) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return Wrap(e.Name(), err)
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Wrap(e.Name(), fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Wrap(e.Name(), fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Wrap(e.Name(), fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Wrap(e.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return Wrap(e.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, utils.Truncate(strings.TrimSpace(string(data)), 200)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return Wrap(e.Name(), fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// finish converts, normalizes and validates one returned vector.
func (e *RemoteEmbedder) finish(raw []float64) ([]float32, error) {
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	if err := Validate(vec); err != nil {
		return nil, Wrap(e.Name(), err)
	}
	utils.NormalizeL2(vec)
	e.dims.CompareAndSwap(0, int64(len(vec)))
	return vec, nil
}
