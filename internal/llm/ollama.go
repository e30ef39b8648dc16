package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/docgenius/internal/config"
)

// OllamaClient calls a local Ollama server's /api/chat without streaming.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

// NewOllamaClient creates a client. No request is sent.
func NewOllamaClient(cfg config.LLMConfig) *OllamaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
}

// Generate returns the assistant message content unchanged.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	req := ollamaChatRequest{
		Model:    o.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Options:  map[string]any{"temperature": o.temperature},
	}
	var out ollamaChatResponse
	if err := postJSON(ctx, o.client, o.Name(), o.baseURL+"/api/chat", "", req, &out); err != nil {
		return "", err
	}
	return out.Message.Content, nil
}

func (o *OllamaClient) Name() string { return ProviderOllama + ":" + o.model }
