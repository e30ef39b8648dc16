package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/docgenius/internal/config"
)

// ChatClient talks to an OpenAI-compatible /chat/completions endpoint (Groq, OpenAI).
type ChatClient struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

// NewChatClient creates a client. No request is sent.
func NewChatClient(cfg config.LLMConfig) *ChatClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
		if cfg.Provider == ProviderOpenAI {
			baseURL = "https://api.openai.com/v1"
		}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &ChatClient{
		provider:    cfg.Provider,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends prompt as a single user message and returns the first choice unchanged.
func (c *ChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	var out chatResponse
	req := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	}
	if err := postJSON(ctx, c.client, c.Name(), c.baseURL+"/chat/completions", c.apiKey, req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &GenerationError{Provider: c.Name(), StatusCode: http.StatusOK, Err: errors.New("response has no choices")}
	}
	return out.Choices[0].Message.Content, nil
}

func (c *ChatClient) Name() string { return c.provider + ":" + c.model }
