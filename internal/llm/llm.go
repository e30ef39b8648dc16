// Package llm is the text-in/text-out contract with the language model that writes answers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/docgenius/internal/config"
	"github.com/hyperjump/docgenius/pkg/utils"
)

// Generator produces a completion for a prompt. One call per question; failures are not retried.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Name identifies provider and model, e.g. "groq:llama3-70b-8192".
	Name() string
}

// ErrGeneration matches every *GenerationError with errors.Is.
var ErrGeneration = errors.New("generation failed")

// GenerationError reports a failed call to the language model. StatusCode is 0 when no
// HTTP response was received.
type GenerationError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation failed (%s, status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrGeneration) true for any *GenerationError.
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// Wrap returns err as a *GenerationError for provider, keeping an existing one as is.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Provider: provider, Err: err}
}

// Provider names.
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// New returns the generator selected by cfg. It fails before any network I/O when a
// required API key is missing.
func New(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case ProviderGroq, ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: %s requires an API key", config.ErrMissingCredentials, cfg.Provider)
		}
		return NewChatClient(cfg), nil
	case ProviderOllama:
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// postJSON sends body to url and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, provider, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return Wrap(provider, fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Wrap(provider, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Wrap(provider, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GenerationError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return &GenerationError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Err:        errors.New(utils.Truncate(strings.TrimSpace(string(data)), 300)),
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &GenerationError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
