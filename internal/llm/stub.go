package llm

import (
	"context"
	"sync"
)

// Stub is a Generator that records prompts. Reply computes the answer; when nil, Response is returned.
type Stub struct {
	Response string
	Err      error
	Reply    func(prompt string) string

	mu      sync.Mutex
	prompts []string
}

// Generate records prompt and returns the configured answer or error.
func (s *Stub) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", Wrap(s.Name(), err)
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.Err != nil {
		return "", Wrap(s.Name(), s.Err)
	}
	if s.Reply != nil {
		return s.Reply(prompt), nil
	}
	return s.Response, nil
}

// Prompts returns every prompt received so far.
func (s *Stub) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *Stub) Name() string { return "stub" }
