// Package embedding maps chunk and query text to fixed-dimensionality vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Embedder produces vector embeddings for text. Implementations are deterministic for a
// fixed model and never return a zero, empty or non-finite vector without an error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies provider and model, e.g. "onnx:sentence-transformers/all-MiniLM-L6-v2".
	Name() string
	Close() error
}

// ErrEmbedding matches every *Error with errors.Is.
var ErrEmbedding = errors.New("embedding failed")

// Error reports a failed embedding call. It aborts the build or query that needed the vector.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding failed (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEmbedding) true for any *Error.
func (e *Error) Is(target error) bool { return target == ErrEmbedding }

// Wrap returns err as an *Error for provider, keeping an existing *Error as is.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return &Error{Provider: provider, Err: err}
}

// Validate rejects vectors that must never enter an index: empty, non-finite, or all zero.
func Validate(vec []float32) error {
	if len(vec) == 0 {
		return errors.New("empty vector")
	}
	nonZero := false
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite component at %d", i)
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return errors.New("zero vector")
	}
	return nil
}

// embedEach runs embed for every text in order, stopping at the first error or cancellation.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
