// Package vector provides vector indexes over chunk embeddings and their persistence.
package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/docgenius/internal/models"
)

var (
	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidK is returned when search is called with k <= 0.
	ErrInvalidK = errors.New("k must be positive")
	// ErrInvalidVector is returned for zero-length, zero or non-finite vectors.
	ErrInvalidVector = errors.New("invalid vector")
)

// DimensionMismatchError reports a vector whose length differs from the index dimensionality.
// Position is the entry position during build, or -1 for a query vector.
type DimensionMismatchError struct {
	Expected int
	Got      int
	Position int
}

func (e *DimensionMismatchError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("query dimension mismatch: got %d, expected %d", e.Got, e.Expected)
	}
	return fmt.Sprintf("vector dimension mismatch at entry %d: got %d, expected %d", e.Position, e.Got, e.Expected)
}

// Is makes errors.Is(err, ErrDimensionMismatch) true.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Entry pairs an embedding with the chunk it was computed from.
type Entry struct {
	Vector []float32
	Chunk  models.Chunk
}

// Index is an immutable nearest-neighbour index built over a fixed set of entries.
// Similarity is cosine for every implementation.
type Index interface {
	// Search returns up to k entries by descending similarity; equal scores keep insertion order.
	Search(ctx context.Context, query []float32, k int) (models.RetrievalResult, error)
	Size() int
	// Dimensions is 0 for an empty index.
	Dimensions() int
	Type() IndexType
	// Entries returns the entries in insertion order with their original vectors.
	Entries() []Entry
	// Chunk returns the chunk at an insertion position.
	Chunk(position int) (models.Chunk, bool)
	Close() error
}
