//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"

	"github.com/hyperjump/docgenius/internal/models"
)

const faissCompiled = false

// FAISSIndex is a placeholder when the faiss build tag is not set.
type FAISSIndex struct{}

// BuildFAISS always fails without FAISS.
func BuildFAISS(entries []Entry) (*FAISSIndex, error) {
	return nil, ErrFAISSUnavailable
}

func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) (models.RetrievalResult, error) {
	return nil, ErrFAISSUnavailable
}

func (f *FAISSIndex) Size() int        { return 0 }
func (f *FAISSIndex) Dimensions() int  { return 0 }
func (f *FAISSIndex) Type() IndexType  { return IndexTypeFAISS }
func (f *FAISSIndex) Entries() []Entry { return nil }
func (f *FAISSIndex) Close() error     { return nil }

func (f *FAISSIndex) Chunk(int) (models.Chunk, bool) { return models.Chunk{}, false }
