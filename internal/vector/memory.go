package vector

import (
	"context"

	"github.com/hyperjump/docgenius/internal/models"
)

// MemoryIndex is an exact linear-scan index. It is immutable after Build and safe for concurrent search.
type MemoryIndex struct {
	dimensions int
	entries    []Entry
	normalized [][]float32
}

// Build constructs a MemoryIndex over entries. Every vector must have the dimensionality of the first.
// An empty entry set yields an empty index.
func Build(entries []Entry) (*MemoryIndex, error) {
	idx := &MemoryIndex{
		entries:    make([]Entry, len(entries)),
		normalized: make([][]float32, len(entries)),
	}
	if len(entries) == 0 {
		return idx, nil
	}
	idx.dimensions = len(entries[0].Vector)
	for i, e := range entries {
		if len(e.Vector) != idx.dimensions {
			return nil, &DimensionMismatchError{Expected: idx.dimensions, Got: len(e.Vector), Position: i}
		}
		norm, err := normalizeChecked(e.Vector)
		if err != nil {
			return nil, err
		}
		orig := make([]float32, len(e.Vector))
		copy(orig, e.Vector)
		idx.entries[i] = Entry{Vector: orig, Chunk: e.Chunk}
		idx.normalized[i] = norm
	}
	return idx, nil
}

// Search scans every entry and returns the top k by cosine similarity.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(m.entries) == 0 {
		return models.RetrievalResult{}, nil
	}
	if len(query) != m.dimensions {
		return nil, &DimensionMismatchError{Expected: m.dimensions, Got: len(query), Position: -1}
	}
	q, err := normalizeChecked(query)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cands := make([]candidate, len(m.normalized))
	for i, vec := range m.normalized {
		cands[i] = candidate{pos: i, score: InnerProduct(q, vec)}
	}
	return toResult(rank(cands, k), m.entries), nil
}

// Size returns the number of entries.
func (m *MemoryIndex) Size() int { return len(m.entries) }

// Dimensions returns the vector dimensionality, 0 when empty.
func (m *MemoryIndex) Dimensions() int { return m.dimensions }

// Type returns IndexTypeMemory.
func (m *MemoryIndex) Type() IndexType { return IndexTypeMemory }

// Entries returns a copy of the entry slice; vectors are shared and must not be mutated.
func (m *MemoryIndex) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Chunk returns the chunk stored at position.
func (m *MemoryIndex) Chunk(position int) (models.Chunk, bool) {
	if position < 0 || position >= len(m.entries) {
		return models.Chunk{}, false
	}
	return m.entries[position].Chunk, true
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error { return nil }
