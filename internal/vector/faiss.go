//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/hyperjump/docgenius/internal/models"
)

const faissCompiled = true

// FAISSIndex wraps an exact FAISS IndexFlatIP over normalized vectors (cosine similarity).
// FAISS labels equal entry positions.
type FAISSIndex struct {
	index      *C.FaissIndexFlatIP
	dimensions int
	entries    []Entry
	mu         sync.RWMutex
}

// BuildFAISS constructs a FAISSIndex over entries with the same validation as Build.
func BuildFAISS(entries []Entry) (*FAISSIndex, error) {
	mem, err := Build(entries)
	if err != nil {
		return nil, err
	}
	f := &FAISSIndex{dimensions: mem.dimensions, entries: mem.entries}
	if len(entries) == 0 {
		return f, nil
	}

	var index *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(f.dimensions)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}

	flat := make([]float32, 0, len(entries)*f.dimensions)
	for _, vec := range mem.normalized {
		flat = append(flat, vec...)
	}
	ret := C.faiss_Index_add(index, C.idx_t(len(entries)), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		C.faiss_Index_free(index)
		return nil, fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	f.index = index
	// Snapshots replaced by a rebuild are dropped, not closed; free the C index once unreachable.
	runtime.SetFinalizer(f, func(f *FAISSIndex) { _ = f.Close() })
	return f, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Search returns the top-k entries. The fetch window grows past k while the boundary score
// is tied so that insertion order decides ties exactly as in MemoryIndex.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(f.entries) == 0 {
		return models.RetrievalResult{}, nil
	}
	if len(query) != f.dimensions {
		return nil, &DimensionMismatchError{Expected: f.dimensions, Got: len(query), Position: -1}
	}
	q, err := normalizeChecked(query)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return nil, fmt.Errorf("FAISS index is closed")
	}

	n := len(f.entries)
	if k > n {
		k = n
	}
	fetch := k + 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if fetch > n {
			fetch = n
		}
		distances := make([]float32, fetch)
		labels := make([]int64, fetch)
		ret := C.faiss_Index_search(
			f.index,
			1,
			(*C.float)(unsafe.Pointer(&q[0])),
			C.idx_t(fetch),
			(*C.float)(unsafe.Pointer(&distances[0])),
			(*C.idx_t)(unsafe.Pointer(&labels[0])),
		)
		if ret != 0 {
			return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
		}
		if fetch == n || distances[fetch-1] < distances[k-1] {
			cands := make([]candidate, 0, fetch)
			for i := range labels {
				if labels[i] < 0 {
					continue
				}
				cands = append(cands, candidate{pos: int(labels[i]), score: float64(distances[i])})
			}
			return toResult(rank(cands, k), f.entries), nil
		}
		fetch *= 2
	}
}

// Size returns the number of entries.
func (f *FAISSIndex) Size() int { return len(f.entries) }

// Dimensions returns the vector dimensionality, 0 when empty.
func (f *FAISSIndex) Dimensions() int { return f.dimensions }

// Type returns IndexTypeFAISS.
func (f *FAISSIndex) Type() IndexType { return IndexTypeFAISS }

// Entries returns a copy of the entry slice.
func (f *FAISSIndex) Entries() []Entry {
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Chunk returns the chunk stored at position.
func (f *FAISSIndex) Chunk(position int) (models.Chunk, bool) {
	if position < 0 || position >= len(f.entries) {
		return models.Chunk{}, false
	}
	return f.entries[position].Chunk, true
}

// Close frees the FAISS index.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
