package vector

import (
	"errors"
	"fmt"
)

// ErrFAISSUnavailable is returned when the binary was built without FAISS.
var ErrFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install the FAISS library")

// IndexType names a search strategy.
type IndexType string

const (
	// IndexTypeMemory is exact linear scan in Go. Default.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS is an exact FAISS IndexFlatIP.
	// Requires the FAISS library and building with -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex builds an index of the given type over entries. An empty type selects memory.
func NewIndex(indexType string, entries []Entry) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		idx, err := Build(entries)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexTypeFAISS:
		idx, err := BuildFAISS(entries)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss)", indexType)
	}
}

// IsFAISSAvailable reports whether FAISS support is compiled in (-tags=faiss with cgo).
func IsFAISSAvailable() bool {
	return faissCompiled
}
