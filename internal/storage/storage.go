// Package storage persists the chunk side of a vector index and index metadata.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/docgenius/internal/models"
)

// ErrNoMeta is returned by GetMeta when the store holds no index.
var ErrNoMeta = errors.New("index metadata not found")

// IndexMeta describes how a persisted index was built. Loading an index with a
// different embedder must be refused by the caller.
type IndexMeta struct {
	Embedder     string    `json:"embedder"`
	Dimensions   int       `json:"dimensions"`
	IndexType    string    `json:"index_type"`
	ChunkSize    int       `json:"chunk_size"`
	ChunkOverlap int       `json:"chunk_overlap"`
	Documents    int       `json:"documents"`
	Failures     int       `json:"failures"`
	Chunks       int       `json:"chunks"`
	BuiltAt      time.Time `json:"built_at"`
}

// SourceSummary is one ingested source and the number of chunks it contributed.
type SourceSummary struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title,omitempty"`
	Chunks   int    `json:"chunks"`
}

// Stats are row counts of a chunk store.
type Stats struct {
	Sources int64 `json:"sources"`
	Chunks  int64 `json:"chunks"`
}

// ChunkStore persists chunks by index position together with index metadata.
type ChunkStore interface {
	// ReplaceIndex atomically replaces all chunks, sources and metadata.
	ReplaceIndex(ctx context.Context, meta IndexMeta, chunks []models.Chunk) error
	// LoadChunks returns all chunks ordered by index position.
	LoadChunks(ctx context.Context) ([]models.Chunk, error)
	GetMeta(ctx context.Context) (*IndexMeta, error)
	ListSources(ctx context.Context) ([]SourceSummary, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
