package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/docgenius/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "sub", "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		{ID: "a#0", SourceID: "a.txt", DocumentID: "a", Text: "first", SequenceIndex: 0, StartOffset: 0,
			Metadata: map[string]string{"title": "A", "source": "a.txt"}},
		{ID: "a#1", SourceID: "a.txt", DocumentID: "a", Text: "second", SequenceIndex: 1, StartOffset: 4,
			Metadata: map[string]string{"title": "A", "source": "a.txt"}},
		{ID: "b#0", SourceID: "b.pdf", DocumentID: "b/p1", Text: "third", SequenceIndex: 0, StartOffset: 0,
			Metadata: map[string]string{"page": "1"}},
	}
}

func TestSQLiteStorage_ReplaceAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	built := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	meta := IndexMeta{Embedder: "hash-256", Dimensions: 256, IndexType: "memory",
		ChunkSize: 800, ChunkOverlap: 120, Documents: 2, Failures: 1, BuiltAt: built}

	if err := store.ReplaceIndex(ctx, meta, sampleChunks()); err != nil {
		t.Fatal(err)
	}

	chunks, err := store.LoadChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := sampleChunks()
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i := range want {
		if chunks[i].ID != want[i].ID || chunks[i].Text != want[i].Text ||
			chunks[i].StartOffset != want[i].StartOffset || chunks[i].SequenceIndex != want[i].SequenceIndex {
			t.Errorf("chunk %d: got %+v, want %+v", i, chunks[i], want[i])
		}
	}
	if chunks[2].Metadata["page"] != "1" {
		t.Errorf("metadata not preserved: %v", chunks[2].Metadata)
	}

	got, err := store.GetMeta(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Embedder != "hash-256" || got.Dimensions != 256 || got.Chunks != 3 || got.Failures != 1 {
		t.Errorf("meta = %+v", got)
	}
	if !got.BuiltAt.Equal(built) {
		t.Errorf("BuiltAt = %v, want %v", got.BuiltAt, built)
	}

	sources, err := store.ListSources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 || sources[0].SourceID != "a.txt" || sources[0].Chunks != 2 || sources[0].Title != "A" {
		t.Errorf("sources = %+v", sources)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Sources != 2 || st.Chunks != 3 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSQLiteStorage_ReplaceDiscardsPrevious(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.ReplaceIndex(ctx, IndexMeta{Embedder: "old"}, sampleChunks()); err != nil {
		t.Fatal(err)
	}
	replacement := []models.Chunk{{ID: "c#0", SourceID: "c.md", DocumentID: "c", Text: "only"}}
	if err := store.ReplaceIndex(ctx, IndexMeta{Embedder: "new"}, replacement); err != nil {
		t.Fatal(err)
	}
	chunks, err := store.LoadChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].ID != "c#0" {
		t.Errorf("chunks = %+v", chunks)
	}
	meta, err := store.GetMeta(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Embedder != "new" {
		t.Errorf("embedder = %q", meta.Embedder)
	}
}

func TestSQLiteStorage_EmptyStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.GetMeta(ctx); !errors.Is(err, ErrNoMeta) {
		t.Errorf("GetMeta err = %v, want ErrNoMeta", err)
	}
	chunks, err := store.LoadChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestSQLiteStorage_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.ReplaceIndex(ctx, IndexMeta{Embedder: "e", Dimensions: 3}, sampleChunks()); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	chunks, err := store.LoadChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Errorf("got %d chunks after reopen", len(chunks))
	}
}
