package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/docgenius/internal/config"
	"github.com/hyperjump/docgenius/internal/embedding"
	"github.com/hyperjump/docgenius/internal/ingest"
	"github.com/hyperjump/docgenius/internal/models"
)

type staticLoader struct {
	docs   []models.Document
	report ingest.Report
	err    error
}

func (l staticLoader) Load(ctx context.Context, src ingest.Sources) ([]models.Document, ingest.Report, error) {
	return l.docs, l.report, l.err
}

type failingEmbedder struct {
	*embedding.HashEmbedder
	failAfter int32
	calls     atomic.Int32
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) > f.failAfter {
		return nil, errors.New("model crashed")
	}
	return f.HashEmbedder.EmbedBatch(ctx, texts)
}

func capitalDocs() []models.Document {
	return []models.Document{
		{ID: "fr", Source: "fr.txt", Text: "Paris is the capital of France.", Metadata: map[string]string{"title": "fr.txt"}},
		{ID: "de", Source: "de.txt", Text: "Berlin is the capital of Germany.", Metadata: map[string]string{"title": "de.txt"}},
		{ID: "blank", Source: "blank.txt", Text: "\r\n \x00 "},
	}
}

func newTestIndexer(t *testing.T, loader DocumentLoader, e embedding.Embedder, opts ...IndexerOption) *Indexer {
	t.Helper()
	chunker, err := NewChunker(40, 5)
	if err != nil {
		t.Fatal(err)
	}
	return NewIndexer(loader, e, chunker, opts...)
}

func TestIndexer_BuildDocuments(t *testing.T) {
	ix := newTestIndexer(t, nil, embedding.NewHashEmbedder(64), WithWorkers(2, 1))
	snap, err := ix.BuildDocuments(context.Background(), capitalDocs())
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Close()
	if snap.Size() != 2 {
		t.Fatalf("Size = %d, want 2", snap.Size())
	}
	if snap.Meta.Embedder != "hash:64" || snap.Meta.Dimensions != 64 || snap.Meta.Documents != 2 {
		t.Errorf("meta = %+v", snap.Meta)
	}
	if snap.Keyword != nil {
		t.Error("keyword index built without being enabled")
	}
	entries := snap.Vector.Entries()
	if entries[0].Chunk.DocumentID != "fr" || entries[1].Chunk.DocumentID != "de" {
		t.Errorf("entries out of order: %s, %s", entries[0].Chunk.DocumentID, entries[1].Chunk.DocumentID)
	}
}

func TestIndexer_EmbedChunksKeepsOrder(t *testing.T) {
	e := embedding.NewHashEmbedder(32)
	ix := newTestIndexer(t, nil, e, WithWorkers(4, 3))
	var chunks []models.Chunk
	for _, w := range []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta", "iota", "kappa"} {
		chunks = append(chunks, models.Chunk{ID: w, Text: w})
	}
	vecs, err := ix.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatal(err)
	}
	for i, ch := range chunks {
		want, _ := e.Embed(context.Background(), ch.Text)
		for j := range want {
			if vecs[i][j] != want[j] {
				t.Fatalf("vector %d does not belong to chunk %q", i, ch.Text)
			}
		}
	}
}

func TestIndexer_EmbeddingFailureAbortsBuild(t *testing.T) {
	e := &failingEmbedder{HashEmbedder: embedding.NewHashEmbedder(16), failAfter: 1}
	ix := newTestIndexer(t, nil, e, WithWorkers(1, 1))
	snap, err := ix.BuildDocuments(context.Background(), capitalDocs())
	if snap != nil {
		t.Error("partial snapshot returned")
	}
	if !errors.Is(err, embedding.ErrEmbedding) {
		t.Errorf("err = %v, want ErrEmbedding", err)
	}
}

func TestIndexer_CancelledBuild(t *testing.T) {
	ix := newTestIndexer(t, nil, embedding.NewHashEmbedder(16))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := ix.BuildDocuments(ctx, capitalDocs())
	if snap != nil || !errors.Is(err, context.Canceled) {
		t.Errorf("snap=%v err=%v", snap, err)
	}
}

func TestIndexer_BuildReportsIngestion(t *testing.T) {
	report := ingest.Report{Files: 3, Failures: []*ingest.IngestionError{{Source: "bad.pdf", Err: errors.New("corrupt")}}}
	ix := newTestIndexer(t, staticLoader{docs: capitalDocs(), report: report}, embedding.NewHashEmbedder(16))
	snap, rep, err := ix.Build(context.Background(), ingest.Sources{Folder: "unused"})
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Close()
	if rep.Chunks != 2 || rep.Ingest.FailureCount() != 1 || snap.Meta.Failures != 1 {
		t.Errorf("report = %+v meta = %+v", rep, snap.Meta)
	}

	failing := newTestIndexer(t, staticLoader{err: os.ErrNotExist}, embedding.NewHashEmbedder(16))
	if _, _, err := failing.Build(context.Background(), ingest.Sources{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v", err)
	}
}

func TestIndexer_EmptyCorpus(t *testing.T) {
	ix := newTestIndexer(t, nil, embedding.NewHashEmbedder(16))
	snap, err := ix.BuildDocuments(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	results, err := snap.Vector.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil || len(results) != 0 {
		t.Errorf("results=%v err=%v", results, err)
	}
}

func TestIndexer_PersistLoad(t *testing.T) {
	e := embedding.NewHashEmbedder(64)
	ix := newTestIndexer(t, nil, e, WithKeywordIndex(true))
	snap, err := ix.BuildDocuments(context.Background(), capitalDocs())
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Close()
	if snap.Keyword == nil || snap.Keyword.Size() != 2 {
		t.Fatal("keyword index missing")
	}
	dir := filepath.Join(t.TempDir(), "index")
	if err := Persist(context.Background(), dir, snap); err != nil {
		t.Fatal(err)
	}

	loaded, err := ix.Load(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Close()
	if loaded.Size() != 2 || loaded.Keyword == nil {
		t.Fatalf("loaded size=%d keyword=%v", loaded.Size(), loaded.Keyword)
	}
	q, _ := e.Embed(context.Background(), "capital of France")
	want, _ := snap.Vector.Search(context.Background(), q, 2)
	got, err := loaded.Vector.Search(context.Background(), q, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i].Chunk.ID != want[i].Chunk.ID || got[i].Score != want[i].Score {
			t.Errorf("result %d differs after reload: %+v vs %+v", i, got[i], want[i])
		}
	}

	other := newTestIndexer(t, nil, embedding.NewHashEmbedder(32))
	if _, err := other.Load(context.Background(), dir); !errors.Is(err, ErrEmbedderMismatch) {
		t.Errorf("err = %v, want ErrEmbedderMismatch", err)
	}
}

func TestNew_FromConfig(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Retrieval.Mode = config.RetrievalModeHybrid
	ix, err := New(cfg, nil, embedding.NewHashEmbedder(16))
	if err != nil {
		t.Fatal(err)
	}
	if ix.chunker.ChunkSize() != config.DefaultChunkSize || ix.chunker.ChunkOverlap() != config.DefaultChunkOverlap {
		t.Errorf("chunker = %d/%d", ix.chunker.ChunkSize(), ix.chunker.ChunkOverlap())
	}
	if !ix.keyword {
		t.Error("hybrid mode should enable the keyword index")
	}

	zero := 0
	cfg.Chunking.ChunkOverlap = &zero
	cfg.Chunking.ChunkSize = 0
	if _, err := New(cfg, nil, embedding.NewHashEmbedder(16)); err == nil {
		t.Error("expected error for invalid chunk size")
	}
}
