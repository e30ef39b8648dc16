// Package indexer chunks, embeds and indexes documents into immutable snapshots.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/docgenius/internal/config"
	"github.com/hyperjump/docgenius/internal/embedding"
	"github.com/hyperjump/docgenius/internal/ingest"
	"github.com/hyperjump/docgenius/internal/keyword"
	"github.com/hyperjump/docgenius/internal/models"
	"github.com/hyperjump/docgenius/internal/storage"
	"github.com/hyperjump/docgenius/internal/vector"
)

// ErrEmbedderMismatch is returned when a persisted index was built by a different embedder.
var ErrEmbedderMismatch = errors.New("index was built with a different embedder")

// DocumentLoader loads documents from sources.
type DocumentLoader interface {
	Load(ctx context.Context, src ingest.Sources) ([]models.Document, ingest.Report, error)
}

// Snapshot is a fully built index. It is never mutated; a rebuild produces a new Snapshot.
type Snapshot struct {
	Vector vector.Index
	// Keyword is nil unless hybrid retrieval is enabled.
	Keyword keyword.Searcher
	Meta    storage.IndexMeta
}

// Size returns the number of indexed chunks; a nil Snapshot has none.
func (s *Snapshot) Size() int {
	if s == nil || s.Vector == nil {
		return 0
	}
	return s.Vector.Size()
}

// Close releases the vector and keyword indexes.
func (s *Snapshot) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Vector != nil {
		errs = append(errs, s.Vector.Close())
	}
	if s.Keyword != nil {
		errs = append(errs, s.Keyword.Close())
	}
	return errors.Join(errs...)
}

// BuildReport describes a completed build.
type BuildReport struct {
	Ingest   ingest.Report `json:"ingest"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

// Indexer turns sources into Snapshots.
type Indexer struct {
	loader    DocumentLoader
	embedder  embedding.Embedder
	chunker   *Chunker
	indexType string
	workers   int
	batchSize int
	keyword   bool
	logger    *zap.Logger
	tracer    trace.Tracer
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for build progress.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(ix *Indexer) { ix.logger = l }
}

// WithWorkers sets the embedding pool size and the number of chunks per embedding call.
func WithWorkers(workers, batchSize int) IndexerOption {
	return func(ix *Indexer) {
		if workers > 0 {
			ix.workers = workers
		}
		if batchSize > 0 {
			ix.batchSize = batchSize
		}
	}
}

// WithIndexType selects the vector index strategy ("memory" or "faiss").
func WithIndexType(t string) IndexerOption {
	return func(ix *Indexer) { ix.indexType = t }
}

// WithKeywordIndex builds a Bleve keyword index alongside the vectors.
func WithKeywordIndex(enabled bool) IndexerOption {
	return func(ix *Indexer) { ix.keyword = enabled }
}

// NewIndexer creates an indexer. loader may be nil when only BuildDocuments and Load are used.
func NewIndexer(loader DocumentLoader, embedder embedding.Embedder, chunker *Chunker, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		loader:    loader,
		embedder:  embedder,
		chunker:   chunker,
		indexType: string(vector.IndexTypeMemory),
		workers:   4,
		batchSize: 16,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("github.com/hyperjump/docgenius/internal/indexer"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// New creates an indexer from configuration.
func New(cfg *config.Config, loader DocumentLoader, embedder embedding.Embedder, opts ...IndexerOption) (*Indexer, error) {
	var chunkOpts []ChunkerOption
	if len(cfg.Chunking.Separators) > 0 {
		chunkOpts = append(chunkOpts, WithSeparators(cfg.Chunking.Separators))
	}
	chunker, err := NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault(), chunkOpts...)
	if err != nil {
		return nil, err
	}
	base := []IndexerOption{
		WithWorkers(cfg.Embedding.Workers, cfg.Embedding.BatchSize),
		WithIndexType(cfg.Retrieval.IndexType),
		WithKeywordIndex(cfg.Retrieval.Mode == config.RetrievalModeHybrid),
	}
	return NewIndexer(loader, embedder, chunker, append(base, opts...)...), nil
}

// Embedder returns the embedder used for chunks, which must also embed queries.
func (ix *Indexer) Embedder() embedding.Embedder { return ix.embedder }

// Build loads src and indexes it. Isolated source failures are reported, not returned.
// Nothing is published: the caller decides when the Snapshot becomes visible.
func (ix *Indexer) Build(ctx context.Context, src ingest.Sources) (*Snapshot, BuildReport, error) {
	start := time.Now()
	ctx, span := ix.tracer.Start(ctx, "indexer.Build")
	defer span.End()

	if ix.loader == nil {
		return nil, BuildReport{}, errors.New("indexer has no document loader")
	}
	docs, ingestReport, err := ix.loader.Load(ctx, src)
	report := BuildReport{Ingest: ingestReport}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, report, fmt.Errorf("load sources: %w", err)
	}
	ix.logger.Info("sources loaded",
		zap.Int("documents", len(docs)),
		zap.Int("failures", ingestReport.FailureCount()),
		zap.Int("skipped", ingestReport.Skipped))

	snap, err := ix.BuildDocuments(ctx, docs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, report, err
	}
	snap.Meta.Failures = ingestReport.FailureCount()
	report.Chunks = snap.Size()
	report.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("docgenius.chunks", report.Chunks))
	ix.logger.Info("index built", zap.Int("chunks", report.Chunks), zap.Duration("duration", report.Duration))
	return snap, report, nil
}

// BuildDocuments preprocesses, chunks, embeds and indexes docs.
// The Snapshot is returned only after every chunk is embedded and inserted.
func (ix *Indexer) BuildDocuments(ctx context.Context, docs []models.Document) (*Snapshot, error) {
	prepared := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		doc.Text = Preprocess(doc.Text)
		if IsBlank(doc.Text) {
			continue
		}
		prepared = append(prepared, doc)
	}
	chunks := ix.chunker.Chunk(prepared)
	ix.logger.Debug("documents chunked", zap.Int("documents", len(prepared)), zap.Int("chunks", len(chunks)))

	vectors, err := ix.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	entries := make([]vector.Entry, len(chunks))
	for i := range chunks {
		entries[i] = vector.Entry{Vector: vectors[i], Chunk: chunks[i]}
	}
	meta := storage.IndexMeta{
		Embedder:     ix.embedder.Name(),
		ChunkSize:    ix.chunker.ChunkSize(),
		ChunkOverlap: ix.chunker.ChunkOverlap(),
		Documents:    len(prepared),
		BuiltAt:      time.Now().UTC(),
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, err := vector.NewIndex(ix.indexType, entries)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	return ix.assemble(ctx, idx, meta)
}

func (ix *Indexer) assemble(ctx context.Context, idx vector.Index, meta storage.IndexMeta) (*Snapshot, error) {
	snap := &Snapshot{Vector: idx, Meta: meta}
	snap.Meta.Dimensions = idx.Dimensions()
	snap.Meta.IndexType = string(idx.Type())
	snap.Meta.Chunks = idx.Size()
	if ix.keyword {
		entries := idx.Entries()
		chunks := make([]models.Chunk, len(entries))
		for i, e := range entries {
			chunks[i] = e.Chunk
		}
		kw, err := keyword.Build(ctx, chunks)
		if err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("build keyword index: %w", err)
		}
		snap.Keyword = kw
	}
	return snap, nil
}

// EmbedChunks embeds chunk texts with a bounded worker pool. Results keep chunk order.
// The first failure cancels the remaining work.
func (ix *Indexer) EmbedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	ctx, span := ix.tracer.Start(ctx, "indexer.EmbedChunks", trace.WithAttributes(attribute.Int("docgenius.chunks", len(chunks))))
	defer span.End()

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for start := 0; start < len(chunks); start += ix.batchSize {
		start := start
		end := min(start+ix.batchSize, len(chunks))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = chunks[start+i].Text
		}
		g.Go(func() error {
			vecs, err := ix.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return embedding.Wrap(ix.embedder.Name(), err)
			}
			if len(vecs) != len(texts) {
				return embedding.Wrap(ix.embedder.Name(), fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts)))
			}
			for i, v := range vecs {
				if err := embedding.Validate(v); err != nil {
					return embedding.Wrap(ix.embedder.Name(), fmt.Errorf("chunk %s: %w", chunks[start+i].ID, err))
				}
				vectors[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Persist writes snap into dir.
func Persist(ctx context.Context, dir string, snap *Snapshot) error {
	if snap == nil || snap.Vector == nil {
		return errors.New("nothing to persist")
	}
	return vector.Save(ctx, dir, snap.Vector, snap.Meta)
}

// Load reads a persisted index from dir. The index must have been built by the same embedder.
func (ix *Indexer) Load(ctx context.Context, dir string) (*Snapshot, error) {
	idx, meta, err := vector.Load(ctx, dir, ix.indexType)
	if err != nil {
		return nil, err
	}
	if meta.Embedder != ix.embedder.Name() {
		_ = idx.Close()
		return nil, fmt.Errorf("%w: index has %q, configured %q (rebuild the index)", ErrEmbedderMismatch, meta.Embedder, ix.embedder.Name())
	}
	if d := ix.embedder.Dimensions(); d > 0 && idx.Size() > 0 && idx.Dimensions() != d {
		_ = idx.Close()
		return nil, fmt.Errorf("%w: index has %d dimensions, embedder produces %d",
			vector.ErrDimensionMismatch, idx.Dimensions(), ix.embedder.Dimensions())
	}
	snap, err := ix.assemble(ctx, idx, meta)
	if err != nil {
		return nil, err
	}
	ix.logger.Info("index loaded", zap.String("dir", dir), zap.Int("chunks", snap.Size()))
	return snap, nil
}
