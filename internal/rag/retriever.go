// Package rag retrieves context for a question and asks the language model to answer from it.
package rag

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/docgenius/internal/config"
	"github.com/hyperjump/docgenius/internal/embedding"
	"github.com/hyperjump/docgenius/internal/indexer"
	"github.com/hyperjump/docgenius/internal/keyword"
	"github.com/hyperjump/docgenius/internal/models"
	"github.com/hyperjump/docgenius/internal/vector"
)

var tracer = otel.Tracer("github.com/hyperjump/docgenius/internal/rag")

// SnapshotProvider returns the index that queries should run against, or nil when none is built.
type SnapshotProvider interface {
	Snapshot() *indexer.Snapshot
}

// StaticProvider serves a fixed snapshot.
type StaticProvider struct {
	Snap *indexer.Snapshot
}

// Snapshot returns the fixed snapshot.
func (p StaticProvider) Snapshot() *indexer.Snapshot { return p.Snap }

// Retriever embeds a query and returns the top-K most similar chunks.
type Retriever struct {
	provider       SnapshotProvider
	embedder       embedding.Embedder
	topK           int
	hybrid         bool
	keywordWeight  float64
	semanticWeight float64
	logger         *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithHybrid fuses Bleve keyword scores with vector scores when the snapshot has a keyword index.
func WithHybrid(keywordWeight, semanticWeight float64) RetrieverOption {
	return func(r *Retriever) {
		r.hybrid = true
		r.keywordWeight = keywordWeight
		r.semanticWeight = semanticWeight
	}
}

// WithRetrieverLogger sets a logger.
func WithRetrieverLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever with a default k of topK.
func NewRetriever(provider SnapshotProvider, embedder embedding.Embedder, topK int, opts ...RetrieverOption) *Retriever {
	if topK <= 0 {
		topK = config.DefaultTopK
	}
	r := &Retriever{provider: provider, embedder: embedder, topK: topK, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRetrieverFromConfig applies top_k and retrieval mode settings.
func NewRetrieverFromConfig(cfg config.RetrievalConfig, provider SnapshotProvider, embedder embedding.Embedder, opts ...RetrieverOption) *Retriever {
	if cfg.Mode == config.RetrievalModeHybrid {
		opts = append([]RetrieverOption{WithHybrid(cfg.KeywordWeight, cfg.SemanticWeight)}, opts...)
	}
	return NewRetriever(provider, embedder, cfg.TopK, opts...)
}

// TopK returns the default k.
func (r *Retriever) TopK() int { return r.topK }

// RetrieveDefault retrieves with the configured top-K.
func (r *Retriever) RetrieveDefault(ctx context.Context, query string) (models.RetrievalResult, error) {
	return r.Retrieve(ctx, query, r.topK)
}

// Retrieve returns at most k chunks ordered by descending similarity. With no index or an
// empty index the result is empty and the embedder is not called.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		return nil, vector.ErrInvalidK
	}
	snap := r.provider.Snapshot()
	if snap.Size() == 0 {
		return models.RetrievalResult{}, nil
	}

	ctx, span := tracer.Start(ctx, "rag.Retrieve", trace.WithAttributes(attribute.Int("docgenius.k", k)))
	defer span.End()

	var (
		res models.RetrievalResult
		err error
	)
	if r.hybrid && snap.Keyword != nil {
		res, err = r.hybridSearch(ctx, snap, query, k)
	} else {
		res, err = r.vectorSearch(ctx, snap.Vector, query, k)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("docgenius.results", len(res)))
	return res, nil
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, embedding.Wrap(r.embedder.Name(), err)
	}
	return vec, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, idx vector.Index, query string, k int) (models.RetrievalResult, error) {
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return idx.Search(ctx, vec, k)
}

func (r *Retriever) hybridSearch(ctx context.Context, snap *indexer.Snapshot, query string, k int) (models.RetrievalResult, error) {
	candidates := max(k*4, 20)
	var (
		semantic models.RetrievalResult
		hits     []keyword.Hit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semantic, err = r.vectorSearch(gctx, snap.Vector, query, candidates)
		return err
	})
	g.Go(func() error {
		var err error
		hits, err = snap.Keyword.Search(gctx, query, candidates, nil)
		if err != nil {
			return fmt.Errorf("keyword search failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(NormalizeKeywordScores(hits), NormalizeSemanticScores(semantic), r.keywordWeight, r.semanticWeight)
	if len(fused) > k {
		fused = fused[:k]
	}
	out := make(models.RetrievalResult, 0, len(fused))
	for _, hit := range fused {
		ch, ok := snap.Vector.Chunk(hit.Position)
		if !ok {
			continue
		}
		out = append(out, models.ScoredChunk{Chunk: ch, Score: hit.Score, Position: hit.Position})
	}
	r.logger.Debug("hybrid retrieval", zap.Int("semantic", len(semantic)), zap.Int("keyword", len(hits)), zap.Int("fused", len(out)))
	return out, nil
}
