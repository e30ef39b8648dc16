package rag

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docgenius/internal/embedding"
	"github.com/hyperjump/docgenius/internal/indexer"
	"github.com/hyperjump/docgenius/internal/keyword"
	"github.com/hyperjump/docgenius/internal/models"
	"github.com/hyperjump/docgenius/internal/vector"
)

// vocabEmbedder counts vocabulary words; unknown-only text lands in the last dimension.
type vocabEmbedder struct {
	vocab []string
	calls atomic.Int32
	err   error
}

func newVocabEmbedder() *vocabEmbedder {
	return &vocabEmbedder{vocab: []string{"paris", "france", "berlin", "germany", "capital"}}
}

func (v *vocabEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v.calls.Add(1)
	if v.err != nil {
		return nil, v.err
	}
	vec := make([]float32, len(v.vocab)+1)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	hit := false
	for _, w := range words {
		for i, term := range v.vocab {
			if w == term {
				vec[i]++
				hit = true
			}
		}
	}
	if !hit {
		vec[len(v.vocab)] = 1
	}
	return vec, nil
}

func (v *vocabEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := v.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (v *vocabEmbedder) Dimensions() int { return len(v.vocab) + 1 }
func (v *vocabEmbedder) Name() string    { return "vocab" }
func (v *vocabEmbedder) Close() error    { return nil }

func capitalChunks() []models.Chunk {
	return []models.Chunk{
		{ID: "fr#0", SourceID: "fr.txt", DocumentID: "fr", Text: "Paris is the capital of France."},
		{ID: "de#0", SourceID: "de.txt", DocumentID: "de", Text: "Berlin is the capital of Germany."},
	}
}

func buildSnapshot(t *testing.T, e embedding.Embedder, chunks []models.Chunk, withKeyword bool) *indexer.Snapshot {
	t.Helper()
	entries := make([]vector.Entry, len(chunks))
	for i, ch := range chunks {
		vec, err := e.Embed(context.Background(), ch.Text)
		require.NoError(t, err)
		entries[i] = vector.Entry{Vector: vec, Chunk: ch}
	}
	idx, err := vector.Build(entries)
	require.NoError(t, err)
	snap := &indexer.Snapshot{Vector: idx}
	if withKeyword {
		kw, err := keyword.Build(context.Background(), chunks)
		require.NoError(t, err)
		snap.Keyword = kw
	}
	t.Cleanup(func() { snap.Close() })
	return snap
}

func TestRetriever_ParisBerlin(t *testing.T) {
	e := newVocabEmbedder()
	r := NewRetriever(StaticProvider{Snap: buildSnapshot(t, e, capitalChunks(), false)}, e, 6)

	res, err := r.Retrieve(context.Background(), "What is the capital of France?", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Chunk.Text, "Paris")

	res, err = r.RetrieveDefault(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "fr#0", res[0].Chunk.ID)
	assert.Equal(t, "de#0", res[1].Chunk.ID)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestRetriever_NoIndex(t *testing.T) {
	e := newVocabEmbedder()
	for name, provider := range map[string]SnapshotProvider{
		"absent": StaticProvider{},
		"empty":  StaticProvider{Snap: buildSnapshot(t, e, nil, false)},
	} {
		t.Run(name, func(t *testing.T) {
			before := e.calls.Load()
			res, err := NewRetriever(provider, e, 3).Retrieve(context.Background(), "anything", 3)
			require.NoError(t, err)
			assert.Empty(t, res)
			assert.Equal(t, before, e.calls.Load(), "embedder called without an index")
		})
	}
}

func TestRetriever_InvalidK(t *testing.T) {
	e := newVocabEmbedder()
	r := NewRetriever(StaticProvider{Snap: buildSnapshot(t, e, capitalChunks(), false)}, e, 3)
	_, err := r.Retrieve(context.Background(), "Paris", 0)
	assert.ErrorIs(t, err, vector.ErrInvalidK)
}

func TestRetriever_EmbeddingFailure(t *testing.T) {
	e := newVocabEmbedder()
	snap := buildSnapshot(t, e, capitalChunks(), false)
	e.err = errors.New("model unavailable")
	_, err := NewRetriever(StaticProvider{Snap: snap}, e, 3).Retrieve(context.Background(), "Paris", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrEmbedding)
	var ee *embedding.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "vocab", ee.Provider)
}

func TestRetriever_Hybrid(t *testing.T) {
	e := newVocabEmbedder()
	snap := buildSnapshot(t, e, capitalChunks(), true)
	r := NewRetriever(StaticProvider{Snap: snap}, e, 2, WithHybrid(0.3, 0.7))

	res, err := r.Retrieve(context.Background(), "Germany capital", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "de#0", res[0].Chunk.ID)
	assert.Equal(t, 1, res[0].Position)

	res, err = r.Retrieve(context.Background(), "Germany capital", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestFuse_TieBreakByPosition(t *testing.T) {
	fused := Fuse(map[int]float64{3: 1, 1: 1}, map[int]float64{2: 1}, 0.5, 0.5)
	require.Len(t, fused, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{fused[0].Position, fused[1].Position, fused[2].Position})

	fused = Fuse(map[int]float64{0: 0.2, 1: 1}, map[int]float64{0: 1, 1: 0.5}, 0.3, 0.7)
	assert.Equal(t, 0, fused[0].Position)
	assert.InDelta(t, 0.76, fused[0].Score, 1e-9)
}

func TestNormalizeScores(t *testing.T) {
	kw := NormalizeKeywordScores([]keyword.Hit{{Position: 0, Score: 4}, {Position: 1, Score: 2}})
	assert.Equal(t, map[int]float64{0: 1, 1: 0.5}, kw)
	assert.Equal(t, map[int]float64{2: 0}, NormalizeKeywordScores([]keyword.Hit{{Position: 2}}))

	sem := NormalizeSemanticScores(models.RetrievalResult{{Position: 0, Score: 1}, {Position: 1, Score: -1}, {Position: 2, Score: 0}})
	assert.Equal(t, map[int]float64{0: 1, 1: 0, 2: 0.5}, sem)
}

func TestBuildContext(t *testing.T) {
	res := models.RetrievalResult{
		{Chunk: models.Chunk{Text: "alpha"}},
		{Chunk: models.Chunk{Text: "beta"}},
		{Chunk: models.Chunk{Text: "gamma"}},
	}
	tests := []struct {
		name     string
		maxChars int
		want     string
		used     int
	}{
		{"unbounded", 0, "alpha\n\nbeta\n\ngamma", 3},
		{"exact fit", 18, "alpha\n\nbeta\n\ngamma", 3},
		{"drops trailing chunk", 17, "alpha\n\nbeta", 2},
		{"first chunk only", 8, "alpha", 1},
		{"first chunk cut", 3, "alp", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildContext(res, tt.maxChars))
			text, used := FitContext(res, tt.maxChars)
			assert.Equal(t, tt.want, text)
			assert.Equal(t, res[:tt.used], used)
		})
	}
	assert.Equal(t, "", BuildContext(nil, 0))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("Paris is the capital of France.", "What is the capital of France?")
	assert.Contains(t, p, "Context:\nParis is the capital of France.\n")
	assert.Contains(t, p, "Question: What is the capital of France?")
	assert.True(t, strings.HasSuffix(p, "Answer:"))
	assert.NotContains(t, p, NoContextMarker)

	p = BuildPrompt("", "Who?")
	assert.Contains(t, p, "Context:\n"+NoContextMarker)
}
