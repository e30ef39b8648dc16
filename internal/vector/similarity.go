package vector

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/docgenius/internal/models"
	"github.com/hyperjump/docgenius/pkg/utils"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// normalizeChecked returns a unit-length copy of v, rejecting empty, zero or non-finite input.
func normalizeChecked(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite component", ErrInvalidVector)
		}
		sum += f * f
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: zero vector", ErrInvalidVector)
	}
	return utils.NormalizedCopy(v), nil
}

type candidate struct {
	pos   int
	score float64
}

// rank orders candidates by score descending, then position ascending, and keeps at most k.
func rank(cands []candidate, k int) []candidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].pos < cands[j].pos
	})
	if k < len(cands) {
		cands = cands[:k]
	}
	return cands
}

func toResult(cands []candidate, entries []Entry) models.RetrievalResult {
	out := make(models.RetrievalResult, len(cands))
	for i, c := range cands {
		out[i] = models.ScoredChunk{Chunk: entries[c.pos].Chunk, Score: c.score, Position: c.pos}
	}
	return out
}
