package rag

import (
	"sort"

	"github.com/hyperjump/docgenius/internal/keyword"
	"github.com/hyperjump/docgenius/internal/models"
)

// FusedHit holds an index position with its fused and per-source scores.
type FusedHit struct {
	Position      int
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores scales keyword scores to [0,1] by the maximum.
func NormalizeKeywordScores(hits []keyword.Hit) map[int]float64 {
	normalized := make(map[int]float64, len(hits))
	var maxScore float64
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range hits {
		if maxScore > 0 {
			normalized[h.Position] = h.Score / maxScore
		} else {
			normalized[h.Position] = 0
		}
	}
	return normalized
}

// NormalizeSemanticScores maps cosine similarity from [-1,1] to [0,1].
func NormalizeSemanticScores(res models.RetrievalResult) map[int]float64 {
	normalized := make(map[int]float64, len(res))
	for _, sc := range res {
		s := (sc.Score + 1) / 2
		if s < 0 {
			s = 0
		} else if s > 1 {
			s = 1
		}
		normalized[sc.Position] = s
	}
	return normalized
}

// Fuse merges keyword and semantic scores with weights. Results are ordered by fused score,
// then by position so that equal scores keep insertion order.
func Fuse(keywordScores, semanticScores map[int]float64, keywordWeight, semanticWeight float64) []FusedHit {
	byPos := make(map[int]*FusedHit, len(keywordScores)+len(semanticScores))
	for pos, score := range keywordScores {
		byPos[pos] = &FusedHit{Position: pos, KeywordScore: score}
	}
	for pos, score := range semanticScores {
		if hit, ok := byPos[pos]; ok {
			hit.SemanticScore = score
		} else {
			byPos[pos] = &FusedHit{Position: pos, SemanticScore: score}
		}
	}
	out := make([]FusedHit, 0, len(byPos))
	for _, hit := range byPos {
		hit.Score = keywordWeight*hit.KeywordScore + semanticWeight*hit.SemanticScore
		out = append(out, *hit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Position < out[j].Position
	})
	return out
}
