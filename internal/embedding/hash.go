package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/docgenius/pkg/utils"
)

// HashEmbedder is a deterministic, offline bag-of-words embedder. Each lowercase word is
// hashed into one of dims buckets; the counts are L2-normalized, so cosine similarity
// measures shared vocabulary. Used when no neural model is available and in tests.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder with the given dimensions (384 when <= 0).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the normalized bucket counts for text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap(e.Name(), err)
	}
	vec := make([]float32, e.dimensions)
	tokens := Tokens(text)
	if len(tokens) == 0 {
		// Punctuation or whitespace only: fall back to the characters themselves.
		for _, r := range strings.TrimSpace(text) {
			tokens = append(tokens, string(r))
		}
	}
	if len(tokens) == 0 {
		tokens = []string{"\x00blank"}
	}
	for _, tok := range tokens {
		vec[e.bucket(tok)]++
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *HashEmbedder) Name() string {
	return fmt.Sprintf("hash:%d", e.dimensions)
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}

func (e *HashEmbedder) bucket(token string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(e.dimensions))
}

// Tokens splits text into lowercase runs of letters and digits.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
