package models

// ScoredChunk is a chunk returned by a search together with its similarity score.
// Position is the chunk's insertion position in the index it came from.
type ScoredChunk struct {
	Chunk    Chunk   `json:"chunk"`
	Score    float64 `json:"score"`
	Position int     `json:"position"`
}

// RetrievalResult is ordered by descending score.
type RetrievalResult []ScoredChunk

// Texts returns the chunk texts in result order.
func (r RetrievalResult) Texts() []string {
	out := make([]string, len(r))
	for i, sc := range r {
		out[i] = sc.Chunk.Text
	}
	return out
}

// Sources returns the distinct source identifiers in first-seen order.
func (r RetrievalResult) Sources() []string {
	seen := make(map[string]bool, len(r))
	var out []string
	for _, sc := range r {
		if seen[sc.Chunk.SourceID] {
			continue
		}
		seen[sc.Chunk.SourceID] = true
		out = append(out, sc.Chunk.SourceID)
	}
	return out
}
