// Package keyword provides a full-text (BM25) index over chunks, used by hybrid retrieval.
package keyword

import "context"

// Options tune keyword search. Nil means plain match scoring.
type Options struct {
	// PhraseBoost multiplies the score of chunks containing the query as a phrase. Values <= 1 disable it.
	PhraseBoost float64
	// Fuzzy enables typo-tolerant term matching within Fuzziness edits (default 1).
	Fuzzy     bool
	Fuzziness int
}

// Hit is one keyword match, addressed by the chunk's index position.
type Hit struct {
	Position int
	Score    float64
}

// Searcher is the read side of a keyword index.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, opts *Options) ([]Hit, error)
	Size() int
	Close() error
}
