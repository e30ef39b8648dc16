// Package indexer splits documents into chunks and builds searchable index snapshots from them.
package indexer

import (
	"fmt"
	"maps"

	"github.com/hyperjump/docgenius/internal/fileid"
	"github.com/hyperjump/docgenius/internal/models"
)

// DefaultSeparators are tried coarsest first: paragraph, line, sentence end, period, word.
var DefaultSeparators = []string{"\n\n", "\n", ". ", ".", " "}

// Chunker splits text into overlapping, size-bounded chunks on the coarsest separator
// that fits. Sizes and offsets are counted in characters (runes).
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   [][]rune
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithSeparators replaces the separator list. Empty separators are ignored.
func WithSeparators(seps []string) ChunkerOption {
	return func(c *Chunker) {
		c.separators = c.separators[:0]
		for _, s := range seps {
			if s != "" {
				c.separators = append(c.separators, []rune(s))
			}
		}
	}
}

// NewChunker creates a chunker. chunkSize must be positive and 0 <= chunkOverlap < chunkSize.
func NewChunker(chunkSize, chunkOverlap int, opts ...ChunkerOption) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	c := &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
	WithSeparators(DefaultSeparators)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ChunkSize returns the maximum chunk length in characters.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// ChunkOverlap returns the number of characters shared by consecutive chunks.
func (c *Chunker) ChunkOverlap() int { return c.chunkOverlap }

// Chunk splits every document in order and returns all chunks.
func (c *Chunker) Chunk(docs []models.Document) []models.Chunk {
	var out []models.Chunk
	for _, doc := range docs {
		out = append(out, c.ChunkDocument(doc)...)
	}
	return out
}

// ChunkDocument splits one document. An empty document yields no chunks.
func (c *Chunker) ChunkDocument(doc models.Document) []models.Chunk {
	text := []rune(doc.Text)
	spans := c.spans(text)
	if len(spans) == 0 {
		return nil
	}
	docID := doc.ID
	if docID == "" {
		docID = fileid.FileDocID(doc.Source)
	}
	chunks := make([]models.Chunk, len(spans))
	for i, sp := range spans {
		chunks[i] = models.Chunk{
			ID:            fileid.ChunkID(docID, i),
			SourceID:      doc.Source,
			DocumentID:    docID,
			Text:          string(text[sp.start:sp.end]),
			StartOffset:   sp.start,
			SequenceIndex: i,
			Metadata:      maps.Clone(doc.Metadata),
		}
	}
	return chunks
}

type span struct{ start, end int }

// spans returns chunk boundaries. Each chunk after the first starts chunkOverlap
// characters before the end of the previous one.
func (c *Chunker) spans(text []rune) []span {
	n := len(text)
	if n == 0 {
		return nil
	}
	var out []span
	start := 0
	for {
		if n-start <= c.chunkSize {
			out = append(out, span{start, n})
			return out
		}
		end := c.splitPoint(text, start)
		out = append(out, span{start, end})
		start = end - c.chunkOverlap
	}
}

// splitPoint picks where the chunk starting at start ends: right after the last
// occurrence of the coarsest separator that keeps the chunk within chunkSize and
// longer than chunkOverlap, or at start+chunkSize when no separator qualifies.
func (c *Chunker) splitPoint(text []rune, start int) int {
	limit := start + c.chunkSize
	minEnd := start + c.chunkOverlap + 1
	for _, sep := range c.separators {
		for i := limit - len(sep); i >= start && i+len(sep) >= minEnd; i-- {
			if hasPrefixAt(text, i, sep) {
				return i + len(sep)
			}
		}
	}
	return limit
}

func hasPrefixAt(text []rune, i int, sep []rune) bool {
	if i+len(sep) > len(text) {
		return false
	}
	for j, r := range sep {
		if text[i+j] != r {
			return false
		}
	}
	return true
}
