package keyword

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/docgenius/internal/models"
)

const batchSize = 500

// BleveIndex is an in-memory Bleve index whose document IDs are chunk positions.
type BleveIndex struct {
	index bleve.Index
	size  int
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase and tokenize, no stemming.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", text)
	docMapping.AddFieldMappingsAt("title", text)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// Build indexes chunks in memory. Chunk i is stored under ID i.
func Build(ctx context.Context, chunks []models.Chunk) (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	batch := index.NewBatch()
	for pos, ch := range chunks {
		if err := ctx.Err(); err != nil {
			_ = index.Close()
			return nil, err
		}
		doc := map[string]interface{}{
			"content": ch.Text,
			// Underscores split so file names like annual_report_2021.pdf match "annual report"
			"title": strings.ReplaceAll(ch.Metadata["title"], "_", " "),
		}
		if err := batch.Index(strconv.Itoa(pos), doc); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index chunk %d: %w", pos, err)
		}
		if batch.Size() >= batchSize {
			if err := index.Batch(batch); err != nil {
				_ = index.Close()
				return nil, fmt.Errorf("failed to write batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to write batch: %w", err)
		}
	}
	return &BleveIndex{index: index, size: len(chunks)}, nil
}

// Search returns up to limit hits ordered by score, then position.
// Multi-term queries are scaled by the squared fraction of query terms a chunk matches,
// and by opts.PhraseBoost when the chunk contains the query as a phrase.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *Options) ([]Hit, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 || limit <= 0 || b.size == 0 {
		return nil, nil
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Fuzzy && o.Fuzziness <= 0 {
		o.Fuzziness = 1
	}
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}

	base, err := b.run(ctx, b.matchQuery(query, terms, o), reqSize)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	if len(base) == 0 {
		return nil, nil
	}

	if len(terms) > 1 {
		coverage := make(map[string]int, len(base))
		for _, term := range terms {
			hits, err := b.run(ctx, b.matchQuery(term, []string{term}, o), reqSize)
			if err != nil {
				return nil, fmt.Errorf("Bleve term search failed: %w", err)
			}
			for id := range hits {
				coverage[id]++
			}
		}
		for id := range base {
			matched := coverage[id]
			if matched == 0 {
				matched = 1
			}
			frac := float64(matched) / float64(len(terms))
			base[id] *= frac * frac
		}
		if o.PhraseBoost > 1 {
			pq := bleve.NewMatchPhraseQuery(query)
			pq.SetField("content")
			phrase, err := b.run(ctx, pq, reqSize)
			if err != nil {
				return nil, fmt.Errorf("Bleve phrase search failed: %w", err)
			}
			for id := range phrase {
				if _, ok := base[id]; ok {
					base[id] *= o.PhraseBoost
				}
			}
		}
	}

	out := make([]Hit, 0, len(base))
	for id, score := range base {
		pos, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q", id)
		}
		out = append(out, Hit{Position: pos, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Position < out[j].Position
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *BleveIndex) matchQuery(query string, terms []string, o Options) blevequery.Query {
	if !o.Fuzzy {
		return bleve.NewMatchQuery(query)
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(o.Fuzziness)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func (b *BleveIndex) run(ctx context.Context, q blevequery.Query, size int) (map[string]float64, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// Size returns the number of indexed chunks.
func (b *BleveIndex) Size() int { return b.size }

// Close releases the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
