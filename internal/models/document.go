// Package models defines core data structures for documents, chunks, retrieval results and conversation turns.
package models

// Document is the raw text of one loaded source. PDFs produce one Document per page.
type Document struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Title    string            `json:"title,omitempty"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a bounded substring of a Document.
// StartOffset counts characters (Unicode code points) from the start of the document text.
type Chunk struct {
	ID            string            `json:"id"`
	SourceID      string            `json:"source_id"`
	DocumentID    string            `json:"document_id"`
	Text          string            `json:"text"`
	StartOffset   int               `json:"start_offset"`
	SequenceIndex int               `json:"sequence_index"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Page returns the page metadata of the chunk, or "" when the source has no pages.
func (c Chunk) Page() string {
	return c.Metadata["page"]
}
