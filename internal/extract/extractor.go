// Package extract turns PDF, plain text, Markdown and HTML content into text pages.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for extensions that have no extractor.
var ErrUnsupported = errors.New("unsupported document type")

// Page is a unit of extracted text. Number is 1-based for paginated formats and 0 otherwise.
type Page struct {
	Number int
	Text   string
}

// Extractor extracts text pages from document files.
type Extractor struct {
	extensions map[string]bool
}

// NewExtractor returns an Extractor accepting the given extensions (with leading dot).
// With no extensions it accepts .pdf, .txt and .md.
func NewExtractor(extensions ...string) *Extractor {
	if len(extensions) == 0 {
		extensions = []string{".pdf", ".txt", ".md"}
	}
	e := &Extractor{extensions: make(map[string]bool, len(extensions))}
	for _, ext := range extensions {
		e.extensions[strings.ToLower(ext)] = true
	}
	return e
}

// Supports reports whether files at path are handled by this extractor.
func (e *Extractor) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.extensions[ext] {
		return false
	}
	switch ext {
	case ".pdf", ".txt", ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

// Extract reads the file at path and returns its pages.
func (e *Extractor) Extract(path string) ([]Page, error) {
	if !e.Supports(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts pages from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]Page, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".html", ".htm":
		_, text, err := ExtractHTML(content)
		if err != nil {
			return nil, err
		}
		return []Page{{Text: text}}, nil
	case ".txt", ".md", ".markdown":
		return []Page{{Text: extractPlain(content)}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}
