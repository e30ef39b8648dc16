// Package fileid provides deterministic document and chunk IDs for ingested sources.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

const (
	filePrefix = "file:"
	urlPrefix  = "url:"
)

// FileDocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	return filePrefix + digest(normalized)
}

// URLDocID returns a stable document ID for a web page. Scheme and host case and a
// trailing fragment do not change the ID.
func URLDocID(rawURL string) string {
	normalized := rawURL
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Fragment = ""
		normalized = u.String()
	}
	return urlPrefix + digest(normalized)
}

// PageDocID returns the ID of one page of a paged source. Pages are 1-based.
func PageDocID(docID string, page int) string {
	return fmt.Sprintf("%s/p%d", docID, page)
}

// ChunkID returns the ID of the chunk at sequence index seq within a document.
func ChunkID(docID string, seq int) string {
	return fmt.Sprintf("%s#%d", docID, seq)
}

func digest(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}
