package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted text before chunking: invalid UTF-8 is replaced,
// CRLF and lone CR become LF, and NUL and other non-whitespace control characters are dropped.
// Chunk offsets refer to the preprocessed text.
func Preprocess(text string) string {
	text = strings.ToValidUTF8(text, "\uFFFD")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, text)
}

// IsBlank reports whether text has no non-whitespace characters.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
