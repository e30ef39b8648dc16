package rag

import (
	"strings"

	"github.com/hyperjump/docgenius/internal/models"
)

// NoContextMarker fills the context slot when retrieval returned nothing.
const NoContextMarker = "No relevant context was found for this question."

const contextSeparator = "\n\n"

const promptTemplate = `You are a helpful assistant.
Use only the following context to answer the question accurately.
If the context does not contain the answer, say that you do not know.

Context:
{context}

Question: {question}

Answer:`

// BuildContext joins chunk texts in result order. With maxChars > 0, trailing chunks are
// dropped until the context fits; a first chunk that alone is too long is cut to maxChars.
func BuildContext(res models.RetrievalResult, maxChars int) string {
	text, _ := FitContext(res, maxChars)
	return text
}

// FitContext is BuildContext that also returns the chunks the context contains, a prefix of res.
func FitContext(res models.RetrievalResult, maxChars int) (string, models.RetrievalResult) {
	var b strings.Builder
	used := 0
	for i, sc := range res {
		text := sc.Chunk.Text
		n := len([]rune(text))
		if i > 0 {
			n += len(contextSeparator)
		}
		if maxChars > 0 && used+n > maxChars {
			if i == 0 {
				return string([]rune(text)[:maxChars]), res[:1]
			}
			return b.String(), res[:i]
		}
		if i > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(text)
		used += n
	}
	return b.String(), res
}

// BuildPrompt fills the template. An empty context prints NoContextMarker instead.
func BuildPrompt(context, question string) string {
	if context == "" {
		context = NoContextMarker
	}
	return strings.NewReplacer("{context}", context, "{question}", question).Replace(promptTemplate)
}
