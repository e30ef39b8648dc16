package indexer

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperjump/docgenius/internal/models"
)

func mustChunker(t *testing.T, size, overlap int, opts ...ChunkerOption) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// checkChunks verifies coverage, bound, overlap exactness and offsets for one document.
func checkChunks(t *testing.T, text string, chunks []models.Chunk, size, overlap int) {
	t.Helper()
	runes := []rune(text)
	if len(runes) == 0 {
		if len(chunks) != 0 {
			t.Fatalf("empty text produced %d chunks", len(chunks))
		}
		return
	}
	var rebuilt strings.Builder
	for i, ch := range chunks {
		cr := []rune(ch.Text)
		if len(cr) > size {
			t.Errorf("chunk %d has %d chars, bound is %d", i, len(cr), size)
		}
		if ch.SequenceIndex != i {
			t.Errorf("chunk %d SequenceIndex=%d", i, ch.SequenceIndex)
		}
		if string(runes[ch.StartOffset:ch.StartOffset+len(cr)]) != ch.Text {
			t.Errorf("chunk %d text does not match source at offset %d", i, ch.StartOffset)
		}
		if i+1 < len(chunks) {
			next := []rune(chunks[i+1].Text)
			if len(cr) > overlap && len(next) > overlap {
				if string(cr[len(cr)-overlap:]) != string(next[:overlap]) {
					t.Errorf("chunks %d/%d do not share exactly %d chars", i, i+1, overlap)
				}
			}
			rebuilt.WriteString(string(cr[:len(cr)-overlap]))
		} else {
			rebuilt.WriteString(ch.Text)
		}
	}
	if rebuilt.String() != text {
		t.Errorf("coverage broken:\n got %q\nwant %q", rebuilt.String(), text)
	}
}

func TestNewChunker_invalid(t *testing.T) {
	tests := []struct {
		size, overlap int
	}{
		{0, 0},
		{-1, 0},
		{10, 10},
		{10, 11},
		{10, -1},
	}
	for _, tt := range tests {
		if _, err := NewChunker(tt.size, tt.overlap); err == nil {
			t.Errorf("NewChunker(%d, %d) should fail", tt.size, tt.overlap)
		}
	}
}

func TestChunker_emptyDocument(t *testing.T) {
	c := mustChunker(t, 10, 2)
	if chunks := c.ChunkDocument(models.Document{ID: "d", Text: ""}); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestChunker_shortDocumentSingleChunk(t *testing.T) {
	c := mustChunker(t, 800, 120)
	doc := models.Document{ID: "d", Source: "/docs/a.txt", Text: "Paris is the capital of France."}
	chunks := c.ChunkDocument(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	if ch.StartOffset != 0 || ch.Text != doc.Text {
		t.Errorf("unexpected chunk %+v", ch)
	}
	if ch.SourceID != "/docs/a.txt" || ch.DocumentID != "d" || ch.ID != "d#0" {
		t.Errorf("unexpected identifiers %+v", ch)
	}
}

func TestChunker_prefersCoarsestSeparator(t *testing.T) {
	c := mustChunker(t, 10, 2)
	text := "hello world\n\nfoo bar baz qux"
	chunks := c.ChunkDocument(models.Document{ID: "d", Text: text})
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "hello " {
		t.Errorf("chunk 0 = %q, want %q", chunks[0].Text, "hello ")
	}
	if chunks[1].Text != "o world\n\n" || chunks[1].StartOffset != 4 {
		t.Errorf("chunk 1 = %q at %d, want %q at 4", chunks[1].Text, chunks[1].StartOffset, "o world\n\n")
	}
	checkChunks(t, text, chunks, 10, 2)
}

func TestChunker_characterFallback(t *testing.T) {
	c := mustChunker(t, 4, 1)
	text := "abcdefghij"
	chunks := c.ChunkDocument(models.Document{ID: "d", Text: text})
	want := []string{"abcd", "defg", "ghij"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, w := range want {
		if chunks[i].Text != w {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i].Text, w)
		}
	}
	checkChunks(t, text, chunks, 4, 1)
}

func TestChunker_zeroOverlap(t *testing.T) {
	c := mustChunker(t, 5, 0)
	text := "one two three four five"
	chunks := c.ChunkDocument(models.Document{ID: "d", Text: text})
	checkChunks(t, text, chunks, 5, 0)
}

func TestChunker_multibyteOffsets(t *testing.T) {
	c := mustChunker(t, 6, 2)
	text := "héllo wörld ünïcode çhunks"
	chunks := c.ChunkDocument(models.Document{ID: "d", Text: text})
	for _, ch := range chunks {
		if !utf8.ValidString(ch.Text) {
			t.Fatalf("chunk split a multi-byte character: %q", ch.Text)
		}
	}
	checkChunks(t, text, chunks, 6, 2)
}

func TestChunker_properties(t *testing.T) {
	alphabet := []string{"a", "b", "c", "é", " ", " ", ".", ". ", "\n", "\n\n", "word", "日本"}
	rng := rand.New(rand.NewSource(42))
	configs := [][2]int{{1, 0}, {2, 1}, {5, 0}, {5, 4}, {16, 3}, {40, 10}, {100, 20}}
	for trial := 0; trial < 200; trial++ {
		var b strings.Builder
		n := rng.Intn(300)
		for i := 0; i < n; i++ {
			b.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		text := b.String()
		cfg := configs[trial%len(configs)]
		c := mustChunker(t, cfg[0], cfg[1])
		chunks := c.ChunkDocument(models.Document{ID: "doc", Text: text})
		checkChunks(t, text, chunks, cfg[0], cfg[1])
		if t.Failed() {
			t.Fatalf("failed for size=%d overlap=%d text=%q", cfg[0], cfg[1], text)
		}
	}
}

func TestChunker_deterministic(t *testing.T) {
	c := mustChunker(t, 20, 5)
	doc := models.Document{ID: "d", Text: strings.Repeat("The quick brown fox. Jumps over\nthe lazy dog.\n\n", 10)}
	a := c.ChunkDocument(doc)
	b := c.ChunkDocument(doc)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Text != b[i].Text || a[i].StartOffset != b[i].StartOffset {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunker_multipleDocumentsKeepPerDocumentSequence(t *testing.T) {
	c := mustChunker(t, 10, 2)
	docs := []models.Document{
		{ID: "a", Source: "a.txt", Text: "alpha beta gamma delta"},
		{ID: "b", Source: "b.txt", Text: "short", Metadata: map[string]string{"page": "3"}},
	}
	chunks := c.Chunk(docs)
	last := chunks[len(chunks)-1]
	if last.DocumentID != "b" || last.SequenceIndex != 0 || last.Page() != "3" {
		t.Errorf("unexpected last chunk %+v", last)
	}
	if chunks[0].DocumentID != "a" || chunks[0].SequenceIndex != 0 {
		t.Errorf("unexpected first chunk %+v", chunks[0])
	}
}

func TestChunker_customSeparators(t *testing.T) {
	c := mustChunker(t, 8, 0, WithSeparators([]string{"|"}))
	chunks := c.ChunkDocument(models.Document{ID: "d", Text: "abc|def|ghijkl"})
	if chunks[0].Text != "abc|def|" {
		t.Errorf("chunk 0 = %q", chunks[0].Text)
	}
}

func TestPreprocess(t *testing.T) {
	got := Preprocess("a\r\nb\rc\x00d\te")
	if got != "a\nb\ncd\te" {
		t.Errorf("Preprocess = %q", got)
	}
	if !utf8.ValidString(Preprocess("bad \xff byte")) {
		t.Error("Preprocess should produce valid UTF-8")
	}
	if !IsBlank(" \n\t ") || IsBlank(" x ") {
		t.Error("IsBlank mismatch")
	}
}
