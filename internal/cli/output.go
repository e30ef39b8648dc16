// Package cli formats docgenius results for the terminal or as JSON.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/docgenius/internal/indexer"
	"github.com/hyperjump/docgenius/internal/models"
	"github.com/hyperjump/docgenius/internal/rag"
	"github.com/hyperjump/docgenius/internal/storage"
	"github.com/hyperjump/docgenius/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" and "json"; "" means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes the model's answer followed by the sources it was given.
func WriteAnswer(w io.Writer, ans *rag.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintln(w, strings.TrimSpace(ans.Text))
	if len(ans.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for _, src := range ans.Sources {
			fmt.Fprintf(w, "  - %s\n", src)
		}
	}
	return nil
}

type retrievalOutput struct {
	Query   string                 `json:"query"`
	Results models.RetrievalResult `json:"results"`
}

// WriteRetrieval writes ranked chunks for query.
func WriteRetrieval(w io.Writer, query string, res models.RetrievalResult, format OutputFormat) error {
	if format == OutputJSON {
		if res == nil {
			res = models.RetrievalResult{}
		}
		return writeJSON(w, retrievalOutput{Query: query, Results: res})
	}
	if len(res) == 0 {
		fmt.Fprintf(w, "No results for %q\n", query)
		return nil
	}
	fmt.Fprintf(w, "\n%d results for %q\n\n", len(res), query)
	for i, sc := range res {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Position: %d\n", i+1, sc.Score, sc.Position)
		fmt.Fprintf(w, "Source: %s", sc.Chunk.SourceID)
		if page := sc.Chunk.Page(); page != "" {
			fmt.Fprintf(w, " (page %s)", page)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s\n", utils.Truncate(TruncateWords(sc.Chunk.Text, 60), 400))
	}
	fmt.Fprintln(w, rule)
	return nil
}

// WriteBuildReport writes the outcome of an index build, including isolated source failures.
func WriteBuildReport(w io.Writer, report indexer.BuildReport, format OutputFormat) error {
	if format == OutputJSON {
		type failure struct {
			Source string `json:"source"`
			Error  string `json:"error"`
		}
		failures := make([]failure, 0, len(report.Ingest.Failures))
		for _, f := range report.Ingest.Failures {
			failures = append(failures, failure{Source: f.Source, Error: f.Err.Error()})
		}
		return writeJSON(w, map[string]any{
			"documents":   report.Ingest.Documents,
			"files":       report.Ingest.Files,
			"urls":        report.Ingest.URLs,
			"skipped":     report.Ingest.Skipped,
			"blank":       report.Ingest.Blank,
			"chunks":      report.Chunks,
			"duration_ms": report.Duration.Milliseconds(),
			"failures":    failures,
		})
	}
	fmt.Fprintf(w, "Indexed %d chunks from %d documents in %s\n",
		report.Chunks, report.Ingest.Documents, report.Duration.Round(time.Millisecond))
	if report.Ingest.Skipped > 0 || report.Ingest.Blank > 0 {
		fmt.Fprintf(w, "Skipped %d unsupported files and %d blank documents\n", report.Ingest.Skipped, report.Ingest.Blank)
	}
	if n := report.Ingest.FailureCount(); n > 0 {
		fmt.Fprintf(w, "%d sources failed:\n", n)
		for _, f := range report.Ingest.Failures {
			fmt.Fprintf(w, "  - %s: %v\n", f.Source, f.Err)
		}
	}
	return nil
}

// Status describes a persisted index.
type Status struct {
	IndexDir       string                  `json:"index_dir"`
	Built          bool                    `json:"built"`
	Meta           *storage.IndexMeta      `json:"meta,omitempty"`
	Sources        []storage.SourceSummary `json:"sources,omitempty"`
	DiskUsageBytes int64                   `json:"disk_usage_bytes"`
	FAISSAvailable bool                    `json:"faiss_available"`
}

// WriteStatus writes index status.
func WriteStatus(w io.Writer, st Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Index directory: %s\n", st.IndexDir)
	if !st.Built || st.Meta == nil {
		fmt.Fprintln(w, "No index built yet. Run: docgenius index")
		return nil
	}
	m := st.Meta
	fmt.Fprintf(w, "Built:           %s\n", m.BuiltAt.Local().Format(time.RFC1123))
	fmt.Fprintf(w, "Embedder:        %s (%d dims)\n", m.Embedder, m.Dimensions)
	fmt.Fprintf(w, "Index type:      %s\n", m.IndexType)
	fmt.Fprintf(w, "Chunking:        size %d, overlap %d\n", m.ChunkSize, m.ChunkOverlap)
	fmt.Fprintf(w, "Documents:       %d (%d failed sources)\n", m.Documents, m.Failures)
	fmt.Fprintf(w, "Chunks:          %d\n", m.Chunks)
	fmt.Fprintf(w, "Disk usage:      %s\n", formatBytes(st.DiskUsageBytes))
	if len(st.Sources) > 0 {
		fmt.Fprintln(w, "Sources:")
		for _, s := range st.Sources {
			fmt.Fprintf(w, "  %5d  %s\n", s.Chunks, s.SourceID)
		}
	}
	return nil
}

// WriteTranscript writes the conversation so far.
func WriteTranscript(w io.Writer, turns []models.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "(no messages yet)")
		return
	}
	for _, t := range turns {
		label := "You"
		if t.Role == models.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", t.At.Local().Format("15:04:05"), label, t.Text)
	}
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
