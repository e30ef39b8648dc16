// Package ingest loads documents from a local folder and from web pages.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/docgenius/internal/config"
	"github.com/hyperjump/docgenius/internal/extract"
	"github.com/hyperjump/docgenius/internal/fileid"
	"github.com/hyperjump/docgenius/internal/models"
)

// ErrIngestion is matched by every *IngestionError.
var ErrIngestion = errors.New("ingestion failed")

// IngestionError is a failure confined to one source; the rest of the batch is still loaded.
type IngestionError struct {
	Source string
	Err    error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Source, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIngestion) true.
func (e *IngestionError) Is(target error) bool { return target == ErrIngestion }

// Sources names what to load. Either field may be empty.
type Sources struct {
	Folder string   `json:"folder,omitempty"`
	URLs   []string `json:"urls,omitempty"`
}

// Empty reports whether no source is named.
func (s Sources) Empty() bool {
	return strings.TrimSpace(s.Folder) == "" && len(s.URLs) == 0
}

// Report summarizes one Load call.
type Report struct {
	Files     int               `json:"files"`
	URLs      int               `json:"urls"`
	Documents int               `json:"documents"`
	Skipped   int               `json:"skipped"`
	Blank     int               `json:"blank"`
	Failures  []*IngestionError `json:"-"`
}

// FailureCount returns the number of isolated failures.
func (r Report) FailureCount() int { return len(r.Failures) }

// Loader reads documents from folders and URLs.
type Loader struct {
	extractor    *extract.Extractor
	client       *http.Client
	maxPageBytes int64
	userAgent    string
	logger       *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient replaces the client used for URL fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithLogger sets a logger for per-source debug and failure output.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a Loader from ingest settings.
func NewLoader(cfg config.IngestConfig, opts ...Option) *Loader {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	l := &Loader{
		extractor:    extract.NewExtractor(cfg.Extensions...),
		client:       &http.Client{Timeout: timeout},
		maxPageBytes: cfg.MaxPageBytes,
		userAgent:    cfg.UserAgent,
		logger:       zap.NewNop(),
	}
	if l.maxPageBytes <= 0 {
		l.maxPageBytes = 5 << 20
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every supported file under src.Folder and every page in src.URLs.
// Unsupported file types are skipped silently, blank documents are dropped, and a failing
// source is recorded in the report. A missing folder or a cancelled context fails the call.
func (l *Loader) Load(ctx context.Context, src Sources) ([]models.Document, Report, error) {
	var (
		docs   []models.Document
		report Report
	)
	if folder := strings.TrimSpace(src.Folder); folder != "" {
		folderDocs, err := l.loadFolder(ctx, folder, &report)
		if err != nil {
			return nil, report, err
		}
		docs = append(docs, folderDocs...)
	}
	for _, raw := range src.URLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		report.URLs++
		doc, err := l.fetch(ctx, raw)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, report, ctxErr
			}
			l.fail(&report, raw, err)
			continue
		}
		docs = l.keep(docs, &report, doc)
	}
	report.Documents = len(docs)
	return docs, report, nil
}

func (l *Loader) loadFolder(ctx context.Context, folder string, report *Report) ([]models.Document, error) {
	absDir, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat source folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var docs []models.Document
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == absDir {
				return walkErr
			}
			l.fail(report, path, walkErr)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !l.extractor.Supports(path) {
			report.Skipped++
			return nil
		}
		// Resolve symlinks so only regular files are read
		finfo, statErr := os.Stat(path)
		if statErr != nil {
			l.fail(report, path, statErr)
			return nil
		}
		if !finfo.Mode().IsRegular() {
			report.Skipped++
			return nil
		}
		report.Files++
		pages, extErr := l.extractor.Extract(path)
		if extErr != nil {
			l.fail(report, path, extErr)
			return nil
		}
		l.logger.Debug("loaded file", zap.String("path", path), zap.Int("pages", len(pages)))
		for _, doc := range fileDocuments(path, pages) {
			docs = l.keep(docs, report, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func fileDocuments(path string, pages []extract.Page) []models.Document {
	docID := fileid.FileDocID(path)
	title := filepath.Base(path)
	docs := make([]models.Document, 0, len(pages))
	for _, p := range pages {
		doc := models.Document{
			ID:       docID,
			Source:   path,
			Title:    title,
			Text:     p.Text,
			Metadata: map[string]string{"source": path, "title": title},
		}
		if p.Number > 0 {
			doc.ID = fileid.PageDocID(docID, p.Number)
			doc.Metadata["page"] = strconv.Itoa(p.Number)
		}
		docs = append(docs, doc)
	}
	return docs
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (models.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.Document{}, err
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return models.Document{}, fmt.Errorf("unsupported URL scheme %q", req.URL.Scheme)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return models.Document{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Document{}, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if resp.ContentLength > l.maxPageBytes {
		return models.Document{}, fmt.Errorf("page too large: %d bytes", resp.ContentLength)
	}
	limited := &io.LimitedReader{R: resp.Body, N: l.maxPageBytes + 1}
	body, err := io.ReadAll(limited)
	if err != nil {
		return models.Document{}, err
	}
	if int64(len(body)) > l.maxPageBytes {
		return models.Document{}, fmt.Errorf("page too large: more than %d bytes", l.maxPageBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	var title, text string
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		title, text, err = extract.ExtractHTML(body)
		if err != nil {
			return models.Document{}, fmt.Errorf("parse HTML: %w", err)
		}
	case "text/plain", "text/markdown":
		pages, err := l.extractor.ExtractBytes(body, ".txt")
		if err != nil {
			return models.Document{}, err
		}
		text = pages[0].Text
	default:
		return models.Document{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
	if title == "" {
		title = extract.TitleFromText(text)
	}
	if title == "" {
		title = rawURL
	}
	l.logger.Debug("fetched page", zap.String("url", rawURL), zap.Int("bytes", len(body)))
	return models.Document{
		ID:       fileid.URLDocID(rawURL),
		Source:   rawURL,
		Title:    title,
		Text:     text,
		Metadata: map[string]string{"source": rawURL, "title": title},
	}, nil
}

func (l *Loader) keep(docs []models.Document, report *Report, doc models.Document) []models.Document {
	if strings.TrimSpace(doc.Text) == "" {
		report.Blank++
		return docs
	}
	return append(docs, doc)
}

func (l *Loader) fail(report *Report, source string, err error) {
	l.logger.Warn("source failed", zap.String("source", source), zap.Error(err))
	report.Failures = append(report.Failures, &IngestionError{Source: source, Err: err})
}
