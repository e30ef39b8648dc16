package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docgenius/internal/models"
)

// SQLiteStorage implements ChunkStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		source_id TEXT PRIMARY KEY,
		title TEXT,
		chunk_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		sequence_index INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source_id ON chunks(source_id);

	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// ReplaceIndex deletes the previous contents and writes chunks in position order, in one transaction.
func (s *SQLiteStorage) ReplaceIndex(ctx context.Context, meta IndexMeta, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"chunks", "sources", "index_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (position, id, source_id, document_id, sequence_index, start_offset, content, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	type sourceAgg struct {
		title  string
		chunks int
	}
	sources := make(map[string]*sourceAgg)
	var order []string
	for pos, ch := range chunks {
		metadataJSON, err := json.Marshal(ch.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, pos, ch.ID, ch.SourceID, ch.DocumentID,
			ch.SequenceIndex, ch.StartOffset, ch.Text, string(metadataJSON)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", pos, err)
		}
		agg, ok := sources[ch.SourceID]
		if !ok {
			agg = &sourceAgg{title: ch.Metadata["title"]}
			sources[ch.SourceID] = agg
			order = append(order, ch.SourceID)
		}
		agg.chunks++
	}

	for _, id := range order {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sources (source_id, title, chunk_count) VALUES (?, ?, ?)`,
			id, sources[id].title, sources[id].chunks); err != nil {
			return fmt.Errorf("failed to insert source: %w", err)
		}
	}

	meta.Chunks = len(chunks)
	for k, v := range metaToMap(meta) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
	}
	return tx.Commit()
}

// LoadChunks returns all chunks ordered by position.
func (s *SQLiteStorage) LoadChunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, id, source_id, document_id, sequence_index, start_offset, content, metadata
		 FROM chunks ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var pos int
		var metadataJSON sql.NullString
		if err := rows.Scan(&pos, &ch.ID, &ch.SourceID, &ch.DocumentID, &ch.SequenceIndex,
			&ch.StartOffset, &ch.Text, &metadataJSON); err != nil {
			return nil, err
		}
		if pos != len(chunks) {
			return nil, fmt.Errorf("chunk positions are not contiguous: expected %d, got %d", len(chunks), pos)
		}
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &ch.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// GetMeta returns the stored index metadata, or ErrNoMeta.
func (s *SQLiteStorage) GetMeta(ctx context.Context) (*IndexMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		m[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNoMeta
	}
	return metaFromMap(m)
}

// ListSources returns sources in the order they were first indexed.
func (s *SQLiteStorage) ListSources(ctx context.Context) ([]SourceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, COALESCE(title, ''), chunk_count FROM sources ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SourceSummary
	for rows.Next() {
		var src SourceSummary
		if err := rows.Scan(&src.SourceID, &src.Title, &src.Chunks); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// Stats returns source and chunk counts.
func (s *SQLiteStorage) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&st.Sources); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&st.Chunks); err != nil {
		return st, err
	}
	return st, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func metaToMap(m IndexMeta) map[string]string {
	return map[string]string{
		"embedder":      m.Embedder,
		"dimensions":    strconv.Itoa(m.Dimensions),
		"index_type":    m.IndexType,
		"chunk_size":    strconv.Itoa(m.ChunkSize),
		"chunk_overlap": strconv.Itoa(m.ChunkOverlap),
		"documents":     strconv.Itoa(m.Documents),
		"failures":      strconv.Itoa(m.Failures),
		"chunks":        strconv.Itoa(m.Chunks),
		"built_at":      m.BuiltAt.UTC().Format(time.RFC3339Nano),
	}
}

func metaFromMap(kv map[string]string) (*IndexMeta, error) {
	meta := &IndexMeta{
		Embedder:  kv["embedder"],
		IndexType: kv["index_type"],
	}
	var errs []error
	atoi := func(key string, dst *int) {
		v, ok := kv[key]
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
			return
		}
		*dst = n
	}
	atoi("dimensions", &meta.Dimensions)
	atoi("chunk_size", &meta.ChunkSize)
	atoi("chunk_overlap", &meta.ChunkOverlap)
	atoi("documents", &meta.Documents)
	atoi("failures", &meta.Failures)
	atoi("chunks", &meta.Chunks)
	if v, ok := kv["built_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid built_at %q: %w", v, err))
		}
		meta.BuiltAt = t
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return meta, nil
}
