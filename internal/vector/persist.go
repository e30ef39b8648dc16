package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/docgenius/internal/models"
	"github.com/hyperjump/docgenius/internal/storage"
)

const (
	// VectorsFile holds the raw embeddings in position order.
	VectorsFile = "vectors.bin"
	// ChunksFile is the SQLite chunk store.
	ChunksFile = "chunks.db"

	formatVersion uint32 = 1
	headerSize           = 16
)

var vectorsMagic = [4]byte{'D', 'G', 'V', 'I'}

// ErrNotPersisted is returned by Load when dir holds no index.
var ErrNotPersisted = errors.New("no persisted index")

type vectorsHeader struct {
	Magic      [4]byte
	Version    uint32
	Dimensions uint32
	Count      uint32
}

// Exists reports whether dir contains a persisted index.
func Exists(dir string) bool {
	return storage.FileExists(filepath.Join(dir, VectorsFile)) && storage.FileExists(filepath.Join(dir, ChunksFile))
}

// Save writes idx into dir. Both files are written beside their final names and renamed into place.
// Dimensions, IndexType and Chunks of meta are taken from idx.
func Save(ctx context.Context, dir string, idx Index, meta storage.IndexMeta) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	entries := idx.Entries()
	meta.Dimensions = idx.Dimensions()
	meta.IndexType = string(idx.Type())
	meta.Chunks = len(entries)

	vecPath := filepath.Join(dir, VectorsFile)
	if err := writeVectors(vecPath+".tmp", idx.Dimensions(), entries); err != nil {
		_ = os.Remove(vecPath + ".tmp")
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(vecPath + ".tmp")
		return err
	}

	dbPath := filepath.Join(dir, ChunksFile)
	tmpDB := dbPath + ".tmp"
	removeSQLite(tmpDB)
	if err := writeChunks(ctx, tmpDB, meta, entries); err != nil {
		removeSQLite(tmpDB)
		_ = os.Remove(vecPath + ".tmp")
		return err
	}

	removeSQLite(dbPath)
	if err := os.Rename(tmpDB, dbPath); err != nil {
		return fmt.Errorf("install chunk store: %w", err)
	}
	if err := os.Rename(vecPath+".tmp", vecPath); err != nil {
		return fmt.Errorf("install vectors: %w", err)
	}
	return nil
}

func writeVectors(path string, dims int, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vectors file: %w", err)
	}
	w := bufio.NewWriter(f)
	hdr := vectorsHeader{Magic: vectorsMagic, Version: formatVersion, Dimensions: uint32(dims), Count: uint32(len(entries))}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range entries {
		if err := binary.Write(w, binary.LittleEndian, e.Vector); err != nil {
			_ = f.Close()
			return fmt.Errorf("write vector: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush vectors: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync vectors: %w", err)
	}
	return f.Close()
}

func writeChunks(ctx context.Context, path string, meta storage.IndexMeta, entries []Entry) error {
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return err
	}
	chunks := make([]models.Chunk, len(entries))
	for i, e := range entries {
		chunks[i] = e.Chunk
	}
	if err := store.ReplaceIndex(ctx, meta, chunks); err != nil {
		_ = store.Close()
		return fmt.Errorf("write chunks: %w", err)
	}
	return store.Close()
}

func removeSQLite(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
}

// ReadMeta returns the metadata of the index persisted in dir without loading vectors.
func ReadMeta(ctx context.Context, dir string) (*storage.IndexMeta, error) {
	if !Exists(dir) {
		return nil, ErrNotPersisted
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, ChunksFile))
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.GetMeta(ctx)
}

// Load reads the index persisted in dir and builds it with indexType.
// An empty indexType reuses the type recorded at save time.
func Load(ctx context.Context, dir string, indexType string) (Index, storage.IndexMeta, error) {
	if !Exists(dir) {
		return nil, storage.IndexMeta{}, fmt.Errorf("%w in %s", ErrNotPersisted, dir)
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, ChunksFile))
	if err != nil {
		return nil, storage.IndexMeta{}, err
	}
	defer store.Close()

	meta, err := store.GetMeta(ctx)
	if err != nil {
		return nil, storage.IndexMeta{}, fmt.Errorf("read index metadata: %w", err)
	}
	chunks, err := store.LoadChunks(ctx)
	if err != nil {
		return nil, storage.IndexMeta{}, fmt.Errorf("read chunks: %w", err)
	}
	vectors, dims, err := readVectors(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, storage.IndexMeta{}, err
	}
	if len(vectors) != len(chunks) {
		return nil, storage.IndexMeta{}, fmt.Errorf("corrupt index: %d vectors but %d chunks", len(vectors), len(chunks))
	}
	if meta.Dimensions != dims {
		return nil, storage.IndexMeta{}, fmt.Errorf("corrupt index: vectors have %d dimensions, metadata records %d", dims, meta.Dimensions)
	}

	entries := make([]Entry, len(chunks))
	for i := range chunks {
		entries[i] = Entry{Vector: vectors[i], Chunk: chunks[i]}
	}
	if indexType == "" {
		indexType = meta.IndexType
	}
	idx, err := NewIndex(indexType, entries)
	if err != nil {
		return nil, storage.IndexMeta{}, err
	}
	return idx, *meta, nil
}

func readVectors(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open vectors file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	r := bufio.NewReader(f)
	var hdr vectorsHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	if hdr.Magic != vectorsMagic {
		return nil, 0, fmt.Errorf("not a vectors file: %s", path)
	}
	if hdr.Version != formatVersion {
		return nil, 0, fmt.Errorf("unsupported vectors format version %d", hdr.Version)
	}
	want := int64(headerSize) + int64(hdr.Count)*int64(hdr.Dimensions)*4
	if info.Size() != want {
		return nil, 0, fmt.Errorf("corrupt vectors file: size %d, expected %d", info.Size(), want)
	}
	vectors := make([][]float32, hdr.Count)
	for i := range vectors {
		vec := make([]float32, hdr.Dimensions)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, 0, fmt.Errorf("truncated vectors file: %w", err)
			}
			return nil, 0, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, int(hdr.Dimensions), nil
}
