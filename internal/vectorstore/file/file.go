package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"askdocs/internal/domain"
	"askdocs/internal/vectorstore"
)

const (
	VectorsFile  = "vectors.bin"
	MetadataFile = "metadata.json"
	// CurrentFile names the generation directory holding the live snapshot.
	CurrentFile = "CURRENT"

	generationPrefix = "snapshot-"
)

// renameFile is swapped in tests to simulate a failing replace.
var renameFile = os.Rename

// Store keeps each snapshot in its own generation directory
// (snapshot-000001, snapshot-000002, ...) holding the binary vector list
// and the ordered metadata list as JSON. The CURRENT file names the live
// generation; replacing it with one rename publishes both files at once.
// Superseded generations are removed after a successful publish.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on the
// first Write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Name returns the identifier of this store implementation.
func (s *Store) Name() string { return "file" }

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

// Write stores snap as a new generation and then points CURRENT at it. Until
// that last rename succeeds, readers keep seeing the previous snapshot.
func (s *Store) Write(ctx context.Context, snap *vectorstore.Snapshot) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	meta := snap.Metadata
	if meta == nil {
		meta = []domain.Metadata{}
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	prev, err := s.current()
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	gen := generationName(generationNumber(prev) + 1)
	genDir := filepath.Join(s.dir, gen)
	// leftovers of an attempt that died before publishing
	if err := os.RemoveAll(genDir); err != nil {
		return err
	}
	if err := os.Mkdir(genDir, 0o755); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(genDir)
		}
	}()

	if err = writeAtomic(filepath.Join(genDir, VectorsFile), vectorstore.EncodeVectors(snap.Dim, snap.Vectors)); err != nil {
		return err
	}
	if err = writeAtomic(filepath.Join(genDir, MetadataFile), metaData); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = writeAtomic(filepath.Join(s.dir, CurrentFile), []byte(gen+"\n")); err != nil {
		return err
	}
	s.prune(gen)
	return nil
}

// Read loads the generation named by CURRENT. A pair whose counts disagree
// is reported as domain.ErrCorruptSnapshot.
func (s *Store) Read(ctx context.Context) (*vectorstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gen, err := s.current()
	if err != nil {
		return nil, err
	}
	genDir := filepath.Join(s.dir, gen)
	vecData, err := readFile(filepath.Join(genDir, VectorsFile))
	if err != nil {
		return nil, err
	}
	metaData, err := readFile(filepath.Join(genDir, MetadataFile))
	if err != nil {
		return nil, err
	}
	dim, vectors, err := vectorstore.DecodeVectors(vecData)
	if err != nil {
		return nil, err
	}
	var meta []domain.Metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", domain.ErrCorruptSnapshot, err)
	}
	if len(meta) != len(vectors) {
		return nil, fmt.Errorf("%w: %d vectors, %d metadata entries", domain.ErrCorruptSnapshot, len(vectors), len(meta))
	}
	return &vectorstore.Snapshot{Dim: dim, Vectors: vectors, Metadata: meta}, nil
}

// current returns the live generation directory name.
func (s *Store) current() (string, error) {
	data, err := readFile(filepath.Join(s.dir, CurrentFile))
	if err != nil {
		return "", err
	}
	gen := strings.TrimSpace(string(data))
	if generationNumber(gen) == 0 {
		return "", fmt.Errorf("%w: bad %s entry %q", domain.ErrCorruptSnapshot, CurrentFile, gen)
	}
	return gen, nil
}

// prune removes every generation other than keep. Failures only leave
// garbage behind.
func (s *Store) prune(keep string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && e.Name() != keep && generationNumber(e.Name()) > 0 {
			_ = os.RemoveAll(filepath.Join(s.dir, e.Name()))
		}
	}
}

func generationName(n uint64) string {
	return fmt.Sprintf("%s%06d", generationPrefix, n)
}

// generationNumber parses a generation directory name, 0 when it is not one.
func generationNumber(name string) uint64 {
	if !strings.HasPrefix(name, generationPrefix) {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(name, generationPrefix), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}

func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return renameFile(tmp.Name(), path)
}

var _ vectorstore.SnapshotStore = (*Store)(nil)
