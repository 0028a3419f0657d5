// Package storage persists lists of records as whole files. Every
// mutation rewrites the file in full — there is no incremental append
// and no transactional guarantee beyond the atomic rename. Records are
// encoded with msgpack for speed and small size.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// File is a whole-file persisted list of T. Load and Save are safe for
// concurrent use; callers own the read-modify-write cycle.
type File[T any] struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a store backed by path. Parent directories are
// created as needed. The file itself is created on first Save.
func NewFile[T any](path string) (*File[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &File[T]{path: path}, nil
}

// Path returns the backing file path.
func (f *File[T]) Path() string {
	return f.path
}

// Load reads the full record list. A missing file yields an empty list,
// not an error.
func (f *File[T]) Load() ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(f.path), err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []T
	if err := msgpack.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(f.path), err)
	}
	return records, nil
}

// Save rewrites the file with the full record list. The write goes to a
// temporary file first and is renamed into place, so a crash mid-write
// leaves the previous contents intact.
func (f *File[T]) Save(records []T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := msgpack.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(f.path), err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(f.path), err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(f.path), err)
	}
	return nil
}
