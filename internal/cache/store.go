package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Kind identifies one of the two independent entries stored per title.
type Kind string

const (
	KindLyrics Kind = "lyrics"
	KindCover  Kind = "cover"
)

// Ext returns the file extension used for this kind
func (k Kind) Ext() string {
	if k == KindCover {
		return ".jpg"
	}
	return ".lrc"
}

// ErrNotFound is returned by a Store when no entry exists for a key.
var ErrNotFound = errors.New("cache: entry not found")

// Store is a keyed blob store backing the fallback cache.
type Store interface {
	Get(ctx context.Context, key string, kind Kind) ([]byte, error)
	Put(ctx context.Context, key string, kind Kind, data []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// FileStore keeps entries as <key>.lrc and <key>.jpg in one directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Most filesystems cap a file name at 255 bytes. Keys are limited in
// runes, so long titles in multi-byte scripts need a byte cap as well.
const maxFileNameBytes = 240

// Path returns the file that holds the given entry
func (s *FileStore) Path(key string, kind Kind) string {
	return filepath.Join(s.dir, fileName(key)+kind.Ext())
}

// fileName cuts key to fit maxFileNameBytes on a rune boundary. A cut key
// gets a hash of the full key appended so titles sharing a long prefix
// stay apart.
func fileName(key string) string {
	if len(key) <= maxFileNameBytes {
		return key
	}

	h := fnv.New32a()
	h.Write([]byte(key))
	suffix := fmt.Sprintf("~%08x", h.Sum32())

	cut := maxFileNameBytes - len(suffix)
	for cut > 0 && !utf8.RuneStart(key[cut]) {
		cut--
	}
	return key[:cut] + suffix
}

// Get reads an entry. Missing and empty files both report ErrNotFound.
func (s *FileStore) Get(_ context.Context, key string, kind Kind) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key, kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

// Put writes an entry atomically, replacing any previous one.
func (s *FileStore) Put(_ context.Context, key string, kind Kind, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(key, kind)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move cache entry into place: %w", err)
	}
	return nil
}

// Ping checks the directory is still there
func (s *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
