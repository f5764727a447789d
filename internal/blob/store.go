// Package blob persists synthesized audio bytes on disk, addressed by
// the owning segment's content hash.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	// ErrNotFound is returned when no blob exists for a key.
	ErrNotFound = errors.New("blob not found")

	// ErrCorrupted is returned when a stored blob cannot be decompressed.
	ErrCorrupted = errors.New("blob corrupted")
)

// Store is a content-addressed blob store. Audio bytes are compressed
// with zstd and written under <base>/<key[:2]>/<key>.zst so a directory
// never accumulates every blob.
type Store struct {
	basePath string

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.RWMutex
	stats Stats
}

// Stats holds blob store metrics.
type Stats struct {
	Puts           int64
	Gets           int64
	Misses         int64
	BytesWritten   int64 // compressed
	BytesOriginal  int64 // uncompressed
}

// NewStore creates a blob store rooted at basePath, creating the
// directory if needed. compressionLevel follows zstd levels 1-19;
// level 3 is a good default for audio payloads.
func NewStore(basePath string, compressionLevel int) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{
		basePath: basePath,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

// Put writes data under key and returns the path of the stored file.
// Writing the same key twice overwrites; the content hash guarantees
// the bytes are equivalent.
func (s *Store) Put(key string, data []byte) (string, error) {
	if len(key) < 2 {
		return "", fmt.Errorf("blob key too short: %q", key)
	}

	dir := filepath.Join(s.basePath, key[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create blob shard: %w", err)
	}

	compressed := s.encoder.EncodeAll(data, nil)
	path := filepath.Join(dir, key+".zst")

	// Write to a temp file first so readers never observe partial blobs.
	tmp, err := os.CreateTemp(dir, key+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create blob temp file: %w", err)
	}
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("commit blob: %w", err)
	}

	s.mu.Lock()
	s.stats.Puts++
	s.stats.BytesWritten += int64(len(compressed))
	s.stats.BytesOriginal += int64(len(data))
	s.mu.Unlock()

	return path, nil
}

// Get reads and decompresses the blob stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		s.mu.Lock()
		s.stats.Misses++
		s.mu.Unlock()
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}

	decompressed, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, key, err)
	}

	s.mu.Lock()
	s.stats.Gets++
	s.mu.Unlock()

	return decompressed, nil
}

// Has reports whether a blob exists for key.
func (s *Store) Has(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Path returns the on-disk location a blob for key would occupy,
// whether or not it exists yet.
func (s *Store) Path(key string) string {
	return s.path(key)
}

// Clear removes every stored blob.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return fmt.Errorf("read blob directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.basePath, entry.Name())); err != nil {
			return fmt.Errorf("clear blob shard %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Stats returns a snapshot of blob store metrics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Close releases the compressor resources.
func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return nil
}

func (s *Store) path(key string) string {
	if len(key) < 2 {
		return filepath.Join(s.basePath, key+".zst")
	}
	return filepath.Join(s.basePath, key[:2], key+".zst")
}
