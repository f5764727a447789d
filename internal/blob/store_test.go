package blob

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	key := "ab54d286bccf3f2e2f4b9a7be2efdb2e2f4b9a7b"
	data := bytes.Repeat([]byte{0x01, 0x02, 0x7f, 0x80}, 4096)

	path, err := s.Put(key, data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !strings.HasSuffix(path, key+".zst") {
		t.Errorf("Unexpected blob path: %s", path)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestStore_Sharding(t *testing.T) {
	s := newTestStore(t)

	key := "cdef0123456789"
	path, err := s.Put(key, []byte("audio"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if filepath.Base(filepath.Dir(path)) != "cd" {
		t.Errorf("Expected shard directory 'cd', got path %s", path)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("ffff000011112222")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_GetCorrupted(t *testing.T) {
	s := newTestStore(t)

	key := "aa00bb11cc22"
	if _, err := s.Put(key, []byte("audio")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Clobber the file with garbage that is not a zstd frame.
	if err := os.WriteFile(s.Path(key), []byte("not zstd"), 0o644); err != nil {
		t.Fatalf("corrupt blob: %v", err)
	}

	if _, err := s.Get(key); !errors.Is(err, ErrCorrupted) {
		t.Errorf("Expected ErrCorrupted, got %v", err)
	}
}

func TestStore_Has(t *testing.T) {
	s := newTestStore(t)

	key := "1234abcd"
	if s.Has(key) {
		t.Error("Has reported a blob that was never stored")
	}
	if _, err := s.Put(key, []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !s.Has(key) {
		t.Error("Has missed a stored blob")
	}
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)

	for _, key := range []string{"aaaa", "bbbb", "cccc"} {
		if _, err := s.Put(key, []byte("x")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	for _, key := range []string{"aaaa", "bbbb", "cccc"} {
		if s.Has(key) {
			t.Errorf("Blob %s survived Clear", key)
		}
	}
}

func TestStore_ShortKeyRejected(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Put("a", []byte("x")); err == nil {
		t.Error("Expected error for single-character key")
	}
}
