package conn

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileCacheGetReusesHandle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fc := NewFileCache(2)
	defer fc.Close()

	f1, err := fc.Get(path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	f2, err := fc.Get(path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if f1 != f2 {
		t.Fatalf("expected cached handle to be reused")
	}
}

func TestFileCacheEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 3; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".txt")
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		paths = append(paths, p)
	}

	fc := NewFileCache(2)
	defer fc.Close()
	for _, p := range paths {
		if _, err := fc.Get(p); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if fc.lruList.Len() != 2 {
		t.Fatalf("expected cache capped at 2 entries, got %d", fc.lruList.Len())
	}
	if _, ok := fc.cache[paths[0]]; ok {
		t.Fatalf("expected oldest entry evicted")
	}
}
