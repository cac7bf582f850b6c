package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "state")
	if err := EnsureLayout(root); err != nil {
		t.Fatalf("ensure layout failed: %v", err)
	}
	for _, d := range []string{SavesRoot(root), BackupsRoot(root), CacheRoot(root)} {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", d, err)
		}
	}
	if filepath.Dir(RefsCachePath(root)) != CacheRoot(root) {
		t.Error("refs cache should live under the cache root")
	}
}
