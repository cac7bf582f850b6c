// Package store owns the on-disk state layout under the generator's state
// root: saved project configurations, backups, the refs cache, and the
// audit log.
package store

import (
	"os"
	"path/filepath"
)

func SavesRoot(root string) string {
	return filepath.Join(root, "saves")
}

func BackupsRoot(root string) string {
	return filepath.Join(root, "backups")
}

func CacheRoot(root string) string {
	return filepath.Join(root, "cache")
}

func RefsCachePath(root string) string {
	return filepath.Join(CacheRoot(root), "refs.json")
}

func AuditPath(root string) string {
	return filepath.Join(root, "audit.log")
}

// EnsureLayout creates the state directory tree.
func EnsureLayout(root string) error {
	for _, d := range []string{root, SavesRoot(root), BackupsRoot(root), CacheRoot(root)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
