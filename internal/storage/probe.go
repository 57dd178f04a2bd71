// SPDX-License-Identifier: MIT

package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GlobExists reports whether the screen directory holds at least one file
// with the given basename and any extension, e.g. image.* or thumbnail.*.
func GlobExists(dir, base string) bool {
	matches, err := filepath.Glob(filepath.Join(dir, base+".*"))
	return err == nil && len(matches) > 0
}

// CountEntries counts directory entries; a missing directory counts as zero,
// matching a screen whose history never produced version files.
func CountEntries(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: read dir %s: %w", dir, err)
	}
	return len(entries), nil
}

// DirNonEmpty reports whether path is an existing directory with at least one
// entry. Used for the docs-root conflict check before a run.
func DirNonEmpty(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return false, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, fmt.Errorf("storage: read dir %s: %w", path, err)
	}
	return len(entries) > 0, nil
}

// ProjectIDs lists the project directories present in the archive, in
// lexical order. Missing projects/ yields an empty slice.
func (l Layout) ProjectIDs() ([]string, error) {
	entries, err := os.ReadDir(l.ProjectsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read projects dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
