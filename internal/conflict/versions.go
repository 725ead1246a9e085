package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// conflictInfix marks the sibling files a file-sync service leaves behind
// when two devices changed a document concurrently, e.g.
// groceries.sync-conflict-20260826-101502.listie next to groceries.listie.
const conflictInfix = ".sync-conflict-"

// Version is one on-disk copy of a document: the current file or one of its
// conflict siblings.
type Version struct {
	Path    string
	ModTime time.Time
}

// Versions enumerates the on-disk copies of a document. The default
// implementation reads the directory; tests substitute their own.
type Versions interface {
	// Current returns the version at the document's own path.
	Current(path string) (Version, error)
	// Conflicting returns the pending conflict siblings, possibly none.
	Conflicting(path string) ([]Version, error)
	// Remove marks a conflict version resolved by deleting it.
	Remove(v Version) error
}

// DirVersions discovers versions by directory convention.
type DirVersions struct{}

// Current implements Versions.
func (DirVersions) Current(path string) (Version, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Version{}, fmt.Errorf("stat current version: %w", err)
	}
	return Version{Path: path, ModTime: info.ModTime()}, nil
}

// Conflicting implements Versions. Siblings are returned oldest first so
// repeated resolves process versions in a stable order.
func (DirVersions) Conflicting(path string) ([]Version, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read document directory: %w", err)
	}

	stem, ext := splitDocPath(filepath.Base(path))
	var out []Version
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, stem+conflictInfix) || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Version{Path: filepath.Join(dir, name), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.Before(out[j].ModTime)
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// Remove implements Versions.
func (DirVersions) Remove(v Version) error {
	if err := os.Remove(v.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove conflict version: %w", err)
	}
	return nil
}

// IsConflictSibling reports whether path names a conflict version rather
// than a document.
func IsConflictSibling(path string) bool {
	return strings.Contains(filepath.Base(path), conflictInfix)
}

// BaseFor maps a conflict sibling path back to its document path. Paths that
// are not conflict siblings are returned unchanged.
func BaseFor(path string) string {
	base := filepath.Base(path)
	idx := strings.Index(base, conflictInfix)
	if idx < 0 {
		return path
	}
	_, ext := splitDocPath(base)
	return filepath.Join(filepath.Dir(path), base[:idx]+ext)
}

func splitDocPath(base string) (stem, ext string) {
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}
