// Package fs provides file system target stores.
package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
	"time"
)

// Walker provides file walking functionality.
type Walker struct {
	ignores []string
}

// NewWalker creates a new Walker that skips entries matching ignores.
func NewWalker(ignores ...string) *Walker {
	return &Walker{ignores: ignores}
}

// WalkFiles yields all files below root, skipping VCS metadata and ignored entries.
// Yielded paths include root.
func (w *Walker) WalkFiles(root string) iter.Seq2[string, fs.FileInfo] {
	return func(yield func(string, fs.FileInfo) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if skip, action := w.shouldSkip(d); skip {
				return action
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !yield(path, info) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// NewestMtime returns the latest modification time of any file below root,
// or the directory's own mtime when it holds no files.
func (w *Walker) NewestMtime(root string, dirMtime time.Time) time.Time {
	newest := dirMtime
	found := false
	for _, info := range w.WalkFiles(root) {
		if !found || info.ModTime().After(newest) {
			newest = info.ModTime()
			found = true
		}
	}
	return newest
}

// shouldSkip reports whether an entry is excluded and the walk action to return.
func (w *Walker) shouldSkip(d fs.DirEntry) (bool, error) {
	name := d.Name()

	if d.IsDir() && (name == ".git" || name == ".jj") {
		return true, filepath.SkipDir
	}

	for _, ignore := range w.ignores {
		if matched, _ := filepath.Match(ignore, name); matched {
			if d.IsDir() {
				return true, filepath.SkipDir
			}
			return true, nil
		}
	}
	return false, nil
}
