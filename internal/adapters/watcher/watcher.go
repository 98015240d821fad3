// Package watcher reports file changes below a root directory so that the
// targets they back can be refreshed.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultDebounceWindow is the default time window for debouncing file events.
const DefaultDebounceWindow = 200 * time.Millisecond

// skipDirectories are directories that are never watched.
var skipDirectories = map[string]bool{
	".git":         true,
	".jj":          true,
	"node_modules": true,
}

// Watcher watches a directory tree with fsnotify.
type Watcher struct {
	root   string
	window time.Duration
	logger ports.Logger
}

// New creates a Watcher for the tree below root.
func New(root string, logger ports.Logger) *Watcher {
	return &Watcher{root: root, window: DefaultDebounceWindow, logger: logger}
}

// WithWindow returns a copy of the watcher using the given debounce window.
func (w *Watcher) WithWindow(window time.Duration) *Watcher {
	c := *w
	c.window = window
	return &c
}

// Watch calls onChange with the root relative, slash separated paths that
// were written, created, removed or renamed, batched per debounce window. It
// blocks until ctx is cancelled.
//
//nolint:cyclop // event loop
func (w *Watcher) Watch(ctx context.Context, onChange func(paths []string)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return zerr.Wrap(err, "failed to create file watcher")
	}
	defer func() {
		_ = fsw.Close()
	}()

	for dir := range w.directories(w.root) {
		if err := fsw.Add(dir); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to watch directory"), "dir", dir)
		}
	}

	debouncer := NewDebouncer(w.window, onChange)
	defer debouncer.Stop()
	w.logger.Debug(fmt.Sprintf("watching %s", w.root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			rel, ok := w.relative(event.Name)
			if !ok {
				continue
			}
			debouncer.Add(rel)

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					for dir := range w.directories(event.Name) {
						_ = fsw.Add(dir)
					}
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(fmt.Sprintf("watcher: file system error: %v", err))
		}
	}
}

// relative returns path relative to the root, or false if it lies in a
// skipped directory or outside the root.
func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for part := range strings.SplitSeq(rel, "/") {
		if skipDirectories[part] {
			return "", false
		}
	}
	return rel, true
}

// directories yields root and every directory below it that is not skipped.
func (w *Watcher) directories(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // unreadable directories are not watched
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && skipDirectories[d.Name()] {
				return fs.SkipDir
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}
