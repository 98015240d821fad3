package fs

import (
	"path/filepath"
	"slices"

	"go.trai.ch/zerr"
)

// Resolver expands glob patterns relative to a root directory.
type Resolver struct {
	root string
}

// NewResolver creates a new Resolver rooted at root.
func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// Path joins a target id onto the root.
func (r *Resolver) Path(id string) string {
	if filepath.IsAbs(id) || r.root == "" {
		return id
	}
	return filepath.Join(r.root, id)
}

// Matches returns the sorted, deduplicated paths matching the patterns.
// A pattern that matches nothing contributes nothing.
func (r *Resolver) Matches(patterns ...string) ([]string, error) {
	var result []string
	for _, pattern := range patterns {
		path := r.Path(pattern)
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "path", path)
		}
		result = append(result, matches...)
	}
	slices.Sort(result)
	return slices.Compact(result), nil
}
