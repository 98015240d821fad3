package app

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"go.trai.ch/builder/internal/adapters/fs" //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/engine/execution"
	"go.trai.ch/builder/internal/engine/graph"
)

// refreshChanged re-evaluates the targets backed by the changed files.
func (a *App) refreshChanged(m *execution.Manager, paths []string) {
	var ids []string
	m.View(func(g *graph.BuildGraph) {
		ids = changedTargets(g, paths)
	})
	if len(ids) == 0 {
		return
	}
	a.logger.Debug(fmt.Sprintf("%d files changed, updating %d targets", len(paths), len(ids)))
	if err := m.ExternalUpdateTargets(ids); err != nil {
		a.logger.Error(err)
	}
}

// changedTargets returns the local targets at or above a changed path and
// the glob targets matching one.
func changedTargets(g *graph.BuildGraph, paths []string) []string {
	var ids []string
	for id, t := range g.Targets() {
		name := path.Clean(filepath.ToSlash(id))
		for _, p := range paths {
			if affects(t.Backend(), name, p) {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

func affects(backend, name, changed string) bool {
	switch backend {
	case fs.LocalBackend:
		return changed == name || strings.HasPrefix(changed, name+"/")
	case fs.GlobBackend:
		ok, _ := path.Match(name, changed)
		return ok
	default:
		return false
	}
}
