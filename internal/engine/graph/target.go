package graph

import (
	"time"

	"go.trai.ch/builder/internal/core/domain"
)

// Target is an artifact node of the build graph.
// Its existence and mtime are cached until invalidated or refreshed.
type Target struct {
	id       string
	template domain.InternedString
	backend  string
	ctx      domain.BuildContext

	mtime  time.Time
	exists bool
	cached bool

	expandedUp   bool
	expandedDown bool
}

func newTarget(spec domain.TargetSpec, exp domain.Expansion) *Target {
	return &Target{
		id:       exp.ID,
		template: domain.NewInternedString(spec.ID()),
		backend:  spec.BackendName(),
		ctx:      exp.Context,
	}
}

// ID returns the instance id of the target.
func (t *Target) ID() string { return t.id }

// TemplateID returns the id of the target spec the target was expanded from.
func (t *Target) TemplateID() string { return t.template.String() }

// Backend returns the name of the store that resolves the target.
func (t *Target) Backend() string { return t.backend }

// Context returns the build context the target was expanded with.
func (t *Target) Context() domain.BuildContext { return t.ctx }

// Ref returns the store reference of the target.
func (t *Target) Ref() domain.TargetRef {
	return domain.TargetRef{ID: t.id, Backend: t.backend}
}

// Cached reports whether the existence and mtime are known.
func (t *Target) Cached() bool { return t.cached }

// Exists reports whether the target exists, resolving it through g if not cached.
func (t *Target) Exists(g *BuildGraph) bool {
	_, ok := t.Mtime(g)
	return ok
}

// Mtime returns the modification time of the target and whether it exists,
// resolving it through g if not cached.
func (t *Target) Mtime(g *BuildGraph) (time.Time, bool) {
	if !t.cached {
		g.fetchTarget(t)
	}
	return t.mtime, t.exists
}

// SetMtime caches the state of the target.
func (t *Target) SetMtime(mtime time.Time, exists bool) {
	if !exists {
		mtime = time.Time{}
	}
	t.mtime = mtime
	t.exists = exists
	t.cached = true
}

// Invalidate drops the cached state.
func (t *Target) Invalidate() {
	t.cached = false
}

func (t *Target) expanded(direction domain.Direction) bool {
	if direction == domain.Up {
		return t.expandedUp
	}
	return t.expandedDown
}

func (t *Target) setExpanded(direction domain.Direction) {
	if direction == domain.Up {
		t.expandedUp = true
		return
	}
	t.expandedDown = true
}
