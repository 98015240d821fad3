package graph

import (
	"time"

	"go.trai.ch/builder/internal/core/domain"
)

// Job is one instance of a JobDefinition in the build graph.
//
// Derived values (stale, buildable, should run, parents should run) are cached
// as TriState until Invalidate. Methods needing graph context take the owning
// BuildGraph explicitly.
type Job struct {
	id       string
	template domain.InternedString
	def      *domain.JobDefinition
	ctx      domain.BuildContext

	stale            domain.TriState
	buildable        domain.TriState
	shouldRun        domain.TriState
	parentsShouldRun domain.TriState

	Force     bool
	failed    bool
	Retries   int
	LastRun   time.Time
	IsRunning bool

	expandedUp   bool
	expandedDown bool
	resolving    bool
}

func newJob(def *domain.JobDefinition, exp domain.Expansion) *Job {
	return &Job{
		id:       exp.ID,
		template: domain.NewInternedString(def.ID),
		def:      def,
		ctx:      exp.Context,
	}
}

// ID returns the instance id of the job.
func (j *Job) ID() string { return j.id }

// TemplateID returns the id of the definition the job was expanded from.
func (j *Job) TemplateID() string { return j.template.String() }

// Definition returns the job definition.
func (j *Job) Definition() *domain.JobDefinition { return j.def }

// Context returns the build context of the job instance.
func (j *Job) Context() domain.BuildContext { return j.ctx }

// Command returns the rendered command of the job instance.
func (j *Job) Command() string { return j.def.CommandFor(j.id, j.ctx) }

// Failed reports whether the job exhausted its retries.
func (j *Job) Failed() bool { return j.failed }

// Meta reports whether the job is a placeholder that never runs on its own.
func (j *Job) Meta() bool { return j.def.Meta }

// IgnoresParents reports whether the job runs on its own schedule regardless of its ancestors.
func (j *Job) IgnoresParents() bool { return j.def.HasCacheTime() }

// Invalidate clears every cached derived value.
func (j *Job) Invalidate() {
	j.stale = domain.Unknown
	j.buildable = domain.Unknown
	j.shouldRun = domain.Unknown
	j.parentsShouldRun = domain.Unknown
}

// Reset returns the job to its initial state.
func (j *Job) Reset() {
	j.Invalidate()
	j.Retries = 0
	j.LastRun = time.Time{}
	j.IsRunning = false
	j.Force = false
	j.failed = false
}

// SetFailed marks the job as permanently failed.
func (j *Job) SetFailed() {
	j.failed = true
	j.Force = false
	j.shouldRun = domain.False
}

// Stale reports whether the job's targets are out of date.
func (j *Job) Stale(g *BuildGraph) bool {
	if j.stale.Known() {
		return j.stale.Bool()
	}
	if !j.PastCacheTime(g) {
		j.stale = domain.False
		return false
	}

	minimum, stale := j.MinimumTargetMtime(g)
	if stale || j.DependencyNewerThan(g, minimum) {
		j.UpdateStale(g, true)
		return true
	}
	j.UpdateStale(g, false)
	return false
}

// UpdateStale sets the stale value. Stale is monotonic until Invalidate: once
// true it stays true. Becoming stale marks the creators of every missing
// dependency stale as well.
func (j *Job) UpdateStale(g *BuildGraph, stale bool) {
	if !stale {
		if j.stale != domain.True {
			j.stale = domain.False
		}
		return
	}
	if j.stale == domain.True {
		return
	}
	j.stale = domain.True
	for _, depID := range g.dependencyIDs(j.id) {
		dep := g.target(depID)
		if dep.Exists(g) {
			continue
		}
		for _, creatorID := range g.creatorIDs(depID) {
			g.job(creatorID).UpdateStale(g, true)
		}
	}
}

// alternateMtimes returns the mtimes of the job's alternates, or stale when
// there are none or any is missing.
func (j *Job) alternateMtimes(g *BuildGraph, edges []TargetEdge) ([]time.Time, bool) {
	var mtimes []time.Time
	for _, e := range edges {
		if e.Kind != domain.Alternates {
			continue
		}
		mtime, ok := g.target(e.TargetID).Mtime(g)
		if !ok {
			return nil, true
		}
		mtimes = append(mtimes, mtime)
	}
	if len(mtimes) == 0 {
		return nil, true
	}
	return mtimes, false
}

// MinimumTargetMtime returns the oldest mtime among the job's targets, or
// stale when a target condition alone makes the job stale. A zero time means
// no target bounds the comparison.
func (j *Job) MinimumTargetMtime(g *BuildGraph) (time.Time, bool) {
	edges := g.targetRelationships(j.id)
	if len(edges) == 0 {
		return time.Time{}, true
	}

	var produced []TargetEdge
	for _, e := range edges {
		if e.Kind == domain.Produces {
			produced = append(produced, e)
		}
	}
	if len(produced) == 0 {
		alternates, stale := j.alternateMtimes(g, edges)
		if stale {
			return time.Time{}, true
		}
		return minTime(alternates), false
	}

	var mtimes []time.Time
	for _, e := range produced {
		mtime, ok := g.target(e.TargetID).Mtime(g)
		if !ok {
			alternates, stale := j.alternateMtimes(g, edges)
			if stale {
				return time.Time{}, true
			}
			mtimes = append(mtimes, alternates...)
			continue
		}
		if e.IgnoreMtime {
			continue
		}
		mtimes = append(mtimes, mtime)
	}
	return minTime(mtimes), false
}

func minTime(ts []time.Time) time.Time {
	var out time.Time
	for i, t := range ts {
		if i == 0 || t.Before(out) {
			out = t
		}
	}
	return out
}

// DependencyNewerThan reports whether an existing dependency not marked
// ignore mtime is strictly newer than minimum. A zero minimum never compares.
func (j *Job) DependencyNewerThan(g *BuildGraph, minimum time.Time) bool {
	if minimum.IsZero() {
		return false
	}
	for _, rel := range g.dependencyRelationships(j.id) {
		for _, m := range rel.Members {
			if m.IgnoreMtime {
				continue
			}
			mtime, ok := g.target(m.TargetID).Mtime(g)
			if ok && mtime.After(minimum) {
				return true
			}
		}
	}
	return false
}

// Buildable reports whether every dependency group of the job is satisfied.
func (j *Job) Buildable(g *BuildGraph) bool {
	if j.buildable.Known() {
		return j.buildable.Bool()
	}
	for _, groupID := range g.groupIDs(j.id) {
		if !g.group(groupID).Satisfied(g) {
			j.buildable = domain.False
			return false
		}
	}
	j.buildable = domain.True
	return true
}

// PastCacheTime reports whether the job's produced targets are missing or
// older than its cache time. Jobs without a cache time are always past it.
func (j *Job) PastCacheTime(g *BuildGraph) bool {
	if !j.def.HasCacheTime() {
		return true
	}
	now := g.Now()
	for _, e := range g.targetRelationships(j.id) {
		if e.Kind != domain.Produces {
			continue
		}
		mtime, ok := g.target(e.TargetID).Mtime(g)
		if !ok {
			return true
		}
		if j.def.CacheTime.AddTo(mtime, 1).Before(now) {
			return true
		}
	}
	return false
}

// PastCurfew reports whether the job's window closed longer than its curfew
// ago. Jobs that are not timestamped are always past curfew.
func (j *Job) PastCurfew(g *BuildGraph) bool {
	if !j.def.Timestamped() || j.ctx.EndTime.IsZero() {
		return true
	}
	curfew := j.def.Curfew
	if curfew.IsZero() {
		curfew = domain.DefaultCurfew
	}
	return curfew.AddTo(j.ctx.EndTime, 1).Before(g.Now())
}

// AllDependenciesExist reports whether every dependency target exists.
func (j *Job) AllDependenciesExist(g *BuildGraph) bool {
	for _, depID := range g.dependencyIDs(j.id) {
		if !g.target(depID).Exists(g) {
			return false
		}
	}
	return true
}

// ParentJobs returns the creators of the job's dependencies.
func (j *Job) ParentJobs(g *BuildGraph) []*Job {
	seen := make(map[string]struct{})
	var out []*Job
	for _, depID := range g.dependencyIDs(j.id) {
		for _, creatorID := range g.creatorIDs(depID) {
			if _, ok := seen[creatorID]; ok {
				continue
			}
			seen[creatorID] = struct{}{}
			out = append(out, g.job(creatorID))
		}
	}
	return out
}

// ParentsShouldRun reports whether a contiguous ancestor that does not ignore
// its parents is due to run.
func (j *Job) ParentsShouldRun(g *BuildGraph) bool {
	if j.parentsShouldRun.Known() {
		return j.parentsShouldRun.Bool()
	}
	if j.IgnoresParents() {
		return false
	}
	if j.resolving {
		return false
	}
	j.resolving = true
	defer func() { j.resolving = false }()

	for _, parent := range j.ParentJobs(g) {
		if parent.IgnoresParents() {
			continue
		}
		if parent.ParentsShouldRun(g) || parent.ShouldRunImmediate(g) {
			j.parentsShouldRun = domain.True
			return true
		}
	}
	j.parentsShouldRun = domain.False
	return false
}

// ShouldRunImmediate reports whether the job should run without regard to its ancestors.
func (j *Job) ShouldRunImmediate(g *BuildGraph) bool {
	if j.def.Meta {
		return false
	}
	if j.Force || j.def.AlwaysForce {
		return true
	}
	if j.failed {
		return false
	}
	if j.shouldRun.Known() {
		return j.shouldRun.Bool()
	}

	if !j.Stale(g) || !j.Buildable(g) {
		j.shouldRun = domain.False
		return false
	}
	run := j.def.HasCacheTime() || j.PastCurfew(g) || j.AllDependenciesExist(g)
	j.shouldRun = domain.TriStateOf(run)
	return run
}

// ShouldRun reports whether the job is due to run now. A forced job always
// runs; otherwise a job waits while any ancestor is due.
func (j *Job) ShouldRun(g *BuildGraph) bool {
	if j.Force {
		return true
	}
	if j.ParentsShouldRun(g) {
		return false
	}
	return j.ShouldRunImmediate(g)
}

// State is a point-in-time view of a job's scheduling state.
type State struct {
	ID               string
	TemplateID       string
	Stale            bool
	Buildable        bool
	ShouldRun        bool
	ParentsShouldRun bool
	Force            bool
	Failed           bool
	Retries          int
	LastRun          time.Time
	IsRunning        bool
}

// Snapshot evaluates and returns the job's scheduling state.
func (j *Job) Snapshot(g *BuildGraph) State {
	return State{
		ID:               j.id,
		TemplateID:       j.TemplateID(),
		Stale:            j.Stale(g),
		Buildable:        j.Buildable(g),
		ShouldRun:        j.ShouldRun(g),
		ParentsShouldRun: j.ParentsShouldRun(g),
		Force:            j.Force,
		Failed:           j.failed,
		Retries:          j.Retries,
		LastRun:          j.LastRun,
		IsRunning:        j.IsRunning,
	}
}

func (j *Job) expanded(direction domain.Direction) bool {
	if direction == domain.Up {
		return j.expandedUp
	}
	return j.expandedDown
}

func (j *Job) setExpanded(direction domain.Direction) {
	if direction == domain.Up {
		j.expandedUp = true
		return
	}
	j.expandedDown = true
}
