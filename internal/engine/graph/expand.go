package graph

import (
	"errors"
	"fmt"

	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/zerr"
)

// AddOptions controls how far AddJob expands the graph from the new jobs.
type AddOptions struct {
	// Direction defaults to Up.
	Direction domain.Direction
	// Depth bounds the number of job levels expanded per branch. Zero or less is unbounded.
	Depth int
	// Force marks every job expanded from the definition as forced.
	Force bool
}

func (o AddOptions) direction() domain.Direction {
	if o.Direction == 0 {
		return domain.Up
	}
	return o.Direction
}

// expansion carries the per-call state of AddJob.
type expansion struct {
	g      *BuildGraph
	update *domain.BuildUpdate
	depth  int
	seen   map[string]struct{}
}

// AddMeta adds every job the meta target resolves to.
func (g *BuildGraph) AddMeta(metaID string, ctx domain.BuildContext, opts AddOptions) (*domain.BuildUpdate, error) {
	jobIDs, err := g.rules.JobIDsFromMeta(metaID)
	if err != nil {
		return nil, err
	}
	update := domain.NewBuildUpdate()
	for _, jobID := range jobIDs {
		u, err := g.AddJob(jobID, ctx, opts)
		if err != nil {
			return nil, zerr.With(err, "meta_id", metaID)
		}
		update.Merge(u)
	}
	return update, nil
}

// Add adds a job definition or a meta target.
func (g *BuildGraph) Add(id string, ctx domain.BuildContext, opts AddOptions) (*domain.BuildUpdate, error) {
	if g.rules.IsMeta(id) {
		return g.AddMeta(id, ctx, opts)
	}
	return g.AddJob(id, ctx, opts)
}

// AddJob expands the definition for ctx and grows the graph around the new
// jobs in the requested direction.
func (g *BuildGraph) AddJob(defID string, ctx domain.BuildContext, opts AddOptions) (*domain.BuildUpdate, error) {
	def, err := g.rules.JobDefinition(defID)
	if err != nil {
		return nil, err
	}
	expansions, err := def.Expand(ctx)
	if err != nil {
		return nil, zerr.With(err, "job_id", defID)
	}

	e := &expansion{
		g:      g,
		update: domain.NewBuildUpdate(),
		depth:  opts.Depth,
		seen:   make(map[string]struct{}),
	}
	direction := opts.direction()
	for _, exp := range expansions {
		if err := e.selfExpand(newJob(def, exp), direction, 0); err != nil {
			return nil, err
		}
		if !opts.Force {
			continue
		}
		job := g.job(exp.ID)
		if !job.Force {
			e.update.NewlyForced.Add(job.id)
		}
		e.update.Forced.Add(job.id)
		job.Force = true
	}
	g.logger.Debug(fmt.Sprintf("expanded %s: %d jobs, %d new", defID, len(e.update.Jobs), len(e.update.NewJobs)))
	return e.update, nil
}

func (e *expansion) selfExpand(candidate *Job, direction domain.Direction, depth int) error {
	if _, ok := e.seen[candidate.id]; ok {
		return nil
	}
	job, err := e.g.addJob(candidate, e.update)
	if err != nil {
		return err
	}

	targets, err := e.expandDirection(job, domain.Down)
	if err != nil {
		return err
	}
	dependencies, err := e.expandDirection(job, domain.Up)
	if err != nil {
		return err
	}
	e.seen[job.id] = struct{}{}

	depth++
	if e.depth > 0 && depth >= e.depth {
		return nil
	}

	if direction.Has(domain.Up) {
		if err := e.expandNext(dependencies, domain.Up, domain.Up, depth); err != nil {
			return err
		}
	}
	if direction.Has(domain.Down) {
		if err := e.expandNext(targets, domain.Down, direction, depth); err != nil {
			return err
		}
	}
	return nil
}

// expandDirection connects the job to its targets (Down) or dependencies (Up)
// and returns them. A job is expanded at most once per direction.
func (e *expansion) expandDirection(job *Job, direction domain.Direction) ([]*Target, error) {
	g := e.g
	if job.expanded(direction) {
		ids := g.targetOrDependencyIDs(job.id, direction)
		out := make([]*Target, 0, len(ids))
		for _, id := range ids {
			e.update.Targets.Add(id)
			out = append(out, g.target(id))
		}
		return out, nil
	}
	job.setExpanded(direction)

	if direction == domain.Down {
		return e.connectTargets(job)
	}
	return e.connectDependencies(job)
}

func (e *expansion) expandSpec(job *Job, spec domain.TargetSpec) ([]*Target, error) {
	expansions, err := spec.Expander.Expand(job.ctx)
	if err != nil {
		return nil, zerr.With(zerr.With(err, "job_id", job.id), "target_id", spec.ID())
	}
	out := make([]*Target, 0, len(expansions))
	for _, exp := range expansions {
		t, err := e.g.addTarget(newTarget(spec, exp), e.update)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (e *expansion) connectTargets(job *Job) ([]*Target, error) {
	var out []*Target
	for _, kind := range domain.TargetKinds {
		for _, spec := range job.def.Targets[kind] {
			targets, err := e.expandSpec(job, spec)
			if err != nil {
				return nil, err
			}
			for _, t := range targets {
				e.g.addEdge(job.id, t.id, edge{label: kind.String(), kind: uint8(kind), ignoreMtime: spec.IgnoreMtime})
			}
			out = append(out, targets...)
		}
	}
	return out, nil
}

type groupMember struct {
	target      *Target
	ignoreMtime bool
}

// connectDependencies inserts one dependency group per kind and group name
// between the job and its dependencies. Specs without a group name form a
// group of their own.
func (e *expansion) connectDependencies(job *Job) ([]*Target, error) {
	var out []*Target
	for _, kind := range domain.DependencyKinds {
		var keys []string
		members := make(map[string][]groupMember)
		for _, spec := range job.def.Dependencies[kind] {
			targets, err := e.expandSpec(job, spec)
			if err != nil {
				return nil, err
			}
			key := spec.Group
			if key == "" {
				key = spec.ID()
			}
			if _, ok := members[key]; !ok {
				keys = append(keys, key)
			}
			for _, t := range targets {
				members[key] = append(members[key], groupMember{target: t, ignoreMtime: spec.IgnoreMtime})
			}
			out = append(out, targets...)
		}

		for _, key := range keys {
			ids := make([]string, len(members[key]))
			for i, m := range members[key] {
				ids[i] = m.target.id
			}
			group, err := e.g.addGroup(&DependencyGroup{
				id:    groupID(job.id, kind, key, ids),
				Kind:  kind,
				JobID: job.id,
			}, e.update)
			if err != nil {
				return nil, err
			}
			e.g.addEdge(group.id, job.id, edge{label: kind.String(), kind: uint8(kind)})
			for _, m := range members[key] {
				e.g.addEdge(m.target.id, group.id, edge{label: kind.String(), kind: uint8(kind), ignoreMtime: m.ignoreMtime})
			}
		}
	}
	return out, nil
}

// expandNext expands the jobs on the other side of targets: their creators
// (Up) or dependents (Down).
func (e *expansion) expandNext(targets []*Target, direction, recurse domain.Direction, depth int) error {
	g := e.g
	var next []*Job
	for _, t := range targets {
		if _, ok := e.seen[t.id]; ok {
			continue
		}
		if t.expanded(direction) {
			for _, id := range g.dependentOrCreatorIDs(t.id, direction) {
				next = append(next, g.job(id))
			}
			continue
		}

		defIDs, err := g.rules.DependentsOrCreators(t.TemplateID(), direction)
		if err != nil {
			return err
		}
		for _, defID := range defIDs {
			def, err := g.rules.JobDefinition(defID)
			if err != nil {
				return err
			}
			expansions, err := def.Expand(t.ctx)
			if errors.Is(err, domain.ErrMissingStartTime) {
				g.logger.Warn(fmt.Sprintf("skipping %s from %s: target has no time window", defID, t.id))
				continue
			}
			if err != nil {
				return zerr.With(err, "job_id", defID)
			}
			for _, exp := range expansions {
				next = append(next, newJob(def, exp))
			}
		}
		e.seen[t.id] = struct{}{}
		t.setExpanded(direction)
	}

	for _, job := range next {
		if err := e.selfExpand(job, recurse, depth); err != nil {
			return err
		}
	}
	return nil
}
