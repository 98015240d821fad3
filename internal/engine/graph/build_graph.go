package graph

import (
	"errors"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/zerr"
)

// GraphNode is implemented by every node kind of the build graph.
type GraphNode interface {
	ID() string
}

var (
	_ GraphNode = (*Job)(nil)
	_ GraphNode = (*Target)(nil)
	_ GraphNode = (*DependencyGroup)(nil)
)

// NodeKind tags the variant held by a build graph node.
type NodeKind uint8

const (
	// KindJob is a job instance.
	KindJob NodeKind = iota + 1
	// KindTarget is a target instance.
	KindTarget
	// KindDependency is a dependency group.
	KindDependency
)

func (k NodeKind) String() string {
	switch k {
	case KindJob:
		return "job"
	case KindTarget:
		return "target"
	case KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

type node struct {
	kind   NodeKind
	job    *Job
	target *Target
	group  *DependencyGroup
	labels map[string]string
}

func (n *node) object() GraphNode {
	switch n.kind {
	case KindJob:
		return n.job
	case KindTarget:
		return n.target
	default:
		return n.group
	}
}

type edge struct {
	label       string
	kind        uint8
	ignoreMtime bool
}

// Edge is a labeled edge of the build graph.
type Edge struct {
	From        string
	To          string
	Label       string
	IgnoreMtime bool
}

// TargetEdge relates a job to a target it creates.
type TargetEdge struct {
	JobID       string
	TargetID    string
	Kind        domain.TargetKind
	IgnoreMtime bool
}

// DependencyEdge relates a dependency target to a job that consumes it.
type DependencyEdge struct {
	TargetID    string
	JobID       string
	GroupID     string
	Kind        domain.DependencyKind
	IgnoreMtime bool
}

// DependencyRelationship is one dependency group of a job with its members.
type DependencyRelationship struct {
	Group   *DependencyGroup
	Members []DependencyEdge
}

// StoreRegistry maps backend names to the stores that resolve them.
type StoreRegistry map[string]ports.TargetStore

// BuildGraph is the live instance graph of one scheduling session.
// It owns every node by id; node methods that need graph context take the graph explicitly.
// BuildGraph is not safe for concurrent use.
type BuildGraph struct {
	rules  *RuleGraph
	stores StoreRegistry
	clock  clockwork.Clock
	logger ports.Logger

	order []string
	nodes map[string]*node
	edges map[[2]string]edge
	succ  map[string][]string
	pred  map[string][]string
}

func newBuildGraph(rules *RuleGraph, stores StoreRegistry, clock clockwork.Clock, logger ports.Logger) *BuildGraph {
	return &BuildGraph{
		rules:  rules,
		stores: stores,
		clock:  clock,
		logger: logger,
		nodes:  make(map[string]*node),
		edges:  make(map[[2]string]edge),
		succ:   make(map[string][]string),
		pred:   make(map[string][]string),
	}
}

// Rules returns the rule graph the build graph expands from.
func (g *BuildGraph) Rules() *RuleGraph { return g.rules }

// Now returns the current time of the graph's clock.
func (g *BuildGraph) Now() time.Time { return g.clock.Now() }

// Len returns the number of nodes.
func (g *BuildGraph) Len() int { return len(g.order) }

// insert adds n under id unless a node of the same kind already exists.
// The existing object is authoritative; only labels are merged.
func (g *BuildGraph) insert(id string, n *node, update *domain.BuildUpdate) (*node, error) {
	existing, ok := g.nodes[id]
	if !ok {
		g.nodes[id] = n
		g.order = append(g.order, id)
		if update != nil {
			switch n.kind {
			case KindJob:
				update.NewJobs.Add(id)
			case KindTarget:
				update.NewTargets.Add(id)
			}
		}
		existing = n
	} else {
		if existing.kind != n.kind {
			return nil, g.kindError(id, n.kind)
		}
		for k, v := range n.labels {
			if existing.labels == nil {
				existing.labels = make(map[string]string, len(n.labels))
			}
			existing.labels[k] = v
		}
	}

	if update != nil {
		switch existing.kind {
		case KindJob:
			update.Jobs.Add(id)
		case KindTarget:
			update.Targets.Add(id)
		}
	}
	return existing, nil
}

func (g *BuildGraph) kindError(id string, want NodeKind) error {
	switch want {
	case KindJob:
		return zerr.With(domain.ErrNotJobNode, "node_id", id)
	case KindTarget:
		return zerr.With(domain.ErrNotTargetNode, "node_id", id)
	default:
		return zerr.With(domain.ErrNotDependencyNode, "node_id", id)
	}
}

func (g *BuildGraph) addJob(j *Job, update *domain.BuildUpdate) (*Job, error) {
	n, err := g.insert(j.id, &node{kind: KindJob, job: j, labels: map[string]string{"template": j.TemplateID()}}, update)
	if err != nil {
		return nil, err
	}
	return n.job, nil
}

func (g *BuildGraph) addTarget(t *Target, update *domain.BuildUpdate) (*Target, error) {
	n, err := g.insert(t.id, &node{kind: KindTarget, target: t, labels: map[string]string{"template": t.TemplateID(), "backend": t.backend}}, update)
	if err != nil {
		return nil, err
	}
	return n.target, nil
}

func (g *BuildGraph) addGroup(d *DependencyGroup, update *domain.BuildUpdate) (*DependencyGroup, error) {
	n, err := g.insert(d.id, &node{kind: KindDependency, group: d, labels: map[string]string{"kind": d.Kind.String()}}, update)
	if err != nil {
		return nil, err
	}
	return n.group, nil
}

// addEdge inserts or updates the edge from -> to.
func (g *BuildGraph) addEdge(from, to string, e edge) {
	key := [2]string{from, to}
	if _, ok := g.edges[key]; !ok {
		g.succ[from] = append(g.succ[from], to)
		g.pred[to] = append(g.pred[to], from)
	}
	g.edges[key] = e
}

func (g *BuildGraph) kindOf(id string) NodeKind {
	if n, ok := g.nodes[id]; ok {
		return n.kind
	}
	return 0
}

func (g *BuildGraph) job(id string) *Job {
	if n, ok := g.nodes[id]; ok && n.kind == KindJob {
		return n.job
	}
	return nil
}

func (g *BuildGraph) target(id string) *Target {
	if n, ok := g.nodes[id]; ok && n.kind == KindTarget {
		return n.target
	}
	return nil
}

func (g *BuildGraph) group(id string) *DependencyGroup {
	if n, ok := g.nodes[id]; ok && n.kind == KindDependency {
		return n.group
	}
	return nil
}

func (g *BuildGraph) lookup(id string, kind NodeKind) (*node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, zerr.With(domain.ErrNodeNotFound, "node_id", id)
	}
	if n.kind != kind {
		return nil, g.kindError(id, kind)
	}
	return n, nil
}

// Node returns the node stored under id.
func (g *BuildGraph) Node(id string) (GraphNode, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, zerr.With(domain.ErrNodeNotFound, "node_id", id)
	}
	return n.object(), nil
}

// Kind returns the kind of the node stored under id, or zero if absent.
func (g *BuildGraph) Kind(id string) NodeKind { return g.kindOf(id) }

// Labels returns a copy of the labels of the node stored under id.
func (g *BuildGraph) Labels(id string) map[string]string {
	if n, ok := g.nodes[id]; ok {
		return maps.Clone(n.labels)
	}
	return nil
}

// Job returns the job with the given id.
func (g *BuildGraph) Job(id string) (*Job, error) {
	n, err := g.lookup(id, KindJob)
	if err != nil {
		return nil, err
	}
	return n.job, nil
}

// Target returns the target with the given id.
func (g *BuildGraph) Target(id string) (*Target, error) {
	n, err := g.lookup(id, KindTarget)
	if err != nil {
		return nil, err
	}
	return n.target, nil
}

// DependencyGroup returns the dependency group with the given id.
func (g *BuildGraph) DependencyGroup(id string) (*DependencyGroup, error) {
	n, err := g.lookup(id, KindDependency)
	if err != nil {
		return nil, err
	}
	return n.group, nil
}

// IsJob reports whether id is a job of the graph.
func (g *BuildGraph) IsJob(id string) bool { return g.kindOf(id) == KindJob }

// IsTarget reports whether id is a target of the graph.
func (g *BuildGraph) IsTarget(id string) bool { return g.kindOf(id) == KindTarget }

func (g *BuildGraph) targetIDs(jobID string) []string {
	var out []string
	for _, id := range g.succ[jobID] {
		if g.kindOf(id) == KindTarget {
			out = append(out, id)
		}
	}
	return out
}

func (g *BuildGraph) groupIDs(jobID string) []string {
	var out []string
	for _, id := range g.pred[jobID] {
		if g.kindOf(id) == KindDependency {
			out = append(out, id)
		}
	}
	return out
}

func (g *BuildGraph) groupMembers(groupID string) []*Target {
	var out []*Target
	for _, id := range g.pred[groupID] {
		if t := g.target(id); t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (g *BuildGraph) dependencyIDs(jobID string) []string {
	var out []string
	for _, groupID := range g.groupIDs(jobID) {
		for _, t := range g.groupMembers(groupID) {
			out = append(out, t.id)
		}
	}
	return out
}

func (g *BuildGraph) creatorIDs(targetID string) []string {
	var out []string
	for _, id := range g.pred[targetID] {
		if g.kindOf(id) == KindJob {
			out = append(out, id)
		}
	}
	return out
}

func (g *BuildGraph) dependentIDs(targetID string) []string {
	var out []string
	for _, groupID := range g.succ[targetID] {
		if g.kindOf(groupID) != KindDependency {
			continue
		}
		for _, jobID := range g.succ[groupID] {
			if g.kindOf(jobID) == KindJob {
				out = append(out, jobID)
			}
		}
	}
	return out
}

func (g *BuildGraph) targetOrDependencyIDs(jobID string, direction domain.Direction) []string {
	if direction == domain.Up {
		return g.dependencyIDs(jobID)
	}
	return g.targetIDs(jobID)
}

func (g *BuildGraph) dependentOrCreatorIDs(targetID string, direction domain.Direction) []string {
	if direction == domain.Up {
		return g.creatorIDs(targetID)
	}
	return g.dependentIDs(targetID)
}

// TargetIDs returns the ids of the targets the job creates.
func (g *BuildGraph) TargetIDs(jobID string) ([]string, error) {
	if _, err := g.lookup(jobID, KindJob); err != nil {
		return nil, err
	}
	return g.targetIDs(jobID), nil
}

// DependencyIDs returns the ids of the targets the job depends on, across all its groups.
func (g *BuildGraph) DependencyIDs(jobID string) ([]string, error) {
	if _, err := g.lookup(jobID, KindJob); err != nil {
		return nil, err
	}
	return g.dependencyIDs(jobID), nil
}

// CreatorIDs returns the ids of the jobs that produce or alternate the target.
func (g *BuildGraph) CreatorIDs(targetID string) ([]string, error) {
	if _, err := g.lookup(targetID, KindTarget); err != nil {
		return nil, err
	}
	return g.creatorIDs(targetID), nil
}

// DependentIDs returns the ids of the jobs that depend on the target.
func (g *BuildGraph) DependentIDs(targetID string) ([]string, error) {
	if _, err := g.lookup(targetID, KindTarget); err != nil {
		return nil, err
	}
	return g.dependentIDs(targetID), nil
}

func (g *BuildGraph) targetRelationships(jobID string) []TargetEdge {
	var out []TargetEdge
	for _, id := range g.targetIDs(jobID) {
		e := g.edges[[2]string{jobID, id}]
		out = append(out, TargetEdge{JobID: jobID, TargetID: id, Kind: domain.TargetKind(e.kind), IgnoreMtime: e.ignoreMtime})
	}
	return out
}

func (g *BuildGraph) dependencyRelationships(jobID string) []DependencyRelationship {
	var out []DependencyRelationship
	for _, groupID := range g.groupIDs(jobID) {
		group := g.group(groupID)
		rel := DependencyRelationship{Group: group}
		for _, t := range g.groupMembers(groupID) {
			e := g.edges[[2]string{t.id, groupID}]
			rel.Members = append(rel.Members, DependencyEdge{
				TargetID:    t.id,
				JobID:       jobID,
				GroupID:     groupID,
				Kind:        group.Kind,
				IgnoreMtime: e.ignoreMtime,
			})
		}
		out = append(out, rel)
	}
	return out
}

// TargetRelationships returns the target edges of the job.
func (g *BuildGraph) TargetRelationships(jobID string) ([]TargetEdge, error) {
	if _, err := g.lookup(jobID, KindJob); err != nil {
		return nil, err
	}
	return g.targetRelationships(jobID), nil
}

// DependencyRelationships returns the dependency groups of the job with their member edges.
func (g *BuildGraph) DependencyRelationships(jobID string) ([]DependencyRelationship, error) {
	if _, err := g.lookup(jobID, KindJob); err != nil {
		return nil, err
	}
	return g.dependencyRelationships(jobID), nil
}

// CreatorRelationships returns the edges from the target's creators.
func (g *BuildGraph) CreatorRelationships(targetID string) ([]TargetEdge, error) {
	if _, err := g.lookup(targetID, KindTarget); err != nil {
		return nil, err
	}
	var out []TargetEdge
	for _, jobID := range g.creatorIDs(targetID) {
		e := g.edges[[2]string{jobID, targetID}]
		out = append(out, TargetEdge{JobID: jobID, TargetID: targetID, Kind: domain.TargetKind(e.kind), IgnoreMtime: e.ignoreMtime})
	}
	return out, nil
}

// DependentRelationships returns the edges from the target to the jobs consuming it.
func (g *BuildGraph) DependentRelationships(targetID string) ([]DependencyEdge, error) {
	if _, err := g.lookup(targetID, KindTarget); err != nil {
		return nil, err
	}
	var out []DependencyEdge
	for _, groupID := range g.succ[targetID] {
		group := g.group(groupID)
		if group == nil {
			continue
		}
		e := g.edges[[2]string{targetID, groupID}]
		out = append(out, DependencyEdge{
			TargetID:    targetID,
			JobID:       group.JobID,
			GroupID:     groupID,
			Kind:        group.Kind,
			IgnoreMtime: e.ignoreMtime,
		})
	}
	return out, nil
}

// Jobs iterates over the jobs in insertion order.
func (g *BuildGraph) Jobs() iter.Seq2[string, *Job] {
	return func(yield func(string, *Job) bool) {
		for _, id := range g.order {
			if n := g.nodes[id]; n.kind == KindJob {
				if !yield(id, n.job) {
					return
				}
			}
		}
	}
}

// Targets iterates over the targets in insertion order.
func (g *BuildGraph) Targets() iter.Seq2[string, *Target] {
	return func(yield func(string, *Target) bool) {
		for _, id := range g.order {
			if n := g.nodes[id]; n.kind == KindTarget {
				if !yield(id, n.target) {
					return
				}
			}
		}
	}
}

// Edges returns every edge, grouped by source node in insertion order.
func (g *BuildGraph) Edges() []Edge {
	var out []Edge
	for _, from := range g.order {
		for _, to := range g.succ[from] {
			e := g.edges[[2]string{from, to}]
			out = append(out, Edge{From: from, To: to, Label: e.label, IgnoreMtime: e.ignoreMtime})
		}
	}
	return out
}

// InputTargetIDs returns the targets no job in the graph creates.
func (g *BuildGraph) InputTargetIDs() []string {
	var out []string
	for id := range g.Targets() {
		if len(g.creatorIDs(id)) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// TopMostTargetIDs returns the targets with no incoming edges.
func (g *BuildGraph) TopMostTargetIDs() []string {
	var out []string
	for id := range g.Targets() {
		if len(g.pred[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

func (g *BuildGraph) store(backend string) (ports.TargetStore, error) {
	s, ok := g.stores[backend]
	if !ok {
		return nil, zerr.With(domain.ErrUnknownBackend, "backend", backend)
	}
	return s, nil
}

// fetchTarget resolves one target through its store. Failures are logged and
// the target is cached as missing.
func (g *BuildGraph) fetchTarget(t *Target) {
	s, err := g.store(t.backend)
	if err != nil {
		g.logger.Error(zerr.With(err, "target_id", t.id))
		t.SetMtime(time.Time{}, false)
		return
	}
	mtime, exists, err := s.Mtime(t.Ref())
	if err != nil {
		g.logger.Error(zerr.With(zerr.Wrap(err, "resolve target"), "target_id", t.id))
		t.SetMtime(time.Time{}, false)
		return
	}
	t.SetMtime(mtime, exists)
}

// TargetMtime returns the cached state of the target, resolving it if needed.
func (g *BuildGraph) TargetMtime(id string) (time.Time, bool, error) {
	t, err := g.Target(id)
	if err != nil {
		return time.Time{}, false, err
	}
	mtime, exists := t.Mtime(g)
	return mtime, exists, nil
}

// RefreshTargets resolves the given targets in bulk, one call per backend.
func (g *BuildGraph) RefreshTargets(ids []string) error {
	byBackend := make(map[string][]*Target)
	var backends []string
	var errs []error
	for _, id := range ids {
		t, err := g.Target(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := byBackend[t.backend]; !ok {
			backends = append(backends, t.backend)
		}
		byBackend[t.backend] = append(byBackend[t.backend], t)
	}

	for _, backend := range backends {
		targets := byBackend[backend]
		s, err := g.store(backend)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs := make([]domain.TargetRef, len(targets))
		for i, t := range targets {
			refs[i] = t.Ref()
		}
		// Stats returned beside an error still apply; targets without one are missing.
		stats, err := s.BulkMtime(refs)
		if err != nil {
			errs = append(errs, zerr.With(zerr.Wrap(err, "bulk resolve targets"), "backend", backend))
		}
		for _, t := range targets {
			stat := stats[t.id]
			t.SetMtime(stat.Mtime, stat.Exists)
		}
	}
	return errors.Join(errs...)
}

// BulkRefreshTargets refreshes every target of the graph, or only the uncached ones.
func (g *BuildGraph) BulkRefreshTargets(uncachedOnly bool) error {
	var ids []string
	for id, t := range g.Targets() {
		if uncachedOnly && t.cached {
			continue
		}
		ids = append(ids, id)
	}
	return g.RefreshTargets(ids)
}

// SortedJobIDs returns the job ids in lexical order.
func (g *BuildGraph) SortedJobIDs() []string {
	var ids []string
	for id := range g.Jobs() {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
