// Package graph implements the rule dependency graph and the lazily expanded build graph.
package graph

import (
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/zerr"
)

type ruleKind uint8

const (
	ruleJob ruleKind = iota + 1
	ruleTarget
	ruleMeta
)

// MetaLabel labels the edges from a meta's jobs to the meta.
const MetaLabel = "meta"

// RuleEdge is a labeled edge of the rule graph.
type RuleEdge struct {
	From  string
	To    string
	Label string
}

type ruleNode struct {
	kind ruleKind
	job  *domain.JobDefinition
	spec domain.TargetSpec
	meta *domain.MetaTarget
}

// RuleGraph is the static template graph of job definitions, target specs and metas.
// Jobs point at the targets they create, dependencies point at the jobs that consume them,
// and jobs point at the metas that alias them.
// It is read-only once built.
type RuleGraph struct {
	order []string
	nodes map[string]*ruleNode
	edges map[[2]string]int
	list  []RuleEdge
	succ  map[string][]string
	pred  map[string][]string
}

// NewRuleGraph builds the rule graph from the enabled jobs and metas.
// Meta collections are filtered to ids present in the graph.
func NewRuleGraph(jobs []domain.JobDefinition, metas []domain.MetaTarget) *RuleGraph {
	g := &RuleGraph{
		nodes: make(map[string]*ruleNode),
		edges: make(map[[2]string]int),
		succ:  make(map[string][]string),
		pred:  make(map[string][]string),
	}

	for i := range jobs {
		def := &jobs[i]
		if !def.Enabled() {
			continue
		}
		g.addJobDefinition(def)
	}

	// Meta nodes go in before their edges so metas may alias metas declared later.
	enabled := make([]*domain.MetaTarget, 0, len(metas))
	for i := range metas {
		meta := &metas[i]
		if !meta.Enabled() {
			continue
		}
		if !g.addNode(meta.ID, &ruleNode{kind: ruleMeta, meta: meta}) {
			continue
		}
		enabled = append(enabled, meta)
	}
	for _, meta := range enabled {
		for _, id := range meta.Jobs {
			if _, ok := g.nodes[id]; !ok {
				continue
			}
			g.addEdge(id, meta.ID, MetaLabel)
		}
	}

	return g
}

func (g *RuleGraph) addJobDefinition(def *domain.JobDefinition) {
	if !g.addNode(def.ID, &ruleNode{kind: ruleJob, job: def}) {
		return
	}

	for _, kind := range domain.TargetKinds {
		for _, spec := range def.Targets[kind] {
			if g.addTargetSpec(spec) {
				g.addEdge(def.ID, spec.ID(), kind.String())
			}
		}
	}
	for _, kind := range domain.DependencyKinds {
		for _, spec := range def.Dependencies[kind] {
			if g.addTargetSpec(spec) {
				g.addEdge(spec.ID(), def.ID, kind.String())
			}
		}
	}
}

// addTargetSpec reports whether spec's id is a target node afterwards.
func (g *RuleGraph) addTargetSpec(spec domain.TargetSpec) bool {
	if n, ok := g.nodes[spec.ID()]; ok {
		return n.kind == ruleTarget
	}
	return g.addNode(spec.ID(), &ruleNode{kind: ruleTarget, spec: spec})
}

// addNode keeps the first node registered under id and reports whether n was added.
func (g *RuleGraph) addNode(id string, n *ruleNode) bool {
	if _, ok := g.nodes[id]; ok {
		return false
	}
	g.order = append(g.order, id)
	g.nodes[id] = n
	return true
}

func (g *RuleGraph) addEdge(from, to, label string) {
	key := [2]string{from, to}
	if i, ok := g.edges[key]; ok {
		g.list[i].Label = label
		return
	}
	g.edges[key] = len(g.list)
	g.list = append(g.list, RuleEdge{From: from, To: to, Label: label})
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
}

func (g *RuleGraph) is(id string, kind ruleKind) bool {
	n, ok := g.nodes[id]
	return ok && n.kind == kind
}

func (g *RuleGraph) assert(id string, kind ruleKind) error {
	n, ok := g.nodes[id]
	if !ok {
		return zerr.With(domain.ErrNodeNotFound, "node_id", id)
	}
	if n.kind == kind {
		return nil
	}
	switch kind {
	case ruleJob:
		return zerr.With(domain.ErrNotJobNode, "node_id", id)
	case ruleTarget:
		return zerr.With(domain.ErrNotTargetNode, "node_id", id)
	default:
		return zerr.With(domain.ErrNotMetaNode, "node_id", id)
	}
}

func (g *RuleGraph) filter(ids []string, kind ruleKind) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if g.is(id, kind) {
			out = append(out, id)
		}
	}
	return out
}

// Has reports whether id is a node of the graph.
func (g *RuleGraph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// IsJobDefinition reports whether id is a job definition node.
func (g *RuleGraph) IsJobDefinition(id string) bool { return g.is(id, ruleJob) }

// IsTarget reports whether id is a target node.
func (g *RuleGraph) IsTarget(id string) bool { return g.is(id, ruleTarget) }

// IsMeta reports whether id is a meta node.
func (g *RuleGraph) IsMeta(id string) bool { return g.is(id, ruleMeta) }

// JobDefinition returns the job definition with the given id.
func (g *RuleGraph) JobDefinition(id string) (*domain.JobDefinition, error) {
	if err := g.assert(id, ruleJob); err != nil {
		return nil, err
	}
	return g.nodes[id].job, nil
}

// Meta returns the meta with the given id.
func (g *RuleGraph) Meta(id string) (*domain.MetaTarget, error) {
	if err := g.assert(id, ruleMeta); err != nil {
		return nil, err
	}
	return g.nodes[id].meta, nil
}

// TargetSpec returns the first target spec registered under id.
func (g *RuleGraph) TargetSpec(id string) (domain.TargetSpec, error) {
	if err := g.assert(id, ruleTarget); err != nil {
		return domain.TargetSpec{}, err
	}
	return g.nodes[id].spec, nil
}

// TargetIDs returns the ids of the targets the job creates.
func (g *RuleGraph) TargetIDs(jobID string) ([]string, error) {
	if err := g.assert(jobID, ruleJob); err != nil {
		return nil, err
	}
	return g.filter(g.succ[jobID], ruleTarget), nil
}

// DependencyIDs returns the ids of the targets the job depends on.
func (g *RuleGraph) DependencyIDs(jobID string) ([]string, error) {
	if err := g.assert(jobID, ruleJob); err != nil {
		return nil, err
	}
	return g.filter(g.pred[jobID], ruleTarget), nil
}

// Creators returns the ids of the jobs that produce or alternate the target.
func (g *RuleGraph) Creators(targetID string) ([]string, error) {
	if err := g.assert(targetID, ruleTarget); err != nil {
		return nil, err
	}
	return g.filter(g.pred[targetID], ruleJob), nil
}

// Dependents returns the ids of the jobs that depend on the target.
func (g *RuleGraph) Dependents(targetID string) ([]string, error) {
	if err := g.assert(targetID, ruleTarget); err != nil {
		return nil, err
	}
	return g.filter(g.succ[targetID], ruleJob), nil
}

// DependentsOrCreators returns the creators of the target when walking Up
// and its dependents when walking Down.
func (g *RuleGraph) DependentsOrCreators(targetID string, direction domain.Direction) ([]string, error) {
	switch direction {
	case domain.Up:
		return g.Creators(targetID)
	case domain.Down:
		return g.Dependents(targetID)
	default:
		return nil, zerr.With(domain.ErrUnknownDirection, "direction", direction.String())
	}
}

// JobIDsFromMeta flattens a meta into the job ids it aliases, following nested metas.
func (g *RuleGraph) JobIDsFromMeta(metaID string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	if err := g.collectMetaJobs(metaID, seen, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *RuleGraph) collectMetaJobs(metaID string, seen map[string]struct{}, out *[]string) error {
	if _, ok := seen[metaID]; ok {
		return nil
	}
	seen[metaID] = struct{}{}

	meta, err := g.Meta(metaID)
	if err != nil {
		return err
	}
	for _, id := range meta.Jobs {
		if !g.Has(id) {
			continue
		}
		if g.IsMeta(id) {
			if err := g.collectMetaJobs(id, seen, out); err != nil {
				return err
			}
			continue
		}
		if err := g.assert(id, ruleJob); err != nil {
			return err
		}
		*out = append(*out, id)
	}
	return nil
}

// AllJobs returns every enabled job definition in declaration order.
func (g *RuleGraph) AllJobs() []*domain.JobDefinition {
	var out []*domain.JobDefinition
	for _, id := range g.order {
		if n := g.nodes[id]; n.kind == ruleJob {
			out = append(out, n.job)
		}
	}
	return out
}

// AllTargetSpecs returns every target spec in declaration order.
func (g *RuleGraph) AllTargetSpecs() []domain.TargetSpec {
	var out []domain.TargetSpec
	for _, id := range g.order {
		if n := g.nodes[id]; n.kind == ruleTarget {
			out = append(out, n.spec)
		}
	}
	return out
}

// Edges returns every edge in insertion order.
func (g *RuleGraph) Edges() []RuleEdge {
	out := make([]RuleEdge, len(g.list))
	copy(out, g.list)
	return out
}
