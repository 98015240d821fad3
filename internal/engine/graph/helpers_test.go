package graph_test

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/engine/graph"
)

var epoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return epoch.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// memStore is an in-memory TargetStore keyed by target id.
type memStore struct {
	mtimes map[string]time.Time
	calls  int
}

func newMemStore() *memStore {
	return &memStore{mtimes: make(map[string]time.Time)}
}

func (s *memStore) set(id string, mtime time.Time) { s.mtimes[id] = mtime }

func (s *memStore) remove(id string) { delete(s.mtimes, id) }

func (s *memStore) Mtime(ref domain.TargetRef) (time.Time, bool, error) {
	s.calls++
	mtime, ok := s.mtimes[ref.ID]
	return mtime, ok, nil
}

func (s *memStore) BulkMtime(refs []domain.TargetRef) (map[string]domain.TargetStat, error) {
	s.calls++
	out := make(map[string]domain.TargetStat, len(refs))
	for _, ref := range refs {
		if mtime, ok := s.mtimes[ref.ID]; ok {
			out[ref.ID] = domain.TargetStat{Exists: true, Mtime: mtime}
		}
	}
	return out, nil
}

func spec(id string) domain.TargetSpec {
	return domain.TargetSpec{Expander: domain.StandardExpander{ID: id}}
}

func stepSpec(id, step string) domain.TargetSpec {
	return domain.TargetSpec{Expander: domain.TimestampExpander{ID: id, Step: domain.MustParseTimeStep(step)}}
}

func grouped(s domain.TargetSpec, group string) domain.TargetSpec {
	s.Group = group
	return s
}

func ignored(s domain.TargetSpec) domain.TargetSpec {
	s.IgnoreMtime = true
	return s
}

// jobDef declares a job producing the given targets and depending on all of deps.
func jobDef(id string, produces []domain.TargetSpec, depends []domain.TargetSpec) domain.JobDefinition {
	return domain.JobDefinition{
		ID:           id,
		Targets:      map[domain.TargetKind][]domain.TargetSpec{domain.Produces: produces},
		Dependencies: map[domain.DependencyKind][]domain.TargetSpec{domain.Depends: depends},
	}
}

func specs(ids ...string) []domain.TargetSpec {
	out := make([]domain.TargetSpec, 0, len(ids))
	for _, id := range ids {
		out = append(out, spec(id))
	}
	return out
}

type fixture struct {
	store   *memStore
	clock   clockwork.FakeClock
	manager *graph.BuildManager
	g       *graph.BuildGraph
}

func newFixture(jobs []domain.JobDefinition, metas ...domain.MetaTarget) *fixture {
	store := newMemStore()
	clock := clockwork.NewFakeClockAt(at(12, 0))
	m := graph.NewBuildManager(jobs, metas, graph.StoreRegistry{domain.DefaultBackend: store}, graph.WithClock(clock))
	return &fixture{store: store, clock: clock, manager: m, g: m.MakeBuild()}
}

// chain returns A -> target-A -> B -> target-B -> C -> target-C.
func chain() []domain.JobDefinition {
	return []domain.JobDefinition{
		jobDef("A", specs("target-A"), nil),
		jobDef("B", specs("target-B"), specs("target-A")),
		jobDef("C", specs("target-C"), specs("target-B")),
	}
}

func jobIDs(g *graph.BuildGraph) []string {
	var out []string
	for id := range g.Jobs() {
		out = append(out, id)
	}
	return out
}
