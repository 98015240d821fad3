package execution_test

import (
	"context"
	"sync"
	"time"

	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/engine/execution"
	"go.trai.ch/builder/internal/engine/graph"
)

var epoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// memStore is a concurrency safe in-memory TargetStore.
type memStore struct {
	mu     sync.Mutex
	mtimes map[string]time.Time
	tick   int
}

func newMemStore() *memStore {
	return &memStore{mtimes: make(map[string]time.Time)}
}

// touch marks the target as written after every earlier write.
func (s *memStore) touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	s.mtimes[id] = epoch.Add(time.Duration(s.tick) * time.Second)
}

func (s *memStore) Mtime(ref domain.TargetRef) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mtime, ok := s.mtimes[ref.ID]
	return mtime, ok, nil
}

func (s *memStore) BulkMtime(refs []domain.TargetRef) (map[string]domain.TargetStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.TargetStat, len(refs))
	for _, ref := range refs {
		if mtime, ok := s.mtimes[ref.ID]; ok {
			out[ref.ID] = domain.TargetStat{Exists: true, Mtime: mtime}
		}
	}
	return out, nil
}

// fakeExecutor writes the produced targets of every job it runs, unless the
// job is configured to fail.
type fakeExecutor struct {
	mu    sync.Mutex
	store *memStore
	// failures counts the runs left to fail per job; negative fails forever.
	failures map[string]int
	calls    []string
}

func newFakeExecutor(store *memStore) *fakeExecutor {
	return &fakeExecutor{store: store, failures: make(map[string]int)}
}

func (e *fakeExecutor) Initialize(context.Context) error { return nil }

func (e *fakeExecutor) Execute(_ context.Context, inv domain.Invocation) (domain.ExecutionResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, inv.JobID)
	left := e.failures[inv.JobID]
	if left > 0 {
		e.failures[inv.JobID] = left - 1
	}
	e.mu.Unlock()

	if left != 0 {
		return domain.Failed("boom"), nil
	}
	for _, ref := range inv.Produces {
		e.store.touch(ref.ID)
	}
	return domain.Succeeded("ok"), nil
}

func (e *fakeExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func spec(id string) domain.TargetSpec {
	return domain.TargetSpec{Expander: domain.StandardExpander{ID: id}}
}

func jobDef(id, produces string, depends ...string) domain.JobDefinition {
	def := domain.JobDefinition{
		ID:      id,
		Targets: map[domain.TargetKind][]domain.TargetSpec{domain.Produces: {spec(produces)}},
	}
	for _, dep := range depends {
		if def.Dependencies == nil {
			def.Dependencies = map[domain.DependencyKind][]domain.TargetSpec{}
		}
		def.Dependencies[domain.Depends] = append(def.Dependencies[domain.Depends], spec(dep))
	}
	return def
}

// chain returns A -> target-A -> B -> target-B -> C -> target-C.
func chain() []domain.JobDefinition {
	return []domain.JobDefinition{
		jobDef("A", "target-A"),
		jobDef("B", "target-B", "target-A"),
		jobDef("C", "target-C", "target-B"),
	}
}

func newManager(jobs []domain.JobDefinition, store *memStore, executor *fakeExecutor, opts ...execution.Option) *execution.Manager {
	bm := graph.NewBuildManager(jobs, nil, graph.StoreRegistry{domain.DefaultBackend: store})
	return execution.NewManager(bm.MakeBuild(), executor, opts...)
}

func withMaxRetries(n int) execution.Option {
	cfg := domain.DefaultSchedulerConfig()
	cfg.MaxRetries = n
	return execution.WithConfig(cfg)
}
