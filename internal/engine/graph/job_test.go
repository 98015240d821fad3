package graph_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports/mocks"
	"go.trai.ch/builder/internal/engine/graph"
	"go.uber.org/mock/gomock"
)

func (f *fixture) add(t *testing.T, id string, opts graph.AddOptions) {
	t.Helper()
	_, err := f.g.Add(id, domain.BuildContext{}, opts)
	require.NoError(t, err)
}

func (f *fixture) job(t *testing.T, id string) *graph.Job {
	t.Helper()
	j, err := f.g.Job(id)
	require.NoError(t, err)
	return j
}

// refresh re-reads every target and drops every job's cached state.
func (f *fixture) refresh(t *testing.T) {
	t.Helper()
	require.NoError(t, f.g.BulkRefreshTargets(false))
	for _, j := range f.g.Jobs() {
		j.Invalidate()
	}
}

func TestJob_ConsumerRunsOnceProducerFinished(t *testing.T) {
	f := newFixture(chain()[:2])
	f.add(t, "B", graph.AddOptions{})
	a, b := f.job(t, "A"), f.job(t, "B")

	assert.True(t, a.ShouldRun(f.g))
	assert.False(t, b.Buildable(f.g))
	assert.True(t, b.ParentsShouldRun(f.g))
	assert.False(t, b.ShouldRun(f.g))

	f.store.set("target-A", at(1, 40))
	f.refresh(t)

	assert.False(t, a.ShouldRun(f.g))
	assert.True(t, b.ShouldRun(f.g))
}

func TestJob_ZeroTargetsAlwaysStale(t *testing.T) {
	f := newFixture([]domain.JobDefinition{jobDef("cron", nil, nil)})
	f.add(t, "cron", graph.AddOptions{})

	_, stale := f.job(t, "cron").MinimumTargetMtime(f.g)
	assert.True(t, stale)
	assert.True(t, f.job(t, "cron").Stale(f.g))
}

func TestJob_DependencyNewerThanTarget(t *testing.T) {
	f := newFixture(chain()[:2])
	f.add(t, "B", graph.AddOptions{})
	b := f.job(t, "B")

	f.store.set("target-A", at(1, 0))
	f.store.set("target-B", at(2, 0))
	f.refresh(t)
	assert.False(t, b.Stale(f.g))

	f.store.set("target-A", at(3, 0))
	f.refresh(t)
	assert.True(t, b.Stale(f.g))
	assert.True(t, b.DependencyNewerThan(f.g, at(2, 0)))
	assert.False(t, b.DependencyNewerThan(f.g, at(3, 0)))
}

func TestJob_StaleIsMonotonic(t *testing.T) {
	f := newFixture(chain()[:2])
	f.add(t, "B", graph.AddOptions{})
	b := f.job(t, "B")

	f.store.set("target-A", at(3, 0))
	f.store.set("target-B", at(2, 0))
	require.NoError(t, f.g.BulkRefreshTargets(false))
	require.True(t, b.Stale(f.g))

	f.store.set("target-B", at(4, 0))
	require.NoError(t, f.g.BulkRefreshTargets(false))
	assert.True(t, b.Stale(f.g))

	b.UpdateStale(f.g, false)
	assert.True(t, b.Stale(f.g))

	b.Invalidate()
	assert.False(t, b.Stale(f.g))
}

func TestJob_IgnoreMtime(t *testing.T) {
	jobs := []domain.JobDefinition{
		jobDef("B", specs("target-B"), []domain.TargetSpec{ignored(spec("target-A"))}),
		{
			ID: "C",
			Targets: map[domain.TargetKind][]domain.TargetSpec{
				domain.Produces: {spec("target-C"), ignored(spec("log-C"))},
			},
			Dependencies: map[domain.DependencyKind][]domain.TargetSpec{
				domain.Depends: {spec("input")},
			},
		},
	}
	f := newFixture(jobs)
	f.add(t, "B", graph.AddOptions{})
	f.add(t, "C", graph.AddOptions{})

	f.store.set("target-A", at(5, 0))
	f.store.set("target-B", at(1, 0))
	f.store.set("input", at(2, 0))
	f.store.set("target-C", at(3, 0))
	f.store.set("log-C", at(1, 0))
	f.refresh(t)

	assert.False(t, f.job(t, "B").Stale(f.g))

	minimum, stale := f.job(t, "C").MinimumTargetMtime(f.g)
	assert.False(t, stale)
	assert.Equal(t, at(3, 0), minimum)
	assert.False(t, f.job(t, "C").Stale(f.g))
}

func alternatesJobs() []domain.JobDefinition {
	return []domain.JobDefinition{
		{
			ID: "A",
			Targets: map[domain.TargetKind][]domain.TargetSpec{
				domain.Produces:   {spec("target-A")},
				domain.Alternates: {spec("alt-A")},
			},
			Dependencies: map[domain.DependencyKind][]domain.TargetSpec{
				domain.Depends: {spec("input")},
			},
		},
		jobDef("B", specs("target-B"), specs("target-A")),
	}
}

func TestJob_AlternatesSatisfyMissingProduct(t *testing.T) {
	f := newFixture(alternatesJobs())
	f.add(t, "A", graph.AddOptions{})
	a := f.job(t, "A")

	f.store.set("input", at(1, 0))
	f.store.set("alt-A", at(2, 0))
	f.refresh(t)

	minimum, stale := a.MinimumTargetMtime(f.g)
	assert.False(t, stale)
	assert.Equal(t, at(2, 0), minimum)
	assert.False(t, a.Stale(f.g))

	f.store.remove("alt-A")
	f.refresh(t)
	assert.True(t, a.Stale(f.g))
}

func TestJob_StalePropagatesToCreatorsOfMissingDependencies(t *testing.T) {
	f := newFixture(alternatesJobs())
	f.add(t, "B", graph.AddOptions{})
	a, b := f.job(t, "A"), f.job(t, "B")

	f.store.set("input", at(1, 0))
	f.store.set("alt-A", at(2, 0))
	f.refresh(t)

	require.True(t, b.Stale(f.g))
	assert.True(t, a.Stale(f.g))
	assert.True(t, a.ShouldRun(f.g))
	assert.False(t, b.ShouldRun(f.g))
}

func TestJob_AlternatesOnly(t *testing.T) {
	f := newFixture([]domain.JobDefinition{{
		ID: "mirror",
		Targets: map[domain.TargetKind][]domain.TargetSpec{
			domain.Alternates: {spec("m1"), spec("m2")},
		},
	}})
	f.add(t, "mirror", graph.AddOptions{})
	j := f.job(t, "mirror")

	f.store.set("m1", at(3, 0))
	f.store.set("m2", at(2, 0))
	f.refresh(t)
	minimum, stale := j.MinimumTargetMtime(f.g)
	assert.False(t, stale)
	assert.Equal(t, at(2, 0), minimum)

	f.store.remove("m2")
	f.refresh(t)
	assert.True(t, j.Stale(f.g))
}

func TestJob_BuildableOneOrMore(t *testing.T) {
	jobs := []domain.JobDefinition{
		jobDef("A", specs("target-A"), nil),
		{
			ID:      "B",
			Targets: map[domain.TargetKind][]domain.TargetSpec{domain.Produces: {spec("target-B")}},
			Dependencies: map[domain.DependencyKind][]domain.TargetSpec{
				domain.DependsOneOrMore: {grouped(spec("target-A"), "any"), grouped(spec("target-C"), "any")},
			},
		},
	}
	f := newFixture(jobs)
	f.add(t, "B", graph.AddOptions{})
	b := f.job(t, "B")

	assert.False(t, b.Buildable(f.g))

	f.store.set("target-A", at(1, 0))
	f.refresh(t)
	assert.True(t, b.Buildable(f.g))
	assert.False(t, b.AllDependenciesExist(f.g))
	assert.True(t, b.ShouldRun(f.g))
}

func TestJob_CacheTime(t *testing.T) {
	x := jobDef("X", specs("target-X"), specs("input"))
	x.CacheTime = domain.MustParseTimeStep("5min")
	f := newFixture([]domain.JobDefinition{x})
	f.add(t, "X", graph.AddOptions{})
	j := f.job(t, "X")

	now := f.clock.Now()
	f.store.set("target-X", now.Add(-time.Minute))
	f.store.set("input", now)
	f.refresh(t)

	assert.False(t, j.PastCacheTime(f.g))
	assert.False(t, j.Stale(f.g))
	assert.True(t, j.IgnoresParents())
	assert.False(t, j.ParentsShouldRun(f.g))

	f.clock.Advance(5 * time.Minute)
	j.Invalidate()
	assert.True(t, j.PastCacheTime(f.g))
	assert.True(t, j.Stale(f.g))
	assert.True(t, j.ShouldRun(f.g))
}

func TestJob_CacheTimeAncestorDoesNotDefer(t *testing.T) {
	jobs := []domain.JobDefinition{
		jobDef("A", specs("target-A"), specs("input")),
		jobDef("B", specs("target-B"), specs("target-A")),
	}
	jobs[0].CacheTime = domain.MustParseTimeStep("1h")
	f := newFixture(jobs)
	f.add(t, "B", graph.AddOptions{})
	a, b := f.job(t, "A"), f.job(t, "B")

	f.store.set("input", at(11, 0))
	f.store.set("target-A", at(10, 0))
	f.refresh(t)

	require.True(t, a.ShouldRunImmediate(f.g))
	assert.False(t, b.ParentsShouldRun(f.g))
	assert.True(t, b.ShouldRun(f.g))
}

func TestJob_TopDownDeferral(t *testing.T) {
	f := newFixture(chain())
	f.add(t, "C", graph.AddOptions{})

	f.store.set("target-A", at(1, 0))
	f.store.set("target-B", at(2, 0))
	f.store.set("target-C", at(3, 0))
	f.refresh(t)

	for _, id := range []string{"A", "B", "C"} {
		assert.False(t, f.job(t, id).ShouldRun(f.g), id)
	}

	f.store.remove("target-A")
	f.refresh(t)

	assert.True(t, f.job(t, "A").ShouldRun(f.g))
	assert.False(t, f.job(t, "B").ShouldRun(f.g))
	assert.False(t, f.job(t, "C").ShouldRun(f.g))
	assert.True(t, f.job(t, "C").ParentsShouldRun(f.g))
}

func TestJob_Curfew(t *testing.T) {
	jobs := []domain.JobDefinition{{
		ID:       "hourly",
		FileStep: domain.MustParseTimeStep("1h"),
		Curfew:   domain.MustParseTimeStep("10min"),
		Targets: map[domain.TargetKind][]domain.TargetSpec{
			domain.Produces: {stepSpec("out-%H", "1h")},
		},
		Dependencies: map[domain.DependencyKind][]domain.TargetSpec{
			domain.DependsOneOrMore: {grouped(stepSpec("in-%H%M", "30min"), "in")},
		},
	}}
	f := newFixture(jobs)
	_, err := f.g.AddJob("hourly", domain.BuildContext{StartTime: at(11, 0)}, graph.AddOptions{})
	require.NoError(t, err)
	j := f.job(t, "hourly_2015-01-01-11-00-00")

	deps, err := f.g.DependencyIDs(j.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"in-1100", "in-1130"}, deps)

	f.store.set("in-1100", at(11, 29))
	f.refresh(t)

	assert.True(t, j.Buildable(f.g))
	assert.False(t, j.AllDependenciesExist(f.g))
	assert.False(t, j.PastCurfew(f.g))
	assert.False(t, j.ShouldRun(f.g))

	f.store.set("in-1130", at(11, 59))
	f.refresh(t)
	assert.True(t, j.ShouldRun(f.g))

	f.store.remove("in-1130")
	f.refresh(t)
	require.False(t, j.ShouldRun(f.g))

	f.clock.Advance(11 * time.Minute)
	j.Invalidate()
	assert.True(t, j.PastCurfew(f.g))
	assert.True(t, j.ShouldRun(f.g))
}

func TestJob_ForceAndFailure(t *testing.T) {
	f := newFixture(chain()[:1])
	f.add(t, "A", graph.AddOptions{})
	a := f.job(t, "A")

	f.store.set("target-A", at(1, 0))
	f.refresh(t)
	require.False(t, a.ShouldRun(f.g))

	a.Force = true
	assert.True(t, a.ShouldRun(f.g))

	a.SetFailed()
	assert.True(t, a.Failed())
	assert.False(t, a.Force)
	assert.False(t, a.ShouldRun(f.g))

	f.store.remove("target-A")
	f.refresh(t)
	assert.False(t, a.ShouldRun(f.g))

	a.Reset()
	assert.False(t, a.Failed())
	assert.True(t, a.ShouldRun(f.g))
}

func TestJob_AlwaysForceAndMeta(t *testing.T) {
	jobs := []domain.JobDefinition{
		jobDef("always", specs("t1"), nil),
		jobDef("placeholder", specs("t2"), nil),
	}
	jobs[0].AlwaysForce = true
	jobs[1].Meta = true
	f := newFixture(jobs)
	f.add(t, "always", graph.AddOptions{})
	f.add(t, "placeholder", graph.AddOptions{})

	f.store.set("t1", at(1, 0))
	f.refresh(t)
	assert.True(t, f.job(t, "always").ShouldRunImmediate(f.g))

	p := f.job(t, "placeholder")
	assert.True(t, p.Stale(f.g))
	assert.False(t, p.ShouldRunImmediate(f.g))
	p.Force = true
	assert.False(t, p.ShouldRunImmediate(f.g))
	assert.True(t, p.ShouldRun(f.g))
}

func TestJob_ParentJobsAndSnapshot(t *testing.T) {
	f := newFixture(chain())
	f.add(t, "C", graph.AddOptions{})

	parents := f.job(t, "C").ParentJobs(f.g)
	require.Len(t, parents, 1)
	assert.Equal(t, "B", parents[0].ID())

	state := f.job(t, "A").Snapshot(f.g)
	assert.Equal(t, "A", state.ID)
	assert.True(t, state.Stale)
	assert.True(t, state.ShouldRun)
	assert.False(t, state.ParentsShouldRun)
}

func TestBuildGraph_UnknownBackendTreatedAsMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any()).AnyTimes()
	logger.EXPECT().Error(gomock.Any()).Times(1)

	s := spec("remote")
	s.Backend = "s3"
	jobs := []domain.JobDefinition{jobDef("A", []domain.TargetSpec{s}, nil)}
	m := graph.NewBuildManager(jobs, nil, graph.StoreRegistry{}, graph.WithLogger(logger))
	g := m.MakeBuild()
	_, err := g.AddJob("A", domain.BuildContext{}, graph.AddOptions{})
	require.NoError(t, err)

	_, exists, err := g.TargetMtime("remote")
	require.NoError(t, err)
	assert.False(t, exists)

	err = g.RefreshTargets([]string{"remote"})
	require.ErrorContains(t, err, domain.ErrUnknownBackend.Error())
}

func TestBuildGraph_RefreshTargetsUsesBulkLookup(t *testing.T) {
	f := newFixture(chain())
	f.add(t, "C", graph.AddOptions{})
	f.store.set("target-A", at(1, 0))

	before := f.store.calls
	require.NoError(t, f.g.BulkRefreshTargets(true))
	assert.Equal(t, before+1, f.store.calls)

	mtime, exists, err := f.g.TargetMtime("target-A")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, at(1, 0), mtime)
	assert.Equal(t, before+1, f.store.calls)

	require.NoError(t, f.g.BulkRefreshTargets(true))
	assert.Equal(t, before+1, f.store.calls)

	require.NoError(t, f.g.BulkRefreshTargets(false))
	assert.Equal(t, before+2, f.store.calls)
}

func TestBuildGraph_RefreshKeepsPartialStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockTargetStore(ctrl)
	store.EXPECT().Mtime(gomock.Any()).DoAndReturn(func(ref domain.TargetRef) (time.Time, bool, error) {
		return at(0, 30), ref.ID == "target-A2", nil
	}).AnyTimes()

	jobs := []domain.JobDefinition{jobDef("A", specs("target-A", "target-A2"), nil)}
	m := graph.NewBuildManager(jobs, nil, graph.StoreRegistry{domain.DefaultBackend: store})
	g := m.MakeBuild()
	_, err := g.AddJob("A", domain.BuildContext{}, graph.AddOptions{})
	require.NoError(t, err)

	_, exists, err := g.TargetMtime("target-A")
	require.NoError(t, err)
	require.False(t, exists)
	_, exists, err = g.TargetMtime("target-A2")
	require.NoError(t, err)
	require.True(t, exists)

	store.EXPECT().BulkMtime(gomock.Any()).Return(map[string]domain.TargetStat{
		"target-A": {Exists: true, Mtime: at(1, 0)},
	}, errors.New("permission denied"))

	err = g.RefreshTargets([]string{"target-A", "target-A2"})
	require.ErrorContains(t, err, "permission denied")

	mtime, exists, err := g.TargetMtime("target-A")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, mtime.Equal(at(1, 0)))

	_, exists, err = g.TargetMtime("target-A2")
	require.NoError(t, err)
	assert.False(t, exists)
}
