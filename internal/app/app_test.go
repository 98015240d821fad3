package app_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/builder/internal/adapters/fs"
	"go.trai.ch/builder/internal/adapters/logger"
	"go.trai.ch/builder/internal/adapters/shell"
	"go.trai.ch/builder/internal/adapters/telemetry"
	"go.trai.ch/builder/internal/adapters/watcher"
	"go.trai.ch/builder/internal/app"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func spec(id string) domain.TargetSpec {
	return domain.TargetSpec{Expander: domain.StandardExpander{ID: id}}
}

// chainRules returns A writing a.txt and B copying it to b.txt.
func chainRules(stateFile string) *domain.Rules {
	settings := domain.DefaultSchedulerConfig()
	settings.MaxRetries = 1
	settings.StateFile = stateFile
	return &domain.Rules{
		Jobs: []domain.JobDefinition{
			{
				ID:      "A",
				Command: "echo a > a.txt",
				Targets: map[domain.TargetKind][]domain.TargetSpec{domain.Produces: {spec("a.txt")}},
			},
			{
				ID:           "B",
				Command:      "cp a.txt b.txt",
				Targets:      map[domain.TargetKind][]domain.TargetSpec{domain.Produces: {spec("b.txt")}},
				Dependencies: map[domain.DependencyKind][]domain.TargetSpec{domain.Depends: {spec("a.txt")}},
			},
		},
		Metas:    []domain.MetaTarget{{ID: "all", Jobs: []string{"B"}}},
		Settings: settings,
	}
}

type fixture struct {
	app    *app.App
	loader *mocks.MockConfigLoader
	dir    string
	logs   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	dir := t.TempDir()

	logs := new(bytes.Buffer)
	log := logger.New()
	log.SetOutput(logs)

	loader := mocks.NewMockConfigLoader(ctrl)
	a := app.New(
		loader,
		log,
		shell.NewExecutor(log, shell.WithDir(dir)),
		telemetry.NewNoOp(),
		fs.NewLocalStore(dir, fs.NewWalker()),
		fs.NewGlobStore(dir),
	).WithWatcher(watcher.New(dir, log).WithWindow(10 * time.Millisecond))
	return &fixture{app: a, loader: loader, dir: dir, logs: logs}
}

func TestApp_RunBuildsChain(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(".").Return(chainRules(""), nil)

	err := f.app.Run(context.Background(), "B", app.RunOptions{})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(f.dir, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(content))
}

func TestApp_RunMeta(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load("rules.yaml").Return(chainRules(""), nil)

	err := f.app.Run(context.Background(), "all", app.RunOptions{
		SessionOptions: app.SessionOptions{Rules: "rules.yaml"},
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.dir, "b.txt"))
}

func TestApp_RunSkipsUpToDateJobs(t *testing.T) {
	f := newFixture(t)
	rules := chainRules("")
	rules.Jobs[0].Command = "exit 1"
	f.loader.EXPECT().Load(".").Return(rules, nil)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "a.txt"), []byte("old\n"), 0o600))
	require.NoError(t, os.Chtimes(filepath.Join(f.dir, "a.txt"), old, old))

	err := f.app.Run(context.Background(), "B", app.RunOptions{})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(f.dir, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(content))
}

func TestApp_RunFailedJob(t *testing.T) {
	f := newFixture(t)
	rules := chainRules("")
	rules.Jobs[0].Command = "exit 3"
	f.loader.EXPECT().Load(".").Return(rules, nil)

	err := f.app.Run(context.Background(), "B", app.RunOptions{})
	require.Error(t, err)
	assert.True(t, domain.IsError(err, domain.ErrBuildExecutionFailed))
	assert.NoFileExists(t, filepath.Join(f.dir, "b.txt"))
}

func TestApp_RunDryRun(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(".").Return(chainRules(""), nil)

	err := f.app.Run(context.Background(), "B", app.RunOptions{
		SessionOptions: app.SessionOptions{DryRun: true},
		Quiet:          true,
	})
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(f.dir, "a.txt"))
	assert.NoFileExists(t, filepath.Join(f.dir, "b.txt"))
	assert.Contains(t, f.logs.String(), "Simulation: echo a > a.txt")
	assert.Contains(t, f.logs.String(), "Simulation: cp a.txt b.txt")
}

func TestApp_RunRecordsLedgerTargets(t *testing.T) {
	f := newFixture(t)
	stateFile := filepath.Join(f.dir, "state", "targets.json")
	rules := chainRules(stateFile)
	rules.Jobs[0].Targets[domain.Produces] = []domain.TargetSpec{{
		Expander: domain.StandardExpander{ID: "marker-A"},
		Backend:  "recorded",
	}}
	rules.Jobs[0].Command = "echo a > a.txt"
	rules.Jobs[1].Dependencies[domain.Depends] = []domain.TargetSpec{{
		Expander: domain.StandardExpander{ID: "marker-A"},
		Backend:  "recorded",
	}}
	f.loader.EXPECT().Load(".").Return(rules, nil)

	require.NoError(t, f.app.Run(context.Background(), "B", app.RunOptions{}))
	assert.FileExists(t, filepath.Join(f.dir, "b.txt"))

	content, err := os.ReadFile(stateFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "marker-A")
}

func TestApp_RunErrors(t *testing.T) {
	t.Run("no job", func(t *testing.T) {
		f := newFixture(t)
		err := f.app.Run(context.Background(), "", app.RunOptions{})
		require.ErrorContains(t, err, domain.ErrNoJobSpecified.Error())
	})

	t.Run("load failure", func(t *testing.T) {
		f := newFixture(t)
		f.loader.EXPECT().Load(".").Return(nil, errors.New("load failed"))
		err := f.app.Run(context.Background(), "B", app.RunOptions{})
		require.ErrorContains(t, err, "load failed")
	})

	t.Run("unknown job", func(t *testing.T) {
		f := newFixture(t)
		f.loader.EXPECT().Load(".").Return(chainRules(""), nil)
		err := f.app.Run(context.Background(), "Z", app.RunOptions{})
		require.Error(t, err)
		assert.True(t, domain.IsError(err, domain.ErrNodeNotFound))
	})
}

func TestApp_Graph(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(".").Return(chainRules(""), nil)

	var out bytes.Buffer
	err := f.app.Graph(context.Background(), "B", app.GraphOptions{}, &out)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "job A stale buildable should_run\n")
	assert.Contains(t, got, "job B stale parents_should_run\n")
	assert.Contains(t, got, "target a.txt local missing\n")
	assert.Contains(t, got, "target b.txt local missing\n")
	assert.Contains(t, got, "edge A -> a.txt")
	assert.Contains(t, got, "edge B -> b.txt")
	assert.NoFileExists(t, filepath.Join(f.dir, "a.txt"))
}

func TestApp_GraphRequiresJob(t *testing.T) {
	f := newFixture(t)
	err := f.app.Graph(context.Background(), "", app.GraphOptions{}, new(bytes.Buffer))
	require.ErrorContains(t, err, domain.ErrNoJobSpecified.Error())
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(".").Return(chainRules(""), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := f.app.Serve(ctx, app.ServeOptions{Listen: "127.0.0.1:0", Parallelism: 2})
	require.NoError(t, err)
	assert.Contains(t, f.logs.String(), "listening on 127.0.0.1:")
}

func TestApp_ServeListenError(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(".").Return(chainRules(""), nil)

	err := f.app.Serve(context.Background(), app.ServeOptions{Listen: "256.0.0.1:bad"})
	require.ErrorContains(t, err, "listen")
}

func TestApp_ServeWatchIgnoresUnknownFiles(t *testing.T) {
	f := newFixture(t)
	rules := chainRules("")
	rules.Jobs = []domain.JobDefinition{{
		ID:           "copy",
		Command:      "cp in.txt out.txt",
		Targets:      map[domain.TargetKind][]domain.TargetSpec{domain.Produces: {spec("out.txt")}},
		Dependencies: map[domain.DependencyKind][]domain.TargetSpec{domain.Depends: {spec("in.txt")}},
	}}
	rules.Metas = nil
	f.loader.EXPECT().Load(".").Return(rules, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.app.Serve(ctx, app.ServeOptions{Listen: "127.0.0.1:0", Watch: true})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Nothing was submitted, so no target maps to in.txt.
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "in.txt"), []byte("in\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.NoFileExists(t, filepath.Join(f.dir, "out.txt"))
}

func TestApp_ServeWatchRequiresWatcher(t *testing.T) {
	a := app.New(nil, nil, nil, telemetry.NewNoOp(), nil, nil)
	err := a.Serve(context.Background(), app.ServeOptions{Watch: true})
	require.ErrorContains(t, err, domain.ErrWatcherUnavailable.Error())
}
