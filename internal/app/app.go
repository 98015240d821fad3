// Package app implements the application layer for builder.
package app

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/builder/internal/adapters/dryrun"    //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/fs"        //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/httpapi"   //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/ledger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/shell"     //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/watcher"   //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/builder/internal/engine/execution"
	"go.trai.ch/builder/internal/engine/graph"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	executor     *shell.Executor
	telemetry    ports.Telemetry
	local        ports.TargetStore
	glob         ports.TargetStore
	watcher      *watcher.Watcher
	clock        clockwork.Clock
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	executor *shell.Executor,
	tel ports.Telemetry,
	local ports.TargetStore,
	glob ports.TargetStore,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		executor:     executor,
		telemetry:    tel,
		local:        local,
		glob:         glob,
		clock:        clockwork.NewRealClock(),
	}
}

// WithClock sets the clock used for scheduling decisions.
// This is primarily used for testing.
func (a *App) WithClock(clock clockwork.Clock) *App {
	a.clock = clock
	return a
}

// WithWatcher sets the file watcher used by Serve in watch mode.
func (a *App) WithWatcher(w *watcher.Watcher) *App {
	a.watcher = w
	return a
}

// SessionOptions selects the rules and how targets are resolved.
type SessionOptions struct {
	// Rules is the rules file, or a directory to search upwards from.
	Rules  string
	DryRun bool
}

// SubmitOptions describes what to add to the build graph.
type SubmitOptions struct {
	Context   domain.BuildContext
	Direction domain.Direction
	Depth     int
	Force     bool
}

func (o SubmitOptions) add() graph.AddOptions {
	return graph.AddOptions{Direction: o.Direction, Depth: o.Depth, Force: o.Force}
}

// RunOptions configuration for the Run method.
type RunOptions struct {
	SessionOptions
	SubmitOptions
	// Quiet suppresses per-job output.
	Quiet bool
}

// ServeOptions configuration for the Serve method.
type ServeOptions struct {
	SessionOptions
	// Listen overrides the listen address of the rules file.
	Listen string
	// Parallelism bounds concurrently executing jobs. Zero uses the CPU count.
	Parallelism int
	// Watch refreshes local and glob targets when the files behind them change.
	Watch bool
}

// GraphOptions configuration for the Graph method.
type GraphOptions struct {
	SessionOptions
	SubmitOptions
}

// session is one loaded rules file with the stores and executor serving it.
type session struct {
	rules    *domain.Rules
	build    *graph.BuildGraph
	executor ports.Executor
}

func (a *App) newSession(opts SessionOptions, executor *shell.Executor) (*session, error) {
	path := opts.Rules
	if path == "" {
		path = "."
	}
	rules, err := a.configLoader.Load(path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}

	recorded, err := ledger.NewStore(rules.Settings.StateFile)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open target ledger")
	}
	stores := graph.StoreRegistry{
		fs.LocalBackend: a.local,
		fs.GlobBackend:  a.glob,
		ledger.Backend:  recorded,
	}

	var exec ports.Executor
	if opts.DryRun {
		simulated := ledger.NewMemoryStore()
		for backend, store := range stores {
			stores[backend] = ledger.NewOverlay(simulated, store)
		}
		exec = dryrun.NewExecutor(a.logger, simulated, a.clock)
	} else {
		exec = executor.With(shell.WithRecorder(ledger.Backend, recorded), shell.WithClock(a.clock))
	}

	bm := graph.NewBuildManager(rules.Jobs, rules.Metas, stores,
		graph.WithClock(a.clock),
		graph.WithLogger(a.logger),
	)
	return &session{rules: rules, build: bm.MakeBuild(), executor: exec}, nil
}

func (a *App) newManager(s *session, tel ports.Telemetry) *execution.Manager {
	return execution.NewManager(s.build, s.executor,
		execution.WithLogger(a.logger),
		execution.WithClock(a.clock),
		execution.WithTelemetry(tel),
		execution.WithConfig(s.rules.Settings),
	)
}

// Run builds the job or meta target id and everything it needs, and returns
// once no job is due anymore.
func (a *App) Run(ctx context.Context, id string, opts RunOptions) error {
	if id == "" {
		return domain.ErrNoJobSpecified
	}
	s, err := a.newSession(opts.SessionOptions, a.executor)
	if err != nil {
		return err
	}

	tel := a.telemetry
	if opts.Quiet {
		tel = telemetry.NewNoOp()
	}
	defer func() {
		_ = tel.Close()
	}()

	m := a.newManager(s, tel)
	update, err := m.Submit(id, opts.Context, opts.add())
	if err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("%s: %d jobs in graph, %d due", id, len(update.Jobs), len(m.JobsToRun())))

	if err := m.Start(ctx, true); err != nil {
		return zerr.Wrap(err, "execution failed")
	}

	if failed := m.Failed(); len(failed) > 0 {
		return zerr.With(domain.ErrBuildExecutionFailed, "failed_jobs", strings.Join(failed, ","))
	}
	return nil
}

// Serve runs the execution manager in the background and accepts control
// requests over HTTP until ctx is cancelled.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	if opts.Watch && a.watcher == nil {
		return domain.ErrWatcherUnavailable
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	s, err := a.newSession(opts.SessionOptions, a.executor.With(shell.WithAsync(parallelism)))
	if err != nil {
		return err
	}
	defer func() {
		_ = a.telemetry.Close()
	}()

	listen := opts.Listen
	if listen == "" {
		listen = s.rules.Settings.Listen
	}

	m := a.newManager(s, a.telemetry)
	server := httpapi.NewServer(m, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Start(gctx, false)
	})
	g.Go(func() error {
		return server.ListenAndServe(gctx, listen)
	})
	if opts.Watch {
		g.Go(func() error {
			return a.watcher.Watch(gctx, func(paths []string) {
				a.refreshChanged(m, paths)
			})
		})
	}
	return g.Wait()
}

// Graph expands id without executing anything and writes the resulting
// jobs, targets and edges to w.
func (a *App) Graph(_ context.Context, id string, opts GraphOptions, w io.Writer) error {
	if id == "" {
		return domain.ErrNoJobSpecified
	}
	s, err := a.newSession(opts.SessionOptions, a.executor)
	if err != nil {
		return err
	}
	m := a.newManager(s, telemetry.NewNoOp())
	if _, err := m.Submit(id, opts.Context, opts.add()); err != nil {
		return err
	}

	var writeErr error
	m.View(func(g *graph.BuildGraph) {
		writeErr = writeGraph(w, g)
	})
	return writeErr
}

func writeGraph(w io.Writer, g *graph.BuildGraph) error {
	p := &printer{w: w}
	for _, id := range g.SortedJobIDs() {
		job, err := g.Job(id)
		if err != nil {
			return err
		}
		s := job.Snapshot(g)
		p.printf("job %s", id)
		p.flag(s.Stale, "stale")
		p.flag(s.Buildable, "buildable")
		p.flag(s.ShouldRun, "should_run")
		p.flag(s.ParentsShouldRun, "parents_should_run")
		p.flag(s.Force, "force")
		p.flag(job.Meta(), "meta")
		p.printf("\n")
	}
	for id, t := range g.Targets() {
		mtime, exists := t.Mtime(g)
		if exists {
			p.printf("target %s %s %s\n", id, t.Backend(), mtime.UTC().Format("2006-01-02T15:04:05Z"))
		} else {
			p.printf("target %s %s missing\n", id, t.Backend())
		}
	}
	for _, e := range g.Edges() {
		p.printf("edge %s -> %s", e.From, e.To)
		if e.Label != "" {
			p.printf(" %s", e.Label)
		}
		p.flag(e.IgnoreMtime, "ignore_mtime")
		p.printf("\n")
	}
	return p.err
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) flag(set bool, name string) {
	if set {
		p.printf(" %s", name)
	}
}
