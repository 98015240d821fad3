// Package execution drives a build graph: it queues the jobs that are due,
// hands them to an executor and folds their results back into the graph.
package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/builder/internal/engine/graph"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// run tracks one in-flight execution of a job.
type run struct {
	seq     uint64
	started time.Time
	vertex  ports.Vertex
}

// JobState is a job's scheduling state together with its reported status.
type JobState struct {
	graph.State
	Status domain.JobStatus
}

// Manager schedules the jobs of one build graph.
//
// Every graph access happens under mu, which is held only for the mutation
// itself: executors are always invoked outside the lock.
type Manager struct {
	build     *graph.BuildGraph
	executor  ports.Executor
	logger    ports.Logger
	telemetry ports.Telemetry
	clock     clockwork.Clock
	cfg       domain.SchedulerConfig

	mu       sync.Mutex
	status   map[string]domain.JobStatus
	inflight map[string]run
	seq      uint64
	cancel   context.CancelFunc

	work      *queue
	completed *queue
	running   atomic.Bool
}

// NewManager creates a Manager for build.
func NewManager(build *graph.BuildGraph, executor ports.Executor, opts ...Option) *Manager {
	m := &Manager{
		build:     build,
		executor:  executor,
		logger:    nopLogger{},
		telemetry: nopTelemetry{},
		clock:     clockwork.NewRealClock(),
		cfg:       domain.DefaultSchedulerConfig(),
		status:    make(map[string]domain.JobStatus),
		inflight:  make(map[string]run),
		work:      newQueue(),
		completed: newQueue(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.PollTimeout <= 0 {
		m.cfg.PollTimeout = time.Second
	}
	if m.cfg.TimeoutPoll <= 0 {
		m.cfg.TimeoutPoll = 10 * time.Second
	}
	return m
}

// Build returns the build graph. Callers must not use it concurrently with a
// running Manager; use View instead.
func (m *Manager) Build() *graph.BuildGraph { return m.build }

// Config returns the scheduler settings.
func (m *Manager) Config() domain.SchedulerConfig { return m.cfg }

// Running reports whether Start is executing.
func (m *Manager) Running() bool { return m.running.Load() }

// View runs fn with the graph lock held.
func (m *Manager) View(fn func(g *graph.BuildGraph)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.build)
}

// Submit adds a job definition or meta target to the graph and queues the
// jobs that became due. A forced context forces the expanded jobs.
func (m *Manager) Submit(id string, ctx domain.BuildContext, opts graph.AddOptions) (*domain.BuildUpdate, error) {
	if ctx.Force {
		opts.Force = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	update, err := m.build.Add(id, ctx, opts)
	if err != nil {
		return nil, zerr.Wrap(err, "submit "+id)
	}
	m.logger.Debug(fmt.Sprintf("submitted %s: %d new jobs, %d new targets", id, len(update.NewJobs), len(update.NewTargets)))

	for jobID := range update.NewJobs {
		m.status[jobID] = domain.JobStatusPending
	}
	_ = m.updateTargets(update.NewTargets.Sorted())

	touched := domain.NewIDSet()
	touched.Union(update.NewJobs)
	touched.Union(update.NewlyForced)
	for _, jobID := range touched.Sorted() {
		m.updateParentsShouldRun(jobID)
		m.enqueue(m.nextJobsToRun(jobID)...)
	}
	return update, nil
}

// UpdateTargets refreshes the given targets from their stores.
func (m *Manager) UpdateTargets(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTargets(ids)
}

func (m *Manager) updateTargets(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m.logger.Debug(fmt.Sprintf("updating %d targets", len(ids)))
	if err := m.build.RefreshTargets(ids); err != nil {
		m.logger.Warn(fmt.Sprintf("refreshing targets: %v", err))
		return err
	}
	return nil
}

// ExternalUpdateTargets refreshes targets changed outside the manager,
// re-evaluates the jobs around them and queues what became due. Creators are
// re-evaluated, or dependents for targets nothing creates.
func (m *Manager) ExternalUpdateTargets(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.externalUpdateTargets(ids)
}

func (m *Manager) externalUpdateTargets(ids []string) error {
	err := m.updateTargets(ids)

	jobs := domain.NewIDSet()
	for _, id := range ids {
		if !m.build.IsTarget(id) {
			continue
		}
		related, _ := m.build.CreatorIDs(id)
		if len(related) == 0 {
			related, _ = m.build.DependentIDs(id)
		}
		for _, jobID := range related {
			jobs.Add(jobID)
		}
	}

	sorted := jobs.Sorted()
	m.logger.Debug(fmt.Sprintf("after updating targets, %d jobs are being updated", len(sorted)))
	for _, jobID := range sorted {
		m.updateParentsShouldRun(jobID)
	}
	for _, jobID := range sorted {
		m.enqueue(m.nextJobsToRun(jobID)...)
	}
	return err
}

// UpdateTopMost refreshes every target with no incoming edge.
func (m *Manager) UpdateTopMost() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.externalUpdateTargets(m.build.TopMostTargetIDs())
}

// UpdateParentsShouldRun re-evaluates the job and pushes the result down to
// its dependents.
func (m *Manager) UpdateParentsShouldRun(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.build.Job(jobID); err != nil {
		return err
	}
	m.updateParentsShouldRun(jobID)
	return nil
}

func (m *Manager) dependentsOf(jobID string) []string {
	var out []string
	targets, _ := m.build.TargetIDs(jobID)
	for _, targetID := range targets {
		dependents, _ := m.build.DependentIDs(targetID)
		out = append(out, dependents...)
	}
	return out
}

func (m *Manager) updateParentsShouldRun(jobID string) {
	g := m.build
	job, err := g.Job(jobID)
	if err != nil {
		return
	}
	job.Invalidate()

	dependents := m.dependentsOf(jobID)
	visited := make(map[string]struct{})
	if job.ShouldRun(g) || job.ParentsShouldRun(g) {
		for _, id := range dependents {
			m.parentsShouldRunRecurse(id, visited)
		}
		return
	}
	for _, id := range dependents {
		m.parentsShouldNotRunRecurse(id, visited)
	}
}

// parentsShouldRunRecurse invalidates dependents until one already knows an
// ancestor is due or ignores its ancestors.
func (m *Manager) parentsShouldRunRecurse(jobID string, visited map[string]struct{}) {
	if _, ok := visited[jobID]; ok {
		return
	}
	visited[jobID] = struct{}{}

	g := m.build
	job, err := g.Job(jobID)
	if err != nil {
		return
	}
	if job.ParentsShouldRun(g) || job.IgnoresParents() {
		return
	}
	job.Invalidate()
	for _, id := range m.dependentsOf(jobID) {
		m.parentsShouldRunRecurse(id, visited)
	}
}

// parentsShouldNotRunRecurse invalidates dependents until one is itself due
// or still waits on another ancestor.
func (m *Manager) parentsShouldNotRunRecurse(jobID string, visited map[string]struct{}) {
	if _, ok := visited[jobID]; ok {
		return
	}
	visited[jobID] = struct{}{}

	g := m.build
	job, err := g.Job(jobID)
	if err != nil {
		return
	}
	if job.IgnoresParents() {
		return
	}
	job.Invalidate()
	if job.ParentsShouldRun(g) || job.ShouldRun(g) {
		return
	}
	for _, id := range m.dependentsOf(jobID) {
		m.parentsShouldNotRunRecurse(id, visited)
	}
}

// NextJobsToRun walks down from the job and returns the first jobs on each
// branch that are due. Jobs that are not due are walked through.
func (m *Manager) NextJobsToRun(jobID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.build.Job(jobID); err != nil {
		return nil, err
	}
	return m.nextJobsToRun(jobID), nil
}

func (m *Manager) nextJobsToRun(jobID string) []string {
	var out []string
	m.collectNextJobs(jobID, make(map[string]struct{}), &out)
	return out
}

func (m *Manager) collectNextJobs(jobID string, visited map[string]struct{}, out *[]string) {
	if _, ok := visited[jobID]; ok {
		return
	}
	visited[jobID] = struct{}{}

	job, err := m.build.Job(jobID)
	if err != nil {
		return
	}
	if job.ShouldRun(m.build) {
		*out = append(*out, jobID)
		return
	}
	for _, id := range m.dependentsOf(jobID) {
		m.collectNextJobs(id, visited, out)
	}
}

// JobsToRun returns every job of the graph that is due.
func (m *Manager) JobsToRun() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobsToRun()
}

func (m *Manager) jobsToRun() []string {
	var out []string
	for id, job := range m.build.Jobs() {
		if job.ShouldRun(m.build) {
			out = append(out, id)
		}
	}
	return out
}

// enqueue pushes due jobs that are not already queued or running.
func (m *Manager) enqueue(ids ...string) {
	for _, id := range ids {
		job, err := m.build.Job(id)
		if err != nil || job.IsRunning {
			continue
		}
		job.IsRunning = true
		m.status[id] = domain.JobStatusQueued
		m.work.push(id)
		m.logger.Debug(fmt.Sprintf("queued %s, %d jobs waiting", id, m.work.len()))
	}
}

// Execute runs the job through the executor. Synchronous results are folded
// into the graph before Execute returns; asynchronous ones when they arrive.
func (m *Manager) Execute(ctx context.Context, jobID string) (domain.ExecutionResult, error) {
	return m.execute(ctx, jobID, false)
}

func (m *Manager) execute(ctx context.Context, jobID string, wait bool) (domain.ExecutionResult, error) {
	m.mu.Lock()
	job, err := m.build.Job(jobID)
	if err != nil {
		m.mu.Unlock()
		return domain.ExecutionResult{}, err
	}
	inv := m.invocation(job)
	job.IsRunning = true
	m.seq++
	r := run{seq: m.seq, started: m.clock.Now()}
	m.status[jobID] = domain.JobStatusRunning
	m.mu.Unlock()

	vctx, vertex := m.telemetry.Record(ctx, jobID, ports.WithGroup(inv.TemplateID))
	r.vertex = vertex
	m.mu.Lock()
	m.inflight[jobID] = r
	m.mu.Unlock()

	m.logger.Info(fmt.Sprintf("executing %s: %s", jobID, inv.Command))
	res, err := m.executor.Execute(vctx, inv)
	if err != nil {
		m.logger.Error(zerr.With(zerr.Wrap(err, "execute"), "job_id", jobID))
		res = domain.Failed(err.Error())
	}

	if !res.Async {
		m.complete(jobID, r, res)
		return res, nil
	}
	if wait {
		final := m.await(ctx, res.Done)
		m.complete(jobID, r, final)
		return final, nil
	}
	go func() {
		final := m.await(ctx, res.Done)
		if ctx.Err() != nil {
			return
		}
		m.complete(jobID, r, final)
	}()
	return res, nil
}

func (m *Manager) await(ctx context.Context, done <-chan domain.ExecutionResult) domain.ExecutionResult {
	select {
	case res, ok := <-done:
		if !ok {
			return domain.Failed("executor closed the result channel")
		}
		return res
	case <-ctx.Done():
		return domain.Failed(ctx.Err().Error())
	}
}

func (m *Manager) invocation(job *graph.Job) domain.Invocation {
	inv := domain.Invocation{
		JobID:      job.ID(),
		TemplateID: job.TemplateID(),
		Command:    job.Command(),
		Env:        job.Definition().Env,
		Context:    job.Context(),
	}
	edges, _ := m.build.TargetRelationships(job.ID())
	for _, e := range edges {
		if e.Kind != domain.Produces {
			continue
		}
		t, err := m.build.Target(e.TargetID)
		if err != nil {
			continue
		}
		inv.Produces = append(inv.Produces, t.Ref())
	}
	return inv
}

// complete folds a result into the graph unless the run was already settled
// by the timeout checker.
func (m *Manager) complete(jobID string, r run, res domain.ExecutionResult) {
	m.mu.Lock()
	current, ok := m.inflight[jobID]
	if !ok || current.seq != r.seq {
		m.mu.Unlock()
		m.logger.Debug(fmt.Sprintf("discarding late result for %s", jobID))
		return
	}
	delete(m.inflight, jobID)
	err := m.finishJob(jobID, res)
	m.mu.Unlock()

	if err != nil {
		m.logger.Error(err)
	}
	if res.Status {
		r.vertex.Complete(nil)
		return
	}
	r.vertex.Complete(zerr.With(domain.ErrExecutionFailed, "job_id", jobID))
}

// FinishJob records the result of a run: it refreshes the job's targets,
// re-evaluates its dependents and retries or fails the job.
func (m *Manager) FinishJob(jobID string, res domain.ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, jobID)
	return m.finishJob(jobID, res)
}

func (m *Manager) finishJob(jobID string, res domain.ExecutionResult) error {
	g := m.build
	job, err := g.Job(jobID)
	if err != nil {
		return err
	}
	m.logger.Info(fmt.Sprintf("job %s complete, status: %t", jobID, res.Status))
	if res.Stdout != "" {
		m.logger.Debug(fmt.Sprintf("%s(stdout): %s", jobID, res.Stdout))
	}
	if res.Stderr != "" {
		m.logger.Debug(fmt.Sprintf("%s(stderr): %s", jobID, res.Stderr))
	}

	job.LastRun = m.clock.Now()
	job.Retries++
	job.IsRunning = false
	job.Force = false

	targets, _ := g.TargetIDs(jobID)
	_ = m.updateTargets(targets)
	m.updateParentsShouldRun(jobID)
	for _, id := range m.dependentsOf(jobID) {
		if dependent, err := g.Job(id); err == nil {
			dependent.Invalidate()
		}
	}

	switch {
	case !job.ShouldRunImmediate(g):
		job.Retries = 0
	case job.Retries >= m.cfg.MaxRetries:
		job.SetFailed()
		job.Invalidate()
		m.logger.Error(zerr.With(zerr.With(domain.ErrMaxRetriesReached, "job_id", jobID), "retries", job.Retries))
	}

	switch {
	case job.Failed():
		m.status[jobID] = domain.JobStatusFailed
	case res.Status:
		m.status[jobID] = domain.JobStatusCompleted
	default:
		m.status[jobID] = domain.JobStatusPending
	}

	m.completed.push(jobID)
	return nil
}

// consumeCompleted queues the jobs that became due below each completed job.
func (m *Manager) consumeCompleted(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.nextJobsToRun(id)
	m.logger.Debug(fmt.Sprintf("completed %s, next jobs are %v", id, next))
	m.enqueue(next...)
}

func (m *Manager) drainCompleted() {
	for {
		id, ok := m.completed.tryPop()
		if !ok {
			return
		}
		m.consumeCompleted(id)
	}
}

// checkTimeouts fails every run older than the job timeout.
func (m *Manager) checkTimeouts() {
	now := m.clock.Now()
	var expired []run

	m.mu.Lock()
	for id, r := range m.inflight {
		if now.Sub(r.started) <= m.cfg.JobTimeout {
			continue
		}
		delete(m.inflight, id)
		m.logger.Warn(fmt.Sprintf("job %s timed out after %s", id, m.cfg.JobTimeout))
		if err := m.finishJob(id, domain.Failed(domain.ErrJobTimedOut.Error())); err != nil {
			m.logger.Error(err)
		}
		expired = append(expired, r)
	}
	m.mu.Unlock()

	for _, r := range expired {
		r.vertex.Complete(domain.ErrJobTimedOut)
	}
}

// Start executes queued jobs until the queue drains (inline) or Stop is
// called. Inline runs wait for asynchronous results one job at a time;
// otherwise completions and timeouts are handled beside the dispatch loop.
func (m *Manager) Start(ctx context.Context, inline bool) error {
	if !m.running.CompareAndSwap(false, true) {
		return domain.ErrManagerRunning
	}
	defer m.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.logger.Info("starting execution")
	if err := m.executor.Initialize(ctx); err != nil {
		return zerr.Wrap(err, "initialize executor")
	}

	m.mu.Lock()
	m.enqueue(m.jobsToRun()...)
	m.mu.Unlock()

	if inline {
		return m.runInline(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.dispatchLoop(gctx)
	})
	g.Go(func() error {
		return m.completionLoop(gctx)
	})
	if m.cfg.JobTimeout > 0 {
		g.Go(func() error {
			return m.timeoutLoop(gctx)
		})
	}
	err := g.Wait()
	m.logger.Info("execution stopped")
	return err
}

func (m *Manager) runInline(ctx context.Context) error {
	executed := 0
	for m.running.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok := m.work.tryPop()
		if !ok {
			break
		}
		if _, err := m.execute(ctx, id, true); err != nil {
			m.logger.Error(err)
		}
		executed++
		m.drainCompleted()
	}
	m.logger.Info(fmt.Sprintf("execution finished, %d jobs executed", executed))
	return nil
}

func (m *Manager) dispatchLoop(ctx context.Context) error {
	for {
		id, ok := m.work.pop(ctx, m.clock, m.cfg.PollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if !ok {
			continue
		}
		if _, err := m.execute(ctx, id, false); err != nil {
			m.logger.Error(err)
		}
	}
}

func (m *Manager) completionLoop(ctx context.Context) error {
	for {
		id, ok := m.completed.pop(ctx, m.clock, m.cfg.PollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if ok {
			m.consumeCompleted(id)
		}
	}
}

func (m *Manager) timeoutLoop(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.cfg.TimeoutPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			m.checkTimeouts()
		}
	}
}

// Stop ends a running Start. It does not interrupt a job already executing.
func (m *Manager) Stop() error {
	if !m.running.Load() {
		return domain.ErrManagerNotRunning
	}
	m.logger.Info("stopping execution")
	m.running.Store(false)
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Status returns the reported status of a job.
func (m *Manager) Status(jobID string) domain.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.status[jobID]; ok {
		return s
	}
	return domain.JobStatusPending
}

// JobState evaluates and returns the state of one job.
func (m *Manager) JobState(jobID string) (JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.build.Job(jobID)
	if err != nil {
		return JobState{}, err
	}
	return m.jobState(job), nil
}

func (m *Manager) jobState(job *graph.Job) JobState {
	status, ok := m.status[job.ID()]
	if !ok {
		status = domain.JobStatusPending
	}
	return JobState{State: job.Snapshot(m.build), Status: status}
}

// JobStates returns the state of every job in insertion order.
func (m *Manager) JobStates() []JobState {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []JobState
	for _, job := range m.build.Jobs() {
		out = append(out, m.jobState(job))
	}
	return out
}

// ResetJob clears a job's failure and retry state and queues it if due.
func (m *Manager) ResetJob(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.build.Job(jobID)
	if err != nil {
		return err
	}
	if job.IsRunning {
		return zerr.With(domain.ErrJobRunning, "job_id", jobID)
	}
	job.Reset()
	m.status[jobID] = domain.JobStatusPending
	m.updateParentsShouldRun(jobID)
	m.enqueue(m.nextJobsToRun(jobID)...)
	return nil
}

// Failed returns the ids of the jobs that failed permanently.
func (m *Manager) Failed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, job := range m.build.Jobs() {
		if job.Failed() {
			out = append(out, id)
		}
	}
	return out
}
