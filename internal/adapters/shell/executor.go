// Package shell provides the shell executor adapter.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/semaphore"
)

// DefaultShell runs job commands.
const DefaultShell = "sh"

var _ ports.Executor = (*Executor)(nil)

// Executor implements ports.Executor by running job commands through a shell.
type Executor struct {
	logger ports.Logger
	clock  clockwork.Clock
	shell  string
	dir    string

	// recorder is touched for produced targets of recordedBackend after a
	// successful run.
	recorder        ports.TargetRecorder
	recordedBackend string

	// sem bounds concurrent asynchronous runs. Nil means synchronous.
	sem *semaphore.Weighted
}

// Option configures an Executor.
type Option func(*Executor)

// WithRecorder marks produced targets of backend as built once a run succeeds.
func WithRecorder(backend string, recorder ports.TargetRecorder) Option {
	return func(e *Executor) {
		e.recordedBackend = backend
		e.recorder = recorder
	}
}

// WithAsync runs commands in the background, at most limit at a time.
func WithAsync(limit int) Option {
	return func(e *Executor) {
		if limit > 0 {
			e.sem = semaphore.NewWeighted(int64(limit))
		}
	}
}

// WithDir sets the working directory of every command.
func WithDir(dir string) Option {
	return func(e *Executor) { e.dir = dir }
}

// WithShell replaces the shell commands are run with.
func WithShell(shell string) Option {
	return func(e *Executor) { e.shell = shell }
}

// WithClock sets the clock used to timestamp recorded targets.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Executor) { e.clock = clock }
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger: logger,
		clock:  clockwork.NewRealClock(),
		shell:  DefaultShell,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// With returns a copy of the executor with opts applied.
func (e *Executor) With(opts ...Option) *Executor {
	c := *e
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Initialize checks that the shell can be found.
func (e *Executor) Initialize(_ context.Context) error {
	if filepath.IsAbs(e.shell) {
		return findExecutable(e.shell)
	}
	if _, err := lookPath(e.shell, os.Environ()); err != nil {
		return zerr.With(zerr.Wrap(err, "shell not found"), "shell", e.shell)
	}
	return nil
}

// Execute runs the invocation's command. Asynchronous executors return at
// once and deliver the result on Done.
func (e *Executor) Execute(ctx context.Context, inv domain.Invocation) (domain.ExecutionResult, error) {
	if e.sem == nil {
		return e.run(ctx, inv), nil
	}

	done := make(chan domain.ExecutionResult, 1)
	go func() {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			done <- domain.Failed(err.Error())
			return
		}
		defer e.sem.Release(1)
		done <- e.run(ctx, inv)
	}()
	return domain.ExecutionResult{Async: true, Done: done}, nil
}

func (e *Executor) run(ctx context.Context, inv domain.Invocation) domain.ExecutionResult {
	if strings.TrimSpace(inv.Command) == "" {
		return e.succeed(inv, "")
	}

	cmdEnv := resolveEnvironment(os.Environ(), contextEnvironment(inv), inv.Env)

	executable := e.shell
	if !filepath.IsAbs(executable) {
		if lp, err := lookPath(executable, cmdEnv); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, "-c", inv.Command) //nolint:gosec // user provided command
	if len(cmd.Args) > 0 {
		cmd.Args[0] = e.shell
	}
	cmd.Dir = e.dir
	cmd.Env = cmdEnv

	var stdout, stderr bytes.Buffer
	stdoutSink, stderrSink := e.sinks(ctx)
	cmd.Stdout = io.MultiWriter(&stdout, stdoutSink)
	cmd.Stderr = io.MultiWriter(&stderr, stderrSink)

	err := cmd.Run()
	flush(stdoutSink)
	flush(stderrSink)

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		failure := zerr.With(zerr.With(zerr.Wrap(err, "command failed"), "exit_code", exitCode), "job_id", inv.JobID)
		res := domain.Failed(strings.TrimSpace(stderr.String() + "\n" + failure.Error()))
		res.Stdout = stdout.String()
		return res
	}
	return e.succeed(inv, stdout.String())
}

// succeed records produced targets of the recorded backend.
func (e *Executor) succeed(inv domain.Invocation, stdout string) domain.ExecutionResult {
	if e.recorder == nil {
		return domain.Succeeded(stdout)
	}
	var refs []domain.TargetRef
	for _, ref := range inv.Produces {
		if ref.Backend == e.recordedBackend {
			refs = append(refs, ref)
		}
	}
	if err := e.recorder.Touch(e.clock.Now(), refs...); err != nil {
		res := domain.Failed(zerr.With(zerr.Wrap(err, "record targets"), "job_id", inv.JobID).Error())
		res.Stdout = stdout
		return res
	}
	return domain.Succeeded(stdout)
}

// sinks returns the streams command output is copied to: the vertex carried
// by ctx, or the logger.
func (e *Executor) sinks(ctx context.Context) (io.Writer, io.Writer) {
	if v, ok := ports.VertexFromContext(ctx); ok {
		return v.Stdout(), v.Stderr()
	}
	return &logWriter{log: e.logger.Info}, &logWriter{log: e.logger.Warn}
}

func flush(w io.Writer) {
	if lw, ok := w.(*logWriter); ok {
		lw.Flush()
	}
}

// logWriter forwards complete lines to a log function.
type logWriter struct {
	log func(string)
	buf []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.log(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *logWriter) Flush() {
	if len(w.buf) > 0 {
		w.log(string(w.buf))
		w.buf = nil
	}
}

// contextEnvironment exposes the job instance to its command.
func contextEnvironment(inv domain.Invocation) []string {
	env := []string{"BUILDER_JOB_ID=" + inv.JobID}
	if !inv.Context.StartTime.IsZero() {
		env = append(env, "BUILDER_START_TIME="+inv.Context.StartTime.Format(time.RFC3339))
	}
	if !inv.Context.EndTime.IsZero() {
		env = append(env, "BUILDER_END_TIME="+inv.Context.EndTime.Format(time.RFC3339))
	}
	return env
}

// resolveEnvironment merges environment variables with the following
// priority (low to high): the system environment, the job context, and the
// job's own variables. A PATH set by the job is prepended to the system PATH.
func resolveEnvironment(sysEnv, contextEnv []string, jobEnv map[string]string) []string {
	envMap := make(map[string]string)
	for _, entries := range [][]string{sysEnv, contextEnv} {
		for _, entry := range entries {
			if k, v, ok := strings.Cut(entry, "="); ok {
				envMap[k] = v
			}
		}
	}

	for k, v := range jobEnv {
		if k == "PATH" {
			if sysPath, exists := envMap["PATH"]; exists && sysPath != "" {
				envMap[k] = v + string(os.PathListSeparator) + sysPath
				continue
			}
		}
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	return result
}

// lookPath searches for an executable in the directories named by the PATH environment variable.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
