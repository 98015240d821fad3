// Package dryrun provides an executor that simulates job runs.
package dryrun

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Executor = (*Executor)(nil)

// Executor prints job commands instead of running them and records the
// produced targets as built, so the rest of the build proceeds as if they ran.
type Executor struct {
	logger   ports.Logger
	recorder ports.TargetRecorder
	clock    clockwork.Clock
}

// NewExecutor creates a dry-run Executor recording simulated targets in recorder.
func NewExecutor(logger ports.Logger, recorder ports.TargetRecorder, clock clockwork.Clock) *Executor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Executor{logger: logger, recorder: recorder, clock: clock}
}

// Initialize implements ports.Executor.
func (e *Executor) Initialize(_ context.Context) error {
	e.logger.Info("dry run: commands are printed, not executed")
	return nil
}

// Execute implements ports.Executor.
func (e *Executor) Execute(ctx context.Context, inv domain.Invocation) (domain.ExecutionResult, error) {
	line := fmt.Sprintf("Simulation: %s", inv.Command)
	if v, ok := ports.VertexFromContext(ctx); ok {
		_, _ = fmt.Fprintln(v.Stdout(), line)
	} else {
		e.logger.Info(line)
	}

	if err := e.recorder.Touch(e.clock.Now(), inv.Produces...); err != nil {
		return domain.ExecutionResult{}, zerr.With(zerr.Wrap(err, "record simulated targets"), "job_id", inv.JobID)
	}
	return domain.Succeeded(line), nil
}
