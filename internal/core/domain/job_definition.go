package domain

import (
	"strings"
	"time"
)

// TimestampSuffix is appended to the id of timestamped job definitions.
const TimestampSuffix = "_%Y-%m-%d-%H-%M-%S"

// Defaults for timestamped job definitions.
var (
	DefaultCurfew   = TimeStep{Count: 10, Unit: UnitMinute}
	DefaultFileStep = TimeStep{Count: 5, Unit: UnitMinute}
)

// JobDefinition is the reusable template a Job is instantiated from.
type JobDefinition struct {
	ID           string
	Command      string
	Env          map[string]string
	Targets      map[TargetKind][]TargetSpec
	Dependencies map[DependencyKind][]TargetSpec
	// CacheTime makes the job run on its own schedule and ignore its ancestors.
	CacheTime TimeStep
	// Curfew is how long after its window closes a timestamped job waits for missing inputs.
	Curfew TimeStep
	// FileStep expands the job once per step of the build context window.
	FileStep    TimeStep
	AlwaysForce bool
	Disabled    bool
	// Meta jobs are placeholders that are never due to run on their own.
	Meta bool
}

// Enabled reports whether the definition belongs in the rule graph.
func (d *JobDefinition) Enabled() bool {
	return !d.Disabled
}

// HasCacheTime reports whether a cache time is configured.
func (d *JobDefinition) HasCacheTime() bool {
	return !d.CacheTime.IsZero()
}

// Timestamped reports whether the job is expanded per time step.
func (d *JobDefinition) Timestamped() bool {
	return !d.FileStep.IsZero()
}

// ExpandableID returns the template the job instances are named from.
func (d *JobDefinition) ExpandableID() string {
	if d.Timestamped() {
		return d.ID + TimestampSuffix
	}
	return d.ID
}

// Expand returns the job instances for ctx.
func (d *JobDefinition) Expand(ctx BuildContext) ([]Expansion, error) {
	if d.Timestamped() {
		return ExpandTimestamps(d.ExpandableID(), d.FileStep, 0, ctx)
	}
	return []Expansion{{ID: d.ID, Context: ctx}}, nil
}

// CommandFor renders the command of a job instance.
// {job_id}, {start_time}, {end_time} and any context value key are substituted.
func (d *JobDefinition) CommandFor(jobID string, ctx BuildContext) string {
	if !strings.Contains(d.Command, "{") {
		return d.Command
	}
	pairs := []string{"{job_id}", jobID}
	if !ctx.StartTime.IsZero() {
		pairs = append(pairs, "{start_time}", ctx.StartTime.Format(time.RFC3339))
	}
	if !ctx.EndTime.IsZero() {
		pairs = append(pairs, "{end_time}", ctx.EndTime.Format(time.RFC3339))
	}
	for k, v := range ctx.Values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(d.Command)
}

// AllTargets returns the target specs in TargetKinds order.
func (d *JobDefinition) AllTargets() []TargetSpec {
	var out []TargetSpec
	for _, kind := range TargetKinds {
		out = append(out, d.Targets[kind]...)
	}
	return out
}

// AllDependencies returns the dependency specs in DependencyKinds order.
func (d *JobDefinition) AllDependencies() []TargetSpec {
	var out []TargetSpec
	for _, kind := range DependencyKinds {
		out = append(out, d.Dependencies[kind]...)
	}
	return out
}
