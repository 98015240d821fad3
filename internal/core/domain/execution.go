package domain

import "time"

// TargetRef identifies a target and the backend that resolves it.
type TargetRef struct {
	ID      string
	Backend string
}

// TargetStat is the existence and modification time of a target.
type TargetStat struct {
	Exists bool
	Mtime  time.Time
}

// Invocation is everything an Executor needs to run one job instance.
type Invocation struct {
	JobID      string
	TemplateID string
	Command    string
	Env        map[string]string
	Context    BuildContext
	// Produces lists the targets the job writes, alternates excluded.
	Produces []TargetRef
}

// ExecutionResult reports the outcome of an Executor call.
type ExecutionResult struct {
	Status bool
	Stdout string
	Stderr string
	// Async results arrive later on Done.
	Async bool
	Done  <-chan ExecutionResult
}

// Failed returns a synchronous failed result.
func Failed(stderr string) ExecutionResult {
	return ExecutionResult{Status: false, Stderr: stderr}
}

// Succeeded returns a synchronous successful result.
func Succeeded(stdout string) ExecutionResult {
	return ExecutionResult{Status: true, Stdout: stdout}
}
