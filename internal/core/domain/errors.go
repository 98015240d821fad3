package domain

import "go.trai.ch/zerr"

var (
	// ErrNodeNotFound is returned when an id is not present in a graph.
	ErrNodeNotFound = zerr.New("node not found")

	// ErrNotJobNode is returned when an id does not refer to a job node.
	ErrNotJobNode = zerr.New("not a job node")

	// ErrNotTargetNode is returned when an id does not refer to a target node.
	ErrNotTargetNode = zerr.New("not a target node")

	// ErrNotMetaNode is returned when an id does not refer to a meta node.
	ErrNotMetaNode = zerr.New("not a meta node")

	// ErrNotDependencyNode is returned when an id does not refer to a dependency group node.
	ErrNotDependencyNode = zerr.New("not a dependency node")

	// ErrUnknownDirection is returned when an expansion direction is neither up nor down.
	ErrUnknownDirection = zerr.New("direction must be up, down or both")

	// ErrInvalidTimeStep is returned when a time step or duration string cannot be parsed.
	ErrInvalidTimeStep = zerr.New("invalid time step")

	// ErrInvalidTime is returned when a timestamp string cannot be parsed.
	ErrInvalidTime = zerr.New("invalid time")

	// ErrMissingStartTime is returned when a timestamp expansion has no start time to work from.
	ErrMissingStartTime = zerr.New("build context has no start time")

	// ErrUnknownBackend is returned when a target names a storage backend that is not registered.
	ErrUnknownBackend = zerr.New("unknown target backend")

	// ErrUnknownKind is returned when a relationship kind is not recognised.
	ErrUnknownKind = zerr.New("unknown relationship kind")

	// ErrMissingReference is returned when a meta target points at an id that is not defined.
	ErrMissingReference = zerr.New("missing reference")

	// ErrExecutionFailed is returned when an executor reports a failed job.
	ErrExecutionFailed = zerr.New("job execution failed")

	// ErrJobTimedOut is reported when a job exceeds the configured execution deadline.
	ErrJobTimedOut = zerr.New("job timed out")

	// ErrMaxRetriesReached is reported when a job has failed permanently.
	ErrMaxRetriesReached = zerr.New("maximum number of retries reached")

	// ErrManagerNotRunning is returned when work is pushed to an execution manager that has stopped.
	ErrManagerNotRunning = zerr.New("execution manager is not running")

	// ErrManagerRunning is returned when an execution manager is started twice.
	ErrManagerRunning = zerr.New("execution manager is already running")

	// ErrJobRunning is returned when a running job is reset.
	ErrJobRunning = zerr.New("job is running")

	// ErrConfigNotFound is returned when no rules file can be found.
	ErrConfigNotFound = zerr.New("rules file not found")

	// ErrConfigReadFailed is returned when the rules file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read rules file")

	// ErrConfigParseFailed is returned when the rules file is not valid YAML.
	ErrConfigParseFailed = zerr.New("failed to parse rules file")

	// ErrInvalidJobName is returned when a job or meta id is empty or reused.
	ErrInvalidJobName = zerr.New("invalid job name")

	// ErrWatcherUnavailable is returned when watch mode is requested without a file watcher.
	ErrWatcherUnavailable = zerr.New("file watcher unavailable")

	// ErrNoJobSpecified is returned when a command needs a job or meta id and none was given.
	ErrNoJobSpecified = zerr.New("no job specified")

	// ErrBuildExecutionFailed is returned when one or more jobs of a run failed permanently.
	ErrBuildExecutionFailed = zerr.New("build execution failed")
)

// IsError reports whether err or any error it wraps is sentinel, including
// copies of sentinel that only carry extra metadata.
func IsError(err, sentinel error) bool {
	if err == nil {
		return false
	}
	if err == sentinel {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if IsError(e, sentinel) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		if next := u.Unwrap(); next != nil {
			return IsError(next, sentinel)
		}
	}
	return err.Error() == sentinel.Error()
}
