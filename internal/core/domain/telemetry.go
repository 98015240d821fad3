package domain

import "strings"

// JobStatus is the lifecycle state of a job instance as reported to callers.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting on its parents or inputs.
	JobStatusPending JobStatus = "pending"
	// JobStatusQueued indicates the job is in the work queue.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates the job is executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job has run and is not due again.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job exhausted its retries.
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal checks if a status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// NormalizeJobStatus converts a string to a JobStatus, defaulting to pending if unknown.
func NormalizeJobStatus(s string) JobStatus {
	switch JobStatus(strings.ToLower(s)) {
	case JobStatusQueued:
		return JobStatusQueued
	case JobStatusRunning:
		return JobStatusRunning
	case JobStatusCompleted:
		return JobStatusCompleted
	case JobStatusFailed:
		return JobStatusFailed
	default:
		return JobStatusPending
	}
}

// LogLevel represents the severity of a log message, mirroring the standard slog levels.
type LogLevel int

const (
	// LogLevelDebug represents debug-level verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo represents informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn represents warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError represents error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}
