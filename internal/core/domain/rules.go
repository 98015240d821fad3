package domain

import "time"

// Rules is a loaded rules file.
type Rules struct {
	Jobs     []JobDefinition
	Metas    []MetaTarget
	Settings SchedulerConfig
}

// SchedulerConfig holds the execution manager settings.
type SchedulerConfig struct {
	MaxRetries int
	// JobTimeout fails jobs running longer than this. Zero disables the check.
	JobTimeout time.Duration
	// TimeoutPoll is how often running jobs are checked against JobTimeout.
	TimeoutPoll time.Duration
	// PollTimeout bounds each blocking wait on the work and completion queues.
	PollTimeout time.Duration
	Listen      string
	StateFile   string
}

// DefaultSchedulerConfig returns the settings used when the rules file omits them.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxRetries:  5,
		TimeoutPoll: 10 * time.Second,
		PollTimeout: time.Second,
		Listen:      ":20345",
		StateFile:   ".builder/targets.json",
	}
}
