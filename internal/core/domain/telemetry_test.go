package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/builder/internal/core/domain"
)

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     domain.JobStatus
		isTerminal bool
	}{
		{"Pending", domain.JobStatusPending, false},
		{"Queued", domain.JobStatusQueued, false},
		{"Running", domain.JobStatusRunning, false},
		{"Completed", domain.JobStatusCompleted, true},
		{"Failed", domain.JobStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isTerminal, tt.status.IsTerminal())
			assert.Equal(t, tt.status, domain.NormalizeJobStatus(string(tt.status)))
		})
	}

	assert.Equal(t, domain.JobStatusPending, domain.NormalizeJobStatus("bogus"))
	assert.Equal(t, domain.JobStatusFailed, domain.NormalizeJobStatus("FAILED"))
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    domain.LogLevel
		expected string
	}{
		{domain.LogLevelDebug, "DEBUG"},
		{domain.LogLevelInfo, "INFO"},
		{domain.LogLevelWarn, "WARN"},
		{domain.LogLevelError, "ERROR"},
		{domain.LogLevel(999), "INFO"}, // Default case
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestTriState(t *testing.T) {
	assert.False(t, domain.Unknown.Known())
	assert.True(t, domain.TriStateOf(false).Known())
	assert.True(t, domain.TriStateOf(true).Bool())
	assert.False(t, domain.False.Bool())
	assert.Equal(t, "unknown", domain.Unknown.String())
}

func TestBuildUpdate_Merge(t *testing.T) {
	u := domain.NewBuildUpdate()
	u.NewJobs.Add("a")

	other := domain.NewBuildUpdate()
	other.NewJobs.Add("b")
	other.NewlyForced.Add("b")
	other.Targets.Add("t")

	u.Merge(other)
	u.Merge(nil)

	assert.Equal(t, []string{"a", "b"}, u.NewJobs.Sorted())
	assert.True(t, u.NewlyForced.Has("b"))
	assert.True(t, u.Targets.Has("t"))
}
