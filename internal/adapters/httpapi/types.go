package httpapi

import (
	"time"

	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/engine/execution"
	"go.trai.ch/builder/internal/engine/graph"
)

// BuildContext is the wire form of a build context. Times accept anything
// domain.ParseTime does.
type BuildContext struct {
	StartTime string            `json:"start_time,omitempty"`
	EndTime   string            `json:"end_time,omitempty"`
	Force     bool              `json:"force,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
}

// SubmitRequest is the body of POST /submit.
type SubmitRequest struct {
	JobDefinitionID string       `json:"job_definition_id"`
	BuildContext    BuildContext `json:"build_context"`
	Direction       string       `json:"direction,omitempty"`
	Depth           int          `json:"depth,omitempty"`
	Force           bool         `json:"force,omitempty"`
}

func (r SubmitRequest) parse() (string, domain.BuildContext, graph.AddOptions, error) {
	var (
		ctx  domain.BuildContext
		opts graph.AddOptions
		err  error
	)
	if r.JobDefinitionID == "" {
		return "", ctx, opts, domain.ErrNoJobSpecified
	}
	if r.BuildContext.StartTime != "" {
		if ctx.StartTime, err = domain.ParseTime(r.BuildContext.StartTime); err != nil {
			return "", ctx, opts, err
		}
	}
	if r.BuildContext.EndTime != "" {
		if ctx.EndTime, err = domain.ParseTime(r.BuildContext.EndTime); err != nil {
			return "", ctx, opts, err
		}
	}
	ctx.Force = r.BuildContext.Force
	ctx.Values = r.BuildContext.Values

	if opts.Direction, err = domain.ParseDirection(r.Direction); err != nil {
		return "", ctx, opts, err
	}
	opts.Depth = r.Depth
	opts.Force = r.Force
	return r.JobDefinitionID, ctx, opts, nil
}

// SubmitResponse lists the nodes a submission touched.
type SubmitResponse struct {
	NewJobs     []string `json:"new_jobs"`
	NewTargets  []string `json:"new_targets"`
	NewlyForced []string `json:"newly_forced"`
	Jobs        []string `json:"jobs"`
	Targets     []string `json:"targets"`
}

func newSubmitResponse(u *domain.BuildUpdate) SubmitResponse {
	return SubmitResponse{
		NewJobs:     u.NewJobs.Sorted(),
		NewTargets:  u.NewTargets.Sorted(),
		NewlyForced: u.NewlyForced.Sorted(),
		Jobs:        u.Jobs.Sorted(),
		Targets:     u.Targets.Sorted(),
	}
}

// UpdateRequest is the body of POST /update.
type UpdateRequest struct {
	TargetIDs []string `json:"target_ids"`
}

// JobResponse is the wire form of a job's state.
type JobResponse struct {
	ID               string     `json:"id"`
	TemplateID       string     `json:"template_id"`
	Status           string     `json:"status"`
	Stale            bool       `json:"stale"`
	Buildable        bool       `json:"buildable"`
	ShouldRun        bool       `json:"should_run"`
	ParentsShouldRun bool       `json:"parents_should_run"`
	Force            bool       `json:"force"`
	Failed           bool       `json:"failed"`
	Retries          int        `json:"retries"`
	IsRunning        bool       `json:"is_running"`
	LastRun          *time.Time `json:"last_run,omitempty"`
}

func newJobResponse(s execution.JobState) JobResponse {
	resp := JobResponse{
		ID:               s.ID,
		TemplateID:       s.TemplateID,
		Status:           string(s.Status),
		Stale:            s.Stale,
		Buildable:        s.Buildable,
		ShouldRun:        s.ShouldRun,
		ParentsShouldRun: s.ParentsShouldRun,
		Force:            s.Force,
		Failed:           s.Failed,
		Retries:          s.Retries,
		IsRunning:        s.IsRunning,
	}
	if !s.LastRun.IsZero() {
		lastRun := s.LastRun
		resp.LastRun = &lastRun
	}
	return resp
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error    string         `json:"error"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
