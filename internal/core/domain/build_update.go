package domain

// BuildUpdate summarises the nodes touched by one build graph mutation.
type BuildUpdate struct {
	// NewJobs and NewTargets hold nodes that were not in the graph before.
	NewJobs    IDSet
	NewTargets IDSet
	// NewlyForced holds jobs that were not forced before this update.
	NewlyForced IDSet
	Jobs        IDSet
	Targets     IDSet
	Forced      IDSet
}

// NewBuildUpdate returns an empty update.
func NewBuildUpdate() *BuildUpdate {
	return &BuildUpdate{
		NewJobs:     IDSet{},
		NewTargets:  IDSet{},
		NewlyForced: IDSet{},
		Jobs:        IDSet{},
		Targets:     IDSet{},
		Forced:      IDSet{},
	}
}

// Merge folds other into u.
func (u *BuildUpdate) Merge(other *BuildUpdate) {
	if other == nil {
		return
	}
	u.NewJobs.Union(other.NewJobs)
	u.NewTargets.Union(other.NewTargets)
	u.NewlyForced.Union(other.NewlyForced)
	u.Jobs.Union(other.Jobs)
	u.Targets.Union(other.Targets)
	u.Forced.Union(other.Forced)
}
