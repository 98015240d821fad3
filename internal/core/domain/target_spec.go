package domain

// DefaultBackend is the storage backend used when a target does not name one.
const DefaultBackend = "local"

// TargetSpec declares a target or dependency of a job definition.
type TargetSpec struct {
	Expander Expander
	// Backend names the TargetStore that resolves the target's mtime.
	Backend string
	// IgnoreMtime excludes the edge from staleness comparisons.
	IgnoreMtime bool
	// Group splits dependencies of the same kind into separately evaluated groups.
	Group string
}

// ID returns the unexpanded id of the target.
func (s TargetSpec) ID() string {
	return s.Expander.TemplateID()
}

// BackendName returns the configured backend or DefaultBackend.
func (s TargetSpec) BackendName() string {
	if s.Backend == "" {
		return DefaultBackend
	}
	return s.Backend
}
