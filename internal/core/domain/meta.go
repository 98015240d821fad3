package domain

// MetaTarget is a named alias for a collection of jobs or other metas.
type MetaTarget struct {
	ID       string
	Jobs     []string
	Disabled bool
}

// Enabled reports whether the meta belongs in the rule graph.
func (m *MetaTarget) Enabled() bool {
	return !m.Disabled
}
