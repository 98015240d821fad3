package graph

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/builder/internal/core/domain"
)

// DependencyGroup sits between a job and the targets it depends on.
// The job is buildable only if the group's quantifier holds over its members.
type DependencyGroup struct {
	id    string
	Kind  domain.DependencyKind
	JobID string
}

// ID returns the node id of the group.
func (d *DependencyGroup) ID() string { return d.id }

// groupID derives a stable id from the job, the kind, the group name and the member ids.
func groupID(jobID string, kind domain.DependencyKind, group string, members []string) string {
	h := xxhash.New()
	_, _ = h.WriteString(group)
	for _, m := range members {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(m)
	}
	return fmt.Sprintf("%s_%s_%016x", jobID, kind, h.Sum64())
}

// Satisfied evaluates the group's quantifier over the existence of its members.
func (d *DependencyGroup) Satisfied(g *BuildGraph) bool {
	members := g.groupMembers(d.id)
	exists := make([]bool, len(members))
	for i, t := range members {
		exists[i] = t.Exists(g)
	}
	return d.Kind.Satisfied(exists)
}
