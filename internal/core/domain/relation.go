package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// TargetKind labels the edge from a job to a target it creates.
type TargetKind uint8

const (
	// Produces marks a target the job writes.
	Produces TargetKind = iota
	// Alternates marks a target that satisfies consumers when a produced target is missing.
	Alternates
)

var targetKindNames = [...]string{Produces: "produces", Alternates: "alternates"}

// TargetKinds lists every TargetKind in evaluation order.
var TargetKinds = []TargetKind{Produces, Alternates}

func (k TargetKind) String() string {
	if int(k) < len(targetKindNames) {
		return targetKindNames[k]
	}
	return "unknown"
}

// ParseTargetKind parses a target relationship label.
func ParseTargetKind(s string) (TargetKind, error) {
	for i, name := range targetKindNames {
		if name == s {
			return TargetKind(i), nil
		}
	}
	return 0, zerr.With(ErrUnknownKind, "kind", s)
}

// DependencyKind labels the group a job's dependencies are evaluated in.
type DependencyKind uint8

const (
	// Depends requires every member target to exist.
	Depends DependencyKind = iota
	// DependsOneOrMore requires at least one member target to exist.
	DependsOneOrMore
)

var dependencyKindNames = [...]string{Depends: "depends", DependsOneOrMore: "depends_one_or_more"}

// DependencyKinds lists every DependencyKind in evaluation order.
var DependencyKinds = []DependencyKind{Depends, DependsOneOrMore}

// Quantifier decides whether a dependency group is satisfied by its members' existence.
type Quantifier func(exists []bool) bool

var quantifiers = [...]Quantifier{
	Depends:          allExist,
	DependsOneOrMore: anyExist,
}

func allExist(exists []bool) bool {
	for _, e := range exists {
		if !e {
			return false
		}
	}
	return true
}

func anyExist(exists []bool) bool {
	for _, e := range exists {
		if e {
			return true
		}
	}
	return false
}

func (k DependencyKind) String() string {
	if int(k) < len(dependencyKindNames) {
		return dependencyKindNames[k]
	}
	return "unknown"
}

// Quantifier returns the existence check for k.
func (k DependencyKind) Quantifier() Quantifier {
	return quantifiers[k]
}

// Satisfied evaluates the quantifier of k over exists.
func (k DependencyKind) Satisfied(exists []bool) bool {
	return quantifiers[k](exists)
}

// ParseDependencyKind parses a dependency relationship label.
func ParseDependencyKind(s string) (DependencyKind, error) {
	for i, name := range dependencyKindNames {
		if name == s {
			return DependencyKind(i), nil
		}
	}
	return 0, zerr.With(ErrUnknownKind, "kind", s)
}

// Direction is the way an expansion walks from a job.
// Up follows dependencies towards creators, Down follows targets towards dependents.
type Direction uint8

const (
	// Up walks towards the jobs that create a job's dependencies.
	Up Direction = 1 << iota
	// Down walks towards the jobs that depend on a job's targets.
	Down
)

// Both expands in both directions.
const Both = Up | Down

// Has reports whether d includes every direction in other.
func (d Direction) Has(other Direction) bool {
	return d&other == other
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Both:
		return "both"
	default:
		return ""
	}
}

// ParseDirection parses "up", "down" or "both". An empty string means Up.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "up":
		return Up, nil
	case "down":
		return Down, nil
	case "both", "up,down", "down,up":
		return Both, nil
	default:
		return 0, zerr.With(ErrUnknownDirection, "direction", s)
	}
}
