package domain

import (
	"maps"
	"time"
)

// BuildContext carries the parameters a job or target is expanded for.
type BuildContext struct {
	StartTime time.Time
	EndTime   time.Time
	// Force is accepted from callers but never handed down to expanded nodes.
	Force  bool
	Values map[string]string
}

// HasWindow reports whether the context carries a start time.
func (c BuildContext) HasWindow() bool {
	return !c.StartTime.IsZero()
}

// Clone returns a copy of the context that shares no maps with c.
func (c BuildContext) Clone() BuildContext {
	out := c
	if c.Values != nil {
		out.Values = maps.Clone(c.Values)
	}
	return out
}
