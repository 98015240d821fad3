package domain

import (
	"slices"

	"go.trai.ch/zerr"
)

// Expansion is one concrete node produced by an Expander.
type Expansion struct {
	ID      string
	Context BuildContext
}

// Expander turns a template id and a build context into concrete node ids.
type Expander interface {
	// TemplateID returns the unexpanded id.
	TemplateID() string
	// Expand returns the concrete nodes for ctx, in a stable order.
	Expand(ctx BuildContext) ([]Expansion, error)
}

// StandardExpander expands to a single node keyed by the template id.
type StandardExpander struct {
	ID string
}

// TemplateID implements Expander.
func (e StandardExpander) TemplateID() string { return e.ID }

// Expand implements Expander.
func (e StandardExpander) Expand(ctx BuildContext) ([]Expansion, error) {
	return []Expansion{{ID: e.ID, Context: ctx}}, nil
}

// TimestampExpander expands a strftime template once per Step in the context window.
type TimestampExpander struct {
	ID   string
	Step TimeStep
	Past int
}

// TemplateID implements Expander.
func (e TimestampExpander) TemplateID() string { return e.ID }

// Expand implements Expander.
func (e TimestampExpander) Expand(ctx BuildContext) ([]Expansion, error) {
	return ExpandTimestamps(e.ID, e.Step, e.Past, ctx)
}

// ExpandTimestamps floors the context window to step and formats template once
// per timestamp. The end is inclusive only when it floors onto the start.
// A zero step yields the template itself with an empty context.
func ExpandTimestamps(template string, step TimeStep, past int, ctx BuildContext) ([]Expansion, error) {
	if step.IsZero() {
		return []Expansion{{ID: template}}, nil
	}
	if !ctx.HasWindow() {
		return nil, zerr.With(zerr.Wrap(ErrMissingStartTime, "expand timestamps"), "template", template)
	}

	end := ctx.EndTime
	if end.IsZero() {
		end = ctx.StartTime
	}
	start := step.Floor(ctx.StartTime)
	end = step.Floor(end)
	inclusive := start.Equal(end)
	if past > 0 {
		start = step.AddTo(start, -past)
	}

	var out []Expansion
	index := make(map[string]int)
	for _, ts := range step.Range(start, end, inclusive) {
		derived := ctx.Clone()
		derived.Force = false
		derived.StartTime = ts
		derived.EndTime = step.AddTo(ts, 1)

		id := Strftime(template, ts)
		if i, ok := index[id]; ok {
			out[i].Context = derived
			continue
		}
		index[id] = len(out)
		out = append(out, Expansion{ID: id, Context: derived})
	}
	return slices.Clip(out), nil
}
