package ledger

import (
	"time"

	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
)

var _ ports.TargetRecorder = (*Overlay)(nil)

// Overlay answers from recorded targets first and falls back to a base
// store. Touches only ever reach the recorded layer.
type Overlay struct {
	recorded ports.TargetRecorder
	base     ports.TargetStore
}

// NewOverlay layers recorded over base.
func NewOverlay(recorded ports.TargetRecorder, base ports.TargetStore) *Overlay {
	return &Overlay{recorded: recorded, base: base}
}

// Mtime implements ports.TargetStore.
func (o *Overlay) Mtime(ref domain.TargetRef) (time.Time, bool, error) {
	mtime, ok, err := o.recorded.Mtime(ref)
	if err != nil || ok {
		return mtime, ok, err
	}
	return o.base.Mtime(ref)
}

// BulkMtime implements ports.TargetStore.
func (o *Overlay) BulkMtime(refs []domain.TargetRef) (map[string]domain.TargetStat, error) {
	out, err := o.recorded.BulkMtime(refs)
	if err != nil {
		return nil, err
	}
	var rest []domain.TargetRef
	for _, ref := range refs {
		if _, ok := out[ref.ID]; !ok {
			rest = append(rest, ref)
		}
	}
	if len(rest) == 0 {
		return out, nil
	}
	base, err := o.base.BulkMtime(rest)
	for id, stat := range base {
		out[id] = stat
	}
	return out, err
}

// Touch implements ports.TargetRecorder.
func (o *Overlay) Touch(mtime time.Time, refs ...domain.TargetRef) error {
	return o.recorded.Touch(mtime, refs...)
}
