package ports

import (
	"time"

	"go.trai.ch/builder/internal/core/domain"
)

// TargetStore resolves the existence and modification time of targets.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type TargetStore interface {
	// Mtime returns the modification time of the target and whether it exists.
	Mtime(ref domain.TargetRef) (time.Time, bool, error)

	// BulkMtime resolves many targets at once, keyed by target id.
	// Targets missing from the result are treated as not existing.
	BulkMtime(refs []domain.TargetRef) (map[string]domain.TargetStat, error)
}

// TargetRecorder is a TargetStore that can mark targets as built.
type TargetRecorder interface {
	TargetStore

	// Touch records the targets as existing with the given modification time.
	Touch(mtime time.Time, refs ...domain.TargetRef) error
}
