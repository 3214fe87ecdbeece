package entity

import (
	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/patch"
)

// PatchSummary records one committed mutation.
type PatchSummary struct {
	// Operation is the forward operation with any trailing "-" resolved.
	Operation patch.Operation

	// Reverse undoes Operation. It is nil when the patch had no effect.
	Reverse *patch.Operation

	// Changes describe the touched components in the order they were
	// affected. A move between components yields a removal followed by an
	// addition.
	Changes []component.Change

	// UndoGroupID is the group the patch was applied under; 0 is ungrouped.
	UndoGroupID uint64
}

// IsNoOp reports whether the patch left the document unchanged.
func (s PatchSummary) IsNoOp() bool {
	return s.Reverse == nil
}

// IsStructural reports whether any change added or removed a whole component.
func (s PatchSummary) IsStructural() bool {
	for _, c := range s.Changes {
		if c.IsStructural() {
			return true
		}
	}
	return false
}
