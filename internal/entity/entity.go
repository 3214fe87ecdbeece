package entity

import (
	"fmt"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/patch"
)

// Context says why a patch is applied and decides which history stack
// records it.
type Context int

const (
	// ContextModify is a fresh edit. It is recorded for undo and clears redo.
	ContextModify Context = iota

	// ContextUndo applies a reverse operation. It is recorded for redo.
	ContextUndo

	// ContextRedo reapplies an undone operation. It is recorded for undo.
	ContextRedo
)

// String returns the context name.
func (c Context) String() string {
	switch c {
	case ContextModify:
		return "modify"
	case ContextUndo:
		return "undo"
	case ContextRedo:
		return "redo"
	default:
		return fmt.Sprintf("Context(%d)", int(c))
	}
}

// Publisher receives the changes of every committed patch, in commit order.
// *notify.Notifier implements it.
type Publisher interface {
	Publish(changes ...component.Change)
}

// Entity owns one document and its undo/redo history.
// Like Document, it is not safe for concurrent use.
type Entity struct {
	doc       *Document
	history   *History
	publisher Publisher
}

// Option configures an Entity.
type Option func(*Entity)

// WithPublisher sets where committed changes are broadcast.
func WithPublisher(p Publisher) Option {
	return func(e *Entity) {
		e.publisher = p
	}
}

// WithMaxHistory limits the number of undo and redo entries.
func WithMaxHistory(n int) Option {
	return func(e *Entity) {
		e.history.SetMaxEntries(n)
	}
}

// New creates an entity around doc with empty histories.
func New(doc *Document, opts ...Option) *Entity {
	e := &Entity{
		doc:     doc,
		history: NewHistory(DefaultMaxHistory),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resource returns the resource identifier of the entity.
func (e *Entity) Resource() string { return e.doc.Resource() }

// Document returns the entity document. Mutations must go through ApplyPatch.
func (e *Entity) Document() *Document { return e.doc }

// History returns the undo/redo history.
func (e *Entity) History() *History { return e.history }

// ApplyPatch applies op under undoGroupID and records the result in the
// history stack ctx selects. No-op patches are returned but neither
// recorded nor published.
func (e *Entity) ApplyPatch(op patch.Operation, undoGroupID uint64, ctx Context) (PatchSummary, error) {
	summary, err := e.doc.Apply(op)
	if err != nil {
		return PatchSummary{}, err
	}
	summary.UndoGroupID = undoGroupID
	if summary.IsNoOp() {
		return summary, nil
	}

	switch ctx {
	case ContextModify:
		e.history.pushUndo(summary)
		e.history.clearRedo()
	case ContextUndo:
		e.history.pushRedo(summary)
	case ContextRedo:
		e.history.pushUndo(summary)
	}

	if e.publisher != nil {
		e.publisher.Publish(summary.Changes...)
	}
	return summary, nil
}

// Undo reverts the most recent undo entry and every entry below it that
// shares its non-zero group. It returns the summaries applied, in order.
// If a reverse operation fails, the failing entry stays on the undo stack
// and the entries already undone stay on the redo stack.
func (e *Entity) Undo() ([]PatchSummary, error) {
	return e.unwind(e.history.popUndo, e.history.restoreUndo, e.history.topUndoGroup, ContextUndo, ErrNothingToUndo)
}

// Redo reapplies the most recently undone entry and every entry below it
// that shares its non-zero group.
func (e *Entity) Redo() ([]PatchSummary, error) {
	return e.unwind(e.history.popRedo, e.history.restoreRedo, e.history.topRedoGroup, ContextRedo, ErrNothingToRedo)
}

func (e *Entity) unwind(
	pop func() (*historyEntry, bool),
	restore func(*historyEntry),
	top func() (uint64, bool),
	ctx Context,
	empty error,
) ([]PatchSummary, error) {
	entry, ok := pop()
	if !ok {
		return nil, empty
	}

	var applied []PatchSummary
	for {
		group := entry.summary.UndoGroupID
		summary, err := e.ApplyPatch(*entry.summary.Reverse, group, ctx)
		if err != nil {
			restore(entry)
			return applied, fmt.Errorf("%s %s: %w", ctx, entry.summary.Operation, err)
		}
		applied = append(applied, summary)

		if group == 0 {
			return applied, nil
		}
		if next, ok := top(); !ok || next != group {
			return applied, nil
		}
		entry, _ = pop()
	}
}

// CanUndo reports whether undo is available.
func (e *Entity) CanUndo() bool { return e.history.CanUndo() }

// CanRedo reports whether redo is available.
func (e *Entity) CanRedo() bool { return e.history.CanRedo() }

// ClearHistory drops both histories. It is called when the entity is
// unloaded or its resource is deleted.
func (e *Entity) ClearHistory() { e.history.Clear() }

// DiscardRedo drops the redo stack. Callers use it after an Undo that
// rolled back a half-finished edit, which must not be redone.
func (e *Entity) DiscardRedo() { e.history.clearRedo() }
