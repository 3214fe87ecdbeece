package entity

import (
	"sync"
	"time"
)

// DefaultMaxHistory bounds each of the undo and redo stacks.
const DefaultMaxHistory = 1000

type historyEntry struct {
	summary  PatchSummary
	recorded time.Time
}

// OperationInfo describes one history entry for display.
type OperationInfo struct {
	Description string
	UndoGroupID uint64
	Timestamp   time.Time
}

// stack is a bounded LIFO of entries; pushing past the bound forgets the
// oldest entry.
type stack []*historyEntry

func (s *stack) push(e *historyEntry, bound int) {
	*s = append(*s, e)
	s.trim(bound)
}

func (s *stack) trim(bound int) {
	if over := len(*s) - bound; over > 0 {
		*s = (*s)[over:]
	}
}

func (s *stack) pop() (*historyEntry, bool) {
	n := len(*s)
	if n == 0 {
		return nil, false
	}
	e := (*s)[n-1]
	(*s)[n-1] = nil
	*s = (*s)[:n-1]
	return e, true
}

func (s stack) topGroup() (uint64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1].summary.UndoGroupID, true
}

func (s stack) info() []OperationInfo {
	out := make([]OperationInfo, 0, len(s))
	for _, e := range s {
		out = append(out, OperationInfo{
			Description: e.summary.Operation.String(),
			UndoGroupID: e.summary.UndoGroupID,
			Timestamp:   e.recorded,
		})
	}
	return out
}

// History holds the undo and redo stacks of one entity. Entity drives it;
// the exported methods are read-only apart from Clear.
type History struct {
	mu    sync.Mutex
	undo  stack
	redo  stack
	bound int
}

// NewHistory returns an empty history keeping at most maxEntries per stack.
// maxEntries <= 0 selects DefaultMaxHistory.
func NewHistory(maxEntries int) *History {
	h := &History{}
	h.SetMaxEntries(maxEntries)
	return h
}

// locked runs fn with h locked.
func (h *History) locked(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func (h *History) pushUndo(s PatchSummary) {
	h.locked(func() { h.undo.push(&historyEntry{summary: s, recorded: time.Now()}, h.bound) })
}

func (h *History) pushRedo(s PatchSummary) {
	h.locked(func() { h.redo.push(&historyEntry{summary: s, recorded: time.Now()}, h.bound) })
}

func (h *History) clearRedo() { h.locked(func() { h.redo = nil }) }

func (h *History) popUndo() (e *historyEntry, ok bool) {
	h.locked(func() { e, ok = h.undo.pop() })
	return e, ok
}

func (h *History) popRedo() (e *historyEntry, ok bool) {
	h.locked(func() { e, ok = h.redo.pop() })
	return e, ok
}

// restoreUndo and restoreRedo put back an entry whose reverse was rejected.
// The original timestamp is kept.
func (h *History) restoreUndo(e *historyEntry) { h.locked(func() { h.undo.push(e, h.bound) }) }
func (h *History) restoreRedo(e *historyEntry) { h.locked(func() { h.redo.push(e, h.bound) }) }

func (h *History) topUndoGroup() (g uint64, ok bool) {
	h.locked(func() { g, ok = h.undo.topGroup() })
	return g, ok
}

func (h *History) topRedoGroup() (g uint64, ok bool) {
	h.locked(func() { g, ok = h.redo.topGroup() })
	return g, ok
}

func (h *History) CanUndo() bool { return h.UndoCount() > 0 }
func (h *History) CanRedo() bool { return h.RedoCount() > 0 }

// UndoCount counts entries, not groups.
func (h *History) UndoCount() (n int) {
	h.locked(func() { n = len(h.undo) })
	return n
}

func (h *History) RedoCount() (n int) {
	h.locked(func() { n = len(h.redo) })
	return n
}

// Clear empties both stacks.
func (h *History) Clear() {
	h.locked(func() { h.undo, h.redo = nil, nil })
}

// UndoInfo lists the undo entries, oldest first.
func (h *History) UndoInfo() (info []OperationInfo) {
	h.locked(func() { info = h.undo.info() })
	return info
}

// RedoInfo lists the redo entries, oldest first.
func (h *History) RedoInfo() (info []OperationInfo) {
	h.locked(func() { info = h.redo.info() })
	return info
}

// SetMaxEntries rebounds both stacks, forgetting the oldest entries of a
// stack that is now too long. n <= 0 selects DefaultMaxHistory.
func (h *History) SetMaxEntries(n int) {
	if n <= 0 {
		n = DefaultMaxHistory
	}
	h.locked(func() {
		h.bound = n
		h.undo.trim(n)
		h.redo.trim(n)
	})
}

func (h *History) MaxEntries() (n int) {
	h.locked(func() { n = h.bound })
	return n
}
