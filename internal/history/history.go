// Package history keeps per-page undo/redo stacks of page snapshots.
package history

import (
	"whiteboard/internal/board"
)

// DefaultLimit caps the snapshots kept per page when no limit is given
const DefaultLimit = 200

// Stack: ordered snapshots of one page plus a pointer at the current one.
// Snapshots after the pointer are the redo branch.
type Stack struct {
	snapshots []board.Page
	pointer   int
}

// Stacks holds one Stack per page key. Like board.Store it is owned by the
// relay hub's event loop and is not safe for concurrent use.
type Stacks struct {
	stacks map[string]*Stack
	limit  int
}

// New: limit <= 0 falls back to DefaultLimit
func New(limit int) *Stacks {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Stacks{
		stacks: make(map[string]*Stack),
		limit:  limit,
	}
}

// Record pushes a snapshot of page, discarding any redo branch. The oldest
// snapshots are evicted once the stack is over the limit.
func (s *Stacks) Record(key string, page board.Page) {
	st, exists := s.stacks[key]
	if !exists {
		st = &Stack{pointer: -1}
		s.stacks[key] = st
	}

	st.snapshots = append(st.snapshots[:st.pointer+1], page.Clone())

	if over := len(st.snapshots) - s.limit; over > 0 {
		kept := make([]board.Page, s.limit)
		copy(kept, st.snapshots[over:])
		st.snapshots = kept
	}
	st.pointer = len(st.snapshots) - 1
}

// Undo steps the pointer back and returns the snapshot it now points at.
// ok is false when the page has no history or is already at its oldest entry.
func (s *Stacks) Undo(key string) (page board.Page, ok bool) {
	st, exists := s.stacks[key]
	if !exists || st.pointer <= 0 {
		return board.Page{}, false
	}
	st.pointer--
	return st.snapshots[st.pointer].Clone(), true
}

// Redo steps the pointer forward. ok is false when there is nothing to redo.
func (s *Stacks) Redo(key string) (page board.Page, ok bool) {
	st, exists := s.stacks[key]
	if !exists || st.pointer >= len(st.snapshots)-1 {
		return board.Page{}, false
	}
	st.pointer++
	return st.snapshots[st.pointer].Clone(), true
}

// Has reports whether any snapshot was recorded for the page
func (s *Stacks) Has(key string) bool {
	_, exists := s.stacks[key]
	return exists
}

// Len returns the number of snapshots kept for the page
func (s *Stacks) Len(key string) int {
	if st, exists := s.stacks[key]; exists {
		return len(st.snapshots)
	}
	return 0
}

// Pointer returns the index of the current snapshot, -1 when there is none
func (s *Stacks) Pointer(key string) int {
	if st, exists := s.stacks[key]; exists {
		return st.pointer
	}
	return -1
}

// Limit returns the per-page snapshot cap
func (s *Stacks) Limit() int {
	return s.limit
}
