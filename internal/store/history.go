package store

import (
	"time"

	"github.com/google/uuid"

	"toggl-companion/internal/domain"
)

// Applier applies a local edit and reports its sequence number. The Store
// satisfies it; tests substitute fakes.
type Applier interface {
	ApplyLocalEdit(target string, delta domain.EntryDelta) uint64
}

// Frame is one reversible edit: value snapshots of the editable subset of a
// single entry, before and after. Frames are tagged data, not closures, so
// they can be inspected and tested without re-executing anything.
type Frame struct {
	EditID string
	Target string
	At     time.Time
	Before domain.EntryDelta
	After  domain.EntryDelta
}

// History is a bounded two-stack undo/redo structure over entry edits.
// Undo and redo flow back through the Applier, so they coalesce with
// in-flight network work exactly like forward edits.
//
// History is owned by the UI event loop and is not safe for concurrent use.
type History struct {
	applier  Applier
	capacity int
	past     []Frame
	future   []Frame
}

// NewHistory creates a history bounded to capacity frames; oldest frames
// drop silently once exceeded.
func NewHistory(applier Applier, capacity int) *History {
	if capacity <= 0 {
		capacity = 100
	}
	return &History{applier: applier, capacity: capacity}
}

// Commit records the frame, clears the redo stack and applies the frame's
// after-state. It returns the sequence number the edit received.
func (h *History) Commit(frame Frame) uint64 {
	if frame.EditID == "" {
		frame.EditID = uuid.NewString()
	}
	if frame.At.IsZero() {
		frame.At = time.Now()
	}
	h.future = h.future[:0]
	h.past = append(h.past, frame)
	if len(h.past) > h.capacity {
		h.past = append(h.past[:0], h.past[len(h.past)-h.capacity:]...)
	}
	return h.applier.ApplyLocalEdit(frame.Target, frame.After)
}

// Undo reverts the most recent committed edit. Reports whether anything was
// undone, for UI feedback.
func (h *History) Undo() bool {
	if len(h.past) == 0 {
		return false
	}
	frame := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, frame)
	h.applier.ApplyLocalEdit(frame.Target, frame.Before)
	return true
}

// Redo reapplies the most recently undone edit.
func (h *History) Redo() bool {
	if len(h.future) == 0 {
		return false
	}
	frame := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, frame)
	h.applier.ApplyLocalEdit(frame.Target, frame.After)
	return true
}

// Clear drops both stacks; used on profile switch.
func (h *History) Clear() {
	h.past = nil
	h.future = nil
}

// CanUndo reports whether an undo would do anything.
func (h *History) CanUndo() bool { return len(h.past) > 0 }

// CanRedo reports whether a redo would do anything.
func (h *History) CanRedo() bool { return len(h.future) > 0 }
