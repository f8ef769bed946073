package engine

import (
	"sync/atomic"

	"github.com/pixload/pixload/pkg/imaging"
)

// Target is the destination of a load: the thing the decoded buffer will be
// handed to. Targets are compared by ID; two requests aimed at the same ID
// compete for the same display slot.
type Target interface {
	// ID identifies the display slot. Must be stable for the target's
	// lifetime and unique among live targets.
	ID() string

	// Size is the dimensions the decoded image should be sized for.
	Size() imaging.TargetSize
}

// Displayer is implemented by targets that accept the decoded result.
// Display runs on the dispatch goroutine.
type Displayer interface {
	Display(buf *imaging.Buffer, tier SourceTier)
}

// PlaceholderDisplayer is implemented by targets that can show a fallback
// resource while loading or after a failure.
type PlaceholderDisplayer interface {
	DisplayPlaceholder(resource string)
}

// TargetRef is a non-owning handle to a Target. Resolve reports whether the
// target is still live; a released ref resolves to nothing, which the
// pipeline treats as cancellation, never as an error.
type TargetRef interface {
	Resolve() (Target, bool)
}

// Ref is a releasable TargetRef. Releasing models the target going away
// while a load for it is still in flight.
type Ref struct {
	v atomic.Pointer[targetBox]
}

type targetBox struct {
	target Target
}

// NewRef wraps a live target.
func NewRef(t Target) *Ref {
	r := &Ref{}
	r.v.Store(&targetBox{target: t})
	return r
}

// Resolve returns the target if it has not been released.
func (r *Ref) Resolve() (Target, bool) {
	box := r.v.Load()
	if box == nil {
		return nil, false
	}
	return box.target, true
}

// Release drops the target. Idempotent.
func (r *Ref) Release() {
	r.v.Store(nil)
}
