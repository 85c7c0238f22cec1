package camera

import (
	"errors"
	"slices"
)

// ErrEmptyTrack is returned when evaluating a track with no keyframes.
var ErrEmptyTrack = errors.New("camera track has no keyframes")

// Transition blends toward To over the segment ending at its keyframe.
type Transition struct {
	To     Pose
	Easing Easing
}

// Event is one keyframe. JumpTo is active from TimeMs on. When the next
// keyframe carries a Transition, the segment between them blends from this
// JumpTo toward that Transition's To.
type Event struct {
	TimeMs     int64
	JumpTo     Pose
	Transition *Transition
}

// Track is an ordered sequence of keyframes. Mutations mark it dirty and
// the sort happens before the next query. It is not safe for concurrent use.
type Track struct {
	events []Event
	dirty  bool
}

// NewTrack creates a track holding events.
func NewTrack(events ...Event) *Track {
	t := &Track{}
	for _, e := range events {
		t.Add(e)
	}
	return t
}

// Add appends a keyframe.
func (t *Track) Add(e Event) {
	t.events = append(t.events, cloneEvent(e))
	t.dirty = true
}

// Set replaces the keyframe at index i of the sorted order.
func (t *Track) Set(i int, e Event) {
	t.ensureSorted()
	t.events[i] = cloneEvent(e)
	t.dirty = true
}

// Remove deletes the keyframe at index i of the sorted order.
func (t *Track) Remove(i int) {
	t.ensureSorted()
	t.events = slices.Delete(t.events, i, i+1)
}

// Len returns the number of keyframes.
func (t *Track) Len() int {
	return len(t.events)
}

// At returns the keyframe at index i of the sorted order.
func (t *Track) At(i int) Event {
	t.ensureSorted()
	return t.events[i]
}

// Events returns the keyframes in time order. The slice must not be modified.
func (t *Track) Events() []Event {
	t.ensureSorted()
	return t.events
}

// Span returns the first and last keyframe times.
func (t *Track) Span() (first, last int64, ok bool) {
	if len(t.events) == 0 {
		return 0, 0, false
	}
	t.ensureSorted()
	return t.events[0].TimeMs, t.events[len(t.events)-1].TimeMs, true
}

// Clear removes every keyframe.
func (t *Track) Clear() {
	t.events = nil
	t.dirty = false
}

// CopyFrom replaces t with a deep copy of other.
func (t *Track) CopyFrom(other *Track) {
	t.events = make([]Event, len(other.events))
	for i, e := range other.events {
		t.events[i] = cloneEvent(e)
	}
	t.dirty = other.dirty
}

// Sort orders keyframes by time now instead of on the next query.
// Keyframes sharing a time keep their insertion order.
func (t *Track) Sort() {
	slices.SortStableFunc(t.events, func(a, b Event) int {
		switch {
		case a.TimeMs < b.TimeMs:
			return -1
		case a.TimeMs > b.TimeMs:
			return 1
		default:
			return 0
		}
	})
	t.dirty = false
}

func (t *Track) ensureSorted() {
	if t.dirty {
		t.Sort()
	}
}

// EvalInto writes the camera state at timeMs into out without allocating.
// Before the first keyframe the first JumpTo holds; past the last keyframe
// the last JumpTo holds.
func (t *Track) EvalInto(timeMs int64, out *Sample) error {
	if len(t.events) == 0 {
		return ErrEmptyTrack
	}
	t.ensureSorted()

	events := t.events
	if timeMs <= events[0].TimeMs {
		out.set(events[0].JumpTo)
		return nil
	}

	// last keyframe at or before timeMs
	lo, hi := 0, len(events)-1
	i := 0
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		if events[mid].TimeMs <= timeMs {
			i = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if i == len(events)-1 {
		out.set(events[i].JumpTo)
		return nil
	}

	a, b := &events[i], &events[i+1]
	if b.Transition == nil {
		out.set(a.JumpTo)
		return nil
	}

	raw := float64(timeMs-a.TimeMs) / float64(max(1, b.TimeMs-a.TimeMs))
	raw = min(1, max(0, raw))
	Interpolate(a.JumpTo, b.Transition.To, b.Transition.Easing.Apply(raw), out)
	return nil
}

func cloneEvent(e Event) Event {
	if e.Transition != nil {
		tr := *e.Transition
		e.Transition = &tr
	}
	return e
}
