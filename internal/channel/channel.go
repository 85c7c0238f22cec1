// Package channel provides the time-keyed value channel used by the mission log.
//
// A Channel holds a time-sorted sequence of (timeMs, value) samples and answers
// "what was the value as of time T" with a binary search. Every query also
// reports whether its answer differs from the previous query on the same
// instance, which is how a replay driver detects the frame a fact flips.
package channel

import "slices"

// Event is one timestamped sample.
type Event[T comparable] struct {
	TimeMs int64
	Value  T
}

// Result is the answer to a point-in-time query.
type Result[T comparable] struct {
	Value T
	// Index of the event the value came from, -1 before the first event.
	Index       int
	Changed     bool
	BeforeFirst bool
	AfterLast   bool
}

// Channel is an ordered, append-mostly series of samples.
// It is not safe for concurrent use.
type Channel[T comparable] struct {
	events   []Event[T]
	baseline T

	// last query result, for change detection
	lastIndex int
	lastValue T
}

// New creates an empty channel. baseline is the value reported for any
// time before the first event.
func New[T comparable](baseline T) *Channel[T] {
	c := &Channel[T]{baseline: baseline}
	c.ResetCache()
	return c
}

// Baseline returns the value reported before the first event.
func (c *Channel[T]) Baseline() T {
	return c.baseline
}

// Len returns the number of stored events.
func (c *Channel[T]) Len() int {
	return len(c.events)
}

// Events returns the stored events. The slice must not be modified.
func (c *Channel[T]) Events() []Event[T] {
	return c.events
}

// Last returns the final stored event.
func (c *Channel[T]) Last() (Event[T], bool) {
	if len(c.events) == 0 {
		return Event[T]{}, false
	}
	return c.events[len(c.events)-1], true
}

// Latest returns the most recently recorded value, or the baseline when empty.
func (c *Channel[T]) Latest() T {
	if e, ok := c.Last(); ok {
		return e.Value
	}
	return c.baseline
}

// Append records v at timeMs unless it equals the latest recorded value.
// It reports whether an event was stored.
func (c *Channel[T]) Append(timeMs int64, v T) bool {
	if v == c.Latest() {
		return false
	}
	c.push(timeMs, v)
	return true
}

// Force records v at timeMs even when it repeats the latest value.
func (c *Channel[T]) Force(timeMs int64, v T) {
	c.push(timeMs, v)
}

func (c *Channel[T]) push(timeMs int64, v T) {
	n := len(c.events)
	c.events = append(c.events, Event[T]{TimeMs: timeMs, Value: v})
	if n > 0 && c.events[n-1].TimeMs > timeMs {
		c.Sort()
	}
}

// Sort restores time order. Events sharing a timestamp keep their relative order.
func (c *Channel[T]) Sort() {
	slices.SortStableFunc(c.events, func(a, b Event[T]) int {
		switch {
		case a.TimeMs < b.TimeMs:
			return -1
		case a.TimeMs > b.TimeMs:
			return 1
		default:
			return 0
		}
	})
}

// At returns the value of the last event with TimeMs <= q.
// It is defined for every q, including negative times and times past the end.
func (c *Channel[T]) At(q int64) Result[T] {
	lo, hi := 0, len(c.events)-1
	best := -1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		if c.events[mid].TimeMs <= q {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	r := Result[T]{Index: best, Value: c.baseline}
	if best < 0 {
		r.BeforeFirst = true
	} else {
		r.Value = c.events[best].Value
		r.AfterLast = best == len(c.events)-1 && q > c.events[best].TimeMs
	}

	r.Changed = best != c.lastIndex || r.Value != c.lastValue
	c.lastIndex = best
	c.lastValue = r.Value
	return r
}

// ResetCache forgets the previous query so the next one is compared
// against the baseline state.
func (c *Channel[T]) ResetCache() {
	c.lastIndex = -1
	c.lastValue = c.baseline
}

// Clear drops all events and the query cache.
func (c *Channel[T]) Clear() {
	c.events = nil
	c.ResetCache()
}

// CopyFrom replaces c's contents with a deep copy of other's events.
// The query cache is reset rather than copied.
func (c *Channel[T]) CopyFrom(other *Channel[T]) {
	c.baseline = other.baseline
	c.events = slices.Clone(other.events)
	c.ResetCache()
}
