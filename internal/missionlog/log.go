// Package missionlog records discrete gameplay facts during a live attempt and
// answers "what was true at time T" during replay.
//
// A Log composes four channel shapes: the one-shot destruct countdown, the pad
// latch toggle, the ship-onboard counter and one waiting counter per pad.
// Writes are accepted only while recording; reads work in every state and are
// defined for every timestamp.
package missionlog

import (
	"maps"
	"math"
	"slices"

	"github.com/sortie/replay/internal/channel"
	"github.com/sortie/replay/pkg/core"
)

// latch is the stored value of the toggle channel. pad is zero while off,
// so two "off" values always compare equal.
type latch struct {
	on  bool
	pad core.PadKey
}

// Log is the event-sourced mission log. Create one with New; a zero Log is
// only usable as the target of Clear, CopyFrom or a parse. It is not safe
// for concurrent use.
type Log struct {
	recording bool

	destruct    core.DestructStart
	hasDestruct bool

	latch   *channel.Channel[latch]
	onboard *channel.Channel[int]
	waiting map[core.PadKey]*channel.Channel[int]
}

// New creates an empty, non-recording log.
func New() *Log {
	return &Log{
		latch:   channel.New(latch{}),
		onboard: channel.New(0),
		waiting: make(map[core.PadKey]*channel.Channel[int]),
	}
}

// SetRecording enables or disables writes.
func (l *Log) SetRecording(on bool) {
	l.recording = on
}

// Recording reports whether writes are accepted.
func (l *Log) Recording() bool {
	return l.recording
}

// Clear drops every event and cache and stops recording.
func (l *Log) Clear() {
	l.recording = false
	l.destruct = core.DestructStart{}
	l.hasDestruct = false
	l.latch = channel.New(latch{})
	l.onboard = channel.New(0)
	l.waiting = make(map[core.PadKey]*channel.Channel[int])
}

// CopyFrom replaces l with a deep copy of other. The copy is not recording
// and its change-detection caches start fresh.
func (l *Log) CopyFrom(other *Log) {
	l.recording = false
	l.destruct = other.destruct
	l.hasDestruct = other.hasDestruct
	l.latch = channel.New(latch{})
	l.latch.CopyFrom(other.latch)
	l.onboard = channel.New(0)
	l.onboard.CopyFrom(other.onboard)
	l.waiting = make(map[core.PadKey]*channel.Channel[int], len(other.waiting))
	for pad, src := range other.waiting {
		c := channel.New(0)
		c.CopyFrom(src)
		l.waiting[pad] = c
	}
}

// Clone returns a deep, non-recording copy of l.
func (l *Log) Clone() *Log {
	c := New()
	c.CopyFrom(l)
	return c
}

// LogDestructStart records the countdown start. Only the first call per log counts.
func (l *Log) LogDestructStart(timeMs, durationMs int64) {
	if !l.recording || l.hasDestruct {
		return
	}
	l.destruct = core.DestructStart{TimeMs: timeMs, DurationMs: durationMs}
	l.hasDestruct = true
}

// LogPadLatchOn records latching to pad, unless already latched to it.
func (l *Log) LogPadLatchOn(timeMs int64, pad core.PadKey) {
	if !l.recording {
		return
	}
	l.latch.Append(timeMs, latch{on: true, pad: pad})
}

// LogPadLatchOff records unlatching, unless already unlatched.
func (l *Log) LogPadLatchOff(timeMs int64) {
	if !l.recording {
		return
	}
	l.latch.Append(timeMs, latch{})
}

// LogShipOnboard records the onboard headcount when it changes.
// forceFirst stores the value even if it repeats, for an initial baseline record.
func (l *Log) LogShipOnboard(timeMs int64, count int, forceFirst bool) {
	if !l.recording {
		return
	}
	if forceFirst {
		l.onboard.Force(timeMs, count)
		return
	}
	l.onboard.Append(timeMs, count)
}

// LogPadWaiting records the waiting headcount at pad when it changes.
func (l *Log) LogPadWaiting(timeMs int64, pad core.PadKey, count int) {
	if !l.recording {
		return
	}
	l.waitingChannel(pad).Append(timeMs, count)
}

func (l *Log) waitingChannel(pad core.PadKey) *channel.Channel[int] {
	c, ok := l.waiting[pad]
	if !ok {
		c = channel.New(0)
		l.waiting[pad] = c
	}
	return c
}

// CountdownAt derives the countdown view at timeMs. Without a recorded
// countdown every field is zero.
func (l *Log) CountdownAt(timeMs int64) core.Countdown {
	if !l.hasDestruct {
		return core.Countdown{}
	}
	end := l.destruct.EndMs()
	cd := core.Countdown{
		BeforeStart: timeMs < l.destruct.TimeMs,
		Destroyed:   timeMs >= end,
		RemainingMs: remaining(end, timeMs),
		EndTimeMs:   end,
	}
	cd.Active = !cd.BeforeStart && !cd.Destroyed
	return cd
}

// remaining is max(0, end-timeMs), saturating at math.MaxInt64.
func remaining(end, timeMs int64) int64 {
	if timeMs >= end {
		return 0
	}
	if timeMs < 0 && end > math.MaxInt64+timeMs {
		return math.MaxInt64
	}
	return end - timeMs
}

// PadLatchedPadAt returns the latched pad at timeMs.
func (l *Log) PadLatchedPadAt(timeMs int64) core.LatchState {
	r := l.latch.At(timeMs)
	return core.LatchState{
		Latched:     r.Value.on,
		Pad:         r.Value.pad,
		Changed:     r.Changed,
		BeforeFirst: r.BeforeFirst,
		AfterLast:   r.AfterLast,
	}
}

// ShipOnboardAt returns the onboard headcount at timeMs.
func (l *Log) ShipOnboardAt(timeMs int64) core.CountState {
	return countState(l.onboard.At(timeMs))
}

// PadWaitingAt returns the waiting headcount at pad. A pad that was never
// written behaves as an empty channel.
func (l *Log) PadWaitingAt(timeMs int64, pad core.PadKey) core.CountState {
	c, ok := l.waiting[pad]
	if !ok {
		return core.CountState{BeforeFirst: true}
	}
	return countState(c.At(timeMs))
}

func countState(r channel.Result[int]) core.CountState {
	return core.CountState{
		Count:       r.Value,
		Changed:     r.Changed,
		BeforeFirst: r.BeforeFirst,
		AfterLast:   r.AfterLast,
	}
}

// DestructStart returns the recorded countdown, if any.
func (l *Log) DestructStart() (core.DestructStart, bool) {
	return l.destruct, l.hasDestruct
}

// LatchEvents returns the latch toggles in recorded order.
func (l *Log) LatchEvents() []core.PadLatch {
	events := l.latch.Events()
	out := make([]core.PadLatch, len(events))
	for i, e := range events {
		out[i] = core.PadLatch{TimeMs: e.TimeMs, Latched: e.Value.on, Pad: e.Value.pad}
	}
	return out
}

// OnboardEvents returns the onboard headcount changes in recorded order.
func (l *Log) OnboardEvents() []core.ShipOnboard {
	events := l.onboard.Events()
	out := make([]core.ShipOnboard, len(events))
	for i, e := range events {
		out[i] = core.ShipOnboard{TimeMs: e.TimeMs, Count: e.Value}
	}
	return out
}

// WaitingEvents returns the waiting headcount changes for pad.
func (l *Log) WaitingEvents(pad core.PadKey) []core.PadWaiting {
	c, ok := l.waiting[pad]
	if !ok {
		return nil
	}
	events := c.Events()
	out := make([]core.PadWaiting, len(events))
	for i, e := range events {
		out[i] = core.PadWaiting{TimeMs: e.TimeMs, Pad: pad, Count: e.Value}
	}
	return out
}

// Pads returns every pad with a waiting channel, in (structure, block) order.
func (l *Log) Pads() []core.PadKey {
	return slices.SortedFunc(maps.Keys(l.waiting), func(a, b core.PadKey) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
}

// Stats counts stored events per channel shape.
type Stats struct {
	Destruct int
	Latch    int
	Onboard  int
	Waiting  int
	Pads     int
}

// Total is the number of stored events across all channels.
func (s Stats) Total() int {
	return s.Destruct + s.Latch + s.Onboard + s.Waiting
}

// Stats returns per-channel event counts.
func (l *Log) Stats() Stats {
	s := Stats{
		Latch:   l.latch.Len(),
		Onboard: l.onboard.Len(),
		Pads:    len(l.waiting),
	}
	if l.hasDestruct {
		s.Destruct = 1
	}
	for _, c := range l.waiting {
		s.Waiting += c.Len()
	}
	return s
}

// Span returns the earliest and latest event time across all channels.
// ok is false for an empty log.
func (l *Log) Span() (first, last int64, ok bool) {
	see := func(t int64) {
		if !ok {
			first, last, ok = t, t, true
			return
		}
		first = min(first, t)
		last = max(last, t)
	}
	if l.hasDestruct {
		see(l.destruct.TimeMs)
	}
	seeAll := func(c *channel.Channel[int]) {
		if events := c.Events(); len(events) > 0 {
			see(events[0].TimeMs)
			see(events[len(events)-1].TimeMs)
		}
	}
	if events := l.latch.Events(); len(events) > 0 {
		see(events[0].TimeMs)
		see(events[len(events)-1].TimeMs)
	}
	seeAll(l.onboard)
	for _, c := range l.waiting {
		seeAll(c)
	}
	return first, last, ok
}

// resetCaches forgets every channel's previous query.
func (l *Log) resetCaches() {
	l.latch.ResetCache()
	l.onboard.ResetCache()
	for _, c := range l.waiting {
		c.ResetCache()
	}
}
