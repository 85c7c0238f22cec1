// Package replay plays a recorded attempt back on a virtual clock. Once per
// frame the driver queries the mission log and camera track and notifies
// listeners about the facts that changed since the previous frame.
package replay

import (
	"context"
	"fmt"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/sortie/replay/internal/replay"

// Frame is the replay state at one timestamp. The driver owns it and
// overwrites it on every call to Frame.
type Frame struct {
	TimeMs    int64
	Countdown core.Countdown
	Latch     core.LatchState
	Onboard   core.CountState
	Waiting   map[core.PadKey]core.CountState
	Camera    camera.Sample
	HasCamera bool
}

// Listener receives changed facts. Callbacks run synchronously inside Frame.
type Listener interface {
	CountdownChanged(timeMs int64, c core.Countdown)
	LatchChanged(timeMs int64, s core.LatchState)
	OnboardChanged(timeMs int64, s core.CountState)
	WaitingChanged(timeMs int64, pad core.PadKey, s core.CountState)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Countdown func(timeMs int64, c core.Countdown)
	Latch     func(timeMs int64, s core.LatchState)
	Onboard   func(timeMs int64, s core.CountState)
	Waiting   func(timeMs int64, pad core.PadKey, s core.CountState)
}

func (f ListenerFuncs) CountdownChanged(timeMs int64, c core.Countdown) {
	if f.Countdown != nil {
		f.Countdown(timeMs, c)
	}
}

func (f ListenerFuncs) LatchChanged(timeMs int64, s core.LatchState) {
	if f.Latch != nil {
		f.Latch(timeMs, s)
	}
}

func (f ListenerFuncs) OnboardChanged(timeMs int64, s core.CountState) {
	if f.Onboard != nil {
		f.Onboard(timeMs, s)
	}
}

func (f ListenerFuncs) WaitingChanged(timeMs int64, pad core.PadKey, s core.CountState) {
	if f.Waiting != nil {
		f.Waiting(timeMs, pad, s)
	}
}

// countdownPhase is what listeners see change; RemainingMs ticks every frame.
type countdownPhase struct {
	active, beforeStart, destroyed bool
}

func phaseOf(c core.Countdown) countdownPhase {
	return countdownPhase{c.Active, c.BeforeStart, c.Destroyed}
}

// Driver steps a frozen log and optional camera track through time. The
// log's change detection is per instance, so the driver must be the only
// reader of log while it is in use. Not safe for concurrent use.
type Driver struct {
	log   *missionlog.Log
	track *camera.Track

	nowMs int64
	pads  []core.PadKey

	frame     Frame
	phase     countdownPhase
	hasPhase  bool
	listeners []Listener

	frames  metric.Int64Counter
	seeks   metric.Int64Counter
	changes metric.Int64Counter
}

// New creates a driver positioned at the start of the recording. track may
// be nil. Every pad with recorded waiting counts is watched.
func New(log *missionlog.Log, track *camera.Track) (*Driver, error) {
	d := &Driver{
		log:   log,
		track: track,
		frame: Frame{Waiting: make(map[core.PadKey]core.CountState)},
	}
	for _, pad := range log.Pads() {
		d.WatchPad(pad)
	}
	if start, _, ok := d.Span(); ok {
		d.nowMs = start
	}

	m := otel.Meter(instrumentationName)

	var err error
	d.frames, err = m.Int64Counter(
		"replay.frames",
		metric.WithDescription("Total frames evaluated"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}

	d.seeks, err = m.Int64Counter(
		"replay.seeks",
		metric.WithDescription("Total seeks on the virtual clock"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating seeks counter: %w", err)
	}

	d.changes, err = m.Int64Counter(
		"replay.changes",
		metric.WithDescription("Changed facts delivered to listeners"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating changes counter: %w", err)
	}

	return d, nil
}

// AddListener registers l for change callbacks.
func (d *Driver) AddListener(l Listener) {
	d.listeners = append(d.listeners, l)
}

// WatchPad adds pad to the set whose waiting count is evaluated each frame.
func (d *Driver) WatchPad(pad core.PadKey) {
	if _, ok := d.frame.Waiting[pad]; ok {
		return
	}
	d.pads = append(d.pads, pad)
	d.frame.Waiting[pad] = core.CountState{BeforeFirst: true}
}

// Now returns the virtual clock.
func (d *Driver) Now() int64 { return d.nowMs }

// Span returns the earliest and latest time covered by the log and track.
func (d *Driver) Span() (first, last int64, ok bool) {
	first, last, ok = d.log.Span()
	if d.track != nil {
		if tf, tl, tok := d.track.Span(); tok {
			if !ok {
				return tf, tl, true
			}
			first, last = min(first, tf), max(last, tl)
		}
	}
	if cd, has := d.log.DestructStart(); has {
		if !ok {
			return cd.TimeMs, cd.EndMs(), true
		}
		last = max(last, cd.EndMs())
	}
	return first, last, ok
}

// Done reports whether the clock has passed every recorded fact.
func (d *Driver) Done() bool {
	_, last, ok := d.Span()
	return !ok || d.nowMs >= last
}

// Seek moves the clock to timeMs. The next Frame reports whatever differs
// from the previously evaluated frame, in either direction.
func (d *Driver) Seek(timeMs int64) {
	d.nowMs = timeMs
	d.seeks.Add(context.Background(), 1)
}

// Advance moves the clock forward by dtMs.
func (d *Driver) Advance(dtMs int64) {
	d.nowMs += dtMs
}

// Frame evaluates every channel at the current clock, notifies listeners of
// changes and returns the driver-owned frame.
func (d *Driver) Frame() *Frame {
	ctx := context.Background()
	t := d.nowMs
	f := &d.frame
	f.TimeMs = t

	f.Countdown = d.log.CountdownAt(t)
	if p := phaseOf(f.Countdown); !d.hasPhase || p != d.phase {
		d.phase, d.hasPhase = p, true
		d.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", "countdown")))
		for _, l := range d.listeners {
			l.CountdownChanged(t, f.Countdown)
		}
	}

	f.Latch = d.log.PadLatchedPadAt(t)
	if f.Latch.Changed {
		d.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", "latch")))
		for _, l := range d.listeners {
			l.LatchChanged(t, f.Latch)
		}
	}

	f.Onboard = d.log.ShipOnboardAt(t)
	if f.Onboard.Changed {
		d.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", "onboard")))
		for _, l := range d.listeners {
			l.OnboardChanged(t, f.Onboard)
		}
	}

	for _, pad := range d.pads {
		s := d.log.PadWaitingAt(t, pad)
		f.Waiting[pad] = s
		if s.Changed {
			d.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", "waiting")))
			for _, l := range d.listeners {
				l.WaitingChanged(t, pad, s)
			}
		}
	}

	f.HasCamera = d.track != nil && d.track.EvalInto(t, &f.Camera) == nil

	d.frames.Add(ctx, 1)
	return f
}

// Run advances by stepMs from the current clock until the recording is
// exhausted or ctx is done, calling fn with each frame.
func (d *Driver) Run(ctx context.Context, stepMs int64, fn func(*Frame) error) error {
	if stepMs <= 0 {
		return fmt.Errorf("step must be positive, got %d", stepMs)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d.Frame()); err != nil {
			return err
		}
		if d.Done() {
			return nil
		}
		d.Advance(stepMs)
	}
}
