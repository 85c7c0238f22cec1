// pkg/core/events.go
package core

// DestructStart is the one-shot self-destruct countdown fact.
// It covers [TimeMs, TimeMs+DurationMs).
type DestructStart struct {
	TimeMs     int64
	DurationMs int64
}

// EndMs is the instant the countdown reaches zero.
func (d DestructStart) EndMs() int64 {
	return d.TimeMs + d.DurationMs
}

// PadLatch is one state of the latch toggle channel.
// Pad is meaningful only while Latched.
type PadLatch struct {
	TimeMs  int64
	Latched bool
	Pad     PadKey
}

// ShipOnboard records the number of people on board the ship
type ShipOnboard struct {
	TimeMs int64
	Count  int
}

// PadWaiting records the number of people waiting at one pad
type PadWaiting struct {
	TimeMs int64
	Pad    PadKey
	Count  int
}

// Countdown is the live view of the destruct countdown at a point in time.
type Countdown struct {
	Active      bool
	BeforeStart bool
	Destroyed   bool
	RemainingMs int64
	EndTimeMs   int64
}

// LatchState is the latch channel as of a point in time.
// Pad is the zero key while unlatched.
type LatchState struct {
	Latched     bool
	Pad         PadKey
	Changed     bool
	BeforeFirst bool
	AfterLast   bool
}

// CountState is a scalar channel as of a point in time.
type CountState struct {
	Count       int
	Changed     bool
	BeforeFirst bool
	AfterLast   bool
}
