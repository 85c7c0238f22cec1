package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var padA = core.PadKey{StructureID: 1, BlockIndex: 0}

func fixedClock() time.Time {
	return time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
}

func newTestRecorder() *Recorder {
	return NewRecorder(Options{Recording: true, Now: fixedClock})
}

func fly(r *Recorder, onboard int) {
	r.Log().LogShipOnboard(0, 0, true)
	r.Log().LogPadLatchOn(100, padA)
	r.Log().LogShipOnboard(200, onboard, false)
	r.AddCameraKeyframe(camera.Event{TimeMs: 0, JumpTo: camera.ChasePose(10)})
}

func TestStartAttempt(t *testing.T) {
	r := newTestRecorder()
	assert.False(t, r.Active())

	id := r.StartAttempt("m1")
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	assert.True(t, r.Active())
	assert.True(t, r.Log().Recording())
	assert.Equal(t, core.FlightSummary{
		AttemptID: id,
		MissionID: "m1",
		StartedAt: fixedClock(),
		Outcome:   core.OutcomeUnknown,
	}, r.Current())
}

func TestStartAttempt_ClearsLiveBuffers(t *testing.T) {
	r := newTestRecorder()
	r.StartAttempt("m1")
	fly(r, 3)

	first := r.Log()
	second := r.StartAttempt("m1")
	assert.NotEqual(t, second, "")
	assert.Same(t, first, r.Log())
	assert.Zero(t, r.Log().Stats().Total())
	assert.Zero(t, r.Track().Len())
}

func TestRecordingDisabled(t *testing.T) {
	r := NewRecorder(Options{Recording: false})
	r.StartAttempt("m1")
	fly(r, 3)

	assert.Zero(t, r.Log().Stats().Total())
	assert.Zero(t, r.Track().Len())
}

func TestFinish(t *testing.T) {
	r := newTestRecorder()
	id := r.StartAttempt("m1")
	fly(r, 3)

	score := 120
	a, err := r.Finish(4500, core.OutcomeCompleted, &score)
	require.NoError(t, err)

	assert.False(t, r.Active())
	assert.False(t, r.Log().Recording())
	assert.Equal(t, id, a.Summary.AttemptID)
	assert.Equal(t, int64(4500), a.Summary.DurationMs)
	assert.Equal(t, core.OutcomeCompleted, a.Summary.Outcome)
	require.NotNil(t, a.Summary.Score)
	assert.Equal(t, 120, *a.Summary.Score)

	assert.Equal(t, r.Log().String(), a.Log.String())
	assert.Equal(t, 1, a.Track.Len())

	r.StartAttempt("m1")
	assert.Equal(t, 3, a.Log.ShipOnboardAt(300).Count, "finished attempt is independent of the live log")
}

func TestFinish_WithoutAttempt(t *testing.T) {
	_, err := newTestRecorder().Finish(0, core.OutcomeAborted, nil)
	assert.ErrorIs(t, err, ErrNoAttempt)
}

func TestFinish_StopsWrites(t *testing.T) {
	r := newTestRecorder()
	r.StartAttempt("m1")
	_, err := r.Finish(100, core.OutcomeFailed, nil)
	require.NoError(t, err)

	r.Log().LogShipOnboard(150, 9, false)
	r.AddCameraKeyframe(camera.Event{TimeMs: 150, JumpTo: camera.ChasePose(1)})
	assert.Zero(t, r.Log().Stats().Total())
	assert.Zero(t, r.Track().Len())
}

func TestKeepAsBest(t *testing.T) {
	r := newTestRecorder()
	r.StartAttempt("m1")
	fly(r, 3)
	_, err := r.Finish(1000, core.OutcomeCompleted, nil)
	require.NoError(t, err)

	_, _, _, ok := r.Best()
	assert.False(t, ok)

	r.KeepAsBest()
	r.StartAttempt("m1")
	fly(r, 7)

	log, track, summary, ok := r.Best()
	require.True(t, ok)
	assert.Equal(t, 3, log.ShipOnboardAt(500).Count)
	assert.Equal(t, 7, r.Log().ShipOnboardAt(500).Count)
	assert.Equal(t, 1, track.Len())
	assert.Equal(t, int64(1000), summary.DurationMs)
	assert.False(t, log.Recording())
}

func TestConsiderBest(t *testing.T) {
	r := newTestRecorder()

	run := func(duration int64, outcome core.Outcome) bool {
		r.StartAttempt("m1")
		fly(r, int(duration))
		_, err := r.Finish(duration, outcome, nil)
		require.NoError(t, err)
		return r.ConsiderBest()
	}

	assert.True(t, run(5000, core.OutcomeCompleted))
	assert.False(t, run(6000, core.OutcomeCompleted))
	assert.False(t, run(1000, core.OutcomeFailed))
	assert.True(t, run(4000, core.OutcomeCompleted))

	_, _, summary, ok := r.Best()
	require.True(t, ok)
	assert.Equal(t, int64(4000), summary.DurationMs)
}
