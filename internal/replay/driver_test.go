package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	padA = core.PadKey{StructureID: 1, BlockIndex: 0}
	padB = core.PadKey{StructureID: 2, BlockIndex: 3}
)

const recorded = `[Mission]
version=1
destructStart=1000,2000
padLatchOn=1200,1,0
padLatchOff=1800
shipOnboard=0,0
shipOnboard=1500,2
padWaiting=1250,1,0,3
padWaiting=1500,1,0,1
`

func frozenLog(t *testing.T) *missionlog.Log {
	t.Helper()
	l, err := missionlog.ParseString(recorded)
	require.NoError(t, err)
	return l
}

type recordingListener struct {
	countdowns []core.Countdown
	latches    []core.LatchState
	onboard    []int
	waiting    map[core.PadKey][]int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{waiting: make(map[core.PadKey][]int)}
}

func (r *recordingListener) CountdownChanged(_ int64, c core.Countdown) {
	r.countdowns = append(r.countdowns, c)
}

func (r *recordingListener) LatchChanged(_ int64, s core.LatchState) {
	r.latches = append(r.latches, s)
}

func (r *recordingListener) OnboardChanged(_ int64, s core.CountState) {
	r.onboard = append(r.onboard, s.Count)
}

func (r *recordingListener) WaitingChanged(_ int64, pad core.PadKey, s core.CountState) {
	r.waiting[pad] = append(r.waiting[pad], s.Count)
}

func TestNew_StartsAtSpanStart(t *testing.T) {
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(0), d.Now())
	first, last, ok := d.Span()
	require.True(t, ok)
	assert.Equal(t, int64(0), first)
	assert.Equal(t, int64(3000), last, "span includes the countdown end")
}

func TestFrame_Values(t *testing.T) {
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)

	d.Seek(1600)
	f := d.Frame()

	assert.Equal(t, int64(1600), f.TimeMs)
	assert.True(t, f.Countdown.Active)
	assert.Equal(t, int64(1400), f.Countdown.RemainingMs)
	assert.True(t, f.Latch.Latched)
	assert.Equal(t, padA, f.Latch.Pad)
	assert.Equal(t, 2, f.Onboard.Count)
	assert.Equal(t, 1, f.Waiting[padA].Count)
	assert.False(t, f.HasCamera)
}

func TestFrame_NotifiesOnlyChanges(t *testing.T) {
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)
	l := newRecordingListener()
	d.AddListener(l)

	for _, ms := range []int64{0, 100, 1200, 1300, 1500, 1900, 3100} {
		d.Seek(ms)
		d.Frame()
	}

	require.Len(t, l.countdowns, 3)
	assert.True(t, l.countdowns[0].BeforeStart)
	assert.True(t, l.countdowns[1].Active)
	assert.True(t, l.countdowns[2].Destroyed)

	require.Len(t, l.latches, 2)
	assert.True(t, l.latches[0].Latched)
	assert.False(t, l.latches[1].Latched)

	assert.Equal(t, []int{0, 2}, l.onboard)
	assert.Equal(t, []int{3, 1}, l.waiting[padA])
}

func TestFrame_ScrubbingBackwards(t *testing.T) {
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)
	l := newRecordingListener()
	d.AddListener(l)

	d.Seek(1600)
	d.Frame()
	d.Seek(100)
	d.Frame()

	assert.Equal(t, []int{2, 0}, l.onboard)
	assert.Equal(t, []int{1, 0}, l.waiting[padA], "before the first waiting event the baseline is reported")
}

func TestWatchPad_Unrecorded(t *testing.T) {
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)
	d.WatchPad(padB)
	d.WatchPad(padB)

	f := d.Frame()
	assert.Len(t, f.Waiting, 2)
	assert.Equal(t, core.CountState{BeforeFirst: true}, f.Waiting[padB])
}

func TestFrame_Camera(t *testing.T) {
	track := camera.NewTrack(
		camera.Event{TimeMs: 0, JumpTo: camera.ChasePose(10)},
		camera.Event{TimeMs: 1000, JumpTo: camera.ChasePose(20), Transition: &camera.Transition{To: camera.ChasePose(20)}},
	)
	d, err := New(frozenLog(t), track)
	require.NoError(t, err)

	d.Seek(500)
	f := d.Frame()
	assert.True(t, f.HasCamera)
	assert.Equal(t, 15.0, f.Camera.ChaseDistance)
}

func TestFrame_EmptyTrack(t *testing.T) {
	d, err := New(frozenLog(t), camera.NewTrack())
	require.NoError(t, err)
	assert.False(t, d.Frame().HasCamera)
}

func TestRun(t *testing.T) {
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)

	var times []int64
	err = d.Run(context.Background(), 1000, func(f *Frame) error {
		times = append(times, f.TimeMs)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1000, 2000, 3000}, times)
	assert.True(t, d.Done())
}

func TestRun_StopsOnError(t *testing.T) {
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)

	stop := errors.New("stop")
	calls := 0
	err = d.Run(context.Background(), 100, func(*Frame) error {
		calls++
		if calls == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, int64(200), d.Now())
}

func TestRun_Cancelled(t *testing.T) {
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.Run(ctx, 100, func(*Frame) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidStep(t *testing.T) {
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)
	assert.Error(t, d.Run(context.Background(), 0, func(*Frame) error { return nil }))
}

func TestListenerFuncs_NilSafe(t *testing.T) {
	var got []int
	d, err := New(frozenLog(t), nil)
	require.NoError(t, err)
	d.AddListener(ListenerFuncs{Onboard: func(_ int64, s core.CountState) { got = append(got, s.Count) }})

	d.Seek(2000)
	d.Frame()
	assert.Equal(t, []int{2}, got)
}
