package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sortie/replay/internal/dispatcher"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/internal/parser"
	"github.com/sortie/replay/internal/session"
	"github.com/sortie/replay/internal/storage"
	"github.com/sortie/replay/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu       sync.Mutex
	attempts map[string]*storage.Attempt
	order    []string
	saveErr  error
}

func newMockBackend() *mockBackend {
	return &mockBackend{attempts: make(map[string]*storage.Attempt)}
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) SaveAttempt(_ context.Context, a *storage.Attempt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	if _, ok := b.attempts[a.Summary.AttemptID]; !ok {
		b.order = append(b.order, a.Summary.AttemptID)
	}
	b.attempts[a.Summary.AttemptID] = a
	return nil
}

func (b *mockBackend) LoadAttempt(_ context.Context, id string) (*storage.Attempt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.attempts[id]
	if !ok {
		return nil, fmt.Errorf("attempt %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (b *mockBackend) ListAttempts(_ context.Context, missionID string) ([]core.FlightSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []core.FlightSummary
	for _, id := range b.order {
		s := b.attempts[id].Summary
		if missionID == "" || s.MissionID == missionID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (b *mockBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.attempts)
}

func (b *mockBackend) first() *storage.Attempt {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return nil
	}
	return b.attempts[b.order[0]]
}

// mockPublisher records published points
type mockPublisher struct {
	mu     sync.Mutex
	stats  []missionlog.Stats
	length []float64
	err    error
}

func (p *mockPublisher) Publish(_ core.FlightSummary, stats missionlog.Stats, pathLength float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = append(p.stats, stats)
	p.length = append(p.length, pathLength)
	return p.err
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
}

func newTestManager(t *testing.T, backend storage.Backend, pub Publisher) (*Manager, *dispatcher.Dispatcher) {
	t.Helper()
	d, err := dispatcher.New(slog.Default())
	require.NoError(t, err)

	m := NewManager(Dependencies{
		Recorder:  session.NewRecorder(session.Options{Recording: true, Now: fixedClock}),
		Publisher: pub,
	}, backend)
	m.RegisterHandlers(d)
	t.Cleanup(d.Close)
	return m, d
}

func send(t *testing.T, d *dispatcher.Dispatcher, cmd string, args ...string) any {
	t.Helper()
	res, err := d.Dispatch(dispatcher.Event{Command: cmd, Args: args, Timestamp: time.Now()})
	require.NoError(t, err, cmd)
	return res
}

func flyAttempt(t *testing.T, d *dispatcher.Dispatcher, missionID string, finishMs string) {
	t.Helper()
	send(t, d, CmdStart, missionID)
	send(t, d, CmdOnboard, "0", "0", "true")
	send(t, d, CmdLatchOn, "100", "1", "0")
	send(t, d, CmdWaiting, "150", "1", "0", "3")
	send(t, d, CmdDestruct, "200", "30000")
	send(t, d, CmdCamera, "0", `{"type":"Track","position":{"x":0,"y":0,"z":0}}`)
	send(t, d, CmdCamera, "300", `{"type":"Track","position":{"x":3,"y":4,"z":0}}`)
	send(t, d, CmdLatchOff, "400")
	send(t, d, CmdFinish, finishMs, "completed", "10")
}

func TestRegisterHandlers(t *testing.T) {
	_, d := newTestManager(t, nil, nil)

	for _, cmd := range []string{
		CmdStart, CmdDestruct, CmdLatchOn, CmdLatchOff, CmdOnboard,
		CmdWaiting, CmdCamera, CmdFinish, CmdSave, CmdLoadBest,
	} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}
}

func TestFullAttemptIsSaved(t *testing.T) {
	backend := newMockBackend()
	pub := &mockPublisher{}
	m, d := newTestManager(t, backend, pub)

	flyAttempt(t, d, "harbor-3", "500")
	d.Close()

	require.Equal(t, 1, backend.count())
	a := backend.first()
	assert.Equal(t, "harbor-3", a.Summary.MissionID)
	assert.Equal(t, core.OutcomeCompleted, a.Summary.Outcome)
	assert.Equal(t, int64(500), a.Summary.DurationMs)
	assert.Equal(t, fixedClock(), a.Summary.StartedAt)
	require.NotNil(t, a.Summary.Score)
	assert.Equal(t, 10, *a.Summary.Score)

	stats := a.Log.Stats()
	assert.Equal(t, missionlog.Stats{Destruct: 1, Latch: 2, Onboard: 1, Waiting: 1, Pads: 1}, stats)
	assert.Equal(t, 2, a.Track.Len())

	require.Len(t, pub.stats, 1)
	assert.Equal(t, stats, pub.stats[0])
	assert.InDelta(t, 5.0, pub.length[0], 1e-9)

	assert.Equal(t, int64(1), m.Saved())
	assert.Equal(t, "harbor-3", m.deps.Context.MissionID())
	assert.Empty(t, m.deps.Context.AttemptID())

	_, _, best, ok := m.deps.Recorder.Best()
	require.True(t, ok)
	assert.Equal(t, a.Summary.AttemptID, best.AttemptID)
}

func TestStartSetsContext(t *testing.T) {
	m, d := newTestManager(t, nil, nil)

	id := send(t, d, CmdStart, "harbor-3")
	assert.Equal(t, id, m.deps.Context.AttemptID())
	assert.Equal(t, []slog.Attr{
		slog.String("missionId", "harbor-3"),
		slog.String("attemptId", id.(string)),
	}, m.deps.Context.LogAttrs())
}

func TestFinishWithoutStart(t *testing.T) {
	_, d := newTestManager(t, nil, nil)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdFinish, Args: []string{"10", "completed"}})
	assert.ErrorIs(t, err, session.ErrNoAttempt)
}

func TestBadArguments(t *testing.T) {
	_, d := newTestManager(t, nil, nil)
	send(t, d, CmdStart, "harbor-3")

	tests := []struct {
		cmd  string
		args []string
	}{
		{CmdLatchOn, []string{"100", "1"}},
		{CmdLatchOff, []string{"x"}},
		{CmdOnboard, []string{"100", "-2"}},
		{CmdWaiting, []string{"100", "1", "0"}},
		{CmdDestruct, []string{"100"}},
		{CmdCamera, []string{"100", `{"type":"Orbit"}`}},
		{CmdFinish, []string{"100"}},
		{CmdStart, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			_, err := d.Dispatch(dispatcher.Event{Command: tt.cmd, Args: tt.args})
			assert.Error(t, err)
		})
	}
}

func TestFinishWithoutBackend(t *testing.T) {
	m, d := newTestManager(t, nil, nil)

	send(t, d, CmdStart, "harbor-3")
	res := send(t, d, CmdFinish, "900", "failed")
	summary, ok := res.(core.FlightSummary)
	require.True(t, ok)
	assert.Equal(t, core.OutcomeFailed, summary.Outcome)
	assert.Zero(t, m.Saved())

	_, _, _, hasBest := m.deps.Recorder.Best()
	assert.False(t, hasBest)
}

func TestSaveErrorIsNotFatal(t *testing.T) {
	backend := newMockBackend()
	backend.saveErr = errors.New("disk full")
	pub := &mockPublisher{}
	m, d := newTestManager(t, backend, pub)

	flyAttempt(t, d, "harbor-3", "500")
	d.Close()

	assert.Zero(t, backend.count())
	assert.Zero(t, m.Saved())
	assert.Empty(t, pub.stats)
}

func TestPublishErrorStillCountsSave(t *testing.T) {
	backend := newMockBackend()
	pub := &mockPublisher{err: errors.New("influx down")}
	m, d := newTestManager(t, backend, pub)

	flyAttempt(t, d, "harbor-3", "500")
	d.Close()

	assert.Equal(t, 1, backend.count())
	assert.Equal(t, int64(1), m.Saved())
	assert.GreaterOrEqual(t, m.GetLastSaveDuration(), time.Duration(0))
}

func TestHandleSave_BadPayload(t *testing.T) {
	m, _ := newTestManager(t, newMockBackend(), nil)

	_, err := m.handleSave(dispatcher.Event{Command: CmdSave, Payload: "not an attempt"})
	assert.Error(t, err)
}

func TestHandleSave_NoBackend(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)

	_, err := m.handleSave(dispatcher.Event{Command: CmdSave, Payload: &storage.Attempt{}})
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestRecordingDisabled(t *testing.T) {
	backend := newMockBackend()
	d, err := dispatcher.New(slog.Default())
	require.NoError(t, err)
	m := NewManager(Dependencies{
		Recorder: session.NewRecorder(session.Options{Recording: false, Now: fixedClock}),
		Parser:   parser.NewParser(nil),
	}, backend)
	m.RegisterHandlers(d)

	flyAttempt(t, d, "harbor-3", "500")
	d.Close()

	require.Equal(t, 1, backend.count())
	a := backend.first()
	assert.Zero(t, a.Log.Stats().Total())
	assert.Zero(t, a.Track.Len())
}

func TestLoadBest(t *testing.T) {
	backend := newMockBackend()
	_, d := newTestManager(t, backend, nil)

	flyAttempt(t, d, "harbor-3", "900")
	flyAttempt(t, d, "harbor-3", "600")
	flyAttempt(t, d, "other", "100")
	d.Close()
	require.Equal(t, 3, backend.count())

	// fresh recorder with no best
	m2, d2 := newTestManager(t, backend, nil)
	res, err := d2.Dispatch(dispatcher.Event{Command: CmdLoadBest, Args: []string{"harbor-3"}})
	require.NoError(t, err)
	summary, ok := res.(core.FlightSummary)
	require.True(t, ok)
	assert.Equal(t, int64(600), summary.DurationMs)

	log, track, best, ok := m2.deps.Recorder.Best()
	require.True(t, ok)
	assert.Equal(t, summary, best)
	assert.Equal(t, 5, log.Stats().Total())
	assert.Equal(t, 2, track.Len())

	res, err = d2.Dispatch(dispatcher.Event{Command: CmdLoadBest, Args: []string{"unknown"}})
	require.NoError(t, err)
	assert.Nil(t, res)
}

// bestBackend answers Best itself and refuses to list.
type bestBackend struct {
	*mockBackend
	best *storage.Attempt
}

func (b *bestBackend) ListAttempts(context.Context, string) ([]core.FlightSummary, error) {
	return nil, errors.New("list not expected")
}

func (b *bestBackend) Best(_ context.Context, missionID string) (*storage.Attempt, error) {
	if b.best == nil || b.best.Summary.MissionID != missionID {
		return nil, fmt.Errorf("best attempt of %s: %w", missionID, storage.ErrNotFound)
	}
	return b.best, nil
}

func TestLoadBest_BestFinder(t *testing.T) {
	src := newMockBackend()
	_, d := newTestManager(t, src, nil)
	flyAttempt(t, d, "harbor-3", "700")
	d.Close()
	require.Equal(t, 1, src.count())

	backend := &bestBackend{mockBackend: newMockBackend(), best: src.first()}
	m2, d2 := newTestManager(t, backend, nil)

	res, err := d2.Dispatch(dispatcher.Event{Command: CmdLoadBest, Args: []string{"harbor-3"}})
	require.NoError(t, err)
	summary, ok := res.(core.FlightSummary)
	require.True(t, ok)
	assert.Equal(t, int64(700), summary.DurationMs)

	_, _, best, ok := m2.deps.Recorder.Best()
	require.True(t, ok)
	assert.Equal(t, summary, best)

	res, err = d2.Dispatch(dispatcher.Event{Command: CmdLoadBest, Args: []string{"unknown"}})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestLoadBest_NoBackend(t *testing.T) {
	_, d := newTestManager(t, nil, nil)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdLoadBest, Args: []string{"harbor-3"}})
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestFastest(t *testing.T) {
	completed := func(id string, ms int64) core.FlightSummary {
		return core.FlightSummary{AttemptID: id, DurationMs: ms, Outcome: core.OutcomeCompleted}
	}

	tests := []struct {
		name   string
		input  []core.FlightSummary
		wantID string
		wantOk bool
	}{
		{"empty", nil, "", false},
		{"none completed", []core.FlightSummary{{AttemptID: "a", DurationMs: 1, Outcome: core.OutcomeFailed}}, "", false},
		{"fastest wins", []core.FlightSummary{completed("a", 900), completed("b", 600), completed("c", 700)}, "b", true},
		{"tie keeps first", []core.FlightSummary{completed("a", 600), completed("b", 600)}, "a", true},
		{"failed faster ignored", []core.FlightSummary{
			completed("a", 600),
			{AttemptID: "b", DurationMs: 10, Outcome: core.OutcomeAborted},
		}, "a", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Fastest(tt.input)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantID, got.AttemptID)
		})
	}
}
