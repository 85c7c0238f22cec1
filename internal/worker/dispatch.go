package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sortie/replay/internal/dispatcher"
	"github.com/sortie/replay/internal/geo"
	"github.com/sortie/replay/internal/storage"
	"github.com/sortie/replay/pkg/core"
)

// Commands understood by the manager.
const (
	CmdStart    = "START"
	CmdDestruct = "DESTRUCT"
	CmdLatchOn  = "LATCH_ON"
	CmdLatchOff = "LATCH_OFF"
	CmdOnboard  = "ONBOARD"
	CmdWaiting  = "WAITING"
	CmdCamera   = "CAMERA"
	CmdFinish   = "FINISH"
	CmdSave     = "SAVE"
	CmdLoadBest = "LOAD_BEST"
)

// RegisterHandlers registers all command handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.dispatcher = d

	// Recorder commands - sync, order matters
	d.Register(CmdStart, m.handleStart, dispatcher.Logged())
	d.Register(CmdDestruct, m.handleDestruct, dispatcher.Logged())
	d.Register(CmdLatchOn, m.handleLatchOn, dispatcher.Logged())
	d.Register(CmdLatchOff, m.handleLatchOff, dispatcher.Logged())
	d.Register(CmdOnboard, m.handleOnboard, dispatcher.Logged())
	d.Register(CmdWaiting, m.handleWaiting, dispatcher.Logged())
	d.Register(CmdCamera, m.handleCamera, dispatcher.Logged())
	d.Register(CmdFinish, m.handleFinish, dispatcher.Logged())
	d.Register(CmdLoadBest, m.handleLoadBest, dispatcher.Logged())

	// Persistence - buffered, never dropped
	d.Register(CmdSave, m.handleSave, dispatcher.Buffered(64), dispatcher.Blocking(), dispatcher.Logged())
}

func (m *Manager) handleStart(e dispatcher.Event) (any, error) {
	missionID, err := m.deps.Parser.ParseStart(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to start attempt: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.deps.Recorder.StartAttempt(missionID)
	m.deps.Context.SetAttempt(missionID, id)
	return id, nil
}

func (m *Manager) handleDestruct(e dispatcher.Event) (any, error) {
	obj, err := m.deps.Parser.ParseDestruct(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log destruct start: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Recorder.Log().LogDestructStart(obj.TimeMs, obj.DurationMs)
	return nil, nil
}

func (m *Manager) handleLatchOn(e dispatcher.Event) (any, error) {
	obj, err := m.deps.Parser.ParseLatchOn(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log pad latch: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Recorder.Log().LogPadLatchOn(obj.TimeMs, obj.Pad)
	return nil, nil
}

func (m *Manager) handleLatchOff(e dispatcher.Event) (any, error) {
	obj, err := m.deps.Parser.ParseLatchOff(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log pad unlatch: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Recorder.Log().LogPadLatchOff(obj.TimeMs)
	return nil, nil
}

func (m *Manager) handleOnboard(e dispatcher.Event) (any, error) {
	obj, err := m.deps.Parser.ParseOnboard(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log ship onboard: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Recorder.Log().LogShipOnboard(obj.TimeMs, obj.Count, obj.ForceFirst)
	return nil, nil
}

func (m *Manager) handleWaiting(e dispatcher.Event) (any, error) {
	obj, err := m.deps.Parser.ParseWaiting(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log pad waiting: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Recorder.Log().LogPadWaiting(obj.TimeMs, obj.Pad, obj.Count)
	return nil, nil
}

func (m *Manager) handleCamera(e dispatcher.Event) (any, error) {
	obj, err := m.deps.Parser.ParseCamera(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log camera keyframe: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Recorder.AddCameraKeyframe(obj)
	return nil, nil
}

// handleFinish closes the attempt and queues it for saving. The result is
// the finished summary.
func (m *Manager) handleFinish(e dispatcher.Event) (any, error) {
	obj, err := m.deps.Parser.ParseFinish(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to finish attempt: %w", err)
	}

	m.mu.Lock()
	attempt, err := m.deps.Recorder.Finish(obj.TimeMs, obj.Outcome, obj.Score)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to finish attempt: %w", err)
	}
	if m.deps.Recorder.ConsiderBest() {
		m.deps.Logger.Info("New best attempt",
			"attemptId", attempt.Summary.AttemptID,
			"durationMs", attempt.Summary.DurationMs)
	}
	m.deps.Context.ClearAttempt()
	m.mu.Unlock()

	if m.backend != nil && m.dispatcher != nil {
		if _, err := m.dispatcher.Dispatch(dispatcher.Event{
			Command:   CmdSave,
			Payload:   attempt,
			Timestamp: time.Now(),
		}); err != nil {
			return attempt.Summary, fmt.Errorf("failed to queue save: %w", err)
		}
	}
	return attempt.Summary, nil
}

func (m *Manager) handleSave(e dispatcher.Event) (any, error) {
	attempt, ok := e.Payload.(*storage.Attempt)
	if !ok || attempt == nil {
		return nil, fmt.Errorf("save: payload is %T, want *storage.Attempt", e.Payload)
	}
	if m.backend == nil {
		return nil, ErrNoBackend
	}

	ctx, cancel := m.saveContext()
	defer cancel()

	start := time.Now()
	if err := m.backend.SaveAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to save attempt %s: %w", attempt.Summary.AttemptID, err)
	}
	m.lastSave.Store(int64(time.Since(start)))
	m.saved.Add(1)

	if m.deps.Publisher != nil {
		stats := attempt.Log.Stats()
		if err := m.deps.Publisher.Publish(attempt.Summary, stats, geo.PathLength(attempt.Track)); err != nil {
			m.deps.Logger.Warn("Failed to publish attempt metrics",
				"attemptId", attempt.Summary.AttemptID, "error", err)
		}
	}
	return attempt.Summary.AttemptID, nil
}

// handleLoadBest loads the fastest completed stored attempt of a mission
// into the recorder's best buffers. The result is its summary, or nil if
// the mission has none.
func (m *Manager) handleLoadBest(e dispatcher.Event) (any, error) {
	if m.backend == nil {
		return nil, ErrNoBackend
	}
	missionID, err := m.deps.Parser.ParseStart(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to load best attempt: %w", err)
	}

	ctx, cancel := m.saveContext()
	defer cancel()

	attempt, err := m.findBest(ctx, missionID)
	if err != nil || attempt == nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Recorder.LoadBest(attempt)
	return attempt.Summary, nil
}

// findBest asks the backend directly when it can answer, otherwise it scans
// the mission's summaries. A mission without a completed attempt gives nil.
func (m *Manager) findBest(ctx context.Context, missionID string) (*storage.Attempt, error) {
	if finder, ok := m.backend.(storage.BestFinder); ok {
		attempt, err := finder.Best(ctx, missionID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query best attempt: %w", err)
		}
		return attempt, nil
	}

	summaries, err := m.backend.ListAttempts(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	best, ok := Fastest(summaries)
	if !ok {
		return nil, nil
	}

	attempt, err := m.backend.LoadAttempt(ctx, best.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt %s: %w", best.AttemptID, err)
	}
	return attempt, nil
}

// Fastest returns the completed summary with the lowest duration. Ties go
// to the earliest in the slice.
func Fastest(summaries []core.FlightSummary) (core.FlightSummary, bool) {
	var best core.FlightSummary
	found := false
	for _, s := range summaries {
		if s.Outcome != core.OutcomeCompleted {
			continue
		}
		if !found || s.DurationMs < best.DurationMs {
			best = s
			found = true
		}
	}
	return best, found
}
