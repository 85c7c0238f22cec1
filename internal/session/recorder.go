// Package session owns the live recording of one mission attempt and the
// best attempt kept for ghost playback.
package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/internal/storage"
	"github.com/sortie/replay/pkg/core"
)

// ErrNoAttempt is returned by Finish when no attempt is running.
var ErrNoAttempt = errors.New("no attempt in progress")

// Options configures a Recorder
type Options struct {
	// Recording gates every log write. When false attempts run but
	// record nothing.
	Recording bool
	Logger    *slog.Logger
	// Now is the wall clock used for attempt start times.
	Now func() time.Time
}

// Recorder drives the recording lifecycle. The live Log and Track are
// reused across attempts: StartAttempt clears them in place so long-lived
// references stay valid. Not safe for concurrent use.
type Recorder struct {
	opts   Options
	logger *slog.Logger

	log   *missionlog.Log
	track *camera.Track

	bestLog     *missionlog.Log
	bestTrack   *camera.Track
	bestSummary *core.FlightSummary

	summary core.FlightSummary
	active  bool
}

// NewRecorder creates a recorder with empty live and best buffers.
func NewRecorder(opts Options) *Recorder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{
		opts:      opts,
		logger:    opts.Logger,
		log:       missionlog.New(),
		track:     camera.NewTrack(),
		bestLog:   missionlog.New(),
		bestTrack: camera.NewTrack(),
	}
}

// Log returns the live mission log.
func (r *Recorder) Log() *missionlog.Log { return r.log }

// Track returns the live camera track.
func (r *Recorder) Track() *camera.Track { return r.track }

// Active reports whether an attempt is running.
func (r *Recorder) Active() bool { return r.active }

// Current returns the summary of the running attempt.
func (r *Recorder) Current() core.FlightSummary { return r.summary }

// StartAttempt clears the live buffers and opens a new attempt. A running
// attempt is discarded.
func (r *Recorder) StartAttempt(missionID string) string {
	if r.active {
		r.logger.Warn("Discarding unfinished attempt", "attemptId", r.summary.AttemptID)
	}

	r.log.Clear()
	r.track.Clear()
	r.log.SetRecording(r.opts.Recording)

	r.summary = core.FlightSummary{
		AttemptID: uuid.NewString(),
		MissionID: missionID,
		StartedAt: r.opts.Now().UTC(),
		Outcome:   core.OutcomeUnknown,
	}
	r.active = true

	r.logger.Debug("Attempt started",
		"attemptId", r.summary.AttemptID,
		"missionId", missionID,
		"recording", r.opts.Recording)
	return r.summary.AttemptID
}

// AddCameraKeyframe appends to the live track while recording.
func (r *Recorder) AddCameraKeyframe(e camera.Event) {
	if !r.active || !r.log.Recording() {
		return
	}
	r.track.Add(e)
}

// Finish stops recording and returns a snapshot of the attempt. The live
// buffers stay readable until the next StartAttempt.
func (r *Recorder) Finish(timeMs int64, outcome core.Outcome, score *int) (*storage.Attempt, error) {
	if !r.active {
		return nil, ErrNoAttempt
	}
	r.active = false
	r.log.SetRecording(false)

	r.summary.DurationMs = max(0, timeMs)
	r.summary.Outcome = outcome
	if score != nil {
		s := *score
		r.summary.Score = &s
	}

	attempt := &storage.Attempt{
		Summary: r.summary,
		Log:     r.log.Clone(),
		Track:   camera.NewTrack(),
	}
	attempt.Track.CopyFrom(r.track)

	stats := r.log.Stats()
	r.logger.Info("Attempt finished",
		"attemptId", r.summary.AttemptID,
		"missionId", r.summary.MissionID,
		"outcome", outcome,
		"durationMs", r.summary.DurationMs,
		"events", stats.Total(),
		"keyframes", r.track.Len())
	return attempt, nil
}

// KeepAsBest snapshots the live buffers as the best attempt.
func (r *Recorder) KeepAsBest() {
	r.bestLog.CopyFrom(r.log)
	r.bestTrack.CopyFrom(r.track)
	s := r.summary
	r.bestSummary = &s
}

// ConsiderBest keeps the live attempt as best when it completed faster than
// the current best. Reports whether it was kept.
func (r *Recorder) ConsiderBest() bool {
	if r.active || r.summary.Outcome != core.OutcomeCompleted {
		return false
	}
	if r.bestSummary != nil && r.bestSummary.DurationMs <= r.summary.DurationMs {
		return false
	}
	r.KeepAsBest()
	return true
}

// Best returns the best attempt buffers. ok is false until one is kept.
func (r *Recorder) Best() (log *missionlog.Log, track *camera.Track, summary core.FlightSummary, ok bool) {
	if r.bestSummary == nil {
		return r.bestLog, r.bestTrack, core.FlightSummary{}, false
	}
	return r.bestLog, r.bestTrack, *r.bestSummary, true
}

// LoadBest replaces the best buffers with a stored attempt.
func (r *Recorder) LoadBest(a *storage.Attempt) {
	r.bestLog.CopyFrom(a.Log)
	if a.Track != nil {
		r.bestTrack.CopyFrom(a.Track)
	} else {
		r.bestTrack.Clear()
	}
	s := a.Summary
	r.bestSummary = &s
}
