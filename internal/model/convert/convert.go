package convert

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/internal/model"
	"github.com/sortie/replay/internal/storage"
	"github.com/sortie/replay/pkg/core"
)

// SummaryFromModel converts a GORM model.Attempt row to a core.FlightSummary
// using the indexed columns only.
func SummaryFromModel(m model.Attempt) core.FlightSummary {
	var score *int
	if m.Score != nil {
		s := *m.Score
		score = &s
	}
	return core.FlightSummary{
		AttemptID:  m.ID,
		MissionID:  m.MissionID,
		StartedAt:  m.StartedAt,
		DurationMs: m.DurationMs,
		Outcome:    core.ParseOutcome(m.Outcome),
		Score:      score,
	}
}

// ModelToAttempt decodes a stored row. The mission log comes back frozen.
func ModelToAttempt(m model.Attempt, logger *slog.Logger) (*storage.Attempt, error) {
	log, err := missionlog.NewParser(logger).Parse(strings.NewReader(m.MissionLog))
	if err != nil {
		return nil, fmt.Errorf("error parsing mission log of attempt %s: %w", m.ID, err)
	}

	track := camera.NewTrack()
	if len(m.CameraTrack) > 0 {
		if err := json.Unmarshal(m.CameraTrack, track); err != nil {
			return nil, fmt.Errorf("error decoding camera track of attempt %s: %w", m.ID, err)
		}
	}

	summary := SummaryFromModel(m)
	if len(m.Summary) > 0 {
		// the JSON column carries fields the columns do not
		if err := json.Unmarshal(m.Summary, &summary); err != nil {
			return nil, fmt.Errorf("error decoding summary of attempt %s: %w", m.ID, err)
		}
	}

	return &storage.Attempt{Summary: summary, Log: log, Track: track}, nil
}
