// Package convert provides functions to convert between GORM models and storage attempts
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/geo"
	"github.com/sortie/replay/internal/model"
	"github.com/sortie/replay/internal/storage"
	"gorm.io/datatypes"
)

// emptyTrack is stored for attempts recorded without a camera.
var emptyTrack = datatypes.JSON(fmt.Sprintf(`{"version":%d,"events":[]}`, camera.TrackFormatVersion))

// AttemptToModel converts a storage.Attempt to a GORM model.Attempt.
func AttemptToModel(a *storage.Attempt) (model.Attempt, error) {
	summary, err := json.Marshal(a.Summary)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("error encoding summary: %w", err)
	}

	track := emptyTrack
	var pathLength float64
	if a.Track != nil {
		b, err := json.Marshal(a.Track)
		if err != nil {
			return model.Attempt{}, fmt.Errorf("error encoding camera track: %w", err)
		}
		track = datatypes.JSON(b)
		pathLength = geo.PathLength(a.Track)
	}

	var score *int
	if a.Summary.Score != nil {
		s := *a.Summary.Score
		score = &s
	}

	return model.Attempt{
		ID:          a.Summary.AttemptID,
		MissionID:   a.Summary.MissionID,
		StartedAt:   a.Summary.StartedAt,
		DurationMs:  a.Summary.DurationMs,
		Outcome:     string(a.Summary.Outcome),
		Score:       score,
		EventCount:  a.Log.Stats().Total(),
		PathLengthM: pathLength,
		MissionLog:  a.Log.String(),
		CameraTrack: track,
		Summary:     datatypes.JSON(summary),
	}, nil
}
