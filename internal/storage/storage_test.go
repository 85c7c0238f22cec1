// internal/storage/storage_test.go
package storage_test

import (
	"fmt"
	"testing"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/internal/storage"
	"github.com/sortie/replay/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestErrNotFoundWraps(t *testing.T) {
	err := fmt.Errorf("attempt %s: %w", "abc", storage.ErrNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, "attempt abc: attempt not found", err.Error())
}

func TestAttemptFields(t *testing.T) {
	a := storage.Attempt{
		Summary: core.FlightSummary{MissionID: "harbor-3", Outcome: core.OutcomeAborted},
		Log:     missionlog.New(),
		Track:   camera.NewTrack(),
	}

	assert.Equal(t, "harbor-3", a.Summary.MissionID)
	assert.Equal(t, core.OutcomeAborted, a.Summary.Outcome)
	assert.Zero(t, a.Log.Stats().Total())
	assert.Zero(t, a.Track.Len())
}
