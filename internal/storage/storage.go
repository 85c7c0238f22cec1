// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/pkg/core"
)

// ErrNotFound is returned when an attempt id is not stored.
var ErrNotFound = errors.New("attempt not found")

// Attempt is everything recorded for one run of a mission. Log and Track are
// owned by the Attempt once handed to a backend.
type Attempt struct {
	Summary core.FlightSummary
	Log     *missionlog.Log
	Track   *camera.Track
}

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	SaveAttempt(ctx context.Context, a *Attempt) error
	// LoadAttempt returns ErrNotFound for unknown ids. The loaded log is frozen.
	LoadAttempt(ctx context.Context, id string) (*Attempt, error)
	// ListAttempts returns summaries oldest first. An empty missionID lists all.
	ListAttempts(ctx context.Context, missionID string) ([]core.FlightSummary, error)
}

// BestFinder is implemented by backends that can look up the fastest
// completed attempt of a mission themselves. Best returns ErrNotFound when
// the mission has none.
type BestFinder interface {
	Best(ctx context.Context, missionID string) (*Attempt, error)
}
