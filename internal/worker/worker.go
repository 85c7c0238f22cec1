// Package worker binds ingest commands to the recorder and persists finished
// attempts in the background.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sortie/replay/internal/dispatcher"
	"github.com/sortie/replay/internal/mission"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/internal/parser"
	"github.com/sortie/replay/internal/session"
	"github.com/sortie/replay/internal/storage"
	"github.com/sortie/replay/pkg/core"
)

// ErrNoBackend is returned by commands that need storage when none is configured.
var ErrNoBackend = errors.New("no storage backend configured")

// Publisher receives one metrics point per saved attempt. *influx.Publisher
// implements it.
type Publisher interface {
	Publish(summary core.FlightSummary, stats missionlog.Stats, pathLength float64) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Recorder *session.Recorder
	Parser   *parser.Parser
	Context  *mission.Context
	// Publisher is optional.
	Publisher Publisher
	Logger    *slog.Logger
	// SaveTimeout bounds one background save. Zero means no limit.
	SaveTimeout time.Duration
}

// Manager turns dispatched commands into recorder calls
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	// recorder is not safe for concurrent use
	mu         sync.Mutex
	dispatcher *dispatcher.Dispatcher

	lastSave atomic.Int64
	saved    atomic.Int64
}

// NewManager creates a new worker manager. backend may be nil, in which
// case finished attempts are only kept in memory.
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger)
	}
	if deps.Context == nil {
		deps.Context = mission.NewContext()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// GetLastSaveDuration returns how long the most recent background save took.
func (m *Manager) GetLastSaveDuration() time.Duration {
	return time.Duration(m.lastSave.Load())
}

// Saved returns the number of attempts persisted so far.
func (m *Manager) Saved() int64 {
	return m.saved.Load()
}

func (m *Manager) saveContext() (context.Context, context.CancelFunc) {
	if m.deps.SaveTimeout > 0 {
		return context.WithTimeout(context.Background(), m.deps.SaveTimeout)
	}
	return context.WithCancel(context.Background())
}
