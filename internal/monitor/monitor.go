// Package monitor periodically reports recorder health to a status file.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sortie/replay/internal/mission"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = time.Second

// SaveStats is implemented by *worker.Manager.
type SaveStats interface {
	Saved() int64
	GetLastSaveDuration() time.Duration
}

// PendingWriter is implemented by storage backends with a write queue.
type PendingWriter interface {
	Pending() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger         *slog.Logger
	MissionContext *mission.Context
	Worker         SaveStats
	// Backend is checked for PendingWriter; it may be anything.
	Backend    any
	StatusPath string
	Interval   time.Duration
}

// Status is one snapshot written to the status file.
type Status struct {
	Time               time.Time `json:"time"`
	MissionID          string    `json:"missionId,omitempty"`
	AttemptID          string    `json:"attemptId,omitempty"`
	Saved              int64     `json:"saved"`
	LastSaveDurationMs int64     `json:"lastSaveDurationMs"`
	PendingWrites      int       `json:"pendingWrites"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current recorder status
func (s *Service) GetStatus() Status {
	st := Status{Time: time.Now().UTC()}
	if s.deps.MissionContext != nil {
		st.MissionID = s.deps.MissionContext.MissionID()
		st.AttemptID = s.deps.MissionContext.AttemptID()
	}
	if s.deps.Worker != nil {
		st.Saved = s.deps.Worker.Saved()
		st.LastSaveDurationMs = s.deps.Worker.GetLastSaveDuration().Milliseconds()
	}
	if p, ok := s.deps.Backend.(PendingWriter); ok {
		st.PendingWrites = p.Pending()
	}
	return st
}

// WriteStatus replaces the status file with the current status.
func (s *Service) WriteStatus() error {
	b, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return err
	}
	tmp := s.deps.StatusPath + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0644); err != nil {
		return fmt.Errorf("error writing status file: %w", err)
	}
	if err := os.Rename(tmp, s.deps.StatusPath); err != nil {
		return fmt.Errorf("error replacing status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.StatusPath == "" {
		s.mu.Unlock()
		return fmt.Errorf("status path is empty")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "path", s.deps.StatusPath, "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing final status", "error", err)
				}
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for its final write.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
