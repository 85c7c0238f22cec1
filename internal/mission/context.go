// Package mission tracks which mission and attempt the recorder is on so
// every log record can carry them.
package mission

import (
	"log/slog"
	"sync"
)

// Context holds the current mission and attempt identifiers
type Context struct {
	mu        sync.RWMutex
	missionID string
	attemptID string
}

// NewContext creates an empty Context
func NewContext() *Context {
	return &Context{}
}

// MissionID returns the current mission
func (mc *Context) MissionID() string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.missionID
}

// AttemptID returns the current attempt, empty between attempts
func (mc *Context) AttemptID() string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.attemptID
}

// SetAttempt records a newly started attempt
func (mc *Context) SetAttempt(missionID, attemptID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.missionID = missionID
	mc.attemptID = attemptID
}

// ClearAttempt forgets the attempt but keeps the mission
func (mc *Context) ClearAttempt() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.attemptID = ""
}

// LogAttrs returns the identifiers as log attributes. Empty values are
// left out. It satisfies logging.ContextProvider.
func (mc *Context) LogAttrs() []slog.Attr {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	var attrs []slog.Attr
	if mc.missionID != "" {
		attrs = append(attrs, slog.String("missionId", mc.missionID))
	}
	if mc.attemptID != "" {
		attrs = append(attrs, slog.String("attemptId", mc.attemptID))
	}
	return attrs
}
