// pkg/core/mission.go
package core

import (
	"fmt"
	"time"
)

// PadKey identifies one transfer point: a block of a structure.
// Used only as a map/channel key, never mutated.
type PadKey struct {
	StructureID int `json:"structureId"`
	BlockIndex  int `json:"blockIndex"`
}

// Less orders pads by structure first, then block.
func (k PadKey) Less(o PadKey) bool {
	if k.StructureID != o.StructureID {
		return k.StructureID < o.StructureID
	}
	return k.BlockIndex < o.BlockIndex
}

func (k PadKey) String() string {
	return fmt.Sprintf("%d:%d", k.StructureID, k.BlockIndex)
}

// Outcome is how an attempt ended
type Outcome string

const (
	OutcomeUnknown   Outcome = "unknown"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// ParseOutcome maps free text to an Outcome, defaulting to OutcomeUnknown.
func ParseOutcome(s string) Outcome {
	switch Outcome(s) {
	case OutcomeCompleted, OutcomeFailed, OutcomeAborted:
		return Outcome(s)
	default:
		return OutcomeUnknown
	}
}

// FlightSummary is the minimal per-attempt record stored next to the
// mission log and camera track.
type FlightSummary struct {
	AttemptID  string    `json:"attemptId"`
	MissionID  string    `json:"missionId"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`
	Outcome    Outcome   `json:"outcome"`
	Score      *int      `json:"score,omitempty"`
}
