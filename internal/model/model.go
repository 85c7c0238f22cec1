package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Attempt{},
}

// Attempt is one recorded run of a mission. The mission log is stored in
// its text form so a row can be exported to a file without decoding.
type Attempt struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	MissionID   string         `json:"missionId" gorm:"index;size:127;not null"`
	StartedAt   time.Time      `json:"startedAt" gorm:"index"`
	DurationMs  int64          `json:"durationMs"`
	Outcome     string         `json:"outcome" gorm:"size:16"`
	Score       *int           `json:"score"`
	EventCount  int            `json:"eventCount"`
	PathLengthM float64        `json:"pathLengthM"`
	MissionLog  string         `json:"missionLog" gorm:"type:text"`
	CameraTrack datatypes.JSON `json:"cameraTrack"`
	Summary     datatypes.JSON `json:"summary"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (*Attempt) TableName() string {
	return "attempts"
}
