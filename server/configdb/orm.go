package configdb

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/idlewatch/pkg/nn"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

type Variable struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `json:"value"`
}

// IdleAlert is a record of a person crossing from ACTIVE to IDLE
type IdleAlert struct {
	BaseModel
	RunID      string                  `json:"runId"`      // Pipeline run that raised the alert
	TrackID    int64                   `json:"trackId"`    // Person ID, unique within the run
	Time       dbh.IntTime             `json:"time"`       // When the alert was raised
	IdleSince  dbh.IntTime             `json:"idleSince"`  // When the person became IDLE
	X          float32                 `json:"x"`          // Centroid
	Y          float32                 `json:"y"`          // Centroid
	Confidence float32                 `json:"confidence"` // Detection confidence of the most recent sighting
	Threshold  float64                 `json:"threshold"`  // Idle threshold (seconds) in effect at the time
	Box        *dbh.JSONField[nn.Rect] `json:"box"`        // Bounding box of the most recent sighting
}

// PipelineRun is one start/stop cycle of the pipeline
type PipelineRun struct {
	BaseModel
	RunID      string      `json:"runId"`
	Source     string      `json:"source"` // Description of the video source
	StartedAt  dbh.IntTime `json:"startedAt"`
	StoppedAt  dbh.IntTime `json:"stoppedAt" gorm:"default:null"`
	Frames     int64       `json:"frames"`
	IdleAlerts int64       `json:"idleAlerts"`
	Error      string      `json:"error" gorm:"default:null"` // Why the run ended, if it was not stopped by request
}
