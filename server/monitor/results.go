package monitor

import (
	"fmt"
	"image"
	"time"

	"github.com/cyclopcam/idlewatch/pkg/annotate"
	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/cyclopcam/idlewatch/server/tracking"
)

// Number of recent centroids included with each person
const MovementHistoryLength = 5

// A tracked person, as reported to the outside world
// SYNC-PERSON-JSON
type Person struct {
	ID              int64      `json:"id"`
	Centroid        nn.Point   `json:"centroid"`
	Box             nn.Rect    `json:"bbox"`
	Confidence      float32    `json:"confidence"`
	IsIdle          bool       `json:"is_idle"`
	IdleDuration    float64    `json:"idle_duration"` // Seconds
	State           string     `json:"state"`         // ACTIVE or IDLE
	FirstSeen       time.Time  `json:"first_seen"`
	LastSeen        time.Time  `json:"last_seen"`
	LastMovement    time.Time  `json:"last_movement"`
	MovementHistory []nn.Point `json:"movement_history"` // Oldest first
}

// Aggregate statistics of a pipeline run
// SYNC-STATS-JSON
type Stats struct {
	ActivePersons   int     `json:"active_persons"`
	IdlePersons     int     `json:"idle_persons"`
	ProcessingFPS   float64 `json:"processing_fps"`
	TotalDetections int64   `json:"total_detections"`
	FramesProcessed int64   `json:"frames_processed"`
	DegradedFrames  int64   `json:"degraded_frames"` // Frames where detection failed
	IdleAlerts      int64   `json:"idle_alerts"`
	AvgDetectMS     float64 `json:"avg_detect_ms"`
}

// FrameResult is the outcome of processing one frame
type FrameResult struct {
	RunID      string       `json:"run_id"`
	FrameIndex int64        `json:"frame_index"`
	Time       time.Time    `json:"time"`
	Persons    []Person     `json:"persons"`
	Stats      Stats        `json:"stats"`
	Frame      image.Image  `json:"-"` // Input frame, after resizing
	ROI        tracking.ROI `json:"-"` // ROI that was in effect for this frame
}

// IdlePersons returns only the persons that are IDLE
func (r *FrameResult) IdlePersons() []Person {
	idle := []Person{}
	for _, p := range r.Persons {
		if p.IsIdle {
			idle = append(idle, p)
		}
	}
	return idle
}

// Annotate draws the ROI, the people, and the statistics over the frame.
// Returns nil if the result has no frame.
func (r *FrameResult) Annotate() image.Image {
	if r.Frame == nil {
		return nil
	}
	scene := &annotate.Scene{
		ROIEnabled: r.ROI.Enabled,
		ROI:        r.ROI.Polygon,
		Stats: []string{
			fmt.Sprintf("Active: %v", r.Stats.ActivePersons),
			fmt.Sprintf("Idle: %v", r.Stats.IdlePersons),
			fmt.Sprintf("FPS: %.1f", r.Stats.ProcessingFPS),
		},
	}
	for _, p := range r.Persons {
		scene.People = append(scene.People, annotate.Person{
			ID:           p.ID,
			Box:          p.Box,
			Idle:         p.IsIdle,
			IdleDuration: time.Duration(p.IdleDuration * float64(time.Second)),
			Trail:        p.MovementHistory,
		})
	}
	return annotate.Draw(r.Frame, scene)
}

// IdleAlert is raised when a person transitions from ACTIVE to IDLE
type IdleAlert struct {
	RunID      string    `json:"run_id"`
	TrackID    int64     `json:"track_id"`
	Time       time.Time `json:"time"`
	IdleSince  time.Time `json:"idle_since"`
	Centroid   nn.Point  `json:"centroid"`
	Box        nn.Rect   `json:"bbox"`
	Confidence float32   `json:"confidence"`
	Threshold  float64   `json:"threshold"` // Idle threshold in seconds
}

type RunEventType string

const (
	RunEventStarted RunEventType = "started"
	RunEventEnded   RunEventType = "ended"
)

// RunEvent marks the start or end of a pipeline run
type RunEvent struct {
	Type       RunEventType
	RunID      string
	Source     string
	Time       time.Time
	Err        error // Why the run ended. Nil for a requested stop, or when the source was exhausted.
	Frames     int64
	IdleAlerts int64
}
