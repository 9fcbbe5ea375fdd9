package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var ErrInvalidSettings = errors.New("Invalid settings")

// Video source kinds
const (
	SourceDemo     = "demo"     // Synthetic scene, with a scripted detector
	SourceImages   = "images"   // Directory of JPEG/PNG images, played in name order
	SourceSnapshot = "snapshot" // Poll a camera's HTTP snapshot URL
)

// Detector kinds
const (
	DetectorDemo   = "demo"   // Scripted detections that match the demo source
	DetectorHTTP   = "http"   // External inference service
	DetectorLabels = "labels" // Replay a VideoLabels JSON file
)

type SourceConfig struct {
	Kind string `json:"kind"`           // One of the Source* constants
	Path string `json:"path,omitempty"` // Directory, for SourceImages
	URL  string `json:"url,omitempty"`  // Snapshot URL, for SourceSnapshot
	Live bool   `json:"live,omitempty"` // Read frames on a separate thread, and only process the latest one
}

type DetectorConfig struct {
	Kind       string `json:"kind"`                 // One of the Detector* constants
	URL        string `json:"url,omitempty"`        // For DetectorHTTP
	LabelsFile string `json:"labelsFile,omitempty"` // For DetectorLabels
}

// Config is the static configuration of the service, loaded from a JSON file
type Config struct {
	Listen    string                 `json:"listen"`    // HTTP listen address, eg ":8002"
	DB        string                 `json:"db"`        // Path to sqlite database
	Source    SourceConfig           `json:"source"`    // Default video source
	Detector  DetectorConfig         `json:"detector"`  // Object detection model
	Pipeline  *PipelineSettingsPatch `json:"pipeline"`  // Overrides of the default pipeline settings. The DB takes precedence over these.
	AutoStart bool                   `json:"autoStart"` // Start the pipeline as soon as the server is up
	Verbose   bool                   `json:"verbose"`   // Log track creation/retirement
}

func DefaultConfig() Config {
	return Config{
		Listen: ":8002",
		DB:     "idlewatch.sqlite",
		Source: SourceConfig{
			Kind: SourceDemo,
		},
		Detector: DetectorConfig{
			Kind: DetectorDemo,
		},
	}
}

// LoadConfig reads a JSON config file. Fields that are absent from the file keep their defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Error in %v: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalidSettings)
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if c.Pipeline != nil {
		s := c.Pipeline.Apply(DefaultPipelineSettings())
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SourceConfig) Validate() error {
	switch s.Kind {
	case SourceDemo:
	case SourceImages:
		if s.Path == "" {
			return fmt.Errorf("%w: source 'images' needs a path", ErrInvalidSettings)
		}
	case SourceSnapshot:
		if s.URL == "" {
			return fmt.Errorf("%w: source 'snapshot' needs a url", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown source kind '%v'", ErrInvalidSettings, s.Kind)
	}
	return nil
}

func (d *DetectorConfig) Validate() error {
	switch d.Kind {
	case DetectorDemo:
	case DetectorHTTP:
		if d.URL == "" {
			return fmt.Errorf("%w: detector 'http' needs a url", ErrInvalidSettings)
		}
	case DetectorLabels:
		if d.LabelsFile == "" {
			return fmt.Errorf("%w: detector 'labels' needs a labelsFile", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown detector kind '%v'", ErrInvalidSettings, d.Kind)
	}
	return nil
}

// Most position samples a track can hold, which bounds idle_alert_threshold × fps_limit
// SYNC-MAX-TRACK-HISTORY
const MaxTrackHistory = 1<<16 - 1

// PipelineSettings are the tunable parameters of the pipeline, which may change while it is running
type PipelineSettings struct {
	ConfidenceThreshold  float32 `json:"confidence_threshold"`   // Minimum detection confidence (0..1)
	PersonClassID        int     `json:"person_class_id"`        // Class id of "person" in the model
	MovementThreshold    float32 `json:"movement_threshold"`     // Pixels
	IdleAlertThreshold   float64 `json:"idle_alert_threshold"`   // Seconds
	MaxDisappearedFrames int     `json:"max_disappeared_frames"` // Frames
	MaxDistanceThreshold float32 `json:"max_distance_threshold"` // Pixels
	FPSLimit             float64 `json:"fps_limit"`              // Target frame rate. Zero means unlimited.
	FrameWidth           int     `json:"frame_resize_width"`     // Frames are resized to this before detection
	FrameHeight          int     `json:"frame_resize_height"`
	HistorySize          int     `json:"history_size"` // Initial position samples per track. Grows to cover idle_alert_threshold.
}

func DefaultPipelineSettings() PipelineSettings {
	return PipelineSettings{
		ConfidenceThreshold:  0.5,
		PersonClassID:        0,
		MovementThreshold:    20,
		IdleAlertThreshold:   30,
		MaxDisappearedFrames: 30,
		MaxDistanceThreshold: 100,
		FPSLimit:             15,
		FrameWidth:           640,
		FrameHeight:          480,
		HistorySize:          512,
	}
}

func (s *PipelineSettings) IdleThreshold() time.Duration {
	return time.Duration(s.IdleAlertThreshold * float64(time.Second))
}

// FrameInterval is the minimum time between frames, or zero if there is no limit
func (s *PipelineSettings) FrameInterval() time.Duration {
	if s.FPSLimit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.FPSLimit)
}

func (s *PipelineSettings) Validate() error {
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be between 0 and 1", ErrInvalidSettings)
	}
	if s.PersonClassID < 0 {
		return fmt.Errorf("%w: person_class_id may not be negative", ErrInvalidSettings)
	}
	if s.MovementThreshold <= 0 {
		return fmt.Errorf("%w: movement_threshold must be positive", ErrInvalidSettings)
	}
	if s.IdleAlertThreshold <= 0 {
		return fmt.Errorf("%w: idle_alert_threshold must be positive", ErrInvalidSettings)
	}
	if s.MaxDisappearedFrames < 0 {
		return fmt.Errorf("%w: max_disappeared_frames may not be negative", ErrInvalidSettings)
	}
	if s.MaxDistanceThreshold <= 0 {
		return fmt.Errorf("%w: max_distance_threshold must be positive", ErrInvalidSettings)
	}
	if s.FPSLimit < 0 {
		return fmt.Errorf("%w: fps_limit may not be negative", ErrInvalidSettings)
	}
	if s.FrameWidth <= 0 || s.FrameHeight <= 0 || s.FrameWidth > 8192 || s.FrameHeight > 8192 {
		return fmt.Errorf("%w: frame size %vx%v is out of range", ErrInvalidSettings, s.FrameWidth, s.FrameHeight)
	}
	if s.HistorySize < 2 || s.HistorySize > 65536 {
		return fmt.Errorf("%w: history_size must be between 2 and 65536", ErrInvalidSettings)
	}
	if s.FPSLimit > 0 && s.IdleAlertThreshold*s.FPSLimit >= MaxTrackHistory {
		return fmt.Errorf("%w: idle_alert_threshold × fps_limit must be less than %v samples", ErrInvalidSettings, MaxTrackHistory)
	}
	return nil
}

// PipelineSettingsPatch is a partial update of PipelineSettings. Nil fields are left unchanged.
type PipelineSettingsPatch struct {
	ConfidenceThreshold  *float32 `json:"confidence_threshold,omitempty"`
	PersonClassID        *int     `json:"person_class_id,omitempty"`
	MovementThreshold    *float32 `json:"movement_threshold,omitempty"`
	IdleAlertThreshold   *float64 `json:"idle_alert_threshold,omitempty"`
	MaxDisappearedFrames *int     `json:"max_disappeared_frames,omitempty"`
	MaxDistanceThreshold *float32 `json:"max_distance_threshold,omitempty"`
	FPSLimit             *float64 `json:"fps_limit,omitempty"`
	FrameWidth           *int     `json:"frame_resize_width,omitempty"`
	FrameHeight          *int     `json:"frame_resize_height,omitempty"`
	HistorySize          *int     `json:"history_size,omitempty"`
}

// Apply returns a copy of s, with the non-nil fields of p applied
func (p *PipelineSettingsPatch) Apply(s PipelineSettings) PipelineSettings {
	setIf(&s.ConfidenceThreshold, p.ConfidenceThreshold)
	setIf(&s.PersonClassID, p.PersonClassID)
	setIf(&s.MovementThreshold, p.MovementThreshold)
	setIf(&s.IdleAlertThreshold, p.IdleAlertThreshold)
	setIf(&s.MaxDisappearedFrames, p.MaxDisappearedFrames)
	setIf(&s.MaxDistanceThreshold, p.MaxDistanceThreshold)
	setIf(&s.FPSLimit, p.FPSLimit)
	setIf(&s.FrameWidth, p.FrameWidth)
	setIf(&s.FrameHeight, p.FrameHeight)
	setIf(&s.HistorySize, p.HistorySize)
	return s
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
