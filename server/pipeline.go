package server

import (
	"fmt"

	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/idlewatch/server/monitor"
	"github.com/cyclopcam/idlewatch/server/source"
)

func newDetector(cfg *config.DetectorConfig) (nn.ObjectDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case config.DetectorDemo:
		return source.NewDemoDetector(), nil
	case config.DetectorHTTP:
		return nn.NewHTTPDetector(cfg.URL), nil
	case config.DetectorLabels:
		labels, err := nn.LoadVideoLabels(cfg.LabelsFile)
		if err != nil {
			return nil, err
		}
		return nn.NewLabelledDetector(labels), nil
	}
	return nil, fmt.Errorf("Unknown detector '%v'", cfg.Kind)
}

// StartPipeline opens the video source and the detector, and starts a new run.
// If src is nil, the source from the config file is used.
// Returns monitor.ErrConflictingState if a run is already in progress.
func (s *Server) StartPipeline(src *config.SourceConfig) (string, error) {
	if s.monitor.IsRunning() {
		return "", monitor.ErrConflictingState
	}
	if src == nil {
		src = &s.config.Source
	}
	detector, err := newDetector(&s.config.Detector)
	if err != nil {
		return "", err
	}
	settings := s.monitor.Settings()
	video, err := source.Open(s.Log, src, settings.FrameWidth, settings.FrameHeight, settings.FPSLimit)
	if err != nil {
		detector.Close()
		return "", err
	}
	runID, err := s.monitor.Start(video, detector)
	if err != nil {
		video.Close()
		detector.Close()
		return "", err
	}
	return runID, nil
}
