package monitor

import (
	"image"
	"time"

	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/cyclopcam/idlewatch/pkg/perfstats"
	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/idlewatch/server/tracking"
	"github.com/cyclopcam/logs"
)

// Pipeline is the state of one run: the tracks, the statistics, and the settings and ROI in effect.
// It is owned by a single goroutine, and is not safe for concurrent use.
type Pipeline struct {
	Log   logs.Log
	RunID string

	detector     nn.ObjectDetector
	detectParams nn.DetectionParams
	registry     *tracking.Registry
	idle         *tracking.IdleEngine
	settings     config.PipelineSettings
	roi          tracking.ROI

	frameIndex      int64
	totalDetections int64
	degradedFrames  int64
	idleAlerts      int64
	rate            *perfstats.RateMeter
	detectTime      perfstats.TimeAccumulator
	lastErrAt       time.Time
	nErrSuppressed  int64 // Detection errors that weren't logged since lastErrAt
	now             func() time.Time // Wall clock, for the processing rate
}

func NewPipeline(logger logs.Log, runID string, detector nn.ObjectDetector, settings config.PipelineSettings, roi tracking.ROI, verbose bool) *Pipeline {
	regSettings := registrySettings(&settings)
	regSettings.Verbose = verbose
	p := &Pipeline{
		Log:          logger,
		RunID:        runID,
		detector:     detector,
		detectParams: detectionParams(&settings),
		registry:     tracking.NewRegistry(logger, regSettings),
		idle:         tracking.NewIdleEngine(idleSettings(&settings)),
		settings:     settings,
		roi:          roi.Clone(),
		rate:         perfstats.NewRateMeter(32),
		now:          time.Now,
	}
	return p
}

func registrySettings(s *config.PipelineSettings) tracking.RegistrySettings {
	return tracking.RegistrySettings{
		MaxDistance:          s.MaxDistanceThreshold,
		MaxDisappearedFrames: s.MaxDisappearedFrames,
		HistorySize:          s.HistorySize,
		HistoryWindow:        s.IdleThreshold(),
	}
}

func idleSettings(s *config.PipelineSettings) tracking.IdleSettings {
	return tracking.IdleSettings{
		MovementThreshold: s.MovementThreshold,
		IdleThreshold:     s.IdleThreshold(),
	}
}

func detectionParams(s *config.PipelineSettings) nn.DetectionParams {
	return nn.DetectionParams{
		Class:                s.PersonClassID,
		ProbabilityThreshold: s.ConfidenceThreshold,
		MergeIoU:             nn.DefaultMergeIoU,
	}
}

// SetSettings takes effect from the next call to ProcessFrame
func (p *Pipeline) SetSettings(s config.PipelineSettings) {
	regSettings := registrySettings(&s)
	regSettings.Verbose = p.registry.Settings().Verbose
	p.registry.SetSettings(regSettings)
	p.idle.SetSettings(idleSettings(&s))
	p.detectParams = detectionParams(&s)
	p.settings = s
}

func (p *Pipeline) Settings() config.PipelineSettings {
	return p.settings
}

// SetROI takes effect from the next call to ProcessFrame
func (p *Pipeline) SetROI(roi tracking.ROI) {
	p.roi = roi.Clone()
}

func (p *Pipeline) FrameIndex() int64 {
	return p.frameIndex
}

// ProcessFrame runs detection, tracking, and idle inference on one frame.
// A detection failure is logged, and treated as a frame with nobody in it.
// Returns the result of the frame, and any idle alerts that it raised.
func (p *Pipeline) ProcessFrame(img image.Image, timestamp time.Time) (*FrameResult, []*IdleAlert) {
	frameIndex := p.frameIndex
	p.frameIndex++

	detectStart := p.now()
	detections, err := nn.DetectPersons(p.detector, img, &p.detectParams)
	p.detectTime.AddSample(p.now().Sub(detectStart))
	if err != nil {
		p.degradedFrames++
		p.logFrameError(frameIndex, err)
		detections = nil
	}
	p.totalDetections += int64(len(detections))

	p.registry.Update(detections, frameIndex, timestamp)

	var alerts []*IdleAlert
	persons := []Person{}
	stats := Stats{}
	for _, track := range p.registry.Tracks() {
		before := track.State
		state, idleFor := p.idle.Evaluate(track, &p.roi, timestamp)
		if before == tracking.StateActive && state == tracking.StateIdle {
			p.idleAlerts++
			alerts = append(alerts, &IdleAlert{
				RunID:      p.RunID,
				TrackID:    track.ID,
				Time:       timestamp,
				IdleSince:  track.IdleSince,
				Centroid:   track.Centroid(),
				Box:        track.Box,
				Confidence: track.Confidence,
				Threshold:  p.settings.IdleAlertThreshold,
			})
		}
		// Tracks that weren't seen in this frame are kept alive for re-association, but not reported
		if !track.Visible() {
			continue
		}
		if state == tracking.StateIdle {
			stats.IdlePersons++
		} else {
			stats.ActivePersons++
		}
		persons = append(persons, Person{
			ID:              track.ID,
			Centroid:        track.Centroid(),
			Box:             track.Box,
			Confidence:      track.Confidence,
			IsIdle:          state == tracking.StateIdle,
			IdleDuration:    idleFor.Seconds(),
			State:           state.String(),
			FirstSeen:       track.FirstSeen,
			LastSeen:        track.LastSeen,
			LastMovement:    track.LastMovement,
			MovementHistory: track.RecentPositions(MovementHistoryLength),
		})
	}

	p.rate.Tick(p.now())
	stats.ProcessingFPS = p.rate.Rate()
	stats.TotalDetections = p.totalDetections
	stats.FramesProcessed = p.frameIndex
	stats.DegradedFrames = p.degradedFrames
	stats.IdleAlerts = p.idleAlerts
	stats.AvgDetectMS = float64(p.detectTime.Average().Microseconds()) / 1000

	return &FrameResult{
		RunID:      p.RunID,
		FrameIndex: frameIndex,
		Time:       timestamp,
		Persons:    persons,
		Stats:      stats,
		Frame:      img,
		ROI:        p.roi,
	}, alerts
}

// Log a frame error, but not more than once every 15 seconds
func (p *Pipeline) logFrameError(frameIndex int64, err error) {
	if p.now().Sub(p.lastErrAt) > 15*time.Second {
		if p.nErrSuppressed != 0 {
			p.Log.Errorf("Frame %v: %v (%v similar errors suppressed)", frameIndex, err, p.nErrSuppressed)
		} else {
			p.Log.Errorf("Frame %v: %v", frameIndex, err)
		}
		p.lastErrAt = p.now()
		p.nErrSuppressed = 0
	} else {
		p.nErrSuppressed++
	}
}

// abandonFrame is called when processing of frame 'frameIndex' was cut short.
// degradedBefore is the degraded frame count from before the frame started, so that
// the frame is counted exactly once, however far it got.
func (p *Pipeline) abandonFrame(frameIndex, degradedBefore int64, err error) {
	p.frameIndex = frameIndex + 1
	p.degradedFrames = degradedBefore + 1
	p.logFrameError(frameIndex, err)
}

// Stats of the run so far, with no persons present
func (p *Pipeline) finalStats() Stats {
	return Stats{
		ProcessingFPS:   p.rate.Rate(),
		TotalDetections: p.totalDetections,
		FramesProcessed: p.frameIndex,
		DegradedFrames:  p.degradedFrames,
		IdleAlerts:      p.idleAlerts,
		AvgDetectMS:     float64(p.detectTime.Average().Microseconds()) / 1000,
	}
}
