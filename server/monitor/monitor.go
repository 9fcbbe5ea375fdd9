package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/cyclopcam/idlewatch/pkg/perfstats"
	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/idlewatch/server/source"
	"github.com/cyclopcam/idlewatch/server/tracking"
	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
)

var ErrConflictingState = errors.New("Pipeline is already running")

type RunState int

const (
	RunStateStopped RunState = iota
	RunStateRunning
)

func (s RunState) String() string {
	if s == RunStateRunning {
		return "RUNNING"
	}
	return "STOPPED"
}

// Status of the monitor, for display
// SYNC-VIDEO-STATUS-JSON
type Status struct {
	State     string    `json:"state"` // RUNNING or STOPPED
	RunID     string    `json:"run_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	LastError string    `json:"last_error,omitempty"` // Why the most recent run failed
}

// Monitor runs the detection/tracking/idle pipeline over a video source.
// There is at most one run at a time. The run's state is owned by the loop goroutine.
// Everybody else sees it through immutable snapshots (FrameResult), or through watcher channels.
type Monitor struct {
	Log     logs.Log
	Verbose bool // Log track creation and retirement

	// Start/stop transitions
	controlLock   sync.Mutex
	mustStop      atomic.Bool        // True if Stop() has been called
	cancelRun     context.CancelFunc // Unblocks a source that is waiting for a frame
	looperStopped chan bool          // Closed when the loop has exited. Nil if no run has been started.
	runEnded      chan bool          // Closed after the run's ended event has been sent to the run watchers

	// Updated by the loop
	statusLock sync.Mutex
	status     Status

	// Pending changes, picked up by the loop at the start of the next frame
	pendingLock     sync.Mutex
	settings        config.PipelineSettings
	roi             tracking.ROI
	settingsVersion int64
	roiVersion      int64

	lastResult atomic.Pointer[FrameResult]

	watchersLock  sync.RWMutex
	watchers      []chan *FrameResult
	alertWatchers []chan *IdleAlert
	runWatchers   []chan *RunEvent
}

func NewMonitor(logger logs.Log, settings config.PipelineSettings, roi tracking.ROI) (*Monitor, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := roi.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{
		Log:      logger,
		settings: settings,
		roi:      roi.Clone(),
		status: Status{
			State: RunStateStopped.String(),
		},
	}, nil
}

// Close the monitor object.
func (m *Monitor) Close() {
	m.Log.Infof("Monitor shutting down")
	m.Stop()
	m.Log.Infof("Monitor is closed")
}

func (m *Monitor) isRunningLocked() bool {
	if m.looperStopped == nil {
		return false
	}
	select {
	case <-m.looperStopped:
		return false
	default:
		return true
	}
}

func (m *Monitor) IsRunning() bool {
	m.controlLock.Lock()
	defer m.controlLock.Unlock()
	return m.isRunningLocked()
}

// Start a new run. The monitor takes ownership of src and detector, and closes them when the run ends.
// If a run is already in progress, ErrConflictingState is returned, and src and detector are left untouched.
func (m *Monitor) Start(src source.Source, detector nn.ObjectDetector) (string, error) {
	m.controlLock.Lock()
	defer m.controlLock.Unlock()
	if m.isRunningLocked() {
		return "", ErrConflictingState
	}
	if m.runEnded != nil {
		// Previous run ended by itself. Make sure its ended event goes out before our started event.
		<-m.runEnded
	}

	runID := uuid.NewString()
	now := time.Now()

	m.pendingLock.Lock()
	settings := m.settings
	roi := m.roi.Clone()
	settingsVersion := m.settingsVersion
	roiVersion := m.roiVersion
	m.pendingLock.Unlock()

	pipeline := NewPipeline(logs.NewPrefixLogger(m.Log, "Run "+runID[:8]), runID, detector, settings, roi, m.Verbose)

	m.statusLock.Lock()
	m.status = Status{
		State:     RunStateRunning.String(),
		RunID:     runID,
		Source:    src.String(),
		StartedAt: now,
	}
	m.statusLock.Unlock()
	m.lastResult.Store(nil)

	if m.cancelRun != nil {
		// Previous run ended by itself
		m.cancelRun()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelRun = cancel
	m.mustStop.Store(false)
	m.looperStopped = make(chan bool)
	m.runEnded = make(chan bool)

	m.Log.Infof("Starting run %v on %v", runID, src)
	m.sendToRunWatchers(&RunEvent{
		Type:   RunEventStarted,
		RunID:  runID,
		Source: src.String(),
		Time:   now,
	})

	r := &run{
		pipeline:        pipeline,
		source:          src,
		detector:        detector,
		settingsVersion: settingsVersion,
		roiVersion:      roiVersion,
	}
	go m.loop(ctx, r, m.looperStopped, m.runEnded)
	return runID, nil
}

// Stop the current run, and wait for it to finish. Stopping when nothing is running is not an error.
// When Stop returns, the run's ended event is already in the run watchers' channels.
func (m *Monitor) Stop() {
	m.controlLock.Lock()
	defer m.controlLock.Unlock()
	if m.looperStopped == nil {
		return
	}
	m.mustStop.Store(true)
	m.cancelRun()
	<-m.looperStopped
	<-m.runEnded
	m.looperStopped = nil
	m.runEnded = nil
}

func (m *Monitor) Status() Status {
	m.statusLock.Lock()
	defer m.statusLock.Unlock()
	return m.status
}

// SetSettings validates the settings, and applies them at the start of the next frame
func (m *Monitor) SetSettings(s config.PipelineSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.pendingLock.Lock()
	defer m.pendingLock.Unlock()
	m.settings = s
	m.settingsVersion++
	return nil
}

// PatchSettings applies a partial update to the current settings, and returns the result.
// The read and the write happen under one lock, so concurrent patches don't lose each other's changes.
func (m *Monitor) PatchSettings(patch *config.PipelineSettingsPatch) (config.PipelineSettings, error) {
	m.pendingLock.Lock()
	defer m.pendingLock.Unlock()
	s := patch.Apply(m.settings)
	if err := s.Validate(); err != nil {
		return m.settings, err
	}
	m.settings = s
	m.settingsVersion++
	return s, nil
}

func (m *Monitor) Settings() config.PipelineSettings {
	m.pendingLock.Lock()
	defer m.pendingLock.Unlock()
	return m.settings
}

// SetROI validates the ROI, and applies it at the start of the next frame.
// An invalid ROI returns ErrInvalidROI, and the previous ROI stays in effect.
func (m *Monitor) SetROI(roi tracking.ROI) error {
	if err := roi.Validate(); err != nil {
		return err
	}
	m.pendingLock.Lock()
	defer m.pendingLock.Unlock()
	m.roi = roi.Clone()
	m.roiVersion++
	return nil
}

func (m *Monitor) ROI() tracking.ROI {
	m.pendingLock.Lock()
	defer m.pendingLock.Unlock()
	return m.roi.Clone()
}

// LastResult returns the result of the most recently processed frame, or nil.
// The returned object must not be modified.
func (m *Monitor) LastResult() *FrameResult {
	return m.lastResult.Load()
}

// State owned by the loop goroutine, for the duration of one run
type run struct {
	pipeline        *Pipeline
	source          source.Source
	detector        nn.ObjectDetector
	settingsVersion int64
	roiVersion      int64
}

// Copy any settings or ROI changes into the pipeline
func (m *Monitor) applyPending(r *run) {
	m.pendingLock.Lock()
	defer m.pendingLock.Unlock()
	if r.settingsVersion != m.settingsVersion {
		r.settingsVersion = m.settingsVersion
		r.pipeline.SetSettings(m.settings)
		r.pipeline.Log.Infof("Settings updated")
	}
	if r.roiVersion != m.roiVersion {
		r.roiVersion = m.roiVersion
		r.pipeline.SetROI(m.roi)
		r.pipeline.Log.Infof("ROI updated (enabled: %v, %v points)", m.roi.Enabled, len(m.roi.Polygon))
	}
}

// Loop runs until Stop(), or until the source has no more frames
func (m *Monitor) loop(ctx context.Context, r *run, looperStopped, runEnded chan bool) {
	p := r.pipeline
	var runErr error

	nStats := 0
	nextStatsAt := time.Now().Add(perfstats.StatsInterval(nStats, 10*time.Minute))

	for !m.mustStop.Load() {
		frameStart := time.Now()
		frame, err := r.source.Next(ctx)
		if err != nil {
			if m.mustStop.Load() || errors.Is(err, context.Canceled) {
				// Stop requested
			} else if errors.Is(err, source.ErrSourceExhausted) {
				p.Log.Infof("Video source has no more frames")
			} else {
				if !errors.Is(err, source.ErrSourceUnavailable) {
					err = fmt.Errorf("%w: %w", source.ErrSourceUnavailable, err)
				}
				p.Log.Errorf("%v", err)
				runErr = err
			}
			break
		}

		m.applyPending(r)
		settings := p.Settings()
		m.processFrame(p, frame, &settings)

		if res := m.lastResult.Load(); res != nil && time.Now().After(nextStatsAt) {
			s := res.Stats
			p.Log.Infof("%v frames, %.1f FPS, %.1f ms/detect, %v degraded, %v active, %v idle, %v alerts",
				s.FramesProcessed, s.ProcessingFPS, s.AvgDetectMS, s.DegradedFrames, s.ActivePersons, s.IdlePersons, s.IdleAlerts)
			nStats++
			nextStatsAt = time.Now().Add(perfstats.StatsInterval(nStats, 10*time.Minute))
		}

		// Don't run faster than the frame rate limit. If we're slower, then we don't wait at all,
		// and a live source will have discarded the frames that we missed.
		if interval := settings.FrameInterval(); interval > 0 {
			if wait := interval - time.Since(frameStart); wait > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(wait):
				}
			}
		}
	}

	r.source.Close()
	r.detector.Close()

	// Tracks do not survive a run. Keep the final statistics, with nobody in them.
	final := &FrameResult{
		RunID:      p.RunID,
		FrameIndex: p.FrameIndex() - 1,
		Time:       time.Now(),
		Persons:    []Person{},
		Stats:      p.finalStats(),
		ROI:        p.roi,
	}
	m.lastResult.Store(final)

	now := time.Now()
	m.statusLock.Lock()
	m.status.State = RunStateStopped.String()
	m.status.StoppedAt = now
	if runErr != nil {
		m.status.LastError = runErr.Error()
	}
	m.statusLock.Unlock()

	m.Log.Infof("Run %v ended after %v frames", p.RunID, p.FrameIndex())
	ended := &RunEvent{
		Type:       RunEventEnded,
		RunID:      p.RunID,
		Time:       now,
		Err:        runErr,
		Frames:     p.FrameIndex(),
		IdleAlerts: p.idleAlerts,
	}
	// Once a watcher hears about the end of the run, it must be possible to start a new one
	close(looperStopped)
	m.sendToRunWatchers(ended)
	close(runEnded)
}

// Resize and process one frame, and publish the result.
// A panic anywhere in here costs us the frame, which is counted as degraded, but not the run.
func (m *Monitor) processFrame(p *Pipeline, frame *source.Frame, settings *config.PipelineSettings) {
	frameIndex := p.frameIndex
	degraded := p.degradedFrames
	defer func() {
		if r := recover(); r != nil {
			p.abandonFrame(frameIndex, degraded, fmt.Errorf("frame processing panic: %v", r))
		}
	}()

	img := source.Resize(frame.Image, settings.FrameWidth, settings.FrameHeight)
	result, alerts := p.ProcessFrame(img, frame.Time)
	m.lastResult.Store(result)
	m.sendToWatchers(result)
	for _, alert := range alerts {
		p.Log.Infof("Person %v is idle since %v", alert.TrackID, alert.IdleSince.Format("15:04:05"))
		m.sendToAlertWatchers(alert)
	}
}
