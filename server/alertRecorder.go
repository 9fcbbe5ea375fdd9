package server

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/idlewatch/pkg/gen"
	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/cyclopcam/idlewatch/server/configdb"
	"github.com/cyclopcam/idlewatch/server/monitor"
)

// Persist idle alerts and run history. The monitor knows nothing about the database,
// so we hook them up via this intermediate thread.
func (s *Server) runAlertRecorder() {
	alerts := s.monitor.AddAlertWatcher()
	runs := s.monitor.AddRunWatcher()
	go func() {
		s.Log.Infof("Alert recorder starting")
		keepRunning := true
		for keepRunning {
			select {
			case <-s.ShutdownStarted:
				keepRunning = false
			case alert := <-alerts:
				s.recordAlert(alert)
			case ev := <-runs:
				s.recordRunEvent(ev)
			}
		}
		// The monitor has stopped by now, so whatever is queued is all there will be
		for _, alert := range gen.DrainChannelIntoSlice(alerts) {
			s.recordAlert(alert)
		}
		for _, ev := range gen.DrainChannelIntoSlice(runs) {
			s.recordRunEvent(ev)
		}
		s.monitor.RemoveAlertWatcher(alerts)
		s.monitor.RemoveRunWatcher(runs)
		s.Log.Infof("Alert recorder exiting")
		close(s.alertRecorderClosed)
	}()
}

func (s *Server) recordAlert(alert *monitor.IdleAlert) {
	var box dbh.JSONField[nn.Rect]
	box.Data = alert.Box
	rec := &configdb.IdleAlert{
		RunID:      alert.RunID,
		TrackID:    alert.TrackID,
		Time:       dbh.MakeIntTime(alert.Time),
		IdleSince:  dbh.MakeIntTime(alert.IdleSince),
		X:          alert.Centroid.X,
		Y:          alert.Centroid.Y,
		Confidence: alert.Confidence,
		Threshold:  alert.Threshold,
		Box:        &box,
	}
	if err := s.configDB.AddIdleAlert(rec); err != nil {
		s.Log.Errorf("Failed to save idle alert for person %v: %v", alert.TrackID, err)
	}
}

func (s *Server) recordRunEvent(ev *monitor.RunEvent) {
	var err error
	switch ev.Type {
	case monitor.RunEventStarted:
		err = s.configDB.StartRun(ev.RunID, ev.Source, ev.Time)
	case monitor.RunEventEnded:
		err = s.configDB.FinishRun(ev.RunID, ev.Time, ev.Frames, ev.IdleAlerts, ev.Err)
	}
	if err != nil {
		s.Log.Errorf("Failed to record %v of run %v: %v", ev.Type, ev.RunID, err)
	}
}
