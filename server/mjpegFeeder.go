package server

import (
	"github.com/cyclopcam/idlewatch/pkg/annotate"
	"github.com/cyclopcam/idlewatch/pkg/gen"
)

const streamJPEGQuality = 75

// Render annotated frames into the MJPEG stream.
// If rendering falls behind, we skip straight to the newest frame.
func (s *Server) runMJPEGFeeder() {
	results := s.monitor.AddWatcher()
	go func() {
		s.Log.Infof("MJPEG feeder starting")
		keepRunning := true
		for keepRunning {
			select {
			case <-s.ShutdownStarted:
				keepRunning = false
			case result := <-results:
				if backlog := gen.DrainChannelIntoSlice(results); len(backlog) != 0 {
					result = backlog[len(backlog)-1]
				}
				img := result.Annotate()
				if img == nil {
					continue
				}
				jpg, err := annotate.EncodeJPEG(img, streamJPEGQuality)
				if err != nil {
					s.Log.Warnf("Failed to encode MJPEG frame: %v", err)
					continue
				}
				s.mjpeg.UpdateJPEG(jpg)
			}
		}
		s.monitor.RemoveWatcher(results)
		s.Log.Infof("MJPEG feeder exiting")
		close(s.mjpegFeederClosed)
	}()
}
