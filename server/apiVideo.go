package server

import (
	"errors"
	"net/http"

	"github.com/cyclopcam/idlewatch/pkg/annotate"
	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/idlewatch/server/monitor"
	"github.com/cyclopcam/idlewatch/server/source"
	"github.com/cyclopcam/idlewatch/server/streamer"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// SYNC-VIDEO-STATUS-JSON
type videoStatusJSON struct {
	Running bool `json:"running"`
	monitor.Status
}

func (s *Server) videoStatus() *videoStatusJSON {
	return &videoStatusJSON{
		Running: s.monitor.IsRunning(),
		Status:  s.monitor.Status(),
	}
}

// Start the pipeline. The body is optional, and may override the video source.
// Example: curl -X POST -d '{"source": {"kind": "images", "path": "/tmp/frames"}}' localhost:8002/api/video/start
func (s *Server) httpVideoStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type startJSON struct {
		Source *config.SourceConfig `json:"source"`
	}
	req := startJSON{}
	if r.ContentLength > 0 {
		www.ReadJSON(w, r, &req, 64*1024)
	}

	_, err := s.StartPipeline(req.Source)
	if errors.Is(err, monitor.ErrConflictingState) {
		www.Panic(http.StatusConflict, err.Error())
	} else if errors.Is(err, source.ErrSourceUnavailable) {
		www.Panic(http.StatusBadGateway, err.Error())
	} else if errors.Is(err, config.ErrInvalidSettings) {
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)
	www.SendJSON(w, s.videoStatus())
}

// Stopping a pipeline that is not running is not an error
func (s *Server) httpVideoStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.monitor.Stop()
	www.SendJSON(w, s.videoStatus())
}

func (s *Server) httpVideoStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.videoStatus())
}

// Fetch a JPG of the latest frame, with people and the ROI drawn over it.
// Example: curl -o frame.jpg localhost:8002/api/video/frame
func (s *Server) httpVideoFrame(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)

	result := s.monitor.LastResult()
	if result == nil || result.Frame == nil {
		www.Panic(http.StatusNotFound, "No frame available yet")
	}
	jpg, err := annotate.EncodeJPEG(result.Annotate(), 85)
	www.Check(err)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(jpg)
}

func (s *Server) httpVideoStream(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.mjpeg.ServeHTTP(w, r)
}

func (s *Server) httpWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpWebSocket websocket upgrade failed: %v", err)
		return
	}
	streamer.RunResultStreamer(s.Log, c, s.monitor, s.ShutdownStarted)
}
