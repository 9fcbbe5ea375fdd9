package server

import (
	"errors"
	"net/http"

	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/idlewatch/server/tracking"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// SYNC-ROI-JSON
type roiJSON struct {
	Coordinates [][2]float32 `json:"coordinates"`
	Enabled     bool         `json:"enabled"`
}

func toROIJSON(roi *tracking.ROI) *roiJSON {
	r := &roiJSON{
		Coordinates: [][2]float32{},
		Enabled:     roi.Enabled,
	}
	for _, p := range roi.Polygon {
		r.Coordinates = append(r.Coordinates, [2]float32{p.X, p.Y})
	}
	return r
}

// Example: curl -X POST -d '{"coordinates": [[0,0],[100,0],[100,100]], "enabled": true}' localhost:8002/api/roi/set
func (s *Server) httpROISet(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := roiJSON{}
	www.ReadJSON(w, r, &req, 1024*1024)
	roi := tracking.ROI{
		Enabled: req.Enabled,
	}
	for _, c := range req.Coordinates {
		roi.Polygon = append(roi.Polygon, nn.Point{X: c[0], Y: c[1]})
	}

	if err := s.monitor.SetROI(roi); errors.Is(err, tracking.ErrInvalidROI) {
		www.PanicBadRequestf("%v", err)
	} else {
		www.Check(err)
	}
	www.Check(s.configDB.SaveROI(&roi))
	www.SendJSON(w, toROIJSON(&roi))
}

func (s *Server) httpROICurrent(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	roi := s.monitor.ROI()
	www.SendJSON(w, toROIJSON(&roi))
}

func (s *Server) httpGetDetectionConfig(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.monitor.Settings())
}

// Update some or all of the pipeline settings. Settings that are not in the body are unchanged.
// Example: curl -X POST -d '{"idle_alert_threshold": 10}' localhost:8002/api/config/detection
func (s *Server) httpSetDetectionConfig(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	patch := config.PipelineSettingsPatch{}
	www.ReadJSON(w, r, &patch, 64*1024)
	s.settingsLock.Lock()
	defer s.settingsLock.Unlock()
	settings, err := s.monitor.PatchSettings(&patch)
	if errors.Is(err, config.ErrInvalidSettings) {
		www.PanicBadRequestf("%v", err)
	} else {
		www.Check(err)
	}
	www.Check(s.configDB.SavePipelineSettings(&settings))
	www.SendJSON(w, settings)
}
