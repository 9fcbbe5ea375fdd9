package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() error {
	logEveryRequest := false
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if logEveryRequest {
				s.Log.Infof("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	// We create a unique rate limiter for each endpoint, so we don't need httprate.KeyByEndpoint
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)

	ratelimited("POST", "/api/video/start", s.httpVideoStart, 10, time.Minute)
	ratelimited("POST", "/api/video/stop", s.httpVideoStop, 10, time.Minute)
	handle("GET", "/api/video/status", s.httpVideoStatus)
	handle("GET", "/api/video/frame", s.httpVideoFrame)
	handle("GET", "/api/video/stream", s.httpVideoStream)

	ratelimited("POST", "/api/roi/set", s.httpROISet, 60, time.Minute)
	handle("GET", "/api/roi/current", s.httpROICurrent)
	ratelimited("POST", "/api/config/detection", s.httpSetDetectionConfig, 60, time.Minute)
	handle("GET", "/api/config/detection", s.httpGetDetectionConfig)

	handle("GET", "/api/stats", s.httpStats)
	handle("GET", "/api/persons", s.httpPersons)
	handle("GET", "/api/persons/idle", s.httpIdlePersons)
	handle("GET", "/api/alerts/history", s.httpAlertHistory)
	handle("GET", "/api/runs", s.httpRuns)

	handle("GET", "/api/ws", s.httpWebSocket)

	s.httpRouter = router
	return nil
}
