package server

import (
	"net/http"

	"github.com/cyclopcam/idlewatch/server/monitor"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

func (s *Server) lastResult() *monitor.FrameResult {
	if result := s.monitor.LastResult(); result != nil {
		return result
	}
	return &monitor.FrameResult{
		Persons: []monitor.Person{},
	}
}

func (s *Server) httpStats(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.lastResult().Stats)
}

func (s *Server) httpPersons(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.lastResult().Persons)
}

func (s *Server) httpIdlePersons(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.lastResult().IdlePersons())
}

func historyLimit(r *http.Request) int {
	limit := www.QueryInt(r, "limit")
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return min(limit, maxHistoryLimit)
}

// Most recent idle alerts, newest first.
// Example: curl localhost:8002/api/alerts/history?limit=10
func (s *Server) httpAlertHistory(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	alerts, err := s.configDB.ListIdleAlerts(historyLimit(r))
	www.Check(err)
	www.SendJSON(w, alerts)
}

func (s *Server) httpRuns(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	runs, err := s.configDB.ListRuns(historyLimit(r))
	www.Check(err)
	www.SendJSON(w, runs)
}
