package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/idlewatch/server/configdb"
	"github.com/cyclopcam/idlewatch/server/monitor"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/hybridgroup/mjpeg"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log              logs.Log
	ShutdownStarted  chan bool  // This channel is closed when shutdown starts
	ShutdownComplete chan error // Sent when the server has shut down

	config     *config.Config
	configDB   *configdb.ConfigDB
	monitor    *monitor.Monitor
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	wsUpgrader websocket.Upgrader
	mjpeg      *mjpeg.Stream

	shutdownLock        sync.Mutex
	settingsLock        sync.Mutex // Held while changing the pipeline settings, so that the DB sees changes in the same order as the monitor
	isShutdown          bool
	alertRecorderClosed chan bool
	mjpegFeederClosed   chan bool
}

// NewServer creates the pipeline and HTTP routes, but does not start listening.
// The server takes ownership of configDB.
func NewServer(logger logs.Log, cfg *config.Config, configDB *configdb.ConfigDB) (*Server, error) {
	// Precedence: the settings in the DB, then the config file, then defaults
	defaults := config.DefaultPipelineSettings()
	if cfg.Pipeline != nil {
		defaults = cfg.Pipeline.Apply(defaults)
		if err := defaults.Validate(); err != nil {
			return nil, err
		}
	}
	settings, err := configDB.LoadPipelineSettings(defaults)
	if err != nil {
		return nil, err
	}
	roi, err := configDB.LoadROI()
	if err != nil {
		return nil, err
	}
	mon, err := monitor.NewMonitor(logger, settings, roi)
	if err != nil {
		return nil, err
	}
	mon.Verbose = cfg.Verbose

	s := &Server{
		Log:                 logger,
		ShutdownStarted:     make(chan bool),
		ShutdownComplete:    make(chan error, 1),
		config:              cfg,
		configDB:            configDB,
		monitor:             mon,
		mjpeg:               mjpeg.NewStream(),
		alertRecorderClosed: make(chan bool),
		mjpegFeederClosed:   make(chan bool),
	}
	s.wsUpgrader.CheckOrigin = func(r *http.Request) bool { return true }

	s.runAlertRecorder()
	s.runMJPEGFeeder()

	if err := s.setupHttpRoutes(); err != nil {
		s.Shutdown()
		return nil, err
	}

	if cfg.AutoStart {
		if _, err := s.StartPipeline(nil); err != nil {
			s.Log.Errorf("Failed to start pipeline: %v", err)
		}
	}
	return s, nil
}

// port example: ":8002"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig, ok := <-s.signalIn:
			if ok {
				s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
				s.Shutdown()
			} else {
				// This path gets hit when Shutdown() is called by something other than ourselves, and Shutdown() closes the signalIn channel.
				s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
			}
		}
	}()
}

// Shutdown stops the pipeline, closes the database, and closes the HTTP server.
// It is safe to call Shutdown more than once.
func (s *Server) Shutdown() {
	s.shutdownLock.Lock()
	if s.isShutdown {
		s.shutdownLock.Unlock()
		return
	}
	s.isShutdown = true
	s.shutdownLock.Unlock()

	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}

	// The alert recorder must see the end of the run before the DB is closed
	s.monitor.Close()
	close(s.ShutdownStarted)
	<-s.alertRecorderClosed
	<-s.mjpegFeederClosed
	s.configDB.Close()

	var err error
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = s.httpServer.Shutdown(ctx)
		cancel()
	}
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.ShutdownComplete <- err
}
