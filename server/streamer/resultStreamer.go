package streamer

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/idlewatch/server/monitor"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
)

type webSocketMsg int

const (
	webSocketMsgPause  webSocketMsg = iota // pause updates (eg browser tab deactivated)
	webSocketMsgResume                     // resume updates (eg browser tab reactivated)
)

// Sent by client over websocket
// SYNC-WEBSOCKET-JSON-MSG
type webSocketJSON struct {
	Command string `json:"command"`
}

// SYNC-WEBSOCKET-MSG-TYPES
const (
	MsgTypeRealtimeUpdate  = "realtime_update"
	MsgTypePipelineStopped = "pipeline_stopped"
)

// Sent once per processed frame
type RealtimeUpdate struct {
	Type       string           `json:"type"`
	RunID      string           `json:"run_id"`
	FrameIndex int64            `json:"frame_index"`
	Persons    []monitor.Person `json:"persons"`
	Stats      monitor.Stats    `json:"stats"`
}

// Sent once when a run ends. Error is empty if the run was stopped, or ran out of frames.
type PipelineStopped struct {
	Type       string `json:"type"`
	RunID      string `json:"run_id"`
	Error      string `json:"error,omitempty"`
	Frames     int64  `json:"frames"`
	IdleAlerts int64  `json:"idle_alerts"`
}

// Number of messages that we will buffer on the send side, before dropping updates to the client.
const WebSocketSendBufferSize = 50

var nextWebSocketStreamerID int64

// ResultStreamer pushes pipeline results to a single websocket client
type ResultStreamer struct {
	log           logs.Log
	streamerID    int64 // Intended to aid in logging/debugging
	monitor       *monitor.Monitor
	closed        atomic.Bool
	paused        atomic.Bool
	fromWebSocket chan webSocketMsg
	runExited     chan struct{} // Closed when run() returns, after which nobody reads fromWebSocket
	readerExited  chan struct{} // Closed when webSocketReader returns
	sendQueue     chan []byte
	lastDropMsg   time.Time
	lastLogTime   time.Time
	nDropped      int64
	nSent         int64
	debug         bool
}

// RunResultStreamer streams results until the client goes away, or until done is closed.
// Blocks until then.
func RunResultStreamer(logger logs.Log, conn *websocket.Conn, mon *monitor.Monitor, done <-chan bool) {
	streamerID := atomic.AddInt64(&nextWebSocketStreamerID, 1)

	streamer := &ResultStreamer{
		log:        logs.NewPrefixLogger(logger, fmt.Sprintf("WebSocket %v", streamerID)),
		streamerID: streamerID,
		monitor:    mon,
		sendQueue:  make(chan []byte, WebSocketSendBufferSize),
	}

	streamer.run(conn, done)
}

func (s *ResultStreamer) run(conn *websocket.Conn, done <-chan bool) {
	results := s.monitor.AddWatcher()
	defer s.monitor.RemoveWatcher(results)
	runs := s.monitor.AddRunWatcher()
	defer s.monitor.RemoveRunWatcher(runs)
	defer conn.Close()

	s.fromWebSocket = make(chan webSocketMsg, 1)
	s.runExited = make(chan struct{})
	s.readerExited = make(chan struct{})
	defer close(s.runExited)
	go s.webSocketReader(conn)
	go s.webSocketWriter(conn)

	s.closed.Store(false)
	s.paused.Store(false)

	// Give the client something to show immediately, instead of waiting for the next frame
	if latest := s.monitor.LastResult(); latest != nil && s.monitor.IsRunning() {
		s.onResult(latest)
	}

	for !s.closed.Load() {
		select {
		case <-done:
			s.log.Infof("Server is shutting down")
			s.closed.Store(true)
		case wsMsg, ok := <-s.fromWebSocket:
			if !ok {
				if s.debug {
					s.log.Infof("Run webSocketMsgClosed")
				}
				s.closed.Store(true)
			} else {
				s.paused.Store(wsMsg == webSocketMsgPause)
			}
		case result := <-results:
			if !s.paused.Load() {
				s.onResult(result)
			}
		case ev := <-runs:
			if ev.Type == monitor.RunEventEnded {
				s.onRunEnded(ev)
			}
		}
	}
	close(s.sendQueue)
}

func (s *ResultStreamer) onResult(result *monitor.FrameResult) {
	now := time.Now()
	// Keep the last quarter of the queue free for control messages, which must not be dropped
	if len(s.sendQueue) >= WebSocketSendBufferSize*3/4 {
		s.nDropped++
		if now.Sub(s.lastDropMsg) > 5*time.Second {
			s.log.Infof("Dropped %v/%v updates", s.nDropped, s.nDropped+s.nSent)
			s.lastDropMsg = now
		}
		return
	}
	msg := RealtimeUpdate{
		Type:       MsgTypeRealtimeUpdate,
		RunID:      result.RunID,
		FrameIndex: result.FrameIndex,
		Persons:    result.Persons,
		Stats:      result.Stats,
	}
	s.nSent++
	if now.Sub(s.lastLogTime) > 60*time.Second {
		s.log.Infof("Sent %v/%v updates", s.nSent, s.nDropped+s.nSent)
		s.lastLogTime = now
	}
	s.enqueue(&msg)
}

func (s *ResultStreamer) onRunEnded(ev *monitor.RunEvent) {
	msg := PipelineStopped{
		Type:       MsgTypePipelineStopped,
		RunID:      ev.RunID,
		Frames:     ev.Frames,
		IdleAlerts: ev.IdleAlerts,
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	if len(s.sendQueue) >= WebSocketSendBufferSize {
		s.log.Warnf("Send queue is full. Dropping pipeline_stopped message for run %v", ev.RunID)
		return
	}
	s.enqueue(&msg)
}

func (s *ResultStreamer) enqueue(msg any) {
	j, err := json.Marshal(msg)
	if err != nil {
		s.log.Errorf("Failed to marshal websocket message: %v", err)
		return
	}
	s.sendQueue <- j
}

// Read from the websocket and post to our own channel, so that we can
// run a single loop that handles reads from websocket and results from the monitor.
func (s *ResultStreamer) webSocketReader(conn *websocket.Conn) {
	defer close(s.readerExited)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if s.debug {
				s.log.Infof("webSocketReader conn.ReadMessage error: %v", err)
			}
			break
		}
		if msgType == websocket.TextMessage {
			msg := webSocketJSON{}
			if err := json.Unmarshal(data, &msg); err != nil {
				s.log.Infof("webSocketReader failed to decode JSON: %v", err)
			} else {
				// SYNC-WEBSOCKET-COMMANDS
				var cmd webSocketMsg
				switch msg.Command {
				case "pause":
					cmd = webSocketMsgPause
				case "resume":
					cmd = webSocketMsgResume
				default:
					s.log.Infof("Unknown websocket message from client: '%v'", msg.Command)
					continue
				}
				select {
				case s.fromWebSocket <- cmd:
				case <-s.runExited:
					return
				}
			}
		}
	}
	close(s.fromWebSocket)
}

// Run a thread that is responsible for writing to the websocket.
// We run this on a separate thread so that if a client (aka browser) is slow,
// it doesn't end up blocking the monitor, and we can detect the blockage.
func (s *ResultStreamer) webSocketWriter(conn *websocket.Conn) {
	for {
		msg, more := <-s.sendQueue
		if !more || s.closed.Load() {
			if s.debug {
				s.log.Infof("webSocketWriter closing. more:%v, s.closed:%v", more, s.closed.Load())
			}
			break
		}
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.log.Infof("Error writing to websocket: %v", err)
			// This unblocks the reader, which ends the main loop
			conn.Close()
			break
		}
	}
}
