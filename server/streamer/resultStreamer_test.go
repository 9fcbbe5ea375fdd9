package streamer

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/idlewatch/server/monitor"
	"github.com/cyclopcam/idlewatch/server/source"
	"github.com/cyclopcam/idlewatch/server/tracking"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type anyMessage struct {
	Type    string           `json:"type"`
	RunID   string           `json:"run_id"`
	Persons []monitor.Person `json:"persons"`
	Error   string           `json:"error"`
}

func TestSendQueueDropsUpdates(t *testing.T) {
	s := &ResultStreamer{
		log:       logs.NewTestingLog(t),
		sendQueue: make(chan []byte, WebSocketSendBufferSize),
	}
	result := &monitor.FrameResult{RunID: "abc", Persons: []monitor.Person{}}
	for i := 0; i < 100; i++ {
		s.onResult(result)
	}
	require.Equal(t, WebSocketSendBufferSize*3/4, len(s.sendQueue))
	require.Equal(t, int64(100-WebSocketSendBufferSize*3/4), s.nDropped)

	// There is still space for the end of the run
	s.onRunEnded(&monitor.RunEvent{Type: monitor.RunEventEnded, RunID: "abc", Err: errors.New("camera gone")})
	require.Equal(t, WebSocketSendBufferSize*3/4+1, len(s.sendQueue))

	var last []byte
	for len(s.sendQueue) != 0 {
		last = <-s.sendQueue
	}
	msg := anyMessage{}
	require.NoError(t, json.Unmarshal(last, &msg))
	require.Equal(t, MsgTypePipelineStopped, msg.Type)
	require.Equal(t, "abc", msg.RunID)
	require.Equal(t, "camera gone", msg.Error)
}

func TestStreamRun(t *testing.T) {
	log := logs.NewTestingLog(t)
	settings := config.DefaultPipelineSettings()
	settings.FrameWidth = 320
	settings.FrameHeight = 240
	settings.FPSLimit = 50
	mon, err := monitor.NewMonitor(log, settings, tracking.ROI{})
	require.NoError(t, err)
	defer mon.Close()

	done := make(chan bool)
	defer close(done)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		RunResultStreamer(log, conn, mon, done)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	runID, err := mon.Start(source.NewDemoSource(320, 240, 50), source.NewDemoDetector())
	require.NoError(t, err)

	readMsg := func() anyMessage {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		msg := anyMessage{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	// The streamer may have registered after the first frames, so wait for the first update that has people in it
	for {
		msg := readMsg()
		require.Equal(t, MsgTypeRealtimeUpdate, msg.Type)
		if len(msg.Persons) != 0 {
			require.Equal(t, runID, msg.RunID)
			break
		}
	}

	mon.Stop()
	for {
		msg := readMsg()
		if msg.Type == MsgTypePipelineStopped {
			require.Equal(t, runID, msg.RunID)
			require.Equal(t, "", msg.Error)
			break
		}
		require.Equal(t, MsgTypeRealtimeUpdate, msg.Type)
	}
}

func TestReaderExitsAfterRun(t *testing.T) {
	// Once the main loop is gone, client commands must not block the reader forever
	s := &ResultStreamer{
		log:           logs.NewTestingLog(t),
		fromWebSocket: make(chan webSocketMsg, 1),
		runExited:     make(chan struct{}),
		readerExited:  make(chan struct{}),
	}
	close(s.runExited)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.webSocketReader(conn)
		conn.Close()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"pause"}`)))
	}

	select {
	case <-s.readerExited:
	case <-time.After(10 * time.Second):
		require.FailNow(t, "webSocketReader is stuck")
	}
}
