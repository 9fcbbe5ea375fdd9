package monitor

import "github.com/cyclopcam/idlewatch/pkg/gen"

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// Register to receive the result of every processed frame
func (m *Monitor) AddWatcher() chan *FrameResult {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *FrameResult, WatcherChannelSize)
	m.watchers = append(m.watchers, ch)
	return ch
}

// Unregister from frame results
func (m *Monitor) RemoveWatcher(ch chan *FrameResult) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, w := range m.watchers {
		if w == ch {
			m.watchers = gen.DeleteFromSliceUnordered(m.watchers, i)
			return
		}
	}
	m.Log.Warnf("Monitor.RemoveWatcher failed to find channel")
}

// Add a new agent that is interested in idle alerts
func (m *Monitor) AddAlertWatcher() chan *IdleAlert {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *IdleAlert, WatcherChannelSize)
	m.alertWatchers = append(m.alertWatchers, ch)
	return ch
}

// Unregister an alert watcher
func (m *Monitor) RemoveAlertWatcher(ch chan *IdleAlert) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, wch := range m.alertWatchers {
		if wch == ch {
			m.alertWatchers = gen.DeleteFromSliceUnordered(m.alertWatchers, i)
			return
		}
	}
	m.Log.Warnf("Monitor.RemoveAlertWatcher failed to find channel")
}

// Register to be told when runs start and end
func (m *Monitor) AddRunWatcher() chan *RunEvent {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *RunEvent, 20)
	m.runWatchers = append(m.runWatchers, ch)
	return ch
}

func (m *Monitor) RemoveRunWatcher(ch chan *RunEvent) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, wch := range m.runWatchers {
		if wch == ch {
			m.runWatchers = gen.DeleteFromSliceUnordered(m.runWatchers, i)
			return
		}
	}
	m.Log.Warnf("Monitor.RemoveRunWatcher failed to find channel")
}

func (m *Monitor) sendToWatchers(result *FrameResult) {
	m.watchersLock.RLock()
	// A slow watcher must never stall the pipeline, so if a watcher falls behind, we drop frames for it.
	for _, ch := range m.watchers {
		// SYNC-WATCHER-CHANNEL-SIZE
		if len(ch) >= cap(ch)*9/10 {
			m.Log.Warnf("Monitor watcher is falling behind. I am going to drop frames.")
		} else {
			ch <- result
		}
	}
	m.watchersLock.RUnlock()
}

func (m *Monitor) sendToAlertWatchers(alert *IdleAlert) {
	m.watchersLock.RLock()
	for _, ch := range m.alertWatchers {
		select {
		case ch <- alert:
		default:
			m.Log.Warnf("Alert watcher is full. Dropping alert for person %v", alert.TrackID)
		}
	}
	m.watchersLock.RUnlock()
}

func (m *Monitor) sendToRunWatchers(ev *RunEvent) {
	m.watchersLock.RLock()
	for _, ch := range m.runWatchers {
		select {
		case ch <- ev:
		default:
			m.Log.Warnf("Run watcher is full. Dropping %v event for run %v", ev.Type, ev.RunID)
		}
	}
	m.watchersLock.RUnlock()
}
