package tracking

import (
	"time"

	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/idlewatch/pkg/nn"
)

type State int

const (
	StateActive State = iota // Initial state of every track
	StateIdle                // Stationary for at least the idle threshold
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateIdle:
		return "IDLE"
	}
	return "UNKNOWN"
}

// A time and position where we saw a person
type sample struct {
	time     time.Time
	position nn.Point
}

// Track is one person, followed across frames.
// Tracks are owned by a Registry. The IdleEngine may change State and IdleSince,
// but never creates or destroys tracks.
type Track struct {
	ID               int64
	Box              nn.Rect // Most recent box
	Confidence       float32 // Confidence of the most recent detection
	FirstSeen        time.Time
	LastSeen         time.Time
	LastSeenFrame    int64
	DisappearedCount int // Number of consecutive frames where we didn't see this track
	State            State
	IdleSince        time.Time // Moment at which we became IDLE. Zero when ACTIVE.
	LastMovement     time.Time // Time of the most recent sample that counted as movement

	stillSince time.Time // Start of the current low-movement run inside the ROI. Zero if there is no run.
	history    ringbuffer.RingP[sample]
	window     time.Duration // Samples younger than this (relative to the newest) are never evicted, unless the ring is at maxHistorySize
	truncated  time.Time     // Oldest retained sample, the last time we were forced to evict a sample from inside the window
}

// Upper bound on the ring size of a track's history (a power of 2). The ring holds one less than this.
// SYNC-MAX-TRACK-HISTORY
var maxHistorySize = 1 << 16

func newTrack(id int64, historySize int, window time.Duration, det *nn.Detection, frameIndex int64, timestamp time.Time) *Track {
	t := &Track{
		ID:            id,
		Box:           det.Box,
		Confidence:    det.Confidence,
		FirstSeen:     timestamp,
		LastSeen:      timestamp,
		LastSeenFrame: frameIndex,
		State:         StateActive,
		LastMovement:  timestamp,
		history:       ringbuffer.NewRingP[sample](min(historySize, maxHistorySize)),
		window:        window,
	}
	t.addSample(sample{time: timestamp, position: det.Centroid})
	return t
}

func (t *Track) observe(det *nn.Detection, frameIndex int64, timestamp time.Time) {
	t.Box = det.Box
	t.Confidence = det.Confidence
	t.LastSeen = timestamp
	t.LastSeenFrame = frameIndex
	t.DisappearedCount = 0
	t.addSample(sample{time: timestamp, position: det.Centroid})
}

// Add a sample to the history, evicting the oldest sample only if it has fallen out of the window.
// Otherwise the ring is doubled in size.
func (t *Track) addSample(s sample) {
	if t.history.IsFull() {
		oldest := t.history.Peek(0)
		if !oldest.time.Before(s.time.Add(-t.window)) {
			if t.history.Capacity()+1 < maxHistorySize {
				t.growHistory()
			} else {
				// We're about to lose a sample that is still inside the window
				t.truncated = t.history.Peek(1).time
			}
		}
	}
	t.history.Add(s)
}

func (t *Track) growHistory() {
	grown := ringbuffer.NewRingP[sample](2 * (t.history.Capacity() + 1))
	for i := 0; i < t.history.Len(); i++ {
		grown.Add(t.history.Peek(i))
	}
	t.history = grown
}

// Centroid is the most recently observed position
func (t *Track) Centroid() nn.Point {
	return t.mostRecent().position
}

func (t *Track) mostRecent() sample {
	return t.history.Peek(t.history.Len() - 1)
}

// Visible is true if the track was matched in the most recent frame
func (t *Track) Visible() bool {
	return t.DisappearedCount == 0
}

// HistoryLen is the number of retained position samples
func (t *Track) HistoryLen() int {
	return t.history.Len()
}

// RecentPositions returns up to n of the most recent positions, oldest first
func (t *Track) RecentPositions(n int) []nn.Point {
	total := t.history.Len()
	n = min(n, total)
	out := make([]nn.Point, 0, n)
	for i := total - n; i < total; i++ {
		out = append(out, t.history.Peek(i).position)
	}
	return out
}

// IdleDuration is how long we've been IDLE, as of 'now'
func (t *Track) IdleDuration(now time.Time) time.Duration {
	if t.State != StateIdle || t.IdleSince.IsZero() {
		return 0
	}
	return max(0, now.Sub(t.IdleSince))
}

func (t *Track) setActive() {
	t.State = StateActive
	t.IdleSince = time.Time{}
}
