package tracking

import (
	"time"
)

type IdleSettings struct {
	MovementThreshold float32       // Pixels. Displacement above this counts as movement.
	IdleThreshold     time.Duration // How long a person must be still before they are IDLE
}

func DefaultIdleSettings() IdleSettings {
	return IdleSettings{
		MovementThreshold: 20,
		IdleThreshold:     30 * time.Second,
	}
}

// IdleEngine runs the ACTIVE/IDLE state machine of each track.
//
// A track becomes IDLE once it has spent IdleThreshold inside the ROI without moving.
// "Moving" is judged over a sliding window of length IdleThreshold: if the newest position is more than
// MovementThreshold away from the oldest position in the window, or from the previous position, then
// the track has moved. Because we compare endpoints, and not path length, jitter around a fixed point
// still counts as still.
type IdleEngine struct {
	settings IdleSettings
}

func NewIdleEngine(settings IdleSettings) *IdleEngine {
	return &IdleEngine{settings: settings}
}

func (e *IdleEngine) SetSettings(settings IdleSettings) {
	e.settings = settings
}

func (e *IdleEngine) Settings() IdleSettings {
	return e.settings
}

// Evaluate updates the state of the track as of 'now', and returns the new state, and how long the
// track has been IDLE (zero when ACTIVE).
// Evaluating the same track twice at the same time, without new samples, gives the same answer.
func (e *IdleEngine) Evaluate(t *Track, roi *ROI, now time.Time) (State, time.Duration) {
	n := t.history.Len()
	if n == 0 {
		t.stillSince = time.Time{}
		t.setActive()
		return StateActive, 0
	}

	newest := t.history.Peek(n - 1)
	if !roi.Contains(newest.position) {
		t.stillSince = time.Time{}
		t.setActive()
		return StateActive, 0
	}
	if t.stillSince.IsZero() || t.stillSince.After(newest.time) {
		t.stillSince = newest.time
	}
	if t.stillSince.Before(t.truncated) {
		// We no longer have the samples that would show whether the person moved before this
		t.stillSince = t.truncated
	}

	// Walk backwards through the samples of the current still run, but no further than the window.
	windowStart := now.Add(-e.settings.IdleThreshold)
	oldest := newest
	previous := newest
	havePrevious := false
	for i := n - 2; i >= 0; i-- {
		s := t.history.Peek(i)
		if s.time.Before(t.stillSince) || s.time.Before(windowStart) {
			break
		}
		if !roi.Contains(s.position) {
			// The ROI changed underneath us. The run restarts after this sample.
			t.stillSince = t.history.Peek(i + 1).time
			break
		}
		if !havePrevious {
			previous = s
			havePrevious = true
		}
		oldest = s
	}

	moved := newest.position.Distance(oldest.position) > e.settings.MovementThreshold
	if havePrevious && newest.position.Distance(previous.position) > e.settings.MovementThreshold {
		moved = true
	}
	if moved {
		t.stillSince = newest.time
		t.LastMovement = newest.time
		t.setActive()
		return StateActive, 0
	}

	if now.Sub(t.stillSince) < e.settings.IdleThreshold {
		t.setActive()
		return StateActive, 0
	}

	if t.State != StateIdle {
		t.State = StateIdle
		t.IdleSince = t.stillSince.Add(e.settings.IdleThreshold)
	}
	return StateIdle, t.IdleDuration(now)
}
