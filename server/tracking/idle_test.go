package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/stretchr/testify/require"
)

// idleRig feeds a single person through a registry and idle engine
type idleRig struct {
	t        *testing.T
	registry *Registry
	engine   *IdleEngine
	roi      ROI
	frame    int64
}

func newIdleRig(t *testing.T, settings IdleSettings) *idleRig {
	return newIdleRigWithHistory(t, settings, DefaultRegistrySettings().HistorySize)
}

func newIdleRigWithHistory(t *testing.T, settings IdleSettings, historySize int) *idleRig {
	regSettings := DefaultRegistrySettings()
	regSettings.HistorySize = historySize
	regSettings.HistoryWindow = settings.IdleThreshold
	return &idleRig{
		t:        t,
		registry: newTestRegistry(t, regSettings),
		engine:   NewIdleEngine(settings),
	}
}

// Observe the person at (x,y) at time 'at', and evaluate
func (r *idleRig) observe(x, y float32, at time.Duration) (State, time.Duration) {
	r.registry.Update([]nn.Detection{personAt(x, y)}, r.frame, t0.Add(at))
	r.frame++
	require.Equal(r.t, 1, r.registry.Len())
	return r.engine.Evaluate(r.registry.Tracks()[0], &r.roi, t0.Add(at))
}

func (r *idleRig) track() *Track {
	return r.registry.Tracks()[0]
}

// Position on a circle of radius 'radius' around (cx,cy), at angle step i
func jitter(cx, cy, radius float32, i int) (float32, float32) {
	a := float64(i) * 2.1
	return cx + radius*float32(math.Cos(a)), cy + radius*float32(math.Sin(a))
}

func TestIdleScenario(t *testing.T) {
	// movement threshold 20, idle threshold 30s. Person stays within 10px radius for 31 seconds.
	rig := newIdleRig(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 30 * time.Second})
	var state State
	var dur time.Duration
	for i := 0; i <= 31*15; i++ {
		at := time.Duration(i) * time.Second / 15
		x, y := jitter(300, 200, 9.5, i)
		state, dur = rig.observe(x, y, at)
		if at < 30*time.Second {
			require.Equal(t, StateActive, state, "at %v", at)
			require.Equal(t, time.Duration(0), dur)
		} else {
			require.Equal(t, StateIdle, state, "at %v", at)
		}
	}
	require.Equal(t, StateIdle, state)
	require.InDelta(t, float64(time.Second), float64(dur), float64(time.Millisecond))
	require.Equal(t, t0.Add(30*time.Second), rig.track().IdleSince)
}

func TestIdleExactBoundary(t *testing.T) {
	rig := newIdleRig(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 30 * time.Second})
	rig.observe(100, 100, 0)
	state, _ := rig.observe(100, 100, 30*time.Second-time.Millisecond)
	require.Equal(t, StateActive, state)
	state, dur := rig.observe(100, 100, 30*time.Second)
	require.Equal(t, StateIdle, state)
	require.Equal(t, time.Duration(0), dur)
}

func TestIdleIdempotent(t *testing.T) {
	rig := newIdleRig(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 10 * time.Second})
	for i := 0; i <= 12; i++ {
		rig.observe(100, 100, time.Duration(i)*time.Second)
	}
	now := t0.Add(12 * time.Second)
	s1, d1 := rig.engine.Evaluate(rig.track(), &rig.roi, now)
	s2, d2 := rig.engine.Evaluate(rig.track(), &rig.roi, now)
	require.Equal(t, StateIdle, s1)
	require.Equal(t, s1, s2)
	require.Equal(t, d1, d2)
	require.Equal(t, 2*time.Second, d1)

	// Same thing, right after a movement
	rig.observe(150, 100, 13*time.Second)
	now = t0.Add(13 * time.Second)
	s1, d1 = rig.engine.Evaluate(rig.track(), &rig.roi, now)
	s2, d2 = rig.engine.Evaluate(rig.track(), &rig.roi, now)
	require.Equal(t, StateActive, s1)
	require.Equal(t, s1, s2)
	require.Equal(t, d1, d2)
}

func TestIdleMovementResets(t *testing.T) {
	rig := newIdleRig(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 10 * time.Second})
	for i := 0; i <= 11; i++ {
		rig.observe(100, 100, time.Duration(i)*time.Second)
	}
	require.Equal(t, StateIdle, rig.track().State)

	state, dur := rig.observe(125, 100, 12*time.Second)
	require.Equal(t, StateActive, state)
	require.Equal(t, time.Duration(0), dur)
	require.True(t, rig.track().IdleSince.IsZero())
	require.Equal(t, t0.Add(12*time.Second), rig.track().LastMovement)

	// The clock restarts from the movement
	state, _ = rig.observe(125, 100, 21*time.Second)
	require.Equal(t, StateActive, state)
	state, dur = rig.observe(125, 100, 22*time.Second)
	require.Equal(t, StateIdle, state)
	require.Equal(t, time.Duration(0), dur)
}

func TestIdleSlowDrift(t *testing.T) {
	// Each step is small, but over the window the person moves more than the threshold
	rig := newIdleRig(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 30 * time.Second})
	for i := 0; i <= 60; i++ {
		state, _ := rig.observe(100+float32(i), 100, time.Duration(i)*time.Second)
		require.Equal(t, StateActive, state, "second %v", i)
	}
}

func TestIdleDriftLongerThanHistorySize(t *testing.T) {
	// 0.5 px/s for 5 minutes at 15 fps. A 60 second window is 900 samples, which is more than the
	// initial history of 512, but the drift over the window is 30px, so the person is never idle.
	rig := newIdleRig(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 60 * time.Second})
	for i := 0; i <= 300*15; i++ {
		at := time.Duration(i) * time.Second / 15
		state, _ := rig.observe(100+0.5*float32(at.Seconds()), 100, at)
		require.Equal(t, StateActive, state, "at %v", at)
	}
	require.GreaterOrEqual(t, rig.track().HistoryLen(), 60*15+1)
}

func TestIdleTinyHistory(t *testing.T) {
	// Walking at 50 px/s, in 5px steps, with the smallest possible initial history
	rig := newIdleRigWithHistory(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 10 * time.Second}, 2)
	for i := 0; i <= 300; i++ {
		at := time.Duration(i) * 100 * time.Millisecond
		state, _ := rig.observe(100+5*float32(i), 100, at)
		require.Equal(t, StateActive, state, "at %v", at)
	}
	require.GreaterOrEqual(t, rig.track().HistoryLen(), 101)

	// Standing still after that, we become idle exactly one window later
	var state State
	for i := 1; i <= 100; i++ {
		state, _ = rig.observe(1600, 100, 30*time.Second+time.Duration(i)*100*time.Millisecond)
	}
	require.Equal(t, StateIdle, state)
}

func TestIdleHistoryLimit(t *testing.T) {
	// When the history can't cover the window, we never declare a person idle
	defer func(size int) { maxHistorySize = size }(maxHistorySize)
	maxHistorySize = 16

	rig := newIdleRig(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 30 * time.Second})
	for i := 0; i <= 100; i++ {
		state, _ := rig.observe(100, 100, time.Duration(i)*time.Second)
		require.Equal(t, StateActive, state, "second %v", i)
	}
	require.Equal(t, 15, rig.track().HistoryLen())
}

func TestIdleOscillation(t *testing.T) {
	// Pacing back and forth over 30px of path per second, but never more than 16px from the start,
	// is still idle.
	rig := newIdleRig(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 5 * time.Second})
	var state State
	for i := 0; i <= 60; i++ {
		x := float32(100)
		if i%2 == 1 {
			x = 116
		}
		state, _ = rig.observe(x, 100, time.Duration(i)*100*time.Millisecond)
	}
	require.Equal(t, StateIdle, state)
}

func TestIdleROI(t *testing.T) {
	square := nn.Polygon{{100, 100}, {200, 100}, {200, 200}, {100, 200}}
	settings := IdleSettings{MovementThreshold: 20, IdleThreshold: 10 * time.Second}

	// Static inside an enabled ROI
	rig := newIdleRig(t, settings)
	rig.roi = ROI{Enabled: true, Polygon: square}
	for i := 0; i <= 10; i++ {
		rig.observe(150, 150, time.Duration(i)*time.Second)
	}
	require.Equal(t, StateIdle, rig.track().State)

	// Static exactly on the ROI edge
	rig = newIdleRig(t, settings)
	rig.roi = ROI{Enabled: true, Polygon: square}
	for i := 0; i <= 10; i++ {
		rig.observe(200, 150, time.Duration(i)*time.Second)
	}
	require.Equal(t, StateIdle, rig.track().State)

	// Static outside an enabled ROI, never idle
	rig = newIdleRig(t, settings)
	rig.roi = ROI{Enabled: true, Polygon: square}
	for i := 0; i <= 30; i++ {
		state, _ := rig.observe(250, 150, time.Duration(i)*time.Second)
		require.Equal(t, StateActive, state)
	}

	// Idle inside, then the ROI shrinks so that the person is outside
	rig = newIdleRig(t, settings)
	rig.roi = ROI{Enabled: true, Polygon: square}
	for i := 0; i <= 12; i++ {
		rig.observe(150, 150, time.Duration(i)*time.Second)
	}
	require.Equal(t, StateIdle, rig.track().State)
	rig.roi = ROI{Enabled: true, Polygon: nn.Polygon{{160, 160}, {200, 160}, {200, 200}, {160, 200}}}
	state, _ := rig.observe(150, 150, 13*time.Second)
	require.Equal(t, StateActive, state)

	// ROI grows back. The clock starts again.
	rig.roi = ROI{Enabled: true, Polygon: square}
	state, _ = rig.observe(150, 150, 14*time.Second)
	require.Equal(t, StateActive, state)
	state, _ = rig.observe(150, 150, 24*time.Second)
	require.Equal(t, StateIdle, state)
}

func TestIdleROIDisabledIgnoresPosition(t *testing.T) {
	settings := IdleSettings{MovementThreshold: 20, IdleThreshold: 10 * time.Second}
	polygon := nn.Polygon{{0, 0}, {10, 0}, {10, 10}}
	positions := []nn.Point{{5, 3}, {300, 300}, {-50, 700}}
	var results [][]State
	for _, p := range positions {
		rig := newIdleRig(t, settings)
		rig.roi = ROI{Enabled: false, Polygon: polygon}
		states := []State{}
		for i := 0; i <= 20; i++ {
			dx := float32(0)
			if i == 5 {
				dx = 30
			}
			s, _ := rig.observe(p.X+dx, p.Y, time.Duration(i)*time.Second)
			states = append(states, s)
		}
		results = append(results, states)
	}
	require.Equal(t, results[0], results[1])
	require.Equal(t, results[0], results[2])
}

func TestIdleDisappearedTrack(t *testing.T) {
	// A track that stops being detected keeps its last known position
	rig := newIdleRig(t, IdleSettings{MovementThreshold: 20, IdleThreshold: 10 * time.Second})
	rig.observe(100, 100, 0)
	rig.registry.Update(nil, 1, t0.Add(5*time.Second))
	state, _ := rig.engine.Evaluate(rig.track(), &rig.roi, t0.Add(5*time.Second))
	require.Equal(t, StateActive, state)
	state, dur := rig.engine.Evaluate(rig.track(), &rig.roi, t0.Add(12*time.Second))
	require.Equal(t, StateIdle, state)
	require.Equal(t, 2*time.Second, dur)
}

func TestROIValidate(t *testing.T) {
	require.NoError(t, (&ROI{}).Validate())
	require.NoError(t, (&ROI{Enabled: false, Polygon: nn.Polygon{{1, 1}}}).Validate())
	require.ErrorIs(t, (&ROI{Enabled: true}).Validate(), ErrInvalidROI)
	require.ErrorIs(t, (&ROI{Enabled: true, Polygon: nn.Polygon{{1, 1}, {2, 2}}}).Validate(), ErrInvalidROI)
	require.NoError(t, (&ROI{Enabled: true, Polygon: nn.Polygon{{1, 1}, {2, 2}, {1, 2}}}).Validate())
}
