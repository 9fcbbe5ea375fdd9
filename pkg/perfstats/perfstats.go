package perfstats

import (
	"math"
	"time"

	"github.com/bmharper/ringbuffer"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// RateMeter measures events per second over the most recent N events
type RateMeter struct {
	window int
	times  ringbuffer.RingP[time.Time]
}

// window is rounded up to a power of 2
func NewRateMeter(window int) *RateMeter {
	window = NextPowerOf2(max(window, 2))
	return &RateMeter{
		window: window,
		times:  ringbuffer.NewRingP[time.Time](window),
	}
}

// Record an event at time t. Times must be non-decreasing.
func (r *RateMeter) Tick(t time.Time) {
	r.times.Add(t)
}

// Rate returns events per second, or zero if we don't have at least two events
func (r *RateMeter) Rate() float64 {
	n := r.times.Len()
	if n < 2 {
		return 0
	}
	elapsed := r.times.Peek(n - 1).Sub(r.times.Peek(0))
	if elapsed <= 0 {
		return 0
	}
	return float64(n-1) / elapsed.Seconds()
}

func (r *RateMeter) Reset() {
	r.times = ringbuffer.NewRingP[time.Time](r.window)
}

// StatsInterval returns the delay before the n-th periodic stats log message.
// Intervals grow exponentially, so that a long running process doesn't spam the log.
func StatsInterval(n int, maxInterval time.Duration) time.Duration {
	seconds := 10 * math.Pow(1.5, float64(n))
	seconds = min(max(seconds, 5), maxInterval.Seconds())
	return time.Duration(seconds * float64(time.Second))
}

func NextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}
