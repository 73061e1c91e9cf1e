package compute

import (
	"math"
	"sync/atomic"
)

// DefaultIntervalMs is the window length used when none is configured.
const DefaultIntervalMs = 5000

// DefaultWindowCapacity bounds how many samples one window may hold.
const DefaultWindowCapacity = 4096

// Sample is one raw sensor reading: the euclidean norm of a 3-axis
// accelerometer reading and its timestamp in milliseconds.
type Sample struct {
	Magnitude float64
	Timestamp float64
}

// valid reports whether s can enter a window.
func (s Sample) valid() bool {
	if math.IsNaN(s.Magnitude) || math.IsInf(s.Magnitude, 0) || s.Magnitude < 0 {
		return false
	}
	return !math.IsNaN(s.Timestamp) && !math.IsInf(s.Timestamp, 0)
}

// Accumulator collects sample magnitudes until the configured interval has
// elapsed since the last emission, measured on sample timestamps only.
//
// Push must be called from a single goroutine. SetInterval may be called
// concurrently (e.g. from a config watcher).
type Accumulator struct {
	interval atomic.Int64
	capacity int

	buf      []float64
	lastEmit float64
	started  bool
}

// NewAccumulator returns an Accumulator emitting every intervalMs. A
// non-positive intervalMs falls back to DefaultIntervalMs and a non-positive
// capacity to DefaultWindowCapacity.
func NewAccumulator(intervalMs int64, capacity int) *Accumulator {
	if intervalMs <= 0 {
		intervalMs = DefaultIntervalMs
	}
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	a := &Accumulator{capacity: capacity}
	a.interval.Store(intervalMs)
	return a
}

// SetInterval changes the window length, effective on the next Push.
// Non-positive values are ignored and the last known interval is kept;
// SetInterval reports whether the value was accepted.
func (a *Accumulator) SetInterval(ms int64) bool {
	if ms <= 0 {
		return false
	}
	a.interval.Store(ms)
	return true
}

// Interval returns the current window length in milliseconds.
func (a *Accumulator) Interval() int64 {
	return a.interval.Load()
}

// Len returns the number of buffered samples.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Push appends s and returns the completed window when
// s.Timestamp - lastEmit >= interval. The returned slice is owned by the
// caller; the accumulator keeps nothing from it.
//
// The first Push ever only starts the clock. When the buffer is at capacity
// the oldest magnitude is evicted.
func (a *Accumulator) Push(s Sample) ([]float64, bool) {
	if len(a.buf) >= a.capacity {
		copy(a.buf, a.buf[1:])
		a.buf = a.buf[:len(a.buf)-1]
	}
	a.buf = append(a.buf, s.Magnitude)

	if !a.started {
		a.lastEmit = s.Timestamp
		a.started = true
	}

	if s.Timestamp-a.lastEmit < float64(a.interval.Load()) {
		return nil, false
	}

	a.lastEmit = s.Timestamp
	return a.take(), true
}

// Drain hands over whatever is buffered without waiting for the interval.
// It returns nil when the buffer is empty. The emission clock is left as is.
func (a *Accumulator) Drain() []float64 {
	if len(a.buf) == 0 {
		return nil
	}
	return a.take()
}

func (a *Accumulator) take() []float64 {
	window := a.buf
	a.buf = make([]float64, 0, cap(window))
	return window
}
