package compute

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/relojcausal/relojcausal/pkg/types"
)

var (
	// ErrInvalidSample is returned for a non-finite or negative magnitude or
	// a non-finite timestamp. The sample is dropped.
	ErrInvalidSample = errors.New("compute: invalid sample")

	// ErrEmptyWindow is returned when a window completes with no samples.
	ErrEmptyWindow = errors.New("compute: empty window")
)

// Result is the analysis of one completed window.
type Result struct {
	Metrics     types.Metrics
	Label       types.Label
	EVeto       bool // strict gate verdict
	SampleCount int
	Derived     types.Derived
}

// Evaluate runs the spectral analyzer, locking index, artifact detector and
// E-Veto classifier over one window. It is a pure function of its inputs.
func Evaluate(magnitudes []float64, t Thresholds) Result {
	sp := Analyze(magnitudes)
	m := types.Metrics{
		DH:         sp.DH,
		LI:         LockingIndex(magnitudes, sp.Power),
		KappaSigma: KappaSigma(magnitudes),
	}
	return Result{
		Metrics:     m,
		Label:       Classify(m, t),
		EVeto:       EVeto(m, t),
		SampleCount: len(magnitudes),
		Derived:     Derive(m),
	}
}

// Derive computes the display values charted by the dashboard.
func Derive(m types.Metrics) types.Derived {
	return types.Derived{
		R:      clamp(0.8+0.2*m.LI, 0, 1),
		RMSESL: clamp(m.KappaSigma/5, 0, 0.3),
		TC:     (m.LI-0.5)*0.08 + (m.DH+0.5)*-0.04,
	}
}

// Engine turns a stream of samples into one Result per completed window.
//
// Push must be called from a single goroutine; SetInterval and
// SetThresholds are safe to call concurrently with it.
type Engine struct {
	acc *Accumulator

	mu         sync.RWMutex
	thresholds Thresholds
}

// NewEngine returns an Engine with the given window interval (ms), window
// capacity and classifier thresholds.
func NewEngine(intervalMs int64, capacity int, t Thresholds) *Engine {
	return &Engine{
		acc:        NewAccumulator(intervalMs, capacity),
		thresholds: t,
	}
}

// SetInterval changes the window interval; see Accumulator.SetInterval.
func (e *Engine) SetInterval(ms int64) bool {
	ok := e.acc.SetInterval(ms)
	if !ok {
		slog.Warn("compute: ignoring non-positive interval, keeping last known",
			"interval_ms", ms, "current_ms", e.acc.Interval())
	}
	return ok
}

// Interval returns the current window interval in milliseconds.
func (e *Engine) Interval() int64 {
	return e.acc.Interval()
}

// SetThresholds replaces the classifier thresholds for subsequent windows.
func (e *Engine) SetThresholds(t Thresholds) {
	e.mu.Lock()
	e.thresholds = t
	e.mu.Unlock()
}

// Thresholds returns the thresholds currently in effect.
func (e *Engine) Thresholds() Thresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds
}

// Push feeds one sample. It returns a Result when the sample completes a
// window and (nil, nil) otherwise.
func (e *Engine) Push(s Sample) (*Result, error) {
	if !s.valid() {
		return nil, ErrInvalidSample
	}
	window, ok := e.acc.Push(s)
	if !ok {
		return nil, nil
	}
	return e.evaluate(window)
}

// Flush evaluates whatever is buffered as a final, possibly short, window.
// It returns ErrEmptyWindow when nothing is buffered.
func (e *Engine) Flush() (*Result, error) {
	return e.evaluate(e.acc.Drain())
}

func (e *Engine) evaluate(window []float64) (*Result, error) {
	if len(window) == 0 {
		return nil, ErrEmptyWindow
	}
	res := Evaluate(window, e.Thresholds())
	return &res, nil
}
