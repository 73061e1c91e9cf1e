package compute

import (
	"errors"
	"math"
	"testing"

	"github.com/relojcausal/relojcausal/pkg/types"
)

// feed pushes mags at start, start+step, ... and collects every Result.
func feed(t *testing.T, e *Engine, mags []float64, start, step float64) []*Result {
	t.Helper()
	var out []*Result
	for i, m := range mags {
		res, err := e.Push(Sample{Magnitude: m, Timestamp: start + float64(i)*step})
		if err != nil {
			t.Fatalf("Push #%d: %v", i, err)
		}
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}

func TestEngine_ConstantWindow(t *testing.T) {
	// 128 samples 10ms apart span 1270ms: the last one completes the window.
	e := NewEngine(1270, 0, DefaultThresholds())
	results := feed(t, e, constant(128, 9.8), 0, 10)

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if res.SampleCount != 128 {
		t.Errorf("SampleCount = %d, want 128", res.SampleCount)
	}
	if res.Metrics.DH != 0 {
		t.Errorf("DH = %v, want 0", res.Metrics.DH)
	}
	if res.Metrics.KappaSigma != 0 {
		t.Errorf("KappaSigma = %v, want 0", res.Metrics.KappaSigma)
	}
	if res.Label != types.LabelPhi {
		t.Errorf("Label = %q, want phi", res.Label)
	}
	if res.EVeto {
		t.Error("EVeto = true for a constant window")
	}
}

func TestEngine_SingleToneIsQ(t *testing.T) {
	e := NewEngine(1270, 0, DefaultThresholds())
	results := feed(t, e, sinusoid(128, 40, 5, 100), 0, 10)

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	m := results[0].Metrics
	if m.DH >= -0.4 || m.LI <= 0.85 || m.KappaSigma > 1 {
		t.Fatalf("metrics %+v do not pass the strict gate", m)
	}
	if results[0].Label != types.LabelQ {
		t.Errorf("Label = %q, want q", results[0].Label)
	}
	if !results[0].EVeto {
		t.Error("EVeto = false, want true")
	}
}

func TestEngine_SameWindowTwiceIsIdentical(t *testing.T) {
	e := NewEngine(1270, 0, DefaultThresholds())
	mags := sinusoid(128, 13, 1.5, 9.8)
	mags[60] += 3 // make the window less trivial

	first := feed(t, e, mags, 0, 10)
	// Second pass: different timestamps, same magnitudes. The clock restarted
	// at 1270, so 128 samples 9.95ms apart complete the next window exactly.
	second := feed(t, e, mags, 1270+9.95, 9.95)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("got %d and %d results, want 1 and 1", len(first), len(second))
	}
	if first[0].Metrics != second[0].Metrics {
		t.Errorf("metrics differ between identical windows:\n first  %+v\n second %+v",
			first[0].Metrics, second[0].Metrics)
	}
	if first[0].SampleCount != second[0].SampleCount {
		t.Errorf("SampleCount %d vs %d", first[0].SampleCount, second[0].SampleCount)
	}
}

func TestEngine_InvalidSamplesAreDropped(t *testing.T) {
	e := NewEngine(100, 0, DefaultThresholds())
	bad := []Sample{
		{Magnitude: math.NaN(), Timestamp: 0},
		{Magnitude: math.Inf(1), Timestamp: 0},
		{Magnitude: -1, Timestamp: 0},
		{Magnitude: 9.8, Timestamp: math.NaN()},
		{Magnitude: 9.8, Timestamp: math.Inf(-1)},
	}
	for _, s := range bad {
		if _, err := e.Push(s); !errors.Is(err, ErrInvalidSample) {
			t.Errorf("Push(%+v) error = %v, want ErrInvalidSample", s, err)
		}
	}
	if n := e.acc.Len(); n != 0 {
		t.Fatalf("accumulator holds %d samples after invalid pushes, want 0", n)
	}

	// The clock has not started: the first valid sample starts it.
	res, err := e.Push(Sample{Magnitude: 9.8, Timestamp: 5000})
	if err != nil || res != nil {
		t.Fatalf("first valid Push = (%v, %v), want (nil, nil)", res, err)
	}
}

func TestEngine_FlushEmpty(t *testing.T) {
	e := NewEngine(1000, 0, DefaultThresholds())
	if _, err := e.Flush(); !errors.Is(err, ErrEmptyWindow) {
		t.Errorf("Flush on empty engine error = %v, want ErrEmptyWindow", err)
	}
}

func TestEngine_FlushPartialWindow(t *testing.T) {
	e := NewEngine(10000, 0, DefaultThresholds())
	feed(t, e, constant(20, 1), 0, 10)

	res, err := e.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if res.SampleCount != 20 {
		t.Errorf("SampleCount = %d, want 20", res.SampleCount)
	}
}

func TestEngine_SetThresholdsAndInterval(t *testing.T) {
	e := NewEngine(1000, 0, DefaultThresholds())

	if e.SetInterval(-5) {
		t.Error("SetInterval(-5) accepted")
	}
	if e.Interval() != 1000 {
		t.Errorf("Interval = %d, want 1000", e.Interval())
	}

	strict := DefaultThresholds()
	strict.LockingStrict = 0.99
	e.SetThresholds(strict)

	results := feed(t, e, sinusoid(101, 40, 5, 100), 0, 10)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Label == types.LabelQ {
		t.Errorf("Label = q with locking_strict 0.99 (LI %.4f)", results[0].Metrics.LI)
	}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name string
		m    types.Metrics
		want types.Derived
	}{
		{
			name: "locked tone",
			m:    types.Metrics{DH: -1, LI: 1, KappaSigma: 0.1},
			want: types.Derived{R: 1, RMSESL: 0.02, TC: 0.5*0.08 + (-0.5)*-0.04},
		},
		{
			name: "rmse capped",
			m:    types.Metrics{DH: 0, LI: 0, KappaSigma: 4},
			want: types.Derived{R: 0.8, RMSESL: 0.3, TC: -0.5*0.08 + 0.5*-0.04},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Derive(tc.m)
			if !almostEqual(got.R, tc.want.R, 1e-12) ||
				!almostEqual(got.RMSESL, tc.want.RMSESL, 1e-12) ||
				!almostEqual(got.TC, tc.want.TC, 1e-12) {
				t.Errorf("Derive(%+v) = %+v, want %+v", tc.m, got, tc.want)
			}
		})
	}
}
