package compute

import (
	"math"
	"math/rand"
	"testing"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// constant returns n copies of v.
func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// sinusoid returns n samples of base + amp*sin(2*pi*cycles*i/n): exactly
// cycles periods over the window, so all energy lands in one DFT bin.
func sinusoid(n, cycles int, amp, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amp*math.Sin(2*math.Pi*float64(cycles)*float64(i)/float64(n))
	}
	return out
}

// noise returns n uniformly distributed magnitudes in [base, base+spread).
func noise(r *rand.Rand, n int, base, spread float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + spread*r.Float64()
	}
	return out
}

func TestAnalyze_ConstantWindowIsDegenerate(t *testing.T) {
	sp := Analyze(constant(128, 9.8))

	if sp.DH != 0 {
		t.Errorf("DH = %v, want 0", sp.DH)
	}
	if len(sp.Power) != 64 {
		t.Fatalf("len(Power) = %d, want 64", len(sp.Power))
	}
	for k, p := range sp.Power {
		if p != 0 {
			t.Fatalf("Power[%d] = %v, want 0 for a flat window", k, p)
		}
	}
}

func TestAnalyze_SingleToneIsOrdered(t *testing.T) {
	sp := Analyze(sinusoid(128, 40, 5, 100))

	if sp.DH >= -0.4 {
		t.Errorf("DH = %.4f, want < -0.4 for a pure tone", sp.DH)
	}
	if !almostEqual(sp.DH, -1, 1e-6) {
		t.Errorf("DH = %.8f, want ~-1 (all energy in one bin)", sp.DH)
	}

	peak := 0
	for k := range sp.Power {
		if sp.Power[k] > sp.Power[peak] {
			peak = k
		}
	}
	if peak != 40 {
		t.Errorf("peak bin = %d, want 40", peak)
	}
}

func TestAnalyze_BoundedForRandomWindows(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := 2 + r.Intn(300)
		sp := Analyze(noise(r, n, r.Float64()*20, 1+r.Float64()*10))
		if sp.DH < -1 || sp.DH > 0 || math.IsNaN(sp.DH) {
			t.Fatalf("window %d (n=%d): DH = %v, want within [-1, 0]", i, n, sp.DH)
		}
	}
}

func TestAnalyze_UsesOnlyMostRecent128(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	tone := sinusoid(128, 9, 2, 10)
	long := append(noise(r, 300, 0, 50), tone...)

	a, b := Analyze(long), Analyze(tone)
	if a.DH != b.DH {
		t.Errorf("DH with history = %v, DH of last 128 = %v; want identical", a.DH, b.DH)
	}
	if len(a.Power) != len(b.Power) {
		t.Fatalf("len(Power) = %d, want %d", len(a.Power), len(b.Power))
	}
}

func TestAnalyze_SpectrumLength(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 1},
		{101, 50},
		{128, 64},
		{500, 64},
	}
	for _, tc := range tests {
		r := rand.New(rand.NewSource(int64(tc.n)))
		sp := Analyze(noise(r, tc.n, 5, 1))
		if len(sp.Power) != tc.want {
			t.Errorf("n=%d: len(Power) = %d, want %d", tc.n, len(sp.Power), tc.want)
		}
	}
}

func TestAnalyze_TooFewBinsDefaultsToZero(t *testing.T) {
	// Two or three samples give a single bin; log2(1) = 0 cannot normalize.
	for _, mags := range [][]float64{{1, 5}, {1, 5, 2}} {
		if sp := Analyze(mags); sp.DH != 0 {
			t.Errorf("Analyze(%v).DH = %v, want 0", mags, sp.DH)
		}
	}
}

func TestLockingIndex_ConstantWindow(t *testing.T) {
	mags := constant(128, 9.8)
	sp := Analyze(mags)
	li := LockingIndex(mags, sp.Power)

	// Zero relative noise gives liRaw = 1; an empty spectrum has no peak,
	// so sharpness falls back to 1.
	want := 0.5 + 0.5*math.Tanh(1.0/8)
	if !almostEqual(li, want, 1e-9) {
		t.Errorf("LI = %.10f, want %.10f", li, want)
	}
}

func TestLockingIndex_SharpStableTone(t *testing.T) {
	mags := sinusoid(128, 40, 5, 100)
	sp := Analyze(mags)
	li := LockingIndex(mags, sp.Power)

	// noise = (5/sqrt2)/100; Q = 40/2 = 20.
	liRaw := 1 / (1 + 5/math.Sqrt2/100)
	want := liRaw * (0.5 + 0.5*math.Tanh(20.0/8))
	if !almostEqual(li, want, 1e-4) {
		t.Errorf("LI = %.6f, want %.6f", li, want)
	}
	if li <= 0.85 {
		t.Errorf("LI = %.4f, want > 0.85", li)
	}
}

func TestLockingIndex_NoisyWindowIsLow(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	mags := noise(r, 128, 0, 1)
	sp := Analyze(mags)
	// std/mean of U[0,1) is ~0.58, capping liRaw near 0.63.
	if li := LockingIndex(mags, sp.Power); li > 0.7 {
		t.Errorf("LI = %.4f for uniform noise in [0, 1), want <= 0.7", li)
	}
}

func TestLockingIndex_Bounds(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		mags := noise(r, 1+r.Intn(200), r.Float64()*3, r.Float64()*30)
		li := LockingIndex(mags, Analyze(mags).Power)
		if li < 0 || li > 1 || math.IsNaN(li) {
			t.Fatalf("LI = %v, want within [0, 1]", li)
		}
	}
	if li := LockingIndex(nil, nil); li != 0 {
		t.Errorf("LockingIndex(nil) = %v, want 0", li)
	}
}

func TestSharpness(t *testing.T) {
	tests := []struct {
		name  string
		power []float64
		want  float64
	}{
		{"empty", nil, 1},
		{"dc only", []float64{5}, 1},
		{"all zero", []float64{0, 0, 0, 0}, 1},
		// Peak at 2, neighbours below 10/e on both sides: bw = 3-1 = 2, Q = 2/2.
		{"narrow peak", []float64{0, 1, 10, 1, 0, 0, 0, 0}, 1},
		// Peak at 4 of 8 with a wide shoulder: left = 1, right = 7, bw = 6.
		{"wide peak", []float64{0, 0, 5, 8, 10, 9, 6, 0}, 4.0 / 6.0},
		// Peak at the last bin never drops below on the right: right = peak.
		{"edge peak", []float64{0, 0, 0, 1, 10}, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sharpness(tc.power); !almostEqual(got, tc.want, 1e-12) {
				t.Errorf("sharpness(%v) = %v, want %v", tc.power, got, tc.want)
			}
		})
	}
}
