package compute

import "math"

// MaxSpectralWindow is the number of most recent magnitudes used for the
// frequency transform.
const MaxSpectralWindow = 128

// liEpsilon keeps the relative-noise ratio finite for a zero-mean window.
const liEpsilon = 1e-6

// Spectrum is the output of Analyze.
type Spectrum struct {
	// DH is the normalized spectral entropy minus one, in [-1, 0].
	DH float64
	// Power holds the unnormalized power per bin, floor(M/2) bins.
	Power []float64
}

// Analyze estimates the spectral entropy deviation of the most recent
// MaxSpectralWindow magnitudes using a direct DFT. A window whose
// DC-removed signal carries no power yields DH = 0.
func Analyze(magnitudes []float64) Spectrum {
	n := len(magnitudes)
	if n == 0 {
		return Spectrum{}
	}

	m := n
	if m > MaxSpectralWindow {
		m = MaxSpectralWindow
	}
	x := make([]float64, m)
	copy(x, magnitudes[n-m:])
	removeDC(x)

	k := m / 2
	power := make([]float64, k)
	for bin := 0; bin < k; bin++ {
		var re, im float64
		for i, v := range x {
			angle := -2 * math.Pi * float64(bin) * float64(i) / float64(m)
			re += v * math.Cos(angle)
			im += v * math.Sin(angle)
		}
		power[bin] = re*re + im*im
	}

	var total float64
	for _, p := range power {
		total += p
	}
	if !(total > 0) || k < 2 {
		return Spectrum{DH: 0, Power: power}
	}

	var h float64
	for _, p := range power {
		if p <= 0 {
			continue
		}
		pk := p / total
		h -= pk * math.Log2(pk)
	}

	dh := h/math.Log2(float64(k)) - 1.0
	return Spectrum{DH: clamp(dh, -1, 0), Power: power}
}

// removeDC subtracts the mean from x in place. A constant window becomes
// exactly zero rather than a residue of rounding error.
func removeDC(x []float64) {
	flat := true
	var sum float64
	for _, v := range x {
		sum += v
		if v != x[0] {
			flat = false
		}
	}
	if flat {
		for i := range x {
			x[i] = 0
		}
		return
	}
	mean := sum / float64(len(x))
	for i := range x {
		x[i] -= mean
	}
}

// LockingIndex scores amplitude stability and spectral peak sharpness of a
// window in [0, 1]. power is the spectrum returned by Analyze for the same
// magnitudes.
func LockingIndex(magnitudes, power []float64) float64 {
	n := len(magnitudes)
	if n == 0 {
		return 0
	}

	mean, std := meanStd(magnitudes)
	noise := std / (math.Abs(mean) + liEpsilon)
	liRaw := 1 / (1 + noise)

	qNorm := math.Tanh(sharpness(power) / 8)
	li := liRaw * (0.5 + 0.5*qNorm)
	if math.IsNaN(li) {
		return 0
	}
	return clamp(li, 0, 1)
}

// sharpness returns the quality factor of the dominant non-DC spectral peak:
// peak frequency over the bandwidth between the points where power falls
// below peak/e. It returns 1 when there is no usable peak.
func sharpness(power []float64) float64 {
	length := len(power)
	if length < 2 {
		return 1
	}

	peak := 1
	maxVal := math.Inf(-1)
	for k := 1; k < length; k++ {
		if power[k] > maxVal {
			maxVal = power[k]
			peak = k
		}
	}
	if !(maxVal > 0) {
		return 1
	}

	threshold := maxVal / math.E
	left, right := peak, peak
	for k := peak; k >= 0; k-- {
		if power[k] < threshold {
			left = k
			break
		}
	}
	for k := peak; k < length; k++ {
		if power[k] < threshold {
			right = k
			break
		}
	}

	bandwidth := math.Max(1, float64(right-left))
	fPeak := float64(peak) / float64(length)
	if fPeak <= 0 {
		return 1
	}
	return fPeak / (bandwidth / float64(length))
}

// meanStd returns the mean and population standard deviation of xs.
func meanStd(xs []float64) (mean, std float64) {
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))

	var ss float64
	for _, v := range xs {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
