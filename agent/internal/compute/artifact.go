package compute

import "math"

// KappaSigma returns the largest sample-to-sample jump divided by the
// largest absolute amplitude in the window. Values above 1 flag a
// discontinuity the signal's own amplitude cannot explain, which is more
// likely a sensor artifact than motion.
//
// Windows with fewer than two samples, or no amplitude, return 0.
func KappaSigma(magnitudes []float64) float64 {
	if len(magnitudes) < 2 {
		return 0
	}

	maxAmp := math.Abs(magnitudes[0])
	var maxGrad float64
	for i := 1; i < len(magnitudes); i++ {
		if g := math.Abs(magnitudes[i] - magnitudes[i-1]); g > maxGrad {
			maxGrad = g
		}
		if a := math.Abs(magnitudes[i]); a > maxAmp {
			maxAmp = a
		}
	}

	if !(maxAmp > 0) {
		return 0
	}
	return maxGrad / maxAmp
}
