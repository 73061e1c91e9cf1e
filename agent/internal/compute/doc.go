// Package compute derives coherence metrics from raw accelerometer
// magnitudes and classifies each window.
//
// window.go provides the Accumulator, which buffers magnitudes and emits a
// window once the configured interval has elapsed on sample timestamps.
//
// spectral.go computes the spectral entropy deviation dH (direct DFT over
// the last 128 magnitudes) and the locking index LI. artifact.go computes
// kappaSigma, the gradient-to-amplitude ratio used to reject spikes.
//
// veto.go applies the E-Veto rule: Q when dH, LI and kappaSigma all pass the
// strict thresholds, borderline when two of three soft thresholds pass,
// phi otherwise.
//
// engine.go wires these together. Engine.Push accepts one sample and returns
// a Result whenever a window completes; Evaluate is the pure per-window path.
package compute
