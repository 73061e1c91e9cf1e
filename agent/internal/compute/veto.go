package compute

import (
	"fmt"
	"math"

	"github.com/relojcausal/relojcausal/pkg/types"
)

// Thresholds parameterise the E-Veto classifier. The strict set gates the Q
// label; the soft set scores the borderline distinction.
type Thresholds struct {
	// EntropyStrict: a window is ordered when DH < EntropyStrict.
	EntropyStrict float64 `yaml:"entropy_strict" json:"entropy_strict"`
	// EntropySoft: softly ordered when DH < EntropySoft.
	EntropySoft float64 `yaml:"entropy_soft" json:"entropy_soft"`
	// LockingStrict: locked when LI > LockingStrict.
	LockingStrict float64 `yaml:"locking_strict" json:"locking_strict"`
	// LockingSoft: softly locked when LI > LockingSoft.
	LockingSoft float64 `yaml:"locking_soft" json:"locking_soft"`
	// ArtifactStrict: physical when KappaSigma <= ArtifactStrict.
	ArtifactStrict float64 `yaml:"artifact_strict" json:"artifact_strict"`
	// ArtifactSoft: softly physical when KappaSigma <= ArtifactSoft.
	ArtifactSoft float64 `yaml:"artifact_soft" json:"artifact_soft"`
}

// DefaultThresholds returns the canonical E-Veto thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EntropyStrict:  -0.4,
		EntropySoft:    -0.2,
		LockingStrict:  0.85,
		LockingSoft:    0.7,
		ArtifactStrict: 1.0,
		ArtifactSoft:   1.5,
	}
}

// Validate checks that every threshold is finite and that each soft bound
// is no stricter than its strict counterpart.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"entropy_strict":  t.EntropyStrict,
		"entropy_soft":    t.EntropySoft,
		"locking_strict":  t.LockingStrict,
		"locking_soft":    t.LockingSoft,
		"artifact_strict": t.ArtifactStrict,
		"artifact_soft":   t.ArtifactSoft,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("thresholds.%s must be finite", name)
		}
	}
	if t.EntropySoft < t.EntropyStrict {
		return fmt.Errorf("thresholds.entropy_soft %.3f is stricter than entropy_strict %.3f",
			t.EntropySoft, t.EntropyStrict)
	}
	if t.LockingSoft > t.LockingStrict {
		return fmt.Errorf("thresholds.locking_soft %.3f is stricter than locking_strict %.3f",
			t.LockingSoft, t.LockingStrict)
	}
	if t.ArtifactSoft < t.ArtifactStrict {
		return fmt.Errorf("thresholds.artifact_soft %.3f is stricter than artifact_strict %.3f",
			t.ArtifactSoft, t.ArtifactStrict)
	}
	return nil
}

// EVeto reports whether m passes all three strict predicates. NaN fails
// every comparison, so a non-finite metric never passes.
func EVeto(m types.Metrics, t Thresholds) bool {
	ordered := m.DH < t.EntropyStrict
	locked := m.LI > t.LockingStrict
	physical := m.KappaSigma <= t.ArtifactStrict
	return ordered && locked && physical
}

// softScore counts how many of the relaxed predicates m satisfies.
func softScore(m types.Metrics, t Thresholds) int {
	var n int
	if m.DH < t.EntropySoft {
		n++
	}
	if m.LI > t.LockingSoft {
		n++
	}
	if m.KappaSigma <= t.ArtifactSoft {
		n++
	}
	return n
}

// Classify maps window metrics to a label: Q when the strict gate passes,
// otherwise borderline when at least two soft predicates hold, else phi.
func Classify(m types.Metrics, t Thresholds) types.Label {
	if EVeto(m, t) {
		return types.LabelQ
	}
	if softScore(m, t) >= 2 {
		return types.LabelBorderline
	}
	return types.LabelPhi
}
