package types

import (
	"fmt"
	"math"
	"slices"
)

// Label is the discrete class assigned to one analysed window.
type Label string

// The three window classes. LabelPhi is noise-like motion, LabelQ is a
// window that passed the strict E-Veto gate.
const (
	LabelPhi        Label = "phi"
	LabelBorderline Label = "borderline"
	LabelQ          Label = "q"
)

// Labels lists every valid Label in dashboard order.
var Labels = []Label{LabelPhi, LabelBorderline, LabelQ}

// Valid reports whether l is one of the three known labels.
func (l Label) Valid() bool {
	return slices.Contains(Labels, l)
}

// E-Veto verdicts carried in Meta.EVetoClass.
const (
	EVetoQDrivenValid  = "q_driven_valid"
	EVetoPhiOrArtefact = "phi_or_artefact"
)

// Metrics are the three derived values computed once per window.
type Metrics struct {
	// DH is the spectral entropy deviation, in [-1, 0].
	DH float64 `json:"dh"`
	// LI is the locking index, in [0, 1].
	LI float64 `json:"li"`
	// KappaSigma is the gradient-to-amplitude artifact ratio, >= 0.
	KappaSigma float64 `json:"kappa_sigma"`
}

// Finite reports whether every metric is a finite number.
func (m Metrics) Finite() bool {
	return isFinite(m.DH) && isFinite(m.LI) && isFinite(m.KappaSigma)
}

// Meta carries per-window bookkeeping alongside the metrics.
type Meta struct {
	KappaSigma  float64 `json:"kappa_sigma"`
	SampleCount int     `json:"n_samples"`
	EVetoClass  string  `json:"eveto_class,omitempty"`
}

// Derived holds display-only values the dashboard charts next to the
// metrics. They never take part in classification.
type Derived struct {
	R      float64 `json:"r"`
	RMSESL float64 `json:"rmse_sl"`
	TC     float64 `json:"t_c"`
}

// Report is the normalized record produced for one completed window.
type Report struct {
	ID        string  `json:"id,omitempty"`
	NodeID    string  `json:"node_id"`
	Region    string  `json:"region,omitempty"`
	Metrics   Metrics `json:"metrics"`
	Label     Label   `json:"class"`
	Timestamp string  `json:"ts"` // ISO-8601
	Meta      Meta    `json:"meta"`
	Derived   Derived `json:"derived"`
}

// Validate checks the structural constraints the server enforces on ingest.
func (r *Report) Validate() error {
	if !r.Label.Valid() {
		return fmt.Errorf("unknown class %q", r.Label)
	}
	if !r.Metrics.Finite() {
		return fmt.Errorf("metrics must be finite")
	}
	if !isFinite(r.Derived.R) || !isFinite(r.Derived.RMSESL) || !isFinite(r.Derived.TC) {
		return fmt.Errorf("derived values must be finite")
	}
	if r.Meta.SampleCount < 0 {
		return fmt.Errorf("meta.n_samples must not be negative")
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
