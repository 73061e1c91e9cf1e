package api

import (
	"fmt"
	"sort"

	"github.com/relojcausal/relojcausal/server/internal/summary"
)

// DiagnosticHint is one human-readable insight about the sensor network.
// The UI displays these as chips next to the charts; clicking one shows
// Detail.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip (≤ 5 words).
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// Cut-offs for the artifact hints, matching the agent's default
// artifact_strict / artifact_soft thresholds.
const (
	kappaWarn     = 1.0
	kappaCritical = 1.5
	orderedDH     = -0.4
	lockedLI      = 0.85
)

// computeDiagnostics derives human-readable diagnostic hints from the dashboard.
// Diagnostics are ordered: critical first, then warnings, then info.
func computeDiagnostics(d summary.Dashboard) []DiagnosticHint {
	var hints []DiagnosticHint

	// ── No data yet ──────────────────────────────────────────────────────────
	if d.Stats.TotalEvents == 0 {
		return append(hints, DiagnosticHint{
			Key:   "warming_up",
			Level: "info",
			Title: "Waiting for reports",
			Detail: "No agent has reported yet. Each agent sends one report per completed " +
				"window (every report_interval_ms, 5 seconds by default), so the first " +
				"numbers appear shortly after an agent starts. Check the agent logs if " +
				"nothing arrives.",
		})
	}

	// ── Motion artifacts ─────────────────────────────────────────────────────
	if k := d.Stats.Averages.KappaSigma; k != nil && *k > kappaWarn {
		v := *k
		level := "warning"
		if v > kappaCritical {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "artifacts",
			Level: level,
			Title: "Motion artifacts",
			Detail: fmt.Sprintf(
				"The mean gradient-to-amplitude ratio is %.2f. Values above %.1f mean the "+
					"signal is dominated by sharp jumps (taps, drops, loose mounting) rather "+
					"than physical oscillation. Windows like these are never labelled q.",
				v, kappaWarn,
			),
			Value: &v,
		})
	}

	// ── Coherent share ───────────────────────────────────────────────────────
	switch q := d.QRatio(); {
	case d.AlertLevel == summary.AlertWarning:
		hints = append(hints, DiagnosticHint{
			Key:   "coherent_burst",
			Level: "warning",
			Title: "Coherent burst",
			Detail: fmt.Sprintf(
				"%.0f%% of buffered windows passed the E-Veto, and the network means show "+
					"both strong spectral ordering and phase locking. This is the pattern the "+
					"warning level is designed to surface.",
				q*100,
			),
			Value: &q,
		})
	case q > 0.10:
		hints = append(hints, DiagnosticHint{
			Key:   "q_share",
			Level: "info",
			Title: fmt.Sprintf("%.0f%% q windows", q*100),
			Detail: "More than one window in ten passed the strict gate. Watch whether the " +
				"share keeps growing across several nodes.",
			Value: &q,
		})
	}

	// ── Spectral ordering and locking ────────────────────────────────────────
	if d.DHMean != nil && *d.DHMean < orderedDH {
		v := *d.DHMean
		hints = append(hints, DiagnosticHint{
			Key:   "ordered_spectrum",
			Level: "info",
			Title: "Ordered spectrum",
			Detail: fmt.Sprintf(
				"Mean entropy deviation is %.2f: energy is concentrated in few frequencies "+
					"across the network.", v),
			Value: &v,
		})
	}
	if d.LIMean != nil && *d.LIMean > lockedLI {
		v := *d.LIMean
		hints = append(hints, DiagnosticHint{
			Key:   "locked",
			Level: "info",
			Title: "Strong locking",
			Detail: fmt.Sprintf(
				"Mean locking index is %.2f: the dominant peak stands far above the rest "+
					"of the spectrum.", v),
			Value: &v,
		})
	}

	// ── Coverage ─────────────────────────────────────────────────────────────
	if d.ActiveNodes == 1 {
		n := float64(d.ActiveNodes)
		hints = append(hints, DiagnosticHint{
			Key:   "single_node",
			Level: "info",
			Title: "Single node",
			Detail: "Only one node is reporting. Network-wide ratios are then just that " +
				"node's history; add nodes to tell local effects from shared ones.",
			Value: &n,
		})
	}

	// ── All clear ────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		n := float64(d.Stats.TotalEvents)
		hints = append(hints, DiagnosticHint{
			Key:   "baseline",
			Level: "ok",
			Title: "Baseline",
			Detail: "Reports look like ordinary noise-like motion: no artifact pressure, " +
				"no unusual share of q windows.",
			Value: &n,
		})
	}

	sortByLevel(hints)
	return hints
}

// sortByLevel orders hints critical → warning → info → ok, keeping insertion
// order within a level.
func sortByLevel(hints []DiagnosticHint) {
	rank := map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}
	sort.SliceStable(hints, func(i, j int) bool {
		return rank[hints[i].Level] < rank[hints[j].Level]
	})
}
