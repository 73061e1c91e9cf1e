package summary

import (
	"time"

	"github.com/relojcausal/relojcausal/pkg/types"
	"github.com/relojcausal/relojcausal/server/internal/config"
	"github.com/relojcausal/relojcausal/server/internal/store"
)

// AlertLevel is the coarse network state shown on the dashboard.
type AlertLevel string

const (
	AlertNone    AlertLevel = "none"
	AlertWatch   AlertLevel = "watch"
	AlertWarning AlertLevel = "warning"
)

// Alert level cut-offs over the whole buffer.
const (
	watchQRatio   = 0.10
	warningQRatio = 0.25
	warningDH     = -0.5
	warningLI     = 0.9
)

// Counts holds the per-class report totals.
type Counts struct {
	Phi        int `json:"phi"`
	Borderline int `json:"borderline"`
	Q          int `json:"q"`
}

// Averages holds the buffer means. A nil field means there were no reports.
type Averages struct {
	LI         *float64 `json:"li"`
	R          *float64 `json:"r"`
	RMSESL     *float64 `json:"rmse_sl"`
	DH         *float64 `json:"dh"`
	TC         *float64 `json:"t_c"`
	KappaSigma *float64 `json:"kappa_sigma"`
}

// Stats groups totals, class counts and means.
type Stats struct {
	TotalEvents int      `json:"total_events"`
	Counts      Counts   `json:"counts"`
	Averages    Averages `json:"averages"`
}

// Thresholds are the reference lines the dashboard draws on its charts.
type Thresholds struct {
	LIMin   float64 `json:"li_min"`
	RMin    float64 `json:"r_min"`
	RMSEMax float64 `json:"rmse_max"`
	DHMax   float64 `json:"dh_max"`
}

// DisplayThresholds derives the chart reference lines from the query cut-offs.
func DisplayThresholds(q config.QueryConfig) Thresholds {
	return Thresholds{LIMin: q.LockingOK, RMin: 0.95, RMSEMax: 0.10, DHMax: q.EntropyOK}
}

// Dashboard is the payload of GET /api/reports and of every WebSocket push.
type Dashboard struct {
	OK           bool           `json:"ok"`
	Stats        Stats          `json:"stats"`
	Latest       []types.Report `json:"latest_raw"`
	Thresholds   Thresholds     `json:"thresholds"`
	ActiveNodes  int            `json:"active_nodes"`
	CachedEvents int            `json:"cached_events"`
	DHMean       *float64       `json:"dh_mean"`
	LIMean       *float64       `json:"li_mean"`
	AlertLevel   AlertLevel     `json:"alert_level"`
	GeneratedAt  string         `json:"generated_at"`
}

// QRatio is the share of Q-labelled reports, 0 when the buffer is empty.
func (d Dashboard) QRatio() float64 {
	if d.Stats.TotalEvents == 0 {
		return 0
	}
	return float64(d.Stats.Counts.Q) / float64(d.Stats.TotalEvents)
}

// BuildDashboard aggregates entries (oldest first). The newest history
// entries are returned verbatim in Latest.
func BuildDashboard(entries []store.Entry, history int, th Thresholds, now time.Time) Dashboard {
	d := Dashboard{
		OK:          true,
		Latest:      []types.Report{},
		Thresholds:  th,
		AlertLevel:  AlertNone,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	if len(entries) == 0 {
		return d
	}

	var li, r, rmse, dh, tc, kappa float64
	nodes := make(map[string]struct{})
	for _, e := range entries {
		rep := e.Report
		nodes[rep.NodeID] = struct{}{}
		li += rep.Metrics.LI
		dh += rep.Metrics.DH
		kappa += rep.Metrics.KappaSigma
		r += rep.Derived.R
		rmse += rep.Derived.RMSESL
		tc += rep.Derived.TC
		switch rep.Label {
		case types.LabelPhi:
			d.Stats.Counts.Phi++
		case types.LabelBorderline:
			d.Stats.Counts.Borderline++
		case types.LabelQ:
			d.Stats.Counts.Q++
		}
	}

	n := float64(len(entries))
	d.Stats.TotalEvents = len(entries)
	d.Stats.Averages = Averages{
		LI:         mean(li, n),
		R:          mean(r, n),
		RMSESL:     mean(rmse, n),
		DH:         mean(dh, n),
		TC:         mean(tc, n),
		KappaSigma: mean(kappa, n),
	}
	d.ActiveNodes = len(nodes)
	d.CachedEvents = len(entries)
	d.DHMean = d.Stats.Averages.DH
	d.LIMean = d.Stats.Averages.LI
	d.AlertLevel = alertLevel(d.QRatio(), *d.DHMean, *d.LIMean)

	if history > len(entries) {
		history = len(entries)
	}
	if history > 0 {
		tail := entries[len(entries)-history:]
		d.Latest = make([]types.Report, len(tail))
		for i, e := range tail {
			d.Latest[i] = e.Report
		}
	}
	return d
}

func alertLevel(qRatio, dhMean, liMean float64) AlertLevel {
	switch {
	case qRatio > warningQRatio && dhMean < warningDH && liMean > warningLI:
		return AlertWarning
	case qRatio > watchQRatio:
		return AlertWatch
	default:
		return AlertNone
	}
}

func mean(sum, n float64) *float64 {
	v := sum / n
	return &v
}

// Query is the payload of GET /api/query: aggregates over the recent window.
// Means and ratios are 0 when the window is empty.
type Query struct {
	Timestamp         int64   `json:"timestamp"` // unix ms
	WindowSeconds     float64 `json:"window_seconds"`
	ActiveNodes       int     `json:"active_nodes"`
	TotalEventsWindow int     `json:"total_events_window"`
	Counts            Counts  `json:"counts"`
	TCMean            float64 `json:"tc_mean"`
	LIMean            float64 `json:"li_mean"`
	RMean             float64 `json:"r_mean"`
	DHMean            float64 `json:"dh_mean"`
	KappaMean         float64 `json:"kappa_mean"`
	EntropyOKRatio    float64 `json:"entropy_ok_ratio"`
	LockingOKRatio    float64 `json:"locking_ok_ratio"`
}

// BuildQuery aggregates the entries received within window of now.
func BuildQuery(entries []store.Entry, cut config.QueryConfig, window time.Duration, now time.Time) Query {
	q := Query{Timestamp: now.UnixMilli(), WindowSeconds: window.Seconds()}
	since := now.Add(-window)

	nodes := make(map[string]struct{})
	var entropyOK, lockingOK int
	for _, e := range entries {
		if e.ReceivedAt.Before(since) {
			continue
		}
		rep := e.Report
		q.TotalEventsWindow++
		nodes[rep.NodeID] = struct{}{}
		q.TCMean += rep.Derived.TC
		q.LIMean += rep.Metrics.LI
		q.RMean += rep.Derived.R
		q.DHMean += rep.Metrics.DH
		q.KappaMean += rep.Metrics.KappaSigma
		if rep.Metrics.DH <= cut.EntropyOK {
			entropyOK++
		}
		if rep.Metrics.LI >= cut.LockingOK {
			lockingOK++
		}
		switch rep.Label {
		case types.LabelPhi:
			q.Counts.Phi++
		case types.LabelBorderline:
			q.Counts.Borderline++
		case types.LabelQ:
			q.Counts.Q++
		}
	}

	q.ActiveNodes = len(nodes)
	if n := float64(q.TotalEventsWindow); n > 0 {
		q.TCMean /= n
		q.LIMean /= n
		q.RMean /= n
		q.DHMean /= n
		q.KappaMean /= n
		q.EntropyOKRatio = float64(entropyOK) / n
		q.LockingOKRatio = float64(lockingOK) / n
	}
	return q
}
