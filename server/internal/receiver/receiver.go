package receiver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/relvacode/iso8601"

	"github.com/relojcausal/relojcausal/pkg/types"
	"github.com/relojcausal/relojcausal/server/internal/metrics"
	"github.com/relojcausal/relojcausal/server/internal/store"
	"github.com/relojcausal/relojcausal/server/internal/summary"
)

// TimestampLayout is the normalised report timestamp: UTC, millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Defaults applied to reports that omit their origin.
const (
	DefaultNodeID = "anon"
	DefaultRegion = "unknown"
)

const maxBodyBytes = 1 << 20

// Evaluator is notified with the refreshed summary after each stored report.
// *alerts.Engine satisfies it.
type Evaluator interface {
	Evaluate(summary.Dashboard)
}

// Options wires the optional collaborators of a Receiver.
type Options struct {
	// Alerts is evaluated after every stored report while AlertsEnabled
	// returns true. Both may be nil.
	Alerts        Evaluator
	AlertsEnabled func() bool

	Metrics *metrics.Metrics

	// History and Thresholds shape the summary handed to Alerts.
	History    int
	Thresholds summary.Thresholds
}

// Ack is the response body of a successful ingest.
type Ack struct {
	OK    bool        `json:"ok"`
	ID    string      `json:"id"`
	Class types.Label `json:"class"`
	TS    string      `json:"ts"`
}

// Receiver serves POST /api/reports. It normalises and validates each
// incoming report and stores it in the report buffer.
type Receiver struct {
	store *store.Store
	opts  Options
	now   func() time.Time
	newID func() string
}

// New creates a Receiver that writes accepted reports to st.
func New(st *store.Store, opts Options) *Receiver {
	return &Receiver{
		store: st,
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// ServeHTTP handles one report. Authentication, when enabled, is enforced
// by middleware before this is called.
func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		reply(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	var rep types.Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&rep); err != nil {
		rc.opts.Metrics.ReportRejected("bad_json")
		slog.Debug("receiver: undecodable report", "remote", r.RemoteAddr, "err", err)
		reply(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}

	rc.normalize(&rep)
	if err := rep.Validate(); err != nil {
		rc.opts.Metrics.ReportRejected("invalid")
		slog.Debug("receiver: report rejected", "node_id", rep.NodeID, "err", err)
		reply(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	rep.ID = rc.newID()
	rc.store.Add(rep)
	rc.opts.Metrics.ReportIngested(string(rep.Label))
	rc.opts.Metrics.SetStoreSize(rc.store.Len())

	slog.Debug("receiver: report stored",
		"id", rep.ID,
		"node_id", rep.NodeID,
		"class", rep.Label,
		"li", rep.Metrics.LI,
		"dh", rep.Metrics.DH,
		"kappa_sigma", rep.Metrics.KappaSigma,
	)

	rc.evaluate()
	reply(w, http.StatusOK, Ack{OK: true, ID: rep.ID, Class: rep.Label, TS: rep.Timestamp})
}

// normalize fills defaulted fields and rewrites ts to TimestampLayout.
// A missing or unparseable ts is replaced with the receive time.
func (rc *Receiver) normalize(rep *types.Report) {
	rep.NodeID = strings.TrimSpace(rep.NodeID)
	if rep.NodeID == "" {
		rep.NodeID = DefaultNodeID
	}
	rep.Region = strings.TrimSpace(rep.Region)
	if rep.Region == "" {
		rep.Region = DefaultRegion
	}
	rep.Label = types.Label(strings.ToLower(strings.TrimSpace(string(rep.Label))))

	ts := rc.now()
	if rep.Timestamp != "" {
		if parsed, err := iso8601.ParseString(rep.Timestamp); err == nil {
			ts = parsed
		}
	}
	rep.Timestamp = ts.UTC().Format(TimestampLayout)
}

func (rc *Receiver) evaluate() {
	if rc.opts.Alerts == nil {
		return
	}
	if rc.opts.AlertsEnabled != nil && !rc.opts.AlertsEnabled() {
		return
	}
	d := summary.BuildDashboard(rc.store.All(), rc.opts.History, rc.opts.Thresholds, rc.now())
	rc.opts.Alerts.Evaluate(d)
}

func errorBody(msg string) map[string]any {
	return map[string]any{"ok": false, "error": msg}
}

func reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
