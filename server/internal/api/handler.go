package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/relojcausal/relojcausal/server/internal/alerts"
	"github.com/relojcausal/relojcausal/server/internal/config"
	"github.com/relojcausal/relojcausal/server/internal/metrics"
	"github.com/relojcausal/relojcausal/server/internal/settings"
	"github.com/relojcausal/relojcausal/server/internal/store"
	"github.com/relojcausal/relojcausal/server/internal/summary"
)

// Deps are the collaborators the REST API reads from and writes to.
type Deps struct {
	Store    *store.Store
	Settings *settings.Holder
	Alerts   *alerts.Engine
	Metrics  *metrics.Metrics

	// Ingest serves POST /api/reports (normally a *receiver.Receiver).
	Ingest http.Handler

	// RequireKey guards the write routes. Nil means no authentication.
	RequireKey func(http.Handler) http.Handler

	Retention config.StoreConfig
	Query     config.QueryConfig
}

// Handler serves the dashboard REST API.
type Handler struct {
	deps Deps
	now  func() time.Time
}

// New creates a Handler over d.
func New(d Deps) *Handler {
	if d.RequireKey == nil {
		d.RequireKey = func(h http.Handler) http.Handler { return h }
	}
	return &Handler{deps: d, now: time.Now}
}

// Router returns a router with every /api route registered. Callers may add
// further routes (/metrics, /ws/stream) to it.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})

	m := h.deps.Metrics
	guard := h.deps.RequireKey

	r.Handle("/api/reports", m.WrapHandler("dashboard", http.HandlerFunc(h.dashboard))).Methods(http.MethodGet)
	if h.deps.Ingest != nil {
		r.Handle("/api/reports", m.WrapHandler("ingest", guard(h.deps.Ingest))).Methods(http.MethodPost)
	}
	r.Handle("/api/reports", m.WrapHandler("reset", guard(http.HandlerFunc(h.reset)))).Methods(http.MethodDelete)
	r.Handle("/api/query", m.WrapHandler("query", http.HandlerFunc(h.query))).Methods(http.MethodGet)
	r.Handle("/api/config", m.WrapHandler("config", http.HandlerFunc(h.getConfig))).Methods(http.MethodGet)
	r.Handle("/api/config", m.WrapHandler("config_update", guard(http.HandlerFunc(h.updateConfig)))).Methods(http.MethodPost)
	r.Handle("/api/alerts", m.WrapHandler("alerts", http.HandlerFunc(h.alerts))).Methods(http.MethodGet)
	r.Handle("/api/diagnostics", m.WrapHandler("diagnostics", http.HandlerFunc(h.diagnostics))).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	return r
}

// Dashboard builds the GET /api/reports payload. The WebSocket hub pushes
// the same document.
func (h *Handler) Dashboard() summary.Dashboard {
	return summary.BuildDashboard(
		h.deps.Store.All(),
		h.deps.Retention.History,
		summary.DisplayThresholds(h.deps.Query),
		h.now(),
	)
}

// --- route handlers ---------------------------------------------------------

// dashboard returns GET /api/reports: counts, means, latest reports, alert level.
func (h *Handler) dashboard(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.Dashboard())
}

// reset handles DELETE /api/reports and drops every buffered report.
func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	n := h.deps.Store.Len()
	h.deps.Store.Reset()
	h.deps.Metrics.SetStoreSize(0)
	slog.Info("api: report buffer reset", "cleared", n, "remote", r.RemoteAddr)
	jsonResp(w, http.StatusOK, ResetResponse{OK: true, Cleared: n})
}

// query returns GET /api/query: aggregates over the configured look-back window.
func (h *Handler) query(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	window := h.deps.Retention.QueryWindow
	entries := h.deps.Store.Since(now.Add(-window))
	jsonResp(w, http.StatusOK, summary.BuildQuery(entries, h.deps.Query, window, now))
}

// getConfig returns GET /api/config, the current runtime settings.
func (h *Handler) getConfig(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, ConfigResponse{OK: true, Config: h.deps.Settings.Get()})
}

// updateConfig handles POST /api/config. Fields of the wrong JSON type are
// ignored; an unknown mode_hint is rejected.
func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var p settings.Patch
	if v, ok := body["mode_hint"].(string); ok {
		p.ModeHint = &v
	}
	if v, ok := body["report_interval_ms"].(float64); ok {
		ms := int64(v)
		p.ReportIntervalMs = &ms
	}
	if v, ok := body["alerts_enabled"].(bool); ok {
		p.AlertsEnabled = &v
	}

	cur, err := h.deps.Settings.Update(p)
	if errors.Is(err, settings.ErrInvalidModeHint) {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("api: runtime config updated",
		"mode_hint", cur.ModeHint,
		"report_interval_ms", cur.ReportIntervalMs,
		"alerts_enabled", cur.AlertsEnabled,
	)
	jsonResp(w, http.StatusOK, ConfigResponse{OK: true, Config: cur})
}

// alerts returns GET /api/alerts: firing alerts plus those resolved in the last hour.
func (h *Handler) alerts(w http.ResponseWriter, _ *http.Request) {
	list := []*alerts.Alert{}
	if h.deps.Alerts != nil {
		list = h.deps.Alerts.Active()
	}
	jsonResp(w, http.StatusOK, AlertsResponse{OK: true, Alerts: list})
}

// diagnostics returns GET /api/diagnostics: plain-language hints about the network.
func (h *Handler) diagnostics(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, DiagnosticsResponse{OK: true, Hints: computeDiagnostics(h.Dashboard())})
}

// health returns GET /healthz.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		OK:      true,
		Version: h.deps.Settings.Get().Version,
		Reports: h.deps.Store.Len(),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{OK: false, Error: msg})
}
