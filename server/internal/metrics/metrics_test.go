package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

// value returns the value of the series of family name whose labels match.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	fams, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range fams {
		if f.GetName() != name {
			continue
		}
		for _, s := range f.GetMetric() {
			if !matches(s, labels) {
				continue
			}
			switch {
			case s.GetCounter() != nil:
				return s.GetCounter().GetValue()
			case s.GetGauge() != nil:
				return s.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

func matches(s *dto.Metric, labels map[string]string) bool {
	got := map[string]string{}
	for _, lp := range s.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestCounters(t *testing.T) {
	m := New()
	m.ReportIngested("q")
	m.ReportIngested("q")
	m.ReportIngested("phi")
	m.ReportRejected("non_finite")
	m.AlertFired("burst", "warning")
	m.WebhookError()

	if v := value(t, m, "relojcausal_reports_ingested_total", map[string]string{"class": "q"}); v != 2 {
		t.Errorf("ingested{q}: got %v, want 2", v)
	}
	if v := value(t, m, "relojcausal_reports_ingested_total", map[string]string{"class": "phi"}); v != 1 {
		t.Errorf("ingested{phi}: got %v, want 1", v)
	}
	if v := value(t, m, "relojcausal_reports_rejected_total", map[string]string{"reason": "non_finite"}); v != 1 {
		t.Errorf("rejected: got %v, want 1", v)
	}
	if v := value(t, m, "relojcausal_alerts_fired_total", map[string]string{"rule": "burst", "severity": "warning"}); v != 1 {
		t.Errorf("alerts fired: got %v, want 1", v)
	}
	if v := value(t, m, "relojcausal_webhook_errors_total", nil); v != 1 {
		t.Errorf("webhook errors: got %v, want 1", v)
	}
}

func TestGauges(t *testing.T) {
	m := New()
	m.SetStoreSize(42)
	m.SetWSClients(3)
	if v := value(t, m, "relojcausal_store_reports", nil); v != 42 {
		t.Errorf("store size: got %v, want 42", v)
	}
	if v := value(t, m, "relojcausal_ws_clients", nil); v != 3 {
		t.Errorf("ws clients: got %v, want 3", v)
	}
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	m.ReportIngested("q")
	m.ReportRejected("x")
	m.SetStoreSize(1)
	m.SetWSClients(1)
	m.AlertFired("a", "b")
	m.WebhookError()
	h := m.WrapHandler("/x", http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d", rec.Code)
	}
}

func TestWrapHandler_AndExposition(t *testing.T) {
	m := New()
	h := m.WrapHandler("/api/query", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/query", nil))

	if v := value(t, m, "relojcausal_http_requests_total", map[string]string{"route": "/api/query", "status": "418"}); v != 1 {
		t.Errorf("http requests: got %v, want 1", v)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "relojcausal_http_requests_total") {
		t.Errorf("exposition missing http counter:\n%s", body)
	}
}
