package receiver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/relojcausal/relojcausal/pkg/types"
	"github.com/relojcausal/relojcausal/server/internal/store"
	"github.com/relojcausal/relojcausal/server/internal/summary"
)

var fixedNow = time.Date(2025, 3, 4, 11, 6, 7, 890e6, time.UTC)

type captureEvaluator struct{ calls []summary.Dashboard }

func (c *captureEvaluator) Evaluate(d summary.Dashboard) { c.calls = append(c.calls, d) }

func newReceiver(t *testing.T, opts Options) (*Receiver, *store.Store) {
	t.Helper()
	st := store.New(10)
	rc := New(st, opts)
	rc.now = func() time.Time { return fixedNow }
	rc.newID = func() string { return "id-1" }
	return rc, st
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec, out
}

func TestIngest_Accepts(t *testing.T) {
	rc, st := newReceiver(t, Options{})
	body := `{"node_id":"n1","region":"mx","metrics":{"dh":-0.6,"li":0.95,"kappa_sigma":0.4},
		"class":"q","ts":"2025-03-04T05:06:07.5-06:00","meta":{"kappa_sigma":0.4,"n_samples":128}}`
	rec, out := post(t, rc, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	if out["ok"] != true || out["id"] != "id-1" || out["class"] != "q" {
		t.Errorf("ack: got %v", out)
	}
	if out["ts"] != "2025-03-04T11:06:07.500Z" {
		t.Errorf("ts: got %v, want 2025-03-04T11:06:07.500Z", out["ts"])
	}

	all := st.All()
	if len(all) != 1 {
		t.Fatalf("store: got %d entries, want 1", len(all))
	}
	got := all[0].Report
	if got.ID != "id-1" || got.NodeID != "n1" || got.Region != "mx" || got.Meta.SampleCount != 128 {
		t.Errorf("stored report: got %+v", got)
	}
}

func TestIngest_Defaults(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantTS string
	}{
		{"missing ts", `{"metrics":{"dh":-0.1,"li":0.5,"kappa_sigma":2},"class":"phi"}`, "2025-03-04T11:06:07.890Z"},
		{"invalid ts", `{"metrics":{},"class":"phi","ts":"yesterday"}`, "2025-03-04T11:06:07.890Z"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rc, st := newReceiver(t, Options{})
			rec, out := post(t, rc, tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
			}
			if out["ts"] != tc.wantTS {
				t.Errorf("ts: got %v, want %s", out["ts"], tc.wantTS)
			}
			r := st.All()[0].Report
			if r.NodeID != DefaultNodeID || r.Region != DefaultRegion {
				t.Errorf("defaults: node=%q region=%q", r.NodeID, r.Region)
			}
		})
	}
}

func TestIngest_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"unknown class", `{"metrics":{},"class":"psi"}`},
		{"missing class", `{"metrics":{"li":0.5}}`},
		{"negative sample count", `{"metrics":{},"class":"q","meta":{"n_samples":-1}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rc, st := newReceiver(t, Options{})
			rec, out := post(t, rc, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rec.Code)
			}
			if out["ok"] != false || out["error"] == "" {
				t.Errorf("error body: got %v", out)
			}
			if st.Len() != 0 {
				t.Errorf("rejected report was stored")
			}
		})
	}
}

func TestIngest_ClassCaseInsensitive(t *testing.T) {
	rc, _ := newReceiver(t, Options{})
	rec, out := post(t, rc, `{"metrics":{},"class":" Borderline "}`)
	if rec.Code != http.StatusOK || out["class"] != string(types.LabelBorderline) {
		t.Errorf("got %d %v", rec.Code, out)
	}
}

func TestIngest_MethodNotAllowed(t *testing.T) {
	rc, _ := newReceiver(t, Options{})
	req := httptest.NewRequest(http.MethodPut, "/api/reports", nil)
	rec := httptest.NewRecorder()
	rc.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rec.Code)
	}
}

func TestIngest_EvaluatesAlerts(t *testing.T) {
	ev := &captureEvaluator{}
	enabled := true
	rc, _ := newReceiver(t, Options{
		Alerts:        ev,
		AlertsEnabled: func() bool { return enabled },
		History:       5,
	})
	body := `{"node_id":"n1","metrics":{"dh":-0.6,"li":0.95},"class":"q"}`

	post(t, rc, body)
	post(t, rc, body)
	if len(ev.calls) != 2 {
		t.Fatalf("evaluations: got %d, want 2", len(ev.calls))
	}
	if d := ev.calls[1]; d.Stats.TotalEvents != 2 || d.Stats.Counts.Q != 2 {
		t.Errorf("summary: got %+v", d.Stats)
	}

	enabled = false
	post(t, rc, body)
	if len(ev.calls) != 2 {
		t.Errorf("evaluated while alerts were disabled")
	}
}
