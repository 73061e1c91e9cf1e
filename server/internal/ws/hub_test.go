package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relojcausal/relojcausal/pkg/types"
	"github.com/relojcausal/relojcausal/server/internal/store"
	"github.com/relojcausal/relojcausal/server/internal/summary"
	wsHub "github.com/relojcausal/relojcausal/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func newStore(reports ...types.Report) *store.Store {
	st := store.New(100)
	for _, r := range reports {
		st.Add(r)
	}
	return st
}

func report(node string, label types.Label) types.Report {
	return types.Report{NodeID: node, Label: label, Metrics: types.Metrics{LI: 0.5, DH: -0.2}}
}

func builder(st *store.Store) func() summary.Dashboard {
	return func() summary.Dashboard {
		return summary.BuildDashboard(st.All(), 50, summary.Thresholds{}, time.Now())
	}
}

type gauge struct {
	mu   sync.Mutex
	last int
}

func (g *gauge) SetWSClients(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = n
}

func (g *gauge) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
func startHub(t *testing.T, st *store.Store, origins ...string) (wsURL string, hub *wsHub.Hub, g *gauge, cancel func()) {
	t.Helper()

	g = &gauge{}
	hub = wsHub.New(builder(st), testInterval, origins, g)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, g, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("timed out waiting for %s", what)
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateDashboard(t *testing.T) {
	wsURL, _, _, _ := startHub(t, newStore(report("a", types.LabelQ), report("b", types.LabelPhi)))

	m := readMessage(t, dial(t, wsURL))
	if m.Event != "dashboard" {
		t.Errorf("event: got %q, want dashboard", m.Event)
	}
	if !m.Data.OK || m.Data.Stats.TotalEvents != 2 || m.Data.ActiveNodes != 2 {
		t.Errorf("data: got %+v", m.Data)
	}
	if m.Data.GeneratedAt == "" {
		t.Error("generated_at: missing")
	}
}

func TestHub_EmptyStore(t *testing.T) {
	wsURL, _, _, _ := startHub(t, newStore())
	m := readMessage(t, dial(t, wsURL))
	if m.Data.Stats.TotalEvents != 0 || len(m.Data.Latest) != 0 {
		t.Errorf("data: got %+v", m.Data)
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, g, _ := startHub(t, newStore())

	for i := 0; i < 3; i++ {
		readMessage(t, dial(t, wsURL)) // consume initial message
	}
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
	waitFor(t, "gauge = 3", func() bool { return g.get() == 3 })
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _, _ := startHub(t, newStore())

	conn := dial(t, wsURL)
	readMessage(t, conn)
	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	waitFor(t, "client removal", func() bool { return hub.Count() == 0 })
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := newStore()
	wsURL, _, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate dashboard (empty store)

	st.Add(report("new-node", types.LabelQ))

	// A later tick must carry the new report.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := readMessage(t, conn)
		if m.Data.Stats.TotalEvents == 1 {
			if m.Data.Latest[0].NodeID != "new-node" {
				t.Errorf("node_id: got %q, want new-node", m.Data.Latest[0].NodeID)
			}
			return
		}
	}
	t.Fatal("no broadcast carried the new report")
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, g, cancel := startHub(t, newStore())

	readMessage(t, dial(t, wsURL))
	cancel()

	waitFor(t, "hub shutdown", func() bool { return hub.Count() == 0 })
	waitFor(t, "gauge reset", func() bool { return g.get() == 0 })
}

func TestHub_OriginCheck(t *testing.T) {
	wsURL, _, _, _ := startHub(t, newStore(), "https://dash.example.com")

	hdr := http.Header{"Origin": []string{"https://evil.example.com"}}
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, hdr); err == nil {
		t.Error("dial from a foreign origin succeeded")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign origin: got %v, want 403", resp)
	}

	hdr.Set("Origin", "https://dash.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)
}

func TestHub_OriginCheck_Wildcard(t *testing.T) {
	wsURL, _, _, _ := startHub(t, newStore(), "*")

	hdr := http.Header{"Origin": []string{"https://dash.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("dial with wildcard origin list: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(builder(newStore()), testInterval, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers → 400
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
