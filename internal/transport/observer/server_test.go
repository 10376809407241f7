package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"foragearena.ai/internal/observerproto"
	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/tuning"
)

func newTestServer(t *testing.T) (*engine.Sim, *httptest.Server) {
	t.Helper()
	tun := tuning.Defaults()
	tun.Sim.MaxTicks = 0
	tun.Sim.TickRateHz = 50
	sim, err := engine.New(tun, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	mux := http.NewServeMux()
	NewServer(sim, nil).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return sim, srv
}

func TestBootstrapHandler(t *testing.T) {
	sim, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/observer/bootstrap")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.RunID != sim.RunID() || b.ProtocolVersion != observerproto.Version {
		t.Fatalf("bootstrap=%+v", b)
	}

	post, err := http.Post(srv.URL+"/observer/bootstrap", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d", post.StatusCode)
	}
}

func TestWSHandler_SubscribeThenMapAndTicks(t *testing.T) {
	sim, srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, Robots: true}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var sawMap, sawTick bool
	for i := 0; i < 20 && !(sawMap && sawTick); i++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch head.Type {
		case "MAP":
			sawMap = true
		case "TICK":
			if !sawMap {
				t.Fatalf("TICK before first MAP")
			}
			var tm observerproto.TickMsg
			_ = json.Unmarshal(msg, &tm)
			if len(tm.Robots) == 0 {
				t.Fatalf("subscribed to robots but TICK has none")
			}
			sawTick = true
		default:
			t.Fatalf("unexpected message type %q", head.Type)
		}
	}
	if !sawMap || !sawTick {
		t.Fatalf("map=%v tick=%v", sawMap, sawTick)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit")
	}
}

func TestWSHandler_RejectsNonSubscribe(t *testing.T) {
	_, srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]string{"type": "HELLO", "protocol_version": observerproto.Version}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"10.0.0.2:5000":  false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
