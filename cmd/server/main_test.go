package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/tuning"
)

func TestMetricsHandler_Exposition(t *testing.T) {
	tun := tuning.Defaults()
	sim, err := engine.New(tun, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	rec := httptest.NewRecorder()
	metricsHandler(sim, nil)(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	out := string(body)

	for _, want := range []string{
		"# TYPE foragearena_tick gauge",
		`foragearena_blocks{run="` + sim.RunID() + `",state="free"}`,
		`foragearena_window{run="` + sim.RunID() + `",metric="nest_block_drop"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "foragearena_index_queue_depth") {
		t.Fatalf("index metrics without an index")
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FA_TEST_FLAG", "yes")
	if !envBool("FA_TEST_FLAG", false) {
		t.Fatalf("yes should be true")
	}
	t.Setenv("FA_TEST_FLAG", "nonsense")
	if envBool("FA_TEST_FLAG", false) {
		t.Fatalf("unknown value should fall back to default")
	}
}

func TestStateEndpoint_LoopbackOnly(t *testing.T) {
	tun := tuning.Defaults()
	sim, err := engine.New(tun, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := sim.StepN(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	mux := newMux(sim, nil, log.New(io.Discard, "", 0))

	req := httptest.NewRequest("GET", "/v1/state", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback status=%d", rec.Code)
	}
	var resp struct {
		RunID  string `json:"run_id"`
		Tick   uint64 `json:"tick"`
		Robots []struct {
			ID int `json:"id"`
		} `json:"robots"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID != sim.RunID() || resp.Tick != 3 || len(resp.Robots) != tun.Robots.Count {
		t.Fatalf("resp=%+v", resp)
	}
}
