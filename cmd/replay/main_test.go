package main

import (
	"context"
	"path/filepath"
	"testing"

	persistlog "foragearena.ai/internal/persistence/log"
	"foragearena.ai/internal/persistence/snapshot"
	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/tuning"
)

func recordRun(t *testing.T, tune tuning.Tuning, ticks int) (string, *engine.Sim) {
	t.Helper()
	dir := t.TempDir()
	sim, err := engine.New(tune, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	tl := persistlog.NewTickLogger(dir)
	sim.SetTickLogger(tl)
	if err := sim.StepN(context.Background(), ticks); err != nil {
		t.Fatalf("StepN: %v", err)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return filepath.Join(dir, "ticks"), sim
}

func TestReplayTicks_VerifiesDeterministicRun(t *testing.T) {
	tune := tuning.Defaults()
	tune.Sim.Deterministic = true
	dir, _ := recordRun(t, tune, 80)

	checked, err := replayTicks(dir, tune, 0)
	if err != nil {
		t.Fatalf("replayTicks: %v", err)
	}
	if checked != 80 {
		t.Fatalf("checked=%d", checked)
	}

	checked, err = replayTicks(dir, tune, 19)
	if err != nil || checked != 20 {
		t.Fatalf("checked=%d err=%v", checked, err)
	}
}

func TestReplayTicks_DetectsSeedMismatch(t *testing.T) {
	tune := tuning.Defaults()
	tune.Sim.Deterministic = true
	dir, _ := recordRun(t, tune, 10)

	tune.Sim.Seed++
	if _, err := replayTicks(dir, tune, 0); err == nil {
		t.Fatalf("expected digest mismatch")
	}
}

func TestReplayTicks_RejectsNonDeterministicLog(t *testing.T) {
	tune := tuning.Defaults()
	tune.Sim.Deterministic = false
	dir, _ := recordRun(t, tune, 3)
	if _, err := replayTicks(dir, tune, 0); err == nil {
		t.Fatalf("expected missing digest error")
	}
}

func TestInspectSnapshot(t *testing.T) {
	tune := tuning.Defaults()
	_, sim := recordRun(t, tune, 30)
	path := filepath.Join(t.TempDir(), snapshot.FileName(29))
	if err := snapshot.WriteSnapshot(path, sim.ExportSnapshot(29)); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := inspectSnapshot(path, tune); err != nil {
		t.Fatalf("inspectSnapshot: %v", err)
	}
}
