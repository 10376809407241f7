package arenatest

import (
	"path/filepath"
	"testing"

	"foragearena.ai/internal/persistence/snapshot"
)

func TestSnapshotRoundTrip_ResumeFromDisk(t *testing.T) {
	h := NewHarness(t, Tuning())
	h.StepFor(120)

	snap := h.Snapshot()
	path := filepath.Join(t.TempDir(), snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}

	h2 := h.Resume(loaded)
	if h2.S.CurrentTick() != h.S.CurrentTick() {
		t.Fatalf("resumed at %d want %d", h2.S.CurrentTick(), h.S.CurrentTick())
	}
	if h2.S.RunID() != h.S.RunID() {
		t.Fatalf("run id changed across resume")
	}

	before := h.S.Arena().Caches()
	after := h2.S.Arena().Caches()
	if len(before) != len(after) {
		t.Fatalf("caches %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].CenterCell != after[i].CenterCell || before[i].Count() != after[i].Count() {
			t.Fatalf("cache %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
	c1, c2 := h.Counts(), h2.Counts()
	if c2.Carried != 0 || c2.Free != c1.Free+c1.Carried || c2.Cached != c1.Cached {
		t.Fatalf("counts %+v -> %+v", c1, c2)
	}

	h2.StepFor(60)
	checkInvariants(t, h2)
	if h2.MapsSeen() == 0 {
		t.Fatalf("resumed observer saw no MAP")
	}
}
