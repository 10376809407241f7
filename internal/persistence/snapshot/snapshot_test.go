package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/caches"
	"foragearena.ai/internal/sim/robots"
)

func sample(tick uint64) SnapshotV1 {
	return SnapshotV1{
		Header:     Header{RunID: "r1", Tick: tick},
		Seed:       7,
		Width:      12,
		Height:     8,
		Resolution: 0.5,
		CacheDim:   3,
		Arena: arena.State{
			Blocks: []arena.Block{
				{ID: 0, Pos: arena.Vec2{X: 1.25, Y: 1.25}, Cell: arena.Coord{X: 2, Y: 2}, State: arena.Free},
				{ID: 1, State: arena.Cached, Cache: 0},
				{ID: 2, State: arena.Cached, Cache: 0},
			},
			Caches: []arena.Cache{{
				ID:          0,
				Center:      arena.Vec2{X: 5.25, Y: 4.25},
				CenterCell:  arena.Coord{X: 10, Y: 8},
				Blocks:      []arena.BlockID{1, 2},
				CreatedTick: 3,
			}},
			NextCache: 1,
		},
		Sites:      []caches.Site{{Center: arena.Vec2{X: 5.25, Y: 4.25}, Cache: 0, Since: 3, Formed: 1}},
		CacheStats: caches.Stats{Created: 1, Active: 1},
		Robots:     []robots.State{{ID: 0, Task: "generalist", Goal: "block"}},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snaps", FileName(40))
	if err := WriteSnapshot(path, sample(40)); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.Header.Version != Version || got.Header.Tick != 40 || got.Header.RunID != "r1" {
		t.Fatalf("header=%+v", got.Header)
	}
	if got.Header.Blocks != 3 || got.Header.Caches != 1 {
		t.Fatalf("header counts=%+v", got.Header)
	}
	if len(got.Arena.Caches) != 1 || len(got.Arena.Caches[0].Blocks) != 2 {
		t.Fatalf("caches=%+v", got.Arena.Caches)
	}
	if got.Arena.Blocks[0].Cell != (arena.Coord{X: 2, Y: 2}) {
		t.Fatalf("block 0 cell=%v", got.Arena.Blocks[0].Cell)
	}
	if got.Arena.NextCache != 1 || got.CacheStats.Created != 1 || len(got.Sites) != 1 {
		t.Fatalf("cache lifecycle not restored: next=%d stats=%+v sites=%d", got.Arena.NextCache, got.CacheStats, len(got.Sites))
	}
	if len(got.Robots) != 1 || got.Robots[0].Task != "generalist" {
		t.Fatalf("robots=%+v", got.Robots)
	}
}

func TestReadHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(9))
	if err := WriteSnapshot(path, sample(9)); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Tick != 9 || h.Blocks != 3 || h.Version != Version {
		t.Fatalf("header=%+v", h)
	}
}

func TestListAndLatest(t *testing.T) {
	dir := t.TempDir()
	if _, err := Latest(dir); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Latest on empty dir: %v", err)
	}
	for _, tick := range []uint64{200, 5, 1000} {
		if err := WriteSnapshot(filepath.Join(dir, FileName(tick)), sample(tick)); err != nil {
			t.Fatalf("WriteSnapshot %d: %v", tick, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{FileName(5), FileName(200), FileName(1000)}
	if len(paths) != len(want) {
		t.Fatalf("paths=%v", paths)
	}
	for i, p := range paths {
		if filepath.Base(p) != want[i] {
			t.Fatalf("paths[%d]=%s want %s", i, p, want[i])
		}
	}
	latest, err := Latest(dir)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if filepath.Base(latest) != FileName(1000) {
		t.Fatalf("latest=%s", latest)
	}
}

func TestListMissingDir(t *testing.T) {
	paths, err := List(filepath.Join(t.TempDir(), "missing"))
	if err != nil || len(paths) != 0 {
		t.Fatalf("paths=%v err=%v", paths, err)
	}
}
