package distributor

import (
	"testing"

	"foragearena.ai/internal/sim/arena"
)

func newArena(t *testing.T, w, h float64) *arena.Arena {
	t.Helper()
	a, err := arena.New(arena.Config{
		Width:      w,
		Height:     h,
		Resolution: 1,
		Nest:       arena.Nest{Center: arena.Vec2{X: 2, Y: 2}, Span: arena.Vec2{X: 2, Y: 2}},
		CacheDim:   1,
	})
	if err != nil {
		t.Fatalf("arena.New: %v", err)
	}
	return a
}

func TestRandomAvoidsNestAndIsSeeded(t *testing.T) {
	layout := func() []arena.Vec2 {
		a := newArena(t, 30, 30)
		if err := a.Populate(make([]arena.Shape, 40), &Random{Seed: 11}); err != nil {
			t.Fatalf("Populate: %v", err)
		}
		if err := a.Verify(40); err != nil {
			t.Fatalf("Verify: %v", err)
		}
		var out []arena.Vec2
		for _, b := range a.Blocks() {
			if a.Nest().Contains(b.Pos) {
				t.Fatalf("block %d in nest", b.ID)
			}
			out = append(out, b.Pos)
		}
		return out
	}
	first, second := layout(), layout()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("block %d at %s then %s", i, first[i], second[i])
		}
	}
}

func TestClusteredStaysInCluster(t *testing.T) {
	a := newArena(t, 30, 30)
	d, err := New(Config{Kind: "cluster", Seed: 5, Clusters: []Cluster{
		{Center: arena.Vec2{X: 10.5, Y: 10.5}, Radius: 2},
		{Center: arena.Vec2{X: 20.5, Y: 20.5}, Radius: 2},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Populate(make([]arena.Shape, 20), d); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	for _, b := range a.Blocks() {
		cx, cy := 10, 10
		if b.ID%2 == 1 {
			cx, cy = 20, 20
		}
		if abs(b.Cell.X-cx) > 2 || abs(b.Cell.Y-cy) > 2 {
			t.Fatalf("block %d at %s outside its cluster", b.ID, b.Cell)
		}
	}
}

func TestClusteredFullCluster(t *testing.T) {
	a := newArena(t, 30, 30)
	d := &Clustered{Clusters: []Cluster{{Center: arena.Vec2{X: 10.5, Y: 10.5}, Radius: 0}}}
	if err := a.Populate(make([]arena.Shape, 1), d); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	var got error
	a.Read(func(v arena.View) { _, got = d.Distribute(v, 1) })
	if got == nil {
		t.Fatalf("expected ErrNoSpace")
	}
	// The arena falls back to the nearest open cell.
	if err := a.Populate(make([]arena.Shape, 1), d); err != nil {
		t.Fatalf("Populate fallback: %v", err)
	}
	if err := a.Verify(2); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(Config{Kind: "spiral"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := New(Config{Kind: "cluster"}); err == nil {
		t.Fatalf("expected error for missing clusters")
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
