package arenatest

import (
	"testing"

	"foragearena.ai/internal/sim/arena"
)

func checkInvariants(t *testing.T, h *Harness) {
	t.Helper()
	tick := h.S.CurrentTick() - 1
	h.S.Arena().Read(func(v arena.View) {
		owner := map[arena.Coord]arena.CacheID{}
		for _, c := range v.Caches() {
			if c.Count() < arena.MinBlocks {
				t.Fatalf("tick %d: cache %d holds %d blocks", tick, c.ID, c.Count())
			}
			for _, cell := range c.Extent {
				if v.CellInNest(cell) {
					t.Fatalf("tick %d: cache %d covers nest cell %s", tick, c.ID, cell)
				}
				if other, ok := owner[cell]; ok {
					t.Fatalf("tick %d: caches %d and %d overlap at %s", tick, other, c.ID, cell)
				}
				owner[cell] = c.ID
			}
		}

		carriers := map[arena.RobotID]arena.BlockID{}
		for _, b := range v.Blocks() {
			if b.State != arena.Carried {
				continue
			}
			if prev, ok := carriers[b.Robot]; ok {
				t.Fatalf("tick %d: robot %d carries blocks %d and %d", tick, b.Robot, prev, b.ID)
			}
			carriers[b.Robot] = b.ID
		}
	})

	c := h.LastTick().Counts
	if c.Free+c.Carried+c.Cached != h.Tun.Blocks.Count {
		t.Fatalf("tick %d: observer counts %+v do not conserve %d blocks", tick, c, h.Tun.Blocks.Count)
	}
	if s := h.LastTick().Serving; s > h.Tun.Robots.Count {
		t.Fatalf("tick %d: %d penalties for %d robots", tick, s, h.Tun.Robots.Count)
	}
}

func TestInvariants_HoldEveryTick(t *testing.T) {
	tun := Tuning()
	tun.Sim.Deterministic = false
	h := NewHarness(t, tun)
	for i := 0; i < 400; i++ {
		h.Step()
		checkInvariants(t, h)
	}
}

func TestInvariants_HoldWithDeconflictedPenalties(t *testing.T) {
	tun := Tuning()
	tun.Penalties.Deconflict = true
	tun.Robots.Count = 24
	h := NewHarness(t, tun)
	for i := 0; i < 300; i++ {
		h.Step()
		checkInvariants(t, h)
	}
}
