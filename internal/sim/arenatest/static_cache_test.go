package arenatest

import "testing"

func TestStaticCache_FormsOnFirstTick(t *testing.T) {
	tun := Tuning()
	tun.Caches.Dynamic = false
	h := NewHarness(t, tun)

	e := h.Step()
	if len(e.CachesCreated) != 1 {
		t.Fatalf("created=%v", e.CachesCreated)
	}
	if h.MapsSeen() == 0 {
		t.Fatalf("no MAP after join")
	}
	m := h.LastMap()
	if len(m.Caches) != 1 {
		t.Fatalf("map caches=%+v", m.Caches)
	}
	c := m.Caches[0]
	if !c.Static || c.Blocks < tun.Caches.StaticSize || c.Created != 0 {
		t.Fatalf("static cache=%+v", c)
	}
	if got := h.LastTick().Counts.Cached; got != c.Blocks {
		t.Fatalf("cached=%d want=%d", got, c.Blocks)
	}
}

func TestStaticCache_DynamicDisabledNeverAddsCaches(t *testing.T) {
	tun := Tuning()
	tun.Caches.Dynamic = false
	h := NewHarness(t, tun)
	for i := 0; i < 200; i++ {
		h.Step()
		if n := h.LastTick().Counts.Caches; n > len(tun.Caches.StaticSites) {
			t.Fatalf("tick %d: %d caches with dynamic caches disabled", i, n)
		}
	}
}
