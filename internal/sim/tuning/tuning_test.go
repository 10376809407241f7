package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/penalty"
)

func TestLoadRepoTuning(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if tu.Arena.Width != 32 || tu.Caches.Dimension != 3 || len(tu.Caches.StaticSites) != 1 {
		t.Fatalf("unexpected tuning: %+v", tu)
	}
	if tu.Blocks.Distribution.Kind != "cluster" || len(tu.Blocks.Distribution.Clusters) != 2 {
		t.Fatalf("distribution=%+v", tu.Blocks.Distribution)
	}
	if tu.Blocks.Distribution.Clusters[0].Center != (arena.Vec2{X: 26, Y: 4}) {
		t.Fatalf("cluster center=%+v", tu.Blocks.Distribution.Clusters[0].Center)
	}
	d, err := tu.Durations()
	if err != nil {
		t.Fatalf("Durations: %v", err)
	}
	if d.At(penalty.CacheBlockPickup, 0) != 14 || d.At(penalty.CacheBlockPickup, 1500) != 6 {
		t.Fatalf("cache usage waveform mismatch")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	tu, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.Sim.Seed != Defaults().Sim.Seed {
		t.Fatalf("seed=%d", tu.Sim.Seed)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("robots:\n  count: 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.Robots.Count != 3 || tu.Robots.Speed != Defaults().Robots.Speed || tu.Blocks.Count != Defaults().Blocks.Count {
		t.Fatalf("robots=%+v blocks=%+v", tu.Robots, tu.Blocks)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Tuning){
		"even cache dimension": func(t *Tuning) { t.Caches.Dimension = 2 },
		"static size":          func(t *Tuning) { t.Caches.StaticSize = 1 },
		"site outside":         func(t *Tuning) { t.Caches.StaticSites = [][2]float64{{100, 1}} },
		"waveform":             func(t *Tuning) { t.Penalties.NestDrop = Waveform{Type: "zigzag"} },
		"abort prob":           func(t *Tuning) { t.Robots.AbortProb = 2 },
		"mix":                  func(t *Tuning) { t.Robots.Mix = TaskMix{} },
		"distribution":         func(t *Tuning) { t.Blocks.Distribution.Kind = "cluster" },
	}
	for name, mutate := range cases {
		tu := Defaults()
		mutate(&tu)
		if err := tu.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestShapesSpreadsRamps(t *testing.T) {
	tu := Defaults()
	tu.Blocks.Count = 8
	tu.Blocks.RampFraction = 0.25
	ramps := 0
	for _, s := range tu.Shapes() {
		if s == arena.ShapeRamp {
			ramps++
		}
	}
	if ramps != 2 {
		t.Fatalf("ramps=%d", ramps)
	}
}
