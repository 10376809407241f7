package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/caches"
	"foragearena.ai/internal/sim/distributor"
	"foragearena.ai/internal/sim/events"
	"foragearena.ai/internal/sim/penalty"
)

type Tuning struct {
	Sim       Sim       `yaml:"sim"`
	Arena     Arena     `yaml:"arena"`
	Blocks    Blocks    `yaml:"blocks"`
	Caches    Caches    `yaml:"caches"`
	Penalties Penalties `yaml:"penalties"`
	Robots    Robots    `yaml:"robots"`
}

type Sim struct {
	Seed               int64 `yaml:"seed"`
	TickRateHz         int   `yaml:"tick_rate_hz"`
	MaxTicks           int   `yaml:"max_ticks"`
	Deterministic      bool  `yaml:"deterministic"`
	MetricsInterval    int   `yaml:"metrics_interval"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`
	// Workers bounds the parallel phases. 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

type Arena struct {
	Width      float64 `yaml:"width"`
	Height     float64 `yaml:"height"`
	Resolution float64 `yaml:"resolution"`
	Nest       Nest    `yaml:"nest"`
}

type Nest struct {
	Center [2]float64 `yaml:"center"`
	Span   [2]float64 `yaml:"span"`
}

type Blocks struct {
	Count        int                `yaml:"count"`
	RampFraction float64            `yaml:"ramp_fraction"`
	Distribution distributor.Config `yaml:"distribution"`
}

type Caches struct {
	Dimension     int          `yaml:"dimension"`
	StaticSize    int          `yaml:"static_size"`
	StaticSites   [][2]float64 `yaml:"static_sites"`
	Dynamic       bool         `yaml:"dynamic"`
	MinDist       float64      `yaml:"min_dist"`
	ClusterDist   float64      `yaml:"cluster_dist"`
	CacheProxDist float64      `yaml:"cache_prox_dist"`
	BlockProxDist float64      `yaml:"block_prox_dist"`
	RespawnScale  float64      `yaml:"respawn_scale"`
	RespawnFloor  float64      `yaml:"respawn_floor"`
}

type Waveform struct {
	Type      string  `yaml:"type"`
	Value     float64 `yaml:"value"`
	Amplitude float64 `yaml:"amplitude"`
	Period    float64 `yaml:"period"`
	Phase     float64 `yaml:"phase"`
	After     float64 `yaml:"after"`
	At        uint64  `yaml:"at"`
}

type Penalties struct {
	FreePickup Waveform `yaml:"free_pickup"`
	NestDrop   Waveform `yaml:"nest_drop"`
	CacheUsage Waveform `yaml:"cache_usage"`
	Deconflict bool     `yaml:"deconflict"`
}

type Robots struct {
	Count       int     `yaml:"count"`
	Speed       float64 `yaml:"speed"`
	SenseRadius float64 `yaml:"sense_radius"`
	AbortProb   float64 `yaml:"abort_prob"`
	Mix         TaskMix `yaml:"mix"`
}

// TaskMix weights the tasks robots are allocated. Weights need not sum to 1.
type TaskMix struct {
	Generalist float64 `yaml:"generalist"`
	Harvester  float64 `yaml:"harvester"`
	Collector  float64 `yaml:"collector"`
}

// Load reads a tuning file over Defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, t.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		Sim: Sim{
			Seed:               42,
			TickRateHz:         0,
			MaxTicks:           5000,
			MetricsInterval:    100,
			SnapshotEveryTicks: 1000,
		},
		Arena: Arena{
			Width:      32,
			Height:     16,
			Resolution: 0.5,
			Nest:       Nest{Center: [2]float64{2, 8}, Span: [2]float64{2, 6}},
		},
		Blocks: Blocks{
			Count:        60,
			RampFraction: 0.25,
			Distribution: distributor.Config{Kind: "random"},
		},
		Caches: Caches{
			Dimension:     3,
			StaticSize:    4,
			StaticSites:   [][2]float64{{16, 8}},
			Dynamic:       true,
			MinDist:       4,
			ClusterDist:   1,
			CacheProxDist: 3,
			BlockProxDist: 1.5,
			RespawnScale:  1,
			RespawnFloor:  0.01,
		},
		Penalties: Penalties{
			FreePickup: Waveform{Type: "constant", Value: 5},
			NestDrop:   Waveform{Type: "constant", Value: 5},
			CacheUsage: Waveform{Type: "constant", Value: 10},
		},
		Robots: Robots{
			Count:       16,
			Speed:       0.25,
			SenseRadius: 4,
			AbortProb:   0.001,
			Mix:         TaskMix{Generalist: 1, Harvester: 1, Collector: 1},
		},
	}
}

func (t Tuning) Validate() error {
	if t.Sim.TickRateHz < 0 || t.Sim.MaxTicks < 0 || t.Sim.MetricsInterval < 0 || t.Sim.SnapshotEveryTicks < 0 || t.Sim.Workers < 0 {
		return fmt.Errorf("sim: rates, intervals and limits must be >= 0")
	}
	if _, err := arena.New(t.ArenaConfig()); err != nil {
		return fmt.Errorf("arena: %w", err)
	}
	if t.Blocks.Count < 0 {
		return fmt.Errorf("blocks.count must be >= 0")
	}
	if t.Blocks.RampFraction < 0 || t.Blocks.RampFraction > 1 {
		return fmt.Errorf("blocks.ramp_fraction must be in [0,1]")
	}
	if _, err := distributor.New(t.Blocks.Distribution); err != nil {
		return fmt.Errorf("blocks.distribution: %w", err)
	}
	if t.Caches.StaticSize != 0 && t.Caches.StaticSize < arena.MinBlocks {
		return fmt.Errorf("caches.static_size must be >= %d", arena.MinBlocks)
	}
	if t.Caches.MinDist < 0 || t.Caches.ClusterDist < 0 || t.Caches.CacheProxDist < 0 || t.Caches.BlockProxDist < 0 {
		return fmt.Errorf("caches: distances must be >= 0")
	}
	for i, s := range t.Caches.StaticSites {
		if s[0] < 0 || s[1] < 0 || s[0] >= t.Arena.Width || s[1] >= t.Arena.Height {
			return fmt.Errorf("caches.static_sites[%d] outside the arena", i)
		}
	}
	if _, err := t.Durations(); err != nil {
		return fmt.Errorf("penalties: %w", err)
	}
	if t.Robots.Count < 0 || t.Robots.Speed < 0 || t.Robots.SenseRadius < 0 {
		return fmt.Errorf("robots: count, speed and sense_radius must be >= 0")
	}
	if t.Robots.AbortProb < 0 || t.Robots.AbortProb > 1 {
		return fmt.Errorf("robots.abort_prob must be in [0,1]")
	}
	m := t.Robots.Mix
	if m.Generalist < 0 || m.Harvester < 0 || m.Collector < 0 || m.Generalist+m.Harvester+m.Collector <= 0 {
		return fmt.Errorf("robots.mix weights must be >= 0 and not all zero")
	}
	return nil
}

func vec(a [2]float64) arena.Vec2 { return arena.Vec2{X: a[0], Y: a[1]} }

func (t Tuning) ArenaConfig() arena.Config {
	return arena.Config{
		Width:      t.Arena.Width,
		Height:     t.Arena.Height,
		Resolution: t.Arena.Resolution,
		Nest:       arena.Nest{Center: vec(t.Arena.Nest.Center), Span: vec(t.Arena.Nest.Span)},
		CacheDim:   t.Caches.Dimension,
	}
}

func (t Tuning) CacheConfig() caches.Config {
	sites := make([]arena.Vec2, 0, len(t.Caches.StaticSites))
	for _, s := range t.Caches.StaticSites {
		sites = append(sites, vec(s))
	}
	return caches.Config{
		Sites:       sites,
		StaticSize:  t.Caches.StaticSize,
		Dynamic:     t.Caches.Dynamic,
		MinDist:     t.Caches.MinDist,
		ClusterDist: t.Caches.ClusterDist,
		Seed:        t.Sim.Seed,
	}
}

func (t Tuning) RespawnPolicy() caches.RespawnPolicy {
	return caches.RatioPolicy{Scale: t.Caches.RespawnScale, Floor: t.Caches.RespawnFloor}
}

func (t Tuning) EventsConfig() events.Config {
	return events.Config{CacheProxDist: t.Caches.CacheProxDist, BlockProxDist: t.Caches.BlockProxDist}
}

func (t Tuning) DistributorConfig() distributor.Config {
	c := t.Blocks.Distribution
	if c.Seed == 0 {
		c.Seed = t.Sim.Seed
	}
	return c
}

func (w Waveform) spec() penalty.Spec {
	return penalty.Spec{Type: w.Type, Value: w.Value, Amplitude: w.Amplitude, Period: w.Period, Phase: w.Phase, After: w.After, At: w.At}
}

func (t Tuning) Durations() (penalty.Durations, error) {
	var (
		d   penalty.Durations
		err error
	)
	if d.FreePickup, err = penalty.NewWaveform(t.Penalties.FreePickup.spec()); err != nil {
		return d, fmt.Errorf("free_pickup: %w", err)
	}
	if d.NestDrop, err = penalty.NewWaveform(t.Penalties.NestDrop.spec()); err != nil {
		return d, fmt.Errorf("nest_drop: %w", err)
	}
	if d.CacheUsage, err = penalty.NewWaveform(t.Penalties.CacheUsage.spec()); err != nil {
		return d, fmt.Errorf("cache_usage: %w", err)
	}
	return d, nil
}

// Shapes returns the block shapes to populate, ramps spread evenly among cubes.
func (t Tuning) Shapes() []arena.Shape {
	out := make([]arena.Shape, t.Blocks.Count)
	ramps := int(float64(t.Blocks.Count)*t.Blocks.RampFraction + 0.5)
	for i := 0; i < ramps; i++ {
		out[i*t.Blocks.Count/ramps] = arena.ShapeRamp
	}
	return out
}
