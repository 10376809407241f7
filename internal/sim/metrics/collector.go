// Package metrics aggregates interaction outcomes into fixed intervals for the
// tick log and the index, and keeps a rolling window for live readers.
package metrics

import (
	"sync"
	"sync/atomic"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/caches"
	"foragearena.ai/internal/sim/events"
	"foragearena.ai/internal/sim/interactor"
	"foragearena.ai/internal/sim/penalty"
)

// Bucket counts what happened over a span of ticks.
type Bucket struct {
	FreeBlockPickups    int    `json:"free_block_pickups"`
	NestBlockDrops      int    `json:"nest_block_drops"`
	CachePickups        int    `json:"cache_pickups"`
	CacheDrops          int    `json:"cache_drops"`
	NewCacheBlockDrops  int    `json:"new_cache_block_drops"`
	CacheSiteBlockDrops int    `json:"cache_site_block_drops"`
	TaskAborts          int    `json:"task_aborts"`
	PenaltiesBegun      int    `json:"penalties_begun"`
	PenaltyTicks        uint64 `json:"penalty_ticks"`
	MapChanges          int    `json:"map_changes"`
}

func (b *Bucket) add(o Bucket) {
	b.FreeBlockPickups += o.FreeBlockPickups
	b.NestBlockDrops += o.NestBlockDrops
	b.CachePickups += o.CachePickups
	b.CacheDrops += o.CacheDrops
	b.NewCacheBlockDrops += o.NewCacheBlockDrops
	b.CacheSiteBlockDrops += o.CacheSiteBlockDrops
	b.TaskAborts += o.TaskAborts
	b.PenaltiesBegun += o.PenaltiesBegun
	b.PenaltyTicks += o.PenaltyTicks
	b.MapChanges += o.MapChanges
}

func (b *Bucket) status(s interactor.Status) {
	if s.Has(interactor.TaskAbort) {
		b.TaskAborts++
	}
	if s.Has(interactor.FreeBlockPickup) {
		b.FreeBlockPickups++
	}
	if s.Has(interactor.NestBlockDrop) {
		b.NestBlockDrops++
	}
	if s.Has(interactor.CachePickup) {
		b.CachePickups++
	}
	if s.Has(interactor.CacheDrop) {
		b.CacheDrops++
	}
	if s.Has(interactor.NewCacheBlockDrop) {
		b.NewCacheBlockDrops++
	}
	if s.Has(interactor.CacheSiteBlockDrop) {
		b.CacheSiteBlockDrops++
	}
}

// Inputs are the cumulative gauges sampled at the end of a tick.
type Inputs struct {
	Blocks     arena.Counts
	Events     events.Counts
	Penalties  map[penalty.Kind]penalty.KindStats
	Caches     caches.Stats
	Serving    int
	Harvesters int
	Collectors int
	StepMS     float64
}

// Interval is one line of the metrics log.
type Interval struct {
	Start            uint64                       `json:"start_tick"`
	End              uint64                       `json:"end_tick"`
	Counts           Bucket                       `json:"counts"`
	Blocks           arena.Counts                 `json:"blocks"`
	Events           events.Counts                `json:"events"`
	Penalties        map[string]penalty.KindStats `json:"penalties"`
	Caches           caches.Stats                 `json:"caches"`
	AvgCacheLifetime float64                      `json:"avg_cache_lifetime"`
	Serving          int                          `json:"serving"`
	Harvesters       int                          `json:"harvesters"`
	Collectors       int                          `json:"collectors"`
}

// Snapshot is the live view served to HTTP readers.
type Snapshot struct {
	Tick        uint64   `json:"tick"`
	StepMS      float64  `json:"step_ms"`
	WindowTicks uint64   `json:"window_ticks"`
	Window      Bucket   `json:"window"`
	Last        Interval `json:"last_interval"`
}

// Collector implements interactor.Metrics and events.MapObserver. Recording is
// safe from concurrent interaction goroutines; Begin and Sample are called by
// the tick loop only.
type Collector struct {
	interval uint64

	mu      sync.Mutex
	cur     Bucket
	curFrom uint64
	window  []Bucket
	winIdx  int
	winBase uint64
	last    Interval

	dirty  atomic.Bool
	latest atomic.Value // Snapshot
}

func New(intervalTicks, windowTicks uint64) *Collector {
	if intervalTicks == 0 {
		intervalTicks = 100
	}
	if windowTicks < intervalTicks {
		windowTicks = intervalTicks
	}
	n := int(windowTicks / intervalTicks)
	return &Collector{interval: intervalTicks, window: make([]Bucket, n)}
}

func (c *Collector) IntervalTicks() uint64 { return c.interval }

func (c *Collector) WindowTicks() uint64 { return c.interval * uint64(len(c.window)) }

// Begin marks the start of tick, rotating the rolling window.
func (c *Collector) Begin(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tick >= c.winBase+c.interval {
		c.winIdx = (c.winIdx + 1) % len(c.window)
		c.window[c.winIdx] = Bucket{}
		c.winBase += c.interval
	}
}

func (c *Collector) record(fn func(b *Bucket)) {
	c.mu.Lock()
	fn(&c.cur)
	fn(&c.window[c.winIdx])
	c.mu.Unlock()
}

func (c *Collector) PenaltyBegun(rec penalty.Record) {
	c.record(func(b *Bucket) {
		b.PenaltiesBegun++
		b.PenaltyTicks += rec.Duration
	})
}

func (c *Collector) Interacted(_ arena.RobotID, s interactor.Status) {
	if s == interactor.NoEvent {
		return
	}
	c.record(func(b *Bucket) { b.status(s) })
}

func (c *Collector) MapChanged(uint64) {
	c.dirty.Store(true)
	c.record(func(b *Bucket) { b.MapChanges++ })
}

// TakeDirty reports whether the map changed since the last call.
func (c *Collector) TakeDirty() bool { return c.dirty.Swap(false) }

// Sample closes the tick. When tick ends an interval the interval is returned.
func (c *Collector) Sample(tick uint64, in Inputs) (Interval, bool) {
	c.mu.Lock()
	var (
		iv   Interval
		done bool
	)
	if (tick+1)%c.interval == 0 {
		iv = Interval{
			Start:            c.curFrom,
			End:              tick,
			Counts:           c.cur,
			Blocks:           in.Blocks,
			Events:           in.Events,
			Penalties:        kindNames(in.Penalties),
			Caches:           in.Caches,
			AvgCacheLifetime: in.Caches.AvgLifetime(),
			Serving:          in.Serving,
			Harvesters:       in.Harvesters,
			Collectors:       in.Collectors,
		}
		c.last = iv
		c.cur = Bucket{}
		c.curFrom = tick + 1
		done = true
	}
	var win Bucket
	for _, b := range c.window {
		win.add(b)
	}
	snap := Snapshot{Tick: tick, StepMS: in.StepMS, WindowTicks: c.WindowTicks(), Window: win, Last: c.last}
	c.mu.Unlock()

	c.latest.Store(snap)
	return iv, done
}

// Resume restarts interval accounting at tick, after a snapshot import.
func (c *Collector) Resume(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.curFrom = tick
	c.winBase = tick - tick%c.interval
}

func (c *Collector) Snapshot() Snapshot {
	v := c.latest.Load()
	if v == nil {
		return Snapshot{}
	}
	s, ok := v.(Snapshot)
	if !ok {
		return Snapshot{}
	}
	return s
}

func kindNames(m map[penalty.Kind]penalty.KindStats) map[string]penalty.KindStats {
	out := make(map[string]penalty.KindStats, len(m))
	for k, v := range m {
		out[k.String()] = v
	}
	return out
}
