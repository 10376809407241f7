package events

import (
	"fmt"
	"io"
	"log"
	"sync"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/assert"
)

// Outcome is how an operation ended.
type Outcome uint8

const (
	Done Outcome = iota
	Vanished
	Proximity
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Done:
		return "done"
	case Vanished:
		return "vanished"
	case Proximity:
		return "proximity"
	default:
		return "failed"
	}
}

// MapObserver is told whenever an event changed the map.
type MapObserver interface {
	MapChanged(tick uint64)
}

// DepletionHook is called inside the pickup transaction that depleted a cache.
// It must not touch the arena.
type DepletionHook interface {
	CacheDepleted(c arena.Cache, tick uint64)
}

type Config struct {
	// CacheProxDist is the minimum distance between a new-cache or cache-site
	// drop and the center of any existing cache.
	CacheProxDist float64
	// BlockProxDist is the minimum distance between a cache-site drop and any
	// free block.
	BlockProxDist float64
}

// Counts are cumulative per-event counters.
type Counts struct {
	FreeBlockPickups    int `json:"free_block_pickups"`
	NestBlockDrops      int `json:"nest_block_drops"`
	CacheBlockPickups   int `json:"cache_block_pickups"`
	CacheBlockDrops     int `json:"cache_block_drops"`
	NewCacheBlockDrops  int `json:"new_cache_block_drops"`
	CacheSiteBlockDrops int `json:"cache_site_block_drops"`
	FreeBlockDrops      int `json:"free_block_drops"`
	BlockVanished       int `json:"block_vanished"`
	CacheVanished       int `json:"cache_vanished"`
	BlockProximity      int `json:"block_proximity"`
	CacheProximity      int `json:"cache_proximity"`
	Depletions          int `json:"depletions"`
}

type Dispatcher struct {
	arena *arena.Arena
	dist  arena.Distributor
	cfg   Config
	log   *log.Logger

	depletion   DepletionHook
	observer    MapObserver
	verifyTotal int

	mu     sync.Mutex
	counts Counts
}

func NewDispatcher(a *arena.Arena, dist arena.Distributor, cfg Config, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{arena: a, dist: dist, cfg: cfg, log: logger}
}

func (d *Dispatcher) SetDepletionHook(h DepletionHook) { d.depletion = h }
func (d *Dispatcher) SetMapObserver(o MapObserver)     { d.observer = o }
func (d *Dispatcher) Config() Config                   { return d.cfg }

func (d *Dispatcher) Counts() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts
}

func (d *Dispatcher) count(fn func(c *Counts)) {
	d.mu.Lock()
	fn(&d.counts)
	d.mu.Unlock()
}

// VerifyEach makes every event that mutates the map re-run the arena sanity
// checks against total blocks. Zero disables it.
func (d *Dispatcher) VerifyEach(total int) { d.verifyTotal = total }

// changed runs after a successful mutation, before observers hear about it.
func (d *Dispatcher) changed(op string, tick uint64) {
	if d.verifyTotal > 0 {
		assert.NoError(d.log, d.arena.Verify(d.verifyTotal), fmt.Sprintf("tick %d after %s", tick, op))
	}
	if d.observer != nil {
		d.observer.MapChanged(tick)
	}
}

func (d *Dispatcher) violation(r Robot, op string, err error) Outcome {
	assert.Failf(d.log, "robot %d %s: %v", r.ID(), op, err)
	return Failed
}

func (d *Dispatcher) carried(r Robot, op string) (arena.BlockID, bool) {
	id, ok := r.CarriedBlock()
	if !ok {
		d.violation(r, op, fmt.Errorf("not carrying a block"))
	}
	return id, ok
}

// FreeBlockPickup completes a pickup of a free block. If the block was taken or
// moved since the penalty began, the robot is sent BlockVanished instead.
func (d *Dispatcher) FreeBlockPickup(r Robot, id arena.BlockID, tick uint64) Outcome {
	var (
		ev       = FreeBlockPickup{Tick: tick}
		vanished bool
	)
	err := d.arena.Update(func(tx *arena.Txn) error {
		b, ok := tx.Block(id)
		if !ok || b.State != arena.Free || b.Cell != tx.Discretize(r.Position()) {
			vanished = true
			return nil
		}
		if err := tx.PickupBlock(id, r.ID(), tick); err != nil {
			return err
		}
		ev.Block, _ = tx.Block(id)
		return nil
	})
	if err != nil {
		return d.violation(r, "free block pickup", err)
	}
	if vanished {
		d.BlockVanished(r, id, tick)
		return Vanished
	}
	r.SetCarried(id)
	d.count(func(c *Counts) { c.FreeBlockPickups++ })
	deliver(r, func(c FreeBlockPickupConsumer) { c.AcceptFreeBlockPickup(ev) })
	d.changed("free block pickup", tick)
	return Done
}

// NestBlockDrop delivers the carried block and redistributes it.
func (d *Dispatcher) NestBlockDrop(r Robot, tick uint64) Outcome {
	id, ok := d.carried(r, "nest block drop")
	if !ok {
		return Failed
	}
	ev := NestBlockDrop{Tick: tick, Delivered: r.Position()}
	err := d.arena.Update(func(tx *arena.Txn) error {
		b, _ := tx.Block(id)
		if b.State != arena.Carried || b.Robot != r.ID() {
			return fmt.Errorf("%s: %w", b, arena.ErrInvalidState)
		}
		ev.Block = b
		if err := tx.DistributeBlock(id, d.dist); err != nil {
			return err
		}
		return tx.ResetBlockMetrics(id)
	})
	if err != nil {
		return d.violation(r, "nest block drop", err)
	}
	r.ClearCarried()
	d.count(func(c *Counts) { c.NestBlockDrops++ })
	deliver(r, func(c NestBlockDropConsumer) { c.AcceptNestBlockDrop(ev) })
	d.changed("nest block drop", tick)
	return Done
}

// CacheBlockPickup takes the front block of a cache. A cache left with fewer
// than arena.MinBlocks is depleted in the same transaction. If the cache is
// already gone the robot is sent CacheVanished.
func (d *Dispatcher) CacheBlockPickup(r Robot, id arena.CacheID, tick uint64) Outcome {
	var (
		ev       = CacheBlockPickup{Tick: tick}
		vanished bool
	)
	err := d.arena.Update(func(tx *arena.Txn) error {
		if _, ok := tx.Cache(id); !ok {
			vanished = true
			return nil
		}
		bid, err := tx.CacheTakeBlock(id, r.ID(), tick)
		if err != nil {
			return err
		}
		ev.Block, _ = tx.Block(bid)
		ev.Cache, _ = tx.Cache(id)
		if ev.Cache.Count() >= arena.MinBlocks {
			return nil
		}
		if _, err := tx.DepleteCache(id, d.dist); err != nil {
			return err
		}
		ev.Depleted = true
		if d.depletion != nil {
			d.depletion.CacheDepleted(ev.Cache, tick)
		}
		return nil
	})
	if err != nil {
		return d.violation(r, "cache block pickup", err)
	}
	if vanished {
		d.CacheVanished(r, id, tick)
		return Vanished
	}
	r.SetCarried(ev.Block.ID)
	d.count(func(c *Counts) {
		c.CacheBlockPickups++
		if ev.Depleted {
			c.Depletions++
		}
	})
	deliver(r, func(c CacheBlockPickupConsumer) { c.AcceptCacheBlockPickup(ev) })
	d.changed("cache block pickup", tick)
	return Done
}

// CacheBlockDrop adds the carried block to a cache, or sends CacheVanished if
// the cache no longer exists.
func (d *Dispatcher) CacheBlockDrop(r Robot, id arena.CacheID, tick uint64) Outcome {
	bid, ok := d.carried(r, "cache block drop")
	if !ok {
		return Failed
	}
	var (
		ev       = CacheBlockDrop{Tick: tick}
		vanished bool
	)
	err := d.arena.Update(func(tx *arena.Txn) error {
		if _, ok := tx.Cache(id); !ok {
			vanished = true
			return nil
		}
		if err := tx.CachePushBlock(id, bid); err != nil {
			return err
		}
		ev.Block, _ = tx.Block(bid)
		ev.Cache, _ = tx.Cache(id)
		return nil
	})
	if err != nil {
		return d.violation(r, "cache block drop", err)
	}
	if vanished {
		d.CacheVanished(r, id, tick)
		return Vanished
	}
	r.ClearCarried()
	d.count(func(c *Counts) { c.CacheBlockDrops++ })
	deliver(r, func(c CacheBlockDropConsumer) { c.AcceptCacheBlockDrop(ev) })
	d.changed("cache block drop", tick)
	return Done
}

// NewCacheBlockDrop drops the carried block to seed a new cache. The proximity
// check is repeated here because the map may have changed during the penalty.
func (d *Dispatcher) NewCacheBlockDrop(r Robot, tick uint64) Outcome {
	return d.siteDrop(r, tick, false)
}

// CacheSiteBlockDrop drops the carried block at an empty cache site, which must
// also be clear of free blocks.
func (d *Dispatcher) CacheSiteBlockDrop(r Robot, tick uint64) Outcome {
	return d.siteDrop(r, tick, true)
}

func (d *Dispatcher) siteDrop(r Robot, tick uint64, site bool) Outcome {
	op := "new cache block drop"
	if site {
		op = "cache site block drop"
	}
	bid, ok := d.carried(r, op)
	if !ok {
		return Failed
	}
	var (
		prox  Conflict
		block arena.Block
	)
	err := d.arena.Update(func(tx *arena.Txn) error {
		pos := r.Position()
		if prox = d.CheckDrop(tx, pos, bid, site); prox.Found() {
			return nil
		}
		if err := tx.PlaceBlock(bid, pos); err != nil {
			return err
		}
		block, _ = tx.Block(bid)
		return nil
	})
	if err != nil {
		return d.violation(r, op, err)
	}
	if prox.Found() {
		d.notifyProximity(r, prox, tick)
		return Proximity
	}
	r.ClearCarried()
	if site {
		d.count(func(c *Counts) { c.CacheSiteBlockDrops++ })
		ev := CacheSiteBlockDrop{Tick: tick, Block: block}
		deliver(r, func(c CacheSiteBlockDropConsumer) { c.AcceptCacheSiteBlockDrop(ev) })
	} else {
		d.count(func(c *Counts) { c.NewCacheBlockDrops++ })
		ev := NewCacheBlockDrop{Tick: tick, Block: block}
		deliver(r, func(c NewCacheBlockDropConsumer) { c.AcceptNewCacheBlockDrop(ev) })
	}
	d.changed(op, tick)
	return Done
}

// TaskAbortDrop drops the carried block where the robot stands. Drops that would
// land out of bounds, in the nest, on an occupied cell or within CacheProxDist
// of a cache are redistributed.
func (d *Dispatcher) TaskAbortDrop(r Robot, tick uint64) Outcome {
	bid, ok := d.carried(r, "task abort drop")
	if !ok {
		return Failed
	}
	ev := FreeBlockDrop{Tick: tick}
	err := d.arena.Update(func(tx *arena.Txn) error {
		pos := r.Position()
		c := tx.Discretize(pos)
		ev.Redistributed = !tx.InBounds(c) || tx.InNest(pos) || tx.CellInNest(c) || tx.CellAt(c).State != arena.Empty
		if _, dist, ok := tx.NearestCache(pos); ok && dist < d.cfg.CacheProxDist {
			ev.Redistributed = true
		}
		var err error
		if ev.Redistributed {
			err = tx.DistributeBlock(bid, d.dist)
		} else {
			err = tx.PlaceBlock(bid, pos)
		}
		if err != nil {
			return err
		}
		ev.Block, _ = tx.Block(bid)
		return nil
	})
	if err != nil {
		return d.violation(r, "task abort drop", err)
	}
	r.ClearCarried()
	d.count(func(c *Counts) { c.FreeBlockDrops++ })
	deliver(r, func(c FreeBlockDropConsumer) { c.AcceptFreeBlockDrop(ev) })
	d.changed("task abort drop", tick)
	return Done
}

// BlockVanished tells the robot a block it targeted is gone.
func (d *Dispatcher) BlockVanished(r Robot, id arena.BlockID, tick uint64) {
	d.count(func(c *Counts) { c.BlockVanished++ })
	ev := BlockVanished{Tick: tick, Block: id}
	deliver(r, func(c BlockVanishedConsumer) { c.AcceptBlockVanished(ev) })
}

// CacheVanished tells the robot a cache it targeted is gone.
func (d *Dispatcher) CacheVanished(r Robot, id arena.CacheID, tick uint64) {
	d.count(func(c *Counts) { c.CacheVanished++ })
	ev := CacheVanished{Tick: tick, Cache: id}
	deliver(r, func(c CacheVanishedConsumer) { c.AcceptCacheVanished(ev) })
}
