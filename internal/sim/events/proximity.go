package events

import "foragearena.ai/internal/sim/arena"

// Conflict names the entity that blocks a drop. At most one of Block and Cache
// is set.
type Conflict struct {
	Block *arena.Block
	Cache *arena.Cache
}

func (c Conflict) Found() bool { return c.Block != nil || c.Cache != nil }

// CheckDrop runs the proximity checks for dropping carried at pos to seed a new
// cache (site=false) or at an empty cache site (site=true). The cell itself must
// be free and in bounds; the nearest cache must be at least CacheProxDist away;
// for cache sites, the nearest free block must also be at least BlockProxDist
// away.
func (d *Dispatcher) CheckDrop(v arena.View, pos arena.Vec2, carried arena.BlockID, site bool) Conflict {
	cell := v.CellAt(v.Discretize(pos))
	switch cell.State {
	case arena.HasBlock:
		if cell.Block != carried {
			if b, ok := v.Block(cell.Block); ok {
				return Conflict{Block: &b}
			}
		}
	case arena.HasCache, arena.CacheExtent:
		if c, ok := v.Cache(cell.Cache); ok {
			return Conflict{Cache: &c}
		}
	}
	if c, dist, ok := v.NearestCache(pos); ok && dist < d.cfg.CacheProxDist {
		return Conflict{Cache: &c}
	}
	if site {
		if b, dist, ok := v.NearestFreeBlock(pos, carried); ok && dist < d.cfg.BlockProxDist {
			return Conflict{Block: &b}
		}
	}
	return Conflict{}
}

// Refuse delivers the proximity notification for a conflict found before a
// penalty began.
func (d *Dispatcher) Refuse(r Robot, c Conflict, tick uint64) {
	d.notifyProximity(r, c, tick)
}

func (d *Dispatcher) notifyProximity(r Robot, c Conflict, tick uint64) {
	switch {
	case c.Cache != nil:
		d.count(func(n *Counts) { n.CacheProximity++ })
		ev := CacheProximity{Tick: tick, Cache: *c.Cache}
		deliver(r, func(k CacheProximityConsumer) { k.AcceptCacheProximity(ev) })
	case c.Block != nil:
		d.count(func(n *Counts) { n.BlockProximity++ })
		ev := BlockProximity{Tick: tick, Block: *c.Block}
		deliver(r, func(k BlockProximityConsumer) { k.AcceptBlockProximity(ev) })
	}
}
