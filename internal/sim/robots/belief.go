package robots

import (
	"math"
	"sort"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/events"
)

// belief is the robot's memory of blocks and caches it has seen. It may be
// stale; the arena corrects it through vanished and proximity notifications.
type belief struct {
	blocks map[arena.BlockID]arena.Coord
	caches map[arena.CacheID]arena.Vec2
}

func newBelief() belief {
	return belief{
		blocks: map[arena.BlockID]arena.Coord{},
		caches: map[arena.CacheID]arena.Vec2{},
	}
}

// sense refreshes every cell within radius of pos.
func (b *belief) sense(v arena.View, pos arena.Vec2, radius float64) {
	center := v.Discretize(pos)
	k := int(math.Ceil(radius / v.Resolution()))
	seen := map[arena.Coord]bool{}
	for dy := -k; dy <= k; dy++ {
		for dx := -k; dx <= k; dx++ {
			c := center.Add(dx, dy)
			if !v.InBounds(c) || v.CellCenter(c).Dist(pos) > radius {
				continue
			}
			seen[c] = true
			cell := v.CellAt(c)
			switch cell.State {
			case arena.HasBlock:
				b.blocks[cell.Block] = c
			case arena.HasCache, arena.CacheExtent:
				if cc, ok := v.Cache(cell.Cache); ok {
					b.caches[cc.ID] = cc.Center
				}
			}
		}
	}
	for id, c := range b.blocks {
		if seen[c] {
			if cell := v.CellAt(c); cell.State != arena.HasBlock || cell.Block != id {
				delete(b.blocks, id)
			}
		}
	}
	for id, p := range b.caches {
		if c := v.Discretize(p); seen[c] {
			if cell := v.CellAt(c); cell.State != arena.HasCache || cell.Cache != id {
				delete(b.caches, id)
			}
		}
	}
}

func (b *belief) nearestBlock(p arena.Vec2, v arena.View) (arena.BlockID, arena.Coord, bool) {
	ids := make([]arena.BlockID, 0, len(b.blocks))
	for id := range b.blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	best, bestD := arena.NoBlock, math.Inf(1)
	for _, id := range ids {
		if d := v.CellCenter(b.blocks[id]).Dist(p); d < bestD {
			best, bestD = id, d
		}
	}
	if best == arena.NoBlock {
		return arena.NoBlock, arena.Coord{}, false
	}
	return best, b.blocks[best], true
}

func (b *belief) nearestCache(p arena.Vec2) (arena.CacheID, arena.Vec2, bool) {
	ids := make([]arena.CacheID, 0, len(b.caches))
	for id := range b.caches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	best, bestD := arena.NoCache, math.Inf(1)
	for _, id := range ids {
		if d := b.caches[id].Dist(p); d < bestD {
			best, bestD = id, d
		}
	}
	if best == arena.NoCache {
		return arena.NoCache, arena.Vec2{}, false
	}
	return best, b.caches[best], true
}

func (b *belief) AcceptFreeBlockPickup(ev events.FreeBlockPickup) { delete(b.blocks, ev.Block.ID) }
func (b *belief) AcceptBlockVanished(ev events.BlockVanished)     { delete(b.blocks, ev.Block) }
func (b *belief) AcceptCacheVanished(ev events.CacheVanished)     { delete(b.caches, ev.Cache) }

func (b *belief) AcceptCacheBlockPickup(ev events.CacheBlockPickup) {
	if ev.Depleted {
		delete(b.caches, ev.Cache.ID)
	}
}

func (b *belief) AcceptBlockProximity(ev events.BlockProximity) {
	b.blocks[ev.Block.ID] = ev.Block.Cell
}

func (b *belief) AcceptCacheProximity(ev events.CacheProximity) {
	b.caches[ev.Cache.ID] = ev.Cache.Center
}
