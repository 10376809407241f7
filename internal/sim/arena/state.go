package arena

import (
	"math"
	"sort"
)

type state struct {
	grid     *Grid
	nest     Nest
	size     Vec2
	cacheDim int

	blocks    []Block
	caches    map[CacheID]*Cache
	nextCache CacheID
}

func newState(cfg Config) *state {
	return &state{
		grid:     newGrid(cfg.Width, cfg.Height, cfg.Resolution),
		nest:     cfg.Nest,
		size:     Vec2{X: cfg.Width, Y: cfg.Height},
		cacheDim: cfg.CacheDim,
		caches:   map[CacheID]*Cache{},
	}
}

func (s *state) CellAt(c Coord) Cell            { return s.grid.At(c) }
func (s *state) Nest() Nest                     { return s.nest }
func (s *state) Size() Vec2                     { return s.size }
func (s *state) Dims() (w, h int)               { return s.grid.Dims() }
func (s *state) Resolution() float64            { return s.grid.res }
func (s *state) Discretize(p Vec2) Coord        { return s.grid.Discretize(p) }
func (s *state) CellCenter(c Coord) Vec2        { return s.grid.CellCenter(c) }
func (s *state) InBounds(c Coord) bool          { return s.grid.InBounds(c) }
func (s *state) InNest(p Vec2) bool             { return s.nest.Contains(p) }
func (s *state) CellInNest(c Coord) bool        { return s.grid.cellInNest(s.nest, c) }
func (s *state) CacheDim() int                  { return s.cacheDim }
func (s *state) Footprint(center Coord) []Coord { return square(center, s.cacheDim/2) }

func (s *state) Block(id BlockID) (Block, bool) {
	if id < 0 || int(id) >= len(s.blocks) {
		return Block{}, false
	}
	return s.blocks[id], true
}

func (s *state) Cache(id CacheID) (Cache, bool) {
	c := s.caches[id]
	if c == nil {
		return Cache{}, false
	}
	return c.clone(), true
}

func (s *state) Blocks() []Block {
	return append([]Block(nil), s.blocks...)
}

// Caches returns the active caches ordered by id.
func (s *state) Caches() []Cache {
	out := make([]Cache, 0, len(s.caches))
	for _, id := range s.cacheIDs() {
		out = append(out, s.caches[id].clone())
	}
	return out
}

func (s *state) cacheIDs() []CacheID {
	ids := make([]CacheID, 0, len(s.caches))
	for id := range s.caches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *state) BlockByPosition(p Vec2) (BlockID, bool) {
	cell := s.grid.At(s.grid.Discretize(p))
	if cell.State != HasBlock {
		return NoBlock, false
	}
	return cell.Block, true
}

func (s *state) CacheByPosition(p Vec2) (CacheID, bool) {
	cell := s.grid.At(s.grid.Discretize(p))
	if cell.State != HasCache && cell.State != CacheExtent {
		return NoCache, false
	}
	return cell.Cache, true
}

// NearestCache returns the cache whose center is closest to p. Ties go to the
// lower id.
func (s *state) NearestCache(p Vec2) (Cache, float64, bool) {
	var (
		best  *Cache
		bestD = math.Inf(1)
	)
	for _, id := range s.cacheIDs() {
		c := s.caches[id]
		if d := c.Center.Dist(p); d < bestD {
			best, bestD = c, d
		}
	}
	if best == nil {
		return Cache{}, 0, false
	}
	return best.clone(), bestD, true
}

func (s *state) NearestFreeBlock(p Vec2, exclude BlockID) (Block, float64, bool) {
	var (
		best  = NoBlock
		bestD = math.Inf(1)
	)
	for i := range s.blocks {
		b := &s.blocks[i]
		if b.State != Free || b.ID == exclude {
			continue
		}
		if d := b.Pos.Dist(p); d < bestD {
			best, bestD = b.ID, d
		}
	}
	if best == NoBlock {
		return Block{}, 0, false
	}
	return s.blocks[best], bestD, true
}

func (s *state) Counts() Counts {
	c := Counts{Total: len(s.blocks), Caches: len(s.caches)}
	for i := range s.blocks {
		switch s.blocks[i].State {
		case Free:
			c.Free++
		case Carried:
			c.Carried++
		case Cached:
			c.Cached++
		}
	}
	return c
}

// nearestOpen finds the closest empty, in-bounds cell outside the nest, searching
// rings outward from center.
func (s *state) nearestOpen(center Coord) (Coord, bool) {
	w, h := s.grid.Dims()
	maxR := w
	if h > maxR {
		maxR = h
	}
	for r := 0; r <= maxR; r++ {
		for _, c := range ring(center, r) {
			if !s.grid.InBounds(c) || s.grid.At(c).State != Empty || s.CellInNest(c) {
				continue
			}
			return c, true
		}
	}
	return Coord{}, false
}
