package caches

import (
	"errors"
	"fmt"
	"sort"

	"foragearena.ai/internal/sim/arena"
)

var errClaimed = errors.New("footprint block already allocated this cycle")

// allocator hands free blocks to cache candidates within one transaction. A
// block claimed for one candidate is never offered to another.
type allocator struct {
	tx      *arena.Txn
	claimed map[arena.BlockID]bool
}

func newAllocator(tx *arena.Txn) *allocator {
	return &allocator{tx: tx, claimed: map[arena.BlockID]bool{}}
}

// footprint returns the free blocks lying inside the footprint around center,
// the block on the center cell first.
func (al *allocator) footprint(center arena.Coord) ([]arena.BlockID, error) {
	var ids []arena.BlockID
	add := func(c arena.Coord) error {
		cell := al.tx.CellAt(c)
		if cell.State != arena.HasBlock {
			return nil
		}
		if al.claimed[cell.Block] {
			return fmt.Errorf("block %d at %s: %w", cell.Block, c, errClaimed)
		}
		ids = append(ids, cell.Block)
		return nil
	}
	if err := add(center); err != nil {
		return nil, err
	}
	for _, c := range al.tx.Footprint(center) {
		if c == center {
			continue
		}
		if err := add(c); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// nearest returns up to n unclaimed free blocks closest to p, skipping have.
// Ties go to the lower id.
func (al *allocator) nearest(p arena.Vec2, n int, have []arena.BlockID) []arena.BlockID {
	if n <= 0 {
		return nil
	}
	skip := make(map[arena.BlockID]bool, len(have))
	for _, id := range have {
		skip[id] = true
	}
	type cand struct {
		id   arena.BlockID
		dist float64
	}
	var cs []cand
	for _, b := range al.tx.Blocks() {
		if b.State != arena.Free || al.claimed[b.ID] || skip[b.ID] {
			continue
		}
		cs = append(cs, cand{id: b.ID, dist: b.Pos.Dist(p)})
	}
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].dist != cs[j].dist {
			return cs[i].dist < cs[j].dist
		}
		return cs[i].id < cs[j].id
	})
	if len(cs) > n {
		cs = cs[:n]
	}
	out := make([]arena.BlockID, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.id)
	}
	return out
}

func (al *allocator) claim(ids []arena.BlockID) {
	for _, id := range ids {
		al.claimed[id] = true
	}
}

// forStatic allocates blocks for a static site: everything already inside the
// footprint, then the nearest free blocks up to size.
func (al *allocator) forStatic(center arena.Vec2, size int) (arena.Coord, []arena.BlockID, error) {
	cc := al.tx.Discretize(center)
	ids, err := al.footprint(cc)
	if err != nil {
		return cc, nil, err
	}
	if len(ids) < size {
		ids = append(ids, al.nearest(al.tx.CellCenter(cc), size-len(ids), ids)...)
	}
	if len(ids) < arena.MinBlocks {
		return cc, nil, fmt.Errorf("static site %s: %d free blocks: %w", center, len(ids), arena.ErrTooFewBlocks)
	}
	if err := al.tx.CheckFootprint(cc, ids); err != nil {
		return cc, nil, err
	}
	return cc, ids, nil
}

// forCluster allocates a dynamic cluster centered on the cell nearest its
// centroid. The cache must be at least minDist from every other cache.
func (al *allocator) forCluster(cl []arena.Block, minDist float64) (arena.Coord, []arena.BlockID, error) {
	var sum arena.Vec2
	for _, b := range cl {
		sum = sum.Add(b.Pos)
	}
	cc := al.tx.Discretize(sum.Scale(1 / float64(len(cl))))
	if !al.tx.InBounds(cc) {
		return cc, nil, fmt.Errorf("cluster center %s: %w", cc, arena.ErrOutOfBounds)
	}
	if c, d, ok := al.tx.NearestCache(al.tx.CellCenter(cc)); ok && d < minDist {
		return cc, nil, fmt.Errorf("cluster center %s is %.2f from cache %d: %w", cc, d, c.ID, arena.ErrSpatialConflict)
	}
	ids, err := al.footprint(cc)
	if err != nil {
		return cc, nil, err
	}
	in := make(map[arena.BlockID]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}
	for _, b := range cl {
		if !in[b.ID] && !al.claimed[b.ID] {
			ids = append(ids, b.ID)
			in[b.ID] = true
		}
	}
	if len(ids) < arena.MinBlocks {
		return cc, nil, fmt.Errorf("cluster at %s: %w", cc, arena.ErrTooFewBlocks)
	}
	if err := al.tx.CheckFootprint(cc, ids); err != nil {
		return cc, nil, err
	}
	return cc, ids, nil
}

// clusters groups free blocks by single linkage: two blocks closer than dist
// share a cluster. Clusters are ordered by their lowest block id.
func clusters(blocks []arena.Block, dist float64) [][]arena.Block {
	free := make([]arena.Block, 0, len(blocks))
	for _, b := range blocks {
		if b.State == arena.Free {
			free = append(free, b)
		}
	}
	sort.Slice(free, func(i, j int) bool { return free[i].ID < free[j].ID })

	parent := make([]int, len(free))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range free {
		for j := i + 1; j < len(free); j++ {
			if free[i].Pos.Dist(free[j].Pos) > dist {
				continue
			}
			ri, rj := find(i), find(j)
			if ri == rj {
				continue
			}
			if ri < rj {
				parent[rj] = ri
			} else {
				parent[ri] = rj
			}
		}
	}

	groups := map[int][]arena.Block{}
	var roots []int
	for i, b := range free {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], b)
	}
	sort.Ints(roots)
	out := make([][]arena.Block, 0, len(roots))
	for _, r := range roots {
		out = append(out, groups[r])
	}
	return out
}
