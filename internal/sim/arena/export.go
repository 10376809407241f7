package arena

import "fmt"

// State is a point-in-time copy of the registries, used for snapshots.
type State struct {
	Blocks    []Block
	Caches    []Cache
	NextCache CacheID
}

func (a *Arena) Export() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return State{
		Blocks:    a.st.Blocks(),
		Caches:    a.st.Caches(),
		NextCache: a.st.nextCache,
	}
}

// Import replaces the registries with st and rebuilds the grid from them. The
// arena is left untouched if st is inconsistent.
func (a *Arena) Import(st State) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ns := &state{
		grid:      newGrid(a.st.size.X, a.st.size.Y, a.st.grid.res),
		nest:      a.st.nest,
		size:      a.st.size,
		cacheDim:  a.st.cacheDim,
		blocks:    make([]Block, len(st.Blocks)),
		caches:    map[CacheID]*Cache{},
		nextCache: st.NextCache,
	}
	for i, b := range st.Blocks {
		if b.ID != BlockID(i) {
			return fmt.Errorf("import: block at index %d has id %d", i, b.ID)
		}
		ns.blocks[i] = b
	}
	tx := &Txn{state: ns}
	for i := range ns.blocks {
		b := &ns.blocks[i]
		if b.State != Free {
			continue
		}
		if err := tx.checkPlace(b.ID, b.Cell); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		tx.put(b, b.Cell)
	}
	for _, c := range st.Caches {
		if c.ID >= ns.nextCache {
			return fmt.Errorf("import: cache id %d >= next id %d", c.ID, ns.nextCache)
		}
		if err := tx.CheckFootprint(c.CenterCell, nil); err != nil {
			return fmt.Errorf("import cache %d: %w", c.ID, err)
		}
		cc := c.clone()
		cc.Extent = ns.Footprint(c.CenterCell)
		for _, e := range cc.Extent {
			cs := CacheExtent
			if e == cc.CenterCell {
				cs = HasCache
			}
			ns.grid.set(e, Cell{State: cs, Block: NoBlock, Cache: cc.ID})
		}
		ns.caches[cc.ID] = &cc
	}
	if err := ns.verify(len(ns.blocks)); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	a.st = ns
	return nil
}
