package arena

import (
	"errors"
	"fmt"
)

// Txn is the mutable view handed out by Arena.Update. It must not escape the
// callback.
type Txn struct {
	*state
}

func (tx *Txn) block(id BlockID) (*Block, error) {
	if id < 0 || int(id) >= len(tx.blocks) {
		return nil, fmt.Errorf("block %d: %w", id, ErrNotFound)
	}
	return &tx.blocks[id], nil
}

func (tx *Txn) cache(id CacheID) (*Cache, error) {
	c := tx.caches[id]
	if c == nil {
		return nil, fmt.Errorf("cache %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// checkPlace reports whether block id may occupy cell c.
func (tx *Txn) checkPlace(id BlockID, c Coord) error {
	if !tx.grid.InBounds(c) {
		return fmt.Errorf("block %d at %s: %w", id, c, ErrOutOfBounds)
	}
	cell := tx.grid.At(c)
	if cell.State == Empty || (cell.State == HasBlock && cell.Block == id) {
		return nil
	}
	return fmt.Errorf("block %d at %s: cell holds %s (block=%d cache=%d): %w",
		id, c, cell.State, cell.Block, cell.Cache, ErrSpatialConflict)
}

// lift removes a free block from the grid. The caller sets its new state.
func (tx *Txn) lift(b *Block) {
	if b.State != Free {
		return
	}
	if cell := tx.grid.At(b.Cell); cell.State == HasBlock && cell.Block == b.ID {
		tx.grid.set(b.Cell, emptyCell)
	}
}

func (tx *Txn) put(b *Block, c Coord) {
	b.State = Free
	b.Robot = NoRobot
	b.Cache = NoCache
	b.Cell = c
	b.Pos = tx.grid.CellCenter(c)
	tx.grid.set(c, Cell{State: HasBlock, Block: b.ID, Cache: NoCache})
}

// PlaceBlock puts a free or carried block on the cell containing pos. The cell
// must be empty.
func (tx *Txn) PlaceBlock(id BlockID, pos Vec2) error {
	b, err := tx.block(id)
	if err != nil {
		return err
	}
	if b.State == Cached {
		return fmt.Errorf("place %s: %w", b, ErrInvalidState)
	}
	c := tx.grid.Discretize(pos)
	if err := tx.checkPlace(id, c); err != nil {
		return err
	}
	tx.lift(b)
	tx.put(b, c)
	return nil
}

// PickupBlock hands a free block to robot and clears its cell.
func (tx *Txn) PickupBlock(id BlockID, robot RobotID, tick uint64) error {
	b, err := tx.block(id)
	if err != nil {
		return err
	}
	if b.State != Free {
		return fmt.Errorf("pickup %s: %w", b, ErrInvalidState)
	}
	tx.lift(b)
	tx.carry(b, robot, tick)
	return nil
}

func (tx *Txn) carry(b *Block, robot RobotID, tick uint64) {
	if b.Transporters == 0 {
		b.FirstPickupTick = tick
	}
	b.Transporters++
	b.State = Carried
	b.Robot = robot
	b.Cache = NoCache
}

// ResetBlockMetrics clears per-trip usage metrics after a nest delivery.
func (tx *Txn) ResetBlockMetrics(id BlockID) error {
	b, err := tx.block(id)
	if err != nil {
		return err
	}
	b.FirstPickupTick = 0
	b.Transporters = 0
	return nil
}

// DistributeBlock moves a free or carried block to a location chosen by d. If d
// is nil or finds no space, the nearest open cell to the block's last position
// is used.
func (tx *Txn) DistributeBlock(id BlockID, d Distributor) error {
	b, err := tx.block(id)
	if err != nil {
		return err
	}
	if b.State == Cached {
		return fmt.Errorf("distribute %s: %w", b, ErrInvalidState)
	}
	from := b.Cell
	tx.lift(b)
	if b.State == Free {
		// Off the grid while the distributor looks for space.
		b.State = Carried
	}
	return tx.land(b, from, d)
}

func (tx *Txn) land(b *Block, near Coord, d Distributor) error {
	if d != nil {
		pos, err := d.Distribute(tx, b.ID)
		if err == nil {
			c := tx.grid.Discretize(pos)
			if err := tx.checkPlace(b.ID, c); err != nil {
				return fmt.Errorf("distributor chose occupied cell: %w", err)
			}
			tx.put(b, c)
			return nil
		}
		if !errors.Is(err, ErrNoSpace) {
			return err
		}
	}
	c, ok := tx.nearestOpen(near)
	if !ok {
		return fmt.Errorf("distribute block %d: %w", b.ID, ErrNoSpace)
	}
	tx.put(b, c)
	return nil
}

// CacheSpec describes a cache to instantiate. Blocks are added in order; the
// first one is picked up first.
type CacheSpec struct {
	Center Vec2
	Blocks []BlockID
	Tick   uint64
	Static bool
}

// CheckFootprint reports whether a cache centered on center could be created
// from blocks: every footprint cell is in bounds, outside the nest, and either
// empty or holding one of blocks.
func (tx *Txn) CheckFootprint(center Coord, blocks []BlockID) error {
	member := make(map[BlockID]bool, len(blocks))
	for _, id := range blocks {
		member[id] = true
	}
	for _, c := range tx.Footprint(center) {
		if !tx.grid.InBounds(c) {
			return fmt.Errorf("cache footprint cell %s: %w", c, ErrOutOfBounds)
		}
		if tx.CellInNest(c) {
			return fmt.Errorf("cache footprint cell %s overlaps nest: %w", c, ErrSpatialConflict)
		}
		cell := tx.grid.At(c)
		switch cell.State {
		case Empty:
		case HasBlock:
			if !member[cell.Block] {
				return fmt.Errorf("cache footprint cell %s holds block %d: %w", c, cell.Block, ErrSpatialConflict)
			}
		default:
			return fmt.Errorf("cache footprint cell %s holds cache %d: %w", c, cell.Cache, ErrSpatialConflict)
		}
	}
	return nil
}

// CreateCache instantiates a cache. All blocks must be free; they are absorbed
// regardless of where they lie.
func (tx *Txn) CreateCache(spec CacheSpec) (Cache, error) {
	if len(spec.Blocks) < MinBlocks {
		return Cache{}, fmt.Errorf("cache at %s with %d blocks: %w", spec.Center, len(spec.Blocks), ErrTooFewBlocks)
	}
	seen := make(map[BlockID]bool, len(spec.Blocks))
	for _, id := range spec.Blocks {
		b, err := tx.block(id)
		if err != nil {
			return Cache{}, err
		}
		if b.State != Free || seen[id] {
			return Cache{}, fmt.Errorf("cache block %s: %w", b, ErrInvalidState)
		}
		seen[id] = true
	}
	center := tx.grid.Discretize(spec.Center)
	if err := tx.CheckFootprint(center, spec.Blocks); err != nil {
		return Cache{}, err
	}

	c := &Cache{
		ID:          tx.nextCache,
		Center:      tx.grid.CellCenter(center),
		CenterCell:  center,
		Extent:      tx.Footprint(center),
		Blocks:      append([]BlockID(nil), spec.Blocks...),
		CreatedTick: spec.Tick,
		Static:      spec.Static,
	}
	tx.nextCache++
	for _, id := range c.Blocks {
		b := &tx.blocks[id]
		tx.lift(b)
		tx.stash(b, c)
	}
	for _, e := range c.Extent {
		st := CacheExtent
		if e == center {
			st = HasCache
		}
		tx.grid.set(e, Cell{State: st, Block: NoBlock, Cache: c.ID})
	}
	tx.caches[c.ID] = c
	return c.clone(), nil
}

func (tx *Txn) stash(b *Block, c *Cache) {
	b.State = Cached
	b.Cache = c.ID
	b.Robot = NoRobot
	b.Pos = c.Center
	b.Cell = c.CenterCell
}

// CacheTakeBlock hands the front block of a cache to robot. The caller is
// responsible for depleting the cache if it falls below MinBlocks.
func (tx *Txn) CacheTakeBlock(id CacheID, robot RobotID, tick uint64) (BlockID, error) {
	c, err := tx.cache(id)
	if err != nil {
		return NoBlock, err
	}
	if len(c.Blocks) == 0 {
		return NoBlock, fmt.Errorf("cache %d is empty: %w", id, ErrInvalidState)
	}
	bid := c.Blocks[0]
	c.Blocks = c.Blocks[1:]
	c.Pickups++
	tx.carry(&tx.blocks[bid], robot, tick)
	return bid, nil
}

// CachePushBlock adds a carried block to the back of a cache.
func (tx *Txn) CachePushBlock(id CacheID, bid BlockID) error {
	c, err := tx.cache(id)
	if err != nil {
		return err
	}
	b, err := tx.block(bid)
	if err != nil {
		return err
	}
	if b.State != Carried {
		return fmt.Errorf("drop %s into cache %d: %w", b, id, ErrInvalidState)
	}
	c.Blocks = append(c.Blocks, bid)
	c.Drops++
	tx.stash(b, c)
	return nil
}

// DepleteCache destroys a cache in one step: the footprint returns to Empty, the
// front remaining block becomes free on the former center cell, and any others
// are redistributed through d. It returns the released blocks.
func (tx *Txn) DepleteCache(id CacheID, d Distributor) ([]BlockID, error) {
	c, err := tx.cache(id)
	if err != nil {
		return nil, err
	}
	delete(tx.caches, id)
	for _, e := range c.Extent {
		tx.grid.set(e, emptyCell)
	}
	released := append([]BlockID(nil), c.Blocks...)
	for i, bid := range released {
		b := &tx.blocks[bid]
		b.State = Carried
		b.Cache = NoCache
		if i == 0 {
			tx.put(b, c.CenterCell)
			continue
		}
		if err := tx.land(b, c.CenterCell, d); err != nil {
			return released, fmt.Errorf("release block %d from cache %d: %w", bid, id, err)
		}
	}
	return released, nil
}
