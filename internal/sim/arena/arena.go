// Package arena owns the discretized foraging map and the canonical block and
// cache registries. It is the single source of truth for what occupies where.
//
// All mutation goes through Arena.Update, which holds the arena write lock for the
// duration of one transaction. Every Txn operation validates before it applies, so
// a failed operation leaves grid and registries unchanged.
package arena

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrSpatialConflict = errors.New("spatial conflict")
	ErrOutOfBounds     = errors.New("out of bounds")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid block state")
	ErrNoSpace         = errors.New("no space")
	ErrTooFewBlocks    = errors.New("too few blocks for cache")
)

type Config struct {
	Width      float64
	Height     float64
	Resolution float64
	Nest       Nest
	// CacheDim is the side length of a cache footprint in cells. Must be odd.
	CacheDim int
}

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("arena size must be positive: %vx%v", c.Width, c.Height)
	}
	if c.Resolution <= 0 {
		return fmt.Errorf("arena resolution must be positive: %v", c.Resolution)
	}
	if c.CacheDim < 1 || c.CacheDim%2 == 0 {
		return fmt.Errorf("cache dimension must be a positive odd number of cells: %d", c.CacheDim)
	}
	return nil
}

// Distributor chooses where a block lands when it is redistributed (nest drops,
// released cache blocks, initial placement).
type Distributor interface {
	Distribute(v View, id BlockID) (Vec2, error)
}

// View is read access to arena state. Txn implements it without locking; use
// Arena.Read for a consistent view from outside a transaction.
type View interface {
	CellAt(c Coord) Cell
	Block(id BlockID) (Block, bool)
	Cache(id CacheID) (Cache, bool)
	Blocks() []Block
	Caches() []Cache
	BlockByPosition(p Vec2) (BlockID, bool)
	CacheByPosition(p Vec2) (CacheID, bool)
	NearestCache(p Vec2) (Cache, float64, bool)
	NearestFreeBlock(p Vec2, exclude BlockID) (Block, float64, bool)
	Counts() Counts
	Nest() Nest
	Size() Vec2
	Dims() (w, h int)
	Resolution() float64
	Discretize(p Vec2) Coord
	CellCenter(c Coord) Vec2
	InBounds(c Coord) bool
	InNest(p Vec2) bool
	CellInNest(c Coord) bool
	CacheDim() int
	Footprint(center Coord) []Coord
}

// Counts partitions blocks by carrying state.
type Counts struct {
	Total   int `json:"total"`
	Free    int `json:"free"`
	Carried int `json:"carried"`
	Cached  int `json:"cached"`
	Caches  int `json:"caches"`
}

type Arena struct {
	mu sync.RWMutex
	st *state
}

func New(cfg Config) (*Arena, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Arena{st: newState(cfg)}, nil
}

// Populate creates one block per shape and distributes each of them.
func (a *Arena) Populate(shapes []Shape, d Distributor) error {
	return a.Update(func(tx *Txn) error {
		for _, sh := range shapes {
			id := BlockID(len(tx.blocks))
			tx.blocks = append(tx.blocks, Block{ID: id, Shape: sh, State: Carried, Robot: NoRobot, Cache: NoCache})
			if err := tx.DistributeBlock(id, d); err != nil {
				return fmt.Errorf("populate block %d: %w", id, err)
			}
		}
		return nil
	})
}

// Update runs fn as one transaction under the write lock.
func (a *Arena) Update(fn func(tx *Txn) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(&Txn{state: a.st})
}

// Read runs fn with a consistent read-only view.
func (a *Arena) Read(fn func(v View)) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn(a.st)
}

func (a *Arena) Blocks() []Block {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.Blocks()
}

func (a *Arena) Caches() []Cache {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.Caches()
}

func (a *Arena) Block(id BlockID) (Block, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.Block(id)
}

func (a *Arena) Cache(id CacheID) (Cache, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.Cache(id)
}

func (a *Arena) CellAt(c Coord) Cell {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.CellAt(c)
}

func (a *Arena) BlockByPosition(p Vec2) (BlockID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.BlockByPosition(p)
}

func (a *Arena) CacheByPosition(p Vec2) (CacheID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.CacheByPosition(p)
}

func (a *Arena) Counts() Counts {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.Counts()
}

// Nest, Size and Dims never change after construction.
func (a *Arena) Nest() Nest              { return a.st.nest }
func (a *Arena) Size() Vec2              { return a.st.size }
func (a *Arena) Dims() (w, h int)        { return a.st.grid.Dims() }
func (a *Arena) Resolution() float64     { return a.st.grid.res }
func (a *Arena) CacheDim() int           { return a.st.cacheDim }
func (a *Arena) Discretize(p Vec2) Coord { return a.st.grid.Discretize(p) }

// Verify runs the full sanity check; total is the configured block count.
func (a *Arena) Verify(total int) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.verify(total)
}
