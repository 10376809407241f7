package arena

import (
	"fmt"
	"math"
)

type BlockID int
type CacheID int
type RobotID int

const (
	NoBlock BlockID = -1
	NoCache CacheID = -1
	NoRobot RobotID = -1
)

// MinBlocks is the smallest number of blocks a cache may hold. A cache that drops
// below it is depleted within the same transaction.
const MinBlocks = 2

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }
func (v Vec2) Len() float64         { return math.Hypot(v.X, v.Y) }
func (v Vec2) Dist(o Vec2) float64  { return v.Sub(o).Len() }
func (v Vec2) String() string       { return fmt.Sprintf("(%.2f,%.2f)", v.X, v.Y) }
func (v Vec2) ToArray() [2]float64  { return [2]float64{v.X, v.Y} }

// Coord is a discretized grid cell.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) ToArray() [2]int      { return [2]int{c.X, c.Y} }
func (c Coord) String() string       { return fmt.Sprintf("[%d,%d]", c.X, c.Y) }
func (c Coord) Add(dx, dy int) Coord { return Coord{X: c.X + dx, Y: c.Y + dy} }

type Shape uint8

const (
	ShapeCube Shape = iota
	ShapeRamp
)

func (s Shape) String() string {
	switch s {
	case ShapeCube:
		return "cube"
	case ShapeRamp:
		return "ramp"
	default:
		return fmt.Sprintf("shape(%d)", uint8(s))
	}
}

// CarryState is the single ownership state of a block.
type CarryState uint8

const (
	Free CarryState = iota
	Carried
	Cached
)

func (s CarryState) String() string {
	switch s {
	case Free:
		return "free"
	case Carried:
		return "carried"
	case Cached:
		return "cached"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type Block struct {
	ID    BlockID
	Pos   Vec2
	Cell  Coord
	Shape Shape

	State CarryState
	Robot RobotID // valid when State == Carried
	Cache CacheID // valid when State == Cached

	// Usage metrics, reset when the block is delivered to the nest.
	FirstPickupTick uint64
	Transporters    int
}

func (b Block) String() string {
	switch b.State {
	case Carried:
		return fmt.Sprintf("block %d carried by robot %d", b.ID, b.Robot)
	case Cached:
		return fmt.Sprintf("block %d in cache %d", b.ID, b.Cache)
	default:
		return fmt.Sprintf("block %d free at %s", b.ID, b.Cell)
	}
}

type Cache struct {
	ID         CacheID
	Center     Vec2
	CenterCell Coord
	Extent     []Coord
	Blocks     []BlockID // front is picked up next

	CreatedTick uint64
	Pickups     int
	Drops       int
	Static      bool
}

func (c Cache) Count() int { return len(c.Blocks) }

// Covers reports whether cell lies in the cache footprint.
func (c Cache) Covers(cell Coord) bool {
	for _, e := range c.Extent {
		if e == cell {
			return true
		}
	}
	return false
}

func (c Cache) clone() Cache {
	out := c
	out.Extent = append([]Coord(nil), c.Extent...)
	out.Blocks = append([]BlockID(nil), c.Blocks...)
	return out
}

type CellState uint8

const (
	Empty CellState = iota
	HasBlock
	HasCache
	CacheExtent
)

func (s CellState) String() string {
	switch s {
	case Empty:
		return "empty"
	case HasBlock:
		return "block"
	case HasCache:
		return "cache"
	case CacheExtent:
		return "cache_extent"
	default:
		return fmt.Sprintf("cell(%d)", uint8(s))
	}
}

// Cell records what occupies one grid location. The ids are non-owning; the
// registry owns the entities.
type Cell struct {
	State CellState
	Block BlockID
	Cache CacheID
}

var emptyCell = Cell{State: Empty, Block: NoBlock, Cache: NoCache}

// Nest is the axis-aligned delivery area.
type Nest struct {
	Center Vec2
	Span   Vec2
}

func (n Nest) Contains(p Vec2) bool {
	return math.Abs(p.X-n.Center.X) <= n.Span.X/2 && math.Abs(p.Y-n.Center.Y) <= n.Span.Y/2
}

// overlapsRect reports whether the nest intersects [x0,x1)x[y0,y1).
func (n Nest) overlapsRect(x0, y0, x1, y1 float64) bool {
	nx0, nx1 := n.Center.X-n.Span.X/2, n.Center.X+n.Span.X/2
	ny0, ny1 := n.Center.Y-n.Span.Y/2, n.Center.Y+n.Span.Y/2
	return x0 < nx1 && x1 > nx0 && y0 < ny1 && y1 > ny0
}
