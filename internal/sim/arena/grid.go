package arena

import (
	"math"
	"sort"
)

// Grid is the discretized map. Cells are stored row-major.
type Grid struct {
	w, h  int
	res   float64
	cells []Cell
}

func newGrid(width, height, res float64) *Grid {
	w := int(math.Ceil(width / res))
	h := int(math.Ceil(height / res))
	g := &Grid{w: w, h: h, res: res, cells: make([]Cell, w*h)}
	for i := range g.cells {
		g.cells[i] = emptyCell
	}
	return g
}

func (g *Grid) Dims() (w, h int)       { return g.w, g.h }
func (g *Grid) Resolution() float64    { return g.res }
func (g *Grid) InBounds(c Coord) bool  { return c.X >= 0 && c.Y >= 0 && c.X < g.w && c.Y < g.h }
func (g *Grid) index(c Coord) int      { return c.Y*g.w + c.X }
func (g *Grid) set(c Coord, cell Cell) { g.cells[g.index(c)] = cell }

func (g *Grid) At(c Coord) Cell {
	if !g.InBounds(c) {
		return emptyCell
	}
	return g.cells[g.index(c)]
}

func (g *Grid) Discretize(p Vec2) Coord {
	return Coord{X: int(math.Floor(p.X / g.res)), Y: int(math.Floor(p.Y / g.res))}
}

// CellCenter is the real-valued center of a cell.
func (g *Grid) CellCenter(c Coord) Vec2 {
	return Vec2{X: (float64(c.X) + 0.5) * g.res, Y: (float64(c.Y) + 0.5) * g.res}
}

func (g *Grid) cellInNest(n Nest, c Coord) bool {
	x0, y0 := float64(c.X)*g.res, float64(c.Y)*g.res
	return n.overlapsRect(x0, y0, x0+g.res, y0+g.res)
}

// square returns all cells of the (2r+1)x(2r+1) square around center, ordered by
// x then y.
func square(center Coord, r int) []Coord {
	if r < 0 {
		r = 0
	}
	out := make([]Coord, 0, (2*r+1)*(2*r+1))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			out = append(out, center.Add(dx, dy))
		}
	}
	sortCoords(out)
	return out
}

// ring returns the cells at exact Chebyshev distance r from center.
func ring(center Coord, r int) []Coord {
	if r <= 0 {
		return []Coord{center}
	}
	out := make([]Coord, 0, r*8)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if abs(dx) != r && abs(dy) != r {
				continue
			}
			out = append(out, center.Add(dx, dy))
		}
	}
	sortCoords(out)
	return out
}

func sortCoords(out []Coord) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
