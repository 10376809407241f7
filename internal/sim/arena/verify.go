package arena

import (
	"fmt"
	"strings"
)

// SanityError is an invariant breach. It is simulation-fatal: callers halt and
// report it rather than attempt repair.
type SanityError struct {
	Counts   Counts
	Expected int
	Problems []string
}

func (e *SanityError) Error() string {
	const maxShown = 8
	shown := e.Problems
	more := ""
	if len(shown) > maxShown {
		more = fmt.Sprintf(" (+%d more)", len(shown)-maxShown)
		shown = shown[:maxShown]
	}
	return fmt.Sprintf("arena sanity check failed: total=%d expected=%d free=%d carried=%d cached=%d caches=%d: %s%s",
		e.Counts.Total, e.Expected, e.Counts.Free, e.Counts.Carried, e.Counts.Cached, e.Counts.Caches,
		strings.Join(shown, "; "), more)
}

func (s *state) verify(total int) error {
	var probs []string
	addf := func(format string, args ...any) { probs = append(probs, fmt.Sprintf(format, args...)) }

	counts := s.Counts()
	if counts.Total != total || counts.Free+counts.Carried+counts.Cached != total {
		addf("conservation: free(%d)+carried(%d)+cached(%d) != %d", counts.Free, counts.Carried, counts.Cached, total)
	}

	// Single ownership: count every place a block is referenced from.
	inCaches := make(map[BlockID]int, counts.Cached)
	claimed := map[Coord]CacheID{}
	for _, id := range s.cacheIDs() {
		c := s.caches[id]
		if len(c.Blocks) < MinBlocks {
			addf("cache %d at %s holds %d blocks (< %d)", c.ID, c.CenterCell, len(c.Blocks), MinBlocks)
		}
		for _, bid := range c.Blocks {
			inCaches[bid]++
			if b, ok := s.Block(bid); !ok || b.State != Cached || b.Cache != c.ID {
				addf("cache %d lists block %d which is %v", c.ID, bid, b)
			}
		}
		for _, e := range c.Extent {
			if other, dup := claimed[e]; dup {
				addf("caches %d and %d overlap at %s", other, c.ID, e)
			}
			claimed[e] = c.ID
			if s.CellInNest(e) {
				addf("cache %d footprint cell %s overlaps nest", c.ID, e)
			}
			cell := s.grid.At(e)
			want := CacheExtent
			if e == c.CenterCell {
				want = HasCache
			}
			if cell.State != want || cell.Cache != c.ID {
				addf("cache %d footprint cell %s is %s(cache=%d), want %s", c.ID, e, cell.State, cell.Cache, want)
			}
		}
	}

	for i := range s.blocks {
		b := &s.blocks[i]
		switch b.State {
		case Free:
			cell := s.grid.At(b.Cell)
			if cell.State != HasBlock || cell.Block != b.ID {
				addf("free block %d at %s but cell is %s(block=%d)", b.ID, b.Cell, cell.State, cell.Block)
			}
			if inCaches[b.ID] != 0 {
				addf("free block %d also listed in a cache", b.ID)
			}
		case Carried:
			if b.Robot == NoRobot {
				addf("block %d carried by nobody", b.ID)
			}
			if inCaches[b.ID] != 0 {
				addf("carried block %d also listed in a cache", b.ID)
			}
		case Cached:
			if inCaches[b.ID] != 1 {
				addf("cached block %d listed %d times", b.ID, inCaches[b.ID])
			}
		}
	}

	w, h := s.grid.Dims()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := Coord{X: x, Y: y}
			cell := s.grid.At(c)
			switch cell.State {
			case HasBlock:
				b, ok := s.Block(cell.Block)
				if !ok || b.State != Free || b.Cell != c {
					addf("cell %s claims block %d which is %v", c, cell.Block, b)
				}
			case HasCache, CacheExtent:
				if owner, ok := claimed[c]; !ok || owner != cell.Cache {
					addf("cell %s claims cache %d which does not cover it", c, cell.Cache)
				}
			}
		}
	}

	if len(probs) == 0 {
		return nil
	}
	return &SanityError{Counts: counts, Expected: total, Problems: probs}
}
