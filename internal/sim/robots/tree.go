package robots

import (
	bt "github.com/joeycumines/go-behaviortree"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/interactor"
	"foragearena.ai/internal/sim/mathx"
)

const (
	saltWander = 0x3e1
	saltSite   = 0x3e2
	saltNest   = 0x3e3
)

// buildTree wires the controller. A goal that is still valid is kept; otherwise
// a carrying robot picks where to drop and an empty-handed one picks what to
// fetch, falling back to exploring.
func (r *Robot) buildTree() bt.Node {
	return bt.New(bt.Selector,
		bt.New(bt.Sequence, r.cond(r.pursuing), r.leaf(r.keep)),
		bt.New(bt.Sequence, r.cond(r.carrying),
			bt.New(bt.Selector,
				r.leaf(r.toNest),
				r.leaf(r.toCache),
				r.leaf(r.toNewCache),
				r.leaf(r.toCacheSite),
			),
		),
		bt.New(bt.Selector,
			r.leaf(r.fromCache),
			r.leaf(r.fromBlock),
			r.leaf(r.explore),
		),
	)
}

func (r *Robot) cond(fn func() bool) bt.Node {
	return bt.New(func([]bt.Node) (bt.Status, error) {
		if fn() {
			return bt.Success, nil
		}
		return bt.Failure, nil
	})
}

func (r *Robot) leaf(fn func() bt.Status) bt.Node {
	return bt.New(func([]bt.Node) (bt.Status, error) { return fn(), nil })
}

func (r *Robot) carrying() bool { return r.carried != arena.NoBlock }

func (r *Robot) pursuing() bool {
	g := r.acq.goal
	switch g.Kind {
	case interactor.GoalBlock:
		c, ok := r.mem.blocks[g.Block]
		return ok && !r.carrying() && r.view.CellCenter(c) == r.acq.target
	case interactor.GoalCache:
		_, ok := r.mem.caches[g.Cache]
		return ok
	case interactor.GoalNest, interactor.GoalNewCache, interactor.GoalCacheSite:
		return r.carrying()
	}
	return false
}

func (r *Robot) keep() bt.Status { return bt.Running }

func (r *Robot) toNest() bt.Status {
	if r.task.kind != Generalist && r.task.kind != Collector {
		return bt.Failure
	}
	n := r.view.Nest()
	h := mathx.Hash3(r.cfg.Seed, int(r.id), r.task.stats.Delivered, saltNest)
	jx := (mathx.Unit(h) - 0.5) * n.Span.X / 2
	jy := (mathx.Unit(h>>17) - 0.5) * n.Span.Y / 2
	r.acq.set(interactor.Goal{Kind: interactor.GoalNest, Block: arena.NoBlock, Cache: arena.NoCache},
		n.Center.Add(arena.Vec2{X: jx, Y: jy}))
	return bt.Success
}

func (r *Robot) toCache() bt.Status {
	if r.task.kind != Harvester {
		return bt.Failure
	}
	id, center, ok := r.mem.nearestCache(r.pos)
	if !ok {
		return bt.Failure
	}
	r.acq.set(interactor.Goal{Kind: interactor.GoalCache, Block: arena.NoBlock, Cache: id}, center)
	return bt.Success
}

// toNewCache drops next to a known free block so the pair can grow into a cache.
func (r *Robot) toNewCache() bt.Status {
	if r.task.kind != Harvester {
		return bt.Failure
	}
	_, cell, ok := r.mem.nearestBlock(r.pos, r.view)
	if !ok {
		return bt.Failure
	}
	for _, d := range [][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}} {
		c := cell.Add(d[0], d[1])
		if !r.view.InBounds(c) || r.view.CellInNest(c) || r.view.CellAt(c).State != arena.Empty {
			continue
		}
		r.acq.set(interactor.Goal{Kind: interactor.GoalNewCache, Block: r.carried, Cache: arena.NoCache}, r.view.CellCenter(c))
		return bt.Success
	}
	return bt.Failure
}

func (r *Robot) toCacheSite() bt.Status {
	if r.task.kind != Harvester {
		return bt.Failure
	}
	p, ok := r.randomPoint(r.acq.lost, saltSite)
	if !ok {
		return bt.Failure
	}
	r.acq.set(interactor.Goal{Kind: interactor.GoalCacheSite, Block: r.carried, Cache: arena.NoCache}, p)
	return bt.Success
}

func (r *Robot) fromCache() bt.Status {
	if r.task.kind != Collector || r.carrying() {
		return bt.Failure
	}
	id, center, ok := r.mem.nearestCache(r.pos)
	if !ok {
		return bt.Failure
	}
	r.acq.set(interactor.Goal{Kind: interactor.GoalCache, Block: arena.NoBlock, Cache: id}, center)
	return bt.Success
}

func (r *Robot) fromBlock() bt.Status {
	if r.task.kind == Collector || r.carrying() {
		return bt.Failure
	}
	id, cell, ok := r.mem.nearestBlock(r.pos, r.view)
	if !ok {
		return bt.Failure
	}
	r.acq.set(interactor.Goal{Kind: interactor.GoalBlock, Block: id, Cache: arena.NoCache}, r.view.CellCenter(cell))
	return bt.Success
}

// explore wanders between random points until something worth fetching is seen.
func (r *Robot) explore() bt.Status {
	if r.acq.goal.Kind == interactor.GoalNone && r.acq.state == goalVectoring {
		return bt.Running
	}
	r.wanders++
	if p, ok := r.randomPoint(r.wanders, saltWander); ok {
		r.acq.set(noGoal, p)
	}
	return bt.Running
}

// randomPoint draws an empty cell outside the nest.
func (r *Robot) randomPoint(salt, kind int) (arena.Vec2, bool) {
	w, h := r.view.Dims()
	for k := 0; k < 16; k++ {
		x := mathx.Hash3(r.cfg.Seed, int(r.id), salt*31+k, kind)
		c := arena.Coord{X: int(x % uint64(w)), Y: int((x >> 32) % uint64(h))}
		if r.view.CellInNest(c) || r.view.CellAt(c).State != arena.Empty {
			continue
		}
		return r.view.CellCenter(c), true
	}
	return arena.Vec2{}, false
}
