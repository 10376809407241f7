// Package interactor decides, once per tick and robot, which arena operation to
// start or finish. Every operation is gated by the penalty scheduler: a robot
// begins a penalty on one Step and the operation completes on a later Step once
// the penalty is satisfied.
package interactor

import (
	"io"
	"log"
	"strconv"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/assert"
	"foragearena.ai/internal/sim/events"
	"foragearena.ai/internal/sim/penalty"
)

type GoalKind uint8

const (
	GoalNone GoalKind = iota
	GoalBlock
	GoalCache
	GoalNest
	GoalNewCache
	GoalCacheSite
)

func (k GoalKind) String() string {
	switch k {
	case GoalNone:
		return "none"
	case GoalBlock:
		return "block"
	case GoalCache:
		return "cache"
	case GoalNest:
		return "nest"
	case GoalNewCache:
		return "new_cache"
	case GoalCacheSite:
		return "cache_site"
	default:
		return "goal(" + strconv.Itoa(int(k)) + ")"
	}
}

// Goal is what the robot's goal-acquisition machinery is heading for. Block and
// Cache name the targeted entity where one applies.
type Goal struct {
	Kind     GoalKind
	Block    arena.BlockID
	Cache    arena.CacheID
	Acquired bool
}

type Robot interface {
	events.Robot
	TaskAborted() bool
	Goal() Goal
}

// Taskable is implemented by robots that run a task allocator. Stepping one with
// no current task is a contract violation.
type Taskable interface {
	HasTask() bool
}

// Metrics receives interaction outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	PenaltyBegun(rec penalty.Record)
	Interacted(robot arena.RobotID, s Status)
}

// Env is everything the interactor needs, passed explicitly.
type Env struct {
	Log        *log.Logger
	Arena      *arena.Arena
	Penalties  *penalty.Scheduler
	Dispatcher *events.Dispatcher
	Durations  penalty.Durations
	Metrics    Metrics
}

type Interactor struct {
	env Env
}

func New(env Env) *Interactor {
	if env.Log == nil {
		env.Log = log.New(io.Discard, "", 0)
	}
	return &Interactor{env: env}
}

// Step runs the interaction procedure for r at tick.
func (in *Interactor) Step(r Robot, tick uint64) Status {
	if t, ok := r.(Taskable); ok && !t.HasTask() {
		assert.Failf(in.env.Log, "robot %d stepped without a task", r.ID())
		return NoEvent
	}
	s := in.step(r, tick)
	if in.env.Metrics != nil {
		in.env.Metrics.Interacted(r.ID(), s)
	}
	return s
}

func (in *Interactor) step(r Robot, tick uint64) Status {
	id := r.ID()
	if r.TaskAborted() {
		if _, carrying := r.CarriedBlock(); carrying {
			in.env.Dispatcher.TaskAbortDrop(r, tick)
		}
		in.env.Penalties.Abort(id)
		return TaskAbort
	}
	if in.env.Penalties.IsServing(id) {
		if !in.env.Penalties.IsSatisfied(id, tick) {
			return NoEvent
		}
		rec, _ := in.env.Penalties.TakeNext(id)
		return in.finalize(r, rec, tick)
	}
	in.begin(r, tick)
	return NoEvent
}

func (in *Interactor) finalize(r Robot, rec penalty.Record, tick uint64) Status {
	d := in.env.Dispatcher
	var (
		out events.Outcome
		s   Status
	)
	switch rec.Kind {
	case penalty.FreeBlockPickup:
		out, s = d.FreeBlockPickup(r, arena.BlockID(rec.Target), tick), FreeBlockPickup
	case penalty.NestBlockDrop:
		out, s = d.NestBlockDrop(r, tick), NestBlockDrop
	case penalty.CacheBlockPickup:
		out, s = d.CacheBlockPickup(r, arena.CacheID(rec.Target), tick), CachePickup
	case penalty.CacheBlockDrop:
		out, s = d.CacheBlockDrop(r, arena.CacheID(rec.Target), tick), CacheDrop
	case penalty.NewCacheBlockDrop:
		out, s = d.NewCacheBlockDrop(r, tick), NewCacheBlockDrop
	case penalty.CacheSiteBlockDrop:
		out, s = d.CacheSiteBlockDrop(r, tick), CacheSiteBlockDrop
	default:
		assert.Failf(in.env.Log, "robot %d finalized unknown penalty kind %s", r.ID(), rec.Kind)
		return NoEvent
	}
	if out != events.Done {
		return NoEvent
	}
	return s
}

// plan is what begin decided while holding a read view. Notifications and the
// penalty itself are issued after the view is released.
type plan struct {
	kind     penalty.Kind
	target   int
	start    bool
	vanished func()
	conflict events.Conflict
}

func (in *Interactor) begin(r Robot, tick uint64) {
	g := r.Goal()
	if !g.Acquired || g.Kind == GoalNone {
		return
	}
	var p plan
	in.env.Arena.Read(func(v arena.View) { p = in.plan(v, r, g, tick) })

	d := in.env.Dispatcher
	switch {
	case p.vanished != nil:
		p.vanished()
	case p.conflict.Found():
		d.Refuse(r, p.conflict, tick)
	case p.start:
		dur := in.env.Durations.At(p.kind, tick)
		rec, err := in.env.Penalties.Begin(r.ID(), p.kind, p.target, tick, dur)
		if err != nil {
			assert.Failf(in.env.Log, "robot %d: %v", r.ID(), err)
			return
		}
		if in.env.Metrics != nil {
			in.env.Metrics.PenaltyBegun(rec)
		}
	}
}

func (in *Interactor) plan(v arena.View, r Robot, g Goal, tick uint64) plan {
	d := in.env.Dispatcher
	pos := r.Position()
	carried, carrying := r.CarriedBlock()

	if carrying {
		switch g.Kind {
		case GoalNest:
			if v.InNest(pos) {
				return plan{kind: penalty.NestBlockDrop, target: int(carried), start: true}
			}
		case GoalCache:
			cid, ok := v.CacheByPosition(pos)
			if !ok {
				return plan{vanished: func() { d.CacheVanished(r, g.Cache, tick) }}
			}
			return plan{kind: penalty.CacheBlockDrop, target: int(cid), start: true}
		case GoalNewCache, GoalCacheSite:
			site := g.Kind == GoalCacheSite
			if c := d.CheckDrop(v, pos, carried, site); c.Found() {
				return plan{conflict: c}
			}
			kind := penalty.NewCacheBlockDrop
			if site {
				kind = penalty.CacheSiteBlockDrop
			}
			return plan{kind: kind, target: int(carried), start: true}
		}
		return plan{}
	}

	switch g.Kind {
	case GoalBlock:
		bid, ok := v.BlockByPosition(pos)
		if !ok || (g.Block != arena.NoBlock && bid != g.Block) {
			return plan{vanished: func() { d.BlockVanished(r, g.Block, tick) }}
		}
		return plan{kind: penalty.FreeBlockPickup, target: int(bid), start: true}
	case GoalCache:
		cid, ok := v.CacheByPosition(pos)
		if !ok {
			return plan{vanished: func() { d.CacheVanished(r, g.Cache, tick) }}
		}
		return plan{kind: penalty.CacheBlockPickup, target: int(cid), start: true}
	}
	return plan{}
}
