// Package robots is a small foraging controller that drives the arena end to
// end. Each robot runs a behavior tree over its belief of the arena and hands
// the resulting goal to the interactor.
package robots

import (
	"fmt"
	"math"

	bt "github.com/joeycumines/go-behaviortree"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/interactor"
	"foragearena.ai/internal/sim/mathx"
)

const saltAbort = 0xab7

type Config struct {
	Seed        int64
	Speed       float64
	SenseRadius float64
	AbortProb   float64
	Mix         Mix
}

type Robot struct {
	id  arena.RobotID
	cfg Config

	pos     arena.Vec2
	carried arena.BlockID
	aborted bool
	wanders int

	task task
	mem  belief
	acq  acquirer
	tree bt.Node

	// view is only set while the tree ticks.
	view arena.View
}

func New(id arena.RobotID, pos arena.Vec2, cfg Config) *Robot {
	r := &Robot{
		id:      id,
		cfg:     cfg,
		pos:     pos,
		carried: arena.NoBlock,
		task:    task{kind: cfg.Mix.pick(cfg.Seed, int(id), 0)},
		mem:     newBelief(),
		acq:     newAcquirer(),
	}
	r.tree = r.buildTree()
	return r
}

func (r *Robot) ID() arena.RobotID     { return r.id }
func (r *Robot) Position() arena.Vec2  { return r.pos }
func (r *Robot) TaskAborted() bool     { return r.aborted }
func (r *Robot) Goal() interactor.Goal { return r.acq.current() }
func (r *Robot) HasTask() bool         { return r.task.kind != NoTask }
func (r *Robot) Task() TaskKind        { return r.task.kind }
func (r *Robot) Stats() TaskStats      { return r.task.stats }

func (r *Robot) CarriedBlock() (arena.BlockID, bool) {
	return r.carried, r.carried != arena.NoBlock
}

func (r *Robot) SetCarried(id arena.BlockID) { r.carried = id }
func (r *Robot) ClearCarried()               { r.carried = arena.NoBlock }

// Recipients are the controller's memory, the task and the goal machine, in
// that order.
func (r *Robot) Recipients() []any { return []any{&r.mem, &r.task, &r.acq} }

// Control runs one tick of sensing, deciding and moving. It only reads v, so
// robots may be controlled concurrently. A robot serving a penalty senses but
// holds still.
func (r *Robot) Control(v arena.View, tick uint64, serving bool) error {
	r.aborted = mathx.Roll(r.cfg.Seed, int(r.id), int(tick), saltAbort, r.cfg.AbortProb)
	if r.aborted {
		r.task.stats.Aborts++
		r.task.kind = r.cfg.Mix.pick(r.cfg.Seed, int(r.id), int(tick))
		r.acq.fire(evDone)
		return nil
	}
	r.mem.sense(v, r.pos, r.cfg.SenseRadius)
	if serving {
		return nil
	}

	r.view = v
	defer func() { r.view = nil }()
	if _, err := r.tree.Tick(); err != nil {
		return fmt.Errorf("robot %d: %w", r.id, err)
	}
	if r.acq.state != goalIdle {
		r.move(v)
	}
	return nil
}

func (r *Robot) move(v arena.View) {
	d := r.acq.target.Sub(r.pos)
	if n := d.Len(); n > r.cfg.Speed {
		d = d.Scale(r.cfg.Speed / n)
	}
	size := v.Size()
	p := r.pos.Add(d)
	p.X = math.Min(math.Max(p.X, 0), math.Nextafter(size.X, 0))
	p.Y = math.Min(math.Max(p.Y, 0), math.Nextafter(size.Y, 0))
	r.pos = p

	if r.arrived(v) {
		r.acq.fire(evArrive)
	} else {
		r.acq.fire(evDepart)
	}
}

func (r *Robot) arrived(v arena.View) bool {
	if r.acq.goal.Kind == interactor.GoalNest {
		return v.InNest(r.pos)
	}
	return v.Discretize(r.pos) == v.Discretize(r.acq.target)
}

// State is the externally visible robot state.
type State struct {
	ID      arena.RobotID `json:"id"`
	Pos     arena.Vec2    `json:"pos"`
	Carried arena.BlockID `json:"carried"`
	Task    string        `json:"task"`
	Goal    string        `json:"goal"`
	Stats   TaskStats     `json:"stats"`
}

func (r *Robot) State() State {
	return State{
		ID:      r.id,
		Pos:     r.pos,
		Carried: r.carried,
		Task:    r.task.kind.String(),
		Goal:    r.acq.goal.Kind.String(),
		Stats:   r.task.stats,
	}
}
