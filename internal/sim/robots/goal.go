package robots

import (
	"fmt"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/events"
	"foragearena.ai/internal/sim/interactor"
)

type goalState uint8

const (
	goalIdle goalState = iota
	goalVectoring
	goalArrived
)

func (s goalState) String() string {
	switch s {
	case goalIdle:
		return "idle"
	case goalVectoring:
		return "vectoring"
	case goalArrived:
		return "arrived"
	default:
		return fmt.Sprintf("goal_state(%d)", uint8(s))
	}
}

type goalEvent uint8

const (
	evSelect goalEvent = iota
	evArrive
	evDepart
	evLost
	evDone
)

func transitionGoal(s goalState, ev goalEvent) goalState {
	switch ev {
	case evSelect:
		return goalVectoring
	case evArrive:
		if s != goalIdle {
			return goalArrived
		}
	case evDepart:
		if s == goalArrived {
			return goalVectoring
		}
	case evLost, evDone:
		return goalIdle
	}
	return s
}

var noGoal = interactor.Goal{Kind: interactor.GoalNone, Block: arena.NoBlock, Cache: arena.NoCache}

// acquirer is the goal-acquisition state machine. It receives the outcome of
// every operation and drops its goal when one completes or goes stale.
type acquirer struct {
	state  goalState
	goal   interactor.Goal
	target arena.Vec2
	// lost counts goals abandoned to races and refusals; it salts the next site.
	lost int
}

func newAcquirer() acquirer { return acquirer{goal: noGoal} }

func (a *acquirer) set(g interactor.Goal, target arena.Vec2) {
	g.Acquired = false
	a.goal = g
	a.target = target
	a.state = transitionGoal(a.state, evSelect)
}

func (a *acquirer) fire(ev goalEvent) {
	a.state = transitionGoal(a.state, ev)
	if a.state == goalIdle {
		a.goal = noGoal
	}
	if ev == evLost {
		a.lost++
	}
}

func (a *acquirer) current() interactor.Goal {
	g := a.goal
	g.Acquired = a.state == goalArrived && g.Kind != interactor.GoalNone
	return g
}

func (a *acquirer) AcceptFreeBlockPickup(events.FreeBlockPickup)       { a.fire(evDone) }
func (a *acquirer) AcceptCacheBlockPickup(events.CacheBlockPickup)     { a.fire(evDone) }
func (a *acquirer) AcceptNestBlockDrop(events.NestBlockDrop)           { a.fire(evDone) }
func (a *acquirer) AcceptCacheBlockDrop(events.CacheBlockDrop)         { a.fire(evDone) }
func (a *acquirer) AcceptNewCacheBlockDrop(events.NewCacheBlockDrop)   { a.fire(evDone) }
func (a *acquirer) AcceptCacheSiteBlockDrop(events.CacheSiteBlockDrop) { a.fire(evDone) }
func (a *acquirer) AcceptFreeBlockDrop(events.FreeBlockDrop)           { a.fire(evDone) }
func (a *acquirer) AcceptBlockProximity(events.BlockProximity)         { a.fire(evLost) }
func (a *acquirer) AcceptCacheProximity(events.CacheProximity)         { a.fire(evLost) }

// Vanished notices only matter for the entity being pursued.
func (a *acquirer) AcceptBlockVanished(ev events.BlockVanished) {
	if a.goal.Block == ev.Block && ev.Block != arena.NoBlock {
		a.fire(evLost)
	}
}

func (a *acquirer) AcceptCacheVanished(ev events.CacheVanished) {
	if a.goal.Cache == ev.Cache && ev.Cache != arena.NoCache {
		a.fire(evLost)
	}
}
