// Package events is the closed set of arena operations robots can complete and
// the notifications that tell a robot its view of the arena went stale.
//
// Each operation mutates the arena in one transaction, updates the robot's
// carrying state, and is delivered to every robot-side recipient (controller,
// task, goal-acquisition FSM) that implements the matching consumer interface.
package events

import "foragearena.ai/internal/sim/arena"

// Robot is what the dispatcher needs from the robot performing an operation.
type Robot interface {
	ID() arena.RobotID
	Position() arena.Vec2
	CarriedBlock() (arena.BlockID, bool)
	SetCarried(id arena.BlockID)
	ClearCarried()
	// Recipients lists the components that may consume events, in delivery order.
	Recipients() []any
}

type FreeBlockPickup struct {
	Tick  uint64
	Block arena.Block
}

// NestBlockDrop carries the block as it was when delivered, before its usage
// metrics were reset and it was redistributed.
type NestBlockDrop struct {
	Tick      uint64
	Block     arena.Block
	Delivered arena.Vec2
}

type CacheBlockPickup struct {
	Tick     uint64
	Block    arena.Block
	Cache    arena.Cache
	Depleted bool
}

type CacheBlockDrop struct {
	Tick  uint64
	Block arena.Block
	Cache arena.Cache
}

type NewCacheBlockDrop struct {
	Tick  uint64
	Block arena.Block
}

type CacheSiteBlockDrop struct {
	Tick  uint64
	Block arena.Block
}

// FreeBlockDrop is the forced drop performed when a robot aborts its task while
// carrying.
type FreeBlockDrop struct {
	Tick          uint64
	Block         arena.Block
	Redistributed bool
}

type BlockVanished struct {
	Tick  uint64
	Block arena.BlockID
}

type CacheVanished struct {
	Tick  uint64
	Cache arena.CacheID
}

// BlockProximity refuses a drop because Block lies too close to the drop point.
type BlockProximity struct {
	Tick  uint64
	Block arena.Block
}

// CacheProximity refuses a drop because Cache lies too close to the drop point.
type CacheProximity struct {
	Tick  uint64
	Cache arena.Cache
}

type FreeBlockPickupConsumer interface {
	AcceptFreeBlockPickup(ev FreeBlockPickup)
}

type NestBlockDropConsumer interface {
	AcceptNestBlockDrop(ev NestBlockDrop)
}

type CacheBlockPickupConsumer interface {
	AcceptCacheBlockPickup(ev CacheBlockPickup)
}

type CacheBlockDropConsumer interface {
	AcceptCacheBlockDrop(ev CacheBlockDrop)
}

type NewCacheBlockDropConsumer interface {
	AcceptNewCacheBlockDrop(ev NewCacheBlockDrop)
}

type CacheSiteBlockDropConsumer interface {
	AcceptCacheSiteBlockDrop(ev CacheSiteBlockDrop)
}

type FreeBlockDropConsumer interface {
	AcceptFreeBlockDrop(ev FreeBlockDrop)
}

type BlockVanishedConsumer interface {
	AcceptBlockVanished(ev BlockVanished)
}

type CacheVanishedConsumer interface {
	AcceptCacheVanished(ev CacheVanished)
}

type BlockProximityConsumer interface {
	AcceptBlockProximity(ev BlockProximity)
}

type CacheProximityConsumer interface {
	AcceptCacheProximity(ev CacheProximity)
}

// deliver hands an event to every recipient exposing capability C.
func deliver[C any](r Robot, fn func(C)) int {
	n := 0
	for _, rec := range r.Recipients() {
		if c, ok := rec.(C); ok {
			fn(c)
			n++
		}
	}
	return n
}
