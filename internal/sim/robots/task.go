package robots

import (
	"fmt"

	"foragearena.ai/internal/sim/events"
	"foragearena.ai/internal/sim/mathx"
)

type TaskKind uint8

const (
	NoTask TaskKind = iota
	// Generalist fetches free blocks and delivers them to the nest.
	Generalist
	// Harvester fetches free blocks and drops them in caches, starting new ones
	// when it knows of none.
	Harvester
	// Collector takes blocks out of caches and delivers them to the nest.
	Collector
)

func (k TaskKind) String() string {
	switch k {
	case NoTask:
		return "none"
	case Generalist:
		return "generalist"
	case Harvester:
		return "harvester"
	case Collector:
		return "collector"
	default:
		return fmt.Sprintf("task(%d)", uint8(k))
	}
}

// Mix weights the tasks robots are allocated.
type Mix struct {
	Generalist float64
	Harvester  float64
	Collector  float64
}

const saltTask = 0x7a5c

func (m Mix) pick(seed int64, id, salt int) TaskKind {
	total := m.Generalist + m.Harvester + m.Collector
	if total <= 0 {
		return Generalist
	}
	x := mathx.Unit(mathx.Hash3(seed, id, salt, saltTask)) * total
	switch {
	case x < m.Generalist:
		return Generalist
	case x < m.Generalist+m.Harvester:
		return Harvester
	default:
		return Collector
	}
}

// TaskStats counts what a robot completed under its tasks.
type TaskStats struct {
	Harvested int `json:"harvested"`
	Collected int `json:"collected"`
	Delivered int `json:"delivered"`
	Cached    int `json:"cached"`
	Dropped   int `json:"dropped"`
	Aborts    int `json:"aborts"`
}

type task struct {
	kind  TaskKind
	stats TaskStats
}

func (t *task) AcceptFreeBlockPickup(events.FreeBlockPickup)       { t.stats.Harvested++ }
func (t *task) AcceptCacheBlockPickup(events.CacheBlockPickup)     { t.stats.Collected++ }
func (t *task) AcceptNestBlockDrop(events.NestBlockDrop)           { t.stats.Delivered++ }
func (t *task) AcceptCacheBlockDrop(events.CacheBlockDrop)         { t.stats.Cached++ }
func (t *task) AcceptNewCacheBlockDrop(events.NewCacheBlockDrop)   { t.stats.Cached++ }
func (t *task) AcceptCacheSiteBlockDrop(events.CacheSiteBlockDrop) { t.stats.Cached++ }
func (t *task) AcceptFreeBlockDrop(events.FreeBlockDrop)           { t.stats.Dropped++ }
