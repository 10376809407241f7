// Package penalty turns an instantaneous arena request into a delayed-completion
// operation. A robot holds at most one outstanding penalty; it re-polls
// IsSatisfied each tick instead of blocking.
package penalty

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"foragearena.ai/internal/sim/arena"
)

var ErrAlreadyServing = errors.New("robot already serving a penalty")

type Kind uint8

const (
	FreeBlockPickup Kind = iota
	NestBlockDrop
	CacheBlockPickup
	CacheBlockDrop
	NewCacheBlockDrop
	CacheSiteBlockDrop

	kindCount
)

var kindNames = [kindCount]string{
	FreeBlockPickup:    "free_block_pickup",
	NestBlockDrop:      "nest_block_drop",
	CacheBlockPickup:   "cache_block_pickup",
	CacheBlockDrop:     "cache_block_drop",
	NewCacheBlockDrop:  "new_cache_block_drop",
	CacheSiteBlockDrop: "cache_site_block_drop",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds lists every operation kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// TargetsCache reports whether the record target is a cache id rather than a
// block id.
func (k Kind) TargetsCache() bool { return k == CacheBlockPickup || k == CacheBlockDrop }

type Record struct {
	Robot    arena.RobotID
	Kind     Kind
	Target   int
	Start    uint64
	Duration uint64
}

func (r Record) Finish() uint64 { return r.Start + r.Duration }

func (r Record) Satisfied(now uint64) bool {
	return now >= r.Start && now-r.Start >= r.Duration
}

// KindStats are cumulative counters for one operation kind.
type KindStats struct {
	Begun   int    `json:"begun"`
	Served  int    `json:"served"`
	Aborted int    `json:"aborted"`
	Ticks   uint64 `json:"ticks"`
}

type Scheduler struct {
	mu         sync.Mutex
	recs       map[arena.RobotID]Record
	deconflict bool
	stats      [kindCount]KindStats
}

// NewScheduler creates an empty scheduler. With deconflict set, a new penalty is
// stretched one tick at a time until no other penalty on the same target finishes
// on the same tick.
func NewScheduler(deconflict bool) *Scheduler {
	return &Scheduler{recs: map[arena.RobotID]Record{}, deconflict: deconflict}
}

func (s *Scheduler) Begin(robot arena.RobotID, kind Kind, target int, now, duration uint64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.recs[robot]; ok {
		return cur, fmt.Errorf("robot %d (%s on %d since %d): %w", robot, cur.Kind, cur.Target, cur.Start, ErrAlreadyServing)
	}
	if s.deconflict {
		for s.finishCollides(kind, target, now+duration) {
			duration++
		}
	}
	rec := Record{Robot: robot, Kind: kind, Target: target, Start: now, Duration: duration}
	s.recs[robot] = rec
	s.stats[kind].Begun++
	return rec, nil
}

func (s *Scheduler) finishCollides(kind Kind, target int, finish uint64) bool {
	for _, r := range s.recs {
		if r.Target == target && r.Kind.TargetsCache() == kind.TargetsCache() && r.Finish() == finish {
			return true
		}
	}
	return false
}

func (s *Scheduler) IsServing(robot arena.RobotID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recs[robot]
	return ok
}

// IsSatisfied reports whether robot's penalty has run its full duration. It is
// false for robots not serving one.
func (s *Scheduler) IsSatisfied(robot arena.RobotID, now uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[robot]
	return ok && r.Satisfied(now)
}

func (s *Scheduler) Peek(robot arena.RobotID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[robot]
	return r, ok
}

// TakeNext removes and returns robot's penalty so the operation can be
// finalized.
func (s *Scheduler) TakeNext(robot arena.RobotID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[robot]
	if !ok {
		return Record{}, false
	}
	delete(s.recs, robot)
	s.stats[r.Kind].Served++
	s.stats[r.Kind].Ticks += r.Duration
	return r, true
}

// Abort flushes robot's penalty without finalizing it.
func (s *Scheduler) Abort(robot arena.RobotID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[robot]
	if !ok {
		return false
	}
	delete(s.recs, robot)
	s.stats[r.Kind].Aborted++
	return true
}

// Due returns the satisfied penalties in finalization order: earlier start
// first, robot id breaking ties.
func (s *Scheduler) Due(now uint64) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.recs))
	for _, r := range s.recs {
		if r.Satisfied(now) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

// Outstanding returns every penalty, satisfied or not, in finalization order.
func (s *Scheduler) Outstanding() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	sortRecords(out)
	return out
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func (s *Scheduler) Stats() map[Kind]KindStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Kind]KindStats, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out[k] = s.stats[k]
	}
	return out
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Start != rs[j].Start {
			return rs[i].Start < rs[j].Start
		}
		return rs[i].Robot < rs[j].Robot
	})
}
