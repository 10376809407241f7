// Package caches creates and retires caches: static caches at configured sites,
// respawned probabilistically after depletion, and dynamic caches grown from
// clusters of free blocks.
//
// Update must run single-threaded after every robot has interacted with the
// arena for the tick. CacheDepleted is the only method called during the
// interaction phase.
package caches

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/mathx"
)

type Config struct {
	Sites       []arena.Vec2
	StaticSize  int
	Dynamic     bool
	MinDist     float64
	ClusterDist float64
	Seed        int64
}

// Stats are cumulative lifecycle counters.
type Stats struct {
	Created       int    `json:"created"`
	Depleted      int    `json:"depleted"`
	Discarded     int    `json:"discarded"`
	Active        int    `json:"active"`
	LifetimeTicks uint64 `json:"lifetime_ticks"`
}

func (s Stats) AvgLifetime() float64 {
	if s.Depleted == 0 {
		return 0
	}
	return float64(s.LifetimeTicks) / float64(s.Depleted)
}

// Report summarizes one Update.
type Report struct {
	Created   []arena.CacheID
	Depleted  int
	Cleared   int
	Discarded int
}

type Manager struct {
	log   *log.Logger
	arena *arena.Arena
	cfg   Config
	total int

	policy  RespawnPolicy
	counter TaskCounter

	mu      sync.Mutex
	sites   []Site
	started bool
	pending int // depletions since the last Update
	stats   Stats
}

// NewManager builds a manager over a. total is the number of blocks in the
// arena, checked by the conservation invariant after every batch.
func NewManager(a *arena.Arena, cfg Config, total int, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.StaticSize < arena.MinBlocks {
		cfg.StaticSize = arena.MinBlocks
	}
	m := &Manager{log: logger, arena: a, cfg: cfg, total: total, policy: Always{}}
	for _, c := range cfg.Sites {
		m.sites = append(m.sites, Site{Center: c, State: NoCache, Cache: arena.NoCache})
	}
	return m
}

// SetRespawn installs the policy used to recreate depleted static caches.
func (m *Manager) SetRespawn(p RespawnPolicy, c TaskCounter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p != nil {
		m.policy = p
	}
	m.counter = c
}

func (m *Manager) Sites() []Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Site(nil), m.sites...)
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) siteOf(id arena.CacheID) int {
	for i := range m.sites {
		if m.sites[i].Cache == id && m.sites[i].State == Active {
			return i
		}
	}
	return -1
}

func (m *Manager) step(i int, ev siteEvent, tick uint64) {
	next, ok := transition(m.sites[i].State, ev)
	if !ok {
		m.log.Printf("cache site %d: ignoring event %d in state %s", i, ev, m.sites[i].State)
		return
	}
	m.sites[i].State = next
	m.sites[i].Since = tick
}

// CacheDepleted records a depletion. It runs inside the pickup transaction and
// does not touch the arena.
func (m *Manager) CacheDepleted(c arena.Cache, tick uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Depleted++
	m.stats.Active--
	m.pending++
	if tick > c.CreatedTick {
		m.stats.LifetimeTicks += tick - c.CreatedTick
	}
	if i := m.siteOf(c.ID); i >= 0 {
		m.step(i, evDepleted, tick)
	}
}

// Resync rebuilds site state from the arena after a snapshot import. st are the
// lifetime counters saved with the snapshot.
func (m *Manager) Resync(tick uint64, st Stats) {
	cs := m.arena.Caches()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = st
	m.stats.Active = len(cs)
	for i := range m.sites {
		m.sites[i].State, m.sites[i].Cache, m.sites[i].Since = NoCache, arena.NoCache, tick
	}
	for _, c := range cs {
		if !c.Static {
			continue
		}
		for i := range m.sites {
			if m.sites[i].State == NoCache && m.arena.Discretize(m.sites[i].Center) == c.CenterCell {
				m.sites[i].State, m.sites[i].Cache = Active, c.ID
				break
			}
		}
	}
	m.started = true
}

// Update runs one lifecycle pass: depleted sites are cleared, static sites are
// (re)formed, and dynamic clusters become caches. The arena is verified after
// any structural change; a failure is a *arena.SanityError.
func (m *Manager) Update(tick uint64) (Report, error) {
	var rep Report

	m.mu.Lock()
	rep.Depleted, m.pending = m.pending, 0
	for i := range m.sites {
		if m.sites[i].State == Depleting {
			m.step(i, evCleared, tick)
			m.sites[i].Cache = arena.NoCache
			rep.Cleared++
		}
	}
	forming := m.pickSites(tick)
	for _, i := range forming {
		m.step(i, evForm, tick)
	}
	sites := append([]Site(nil), m.sites...)
	m.started = true
	m.mu.Unlock()

	type formed struct {
		site int
		id   arena.CacheID
	}
	var (
		done      []formed
		skipped   []int
		discarded int
	)
	err := m.arena.Update(func(tx *arena.Txn) error {
		al := newAllocator(tx)
		for _, i := range forming {
			cc, ids, err := al.forStatic(sites[i].Center, m.cfg.StaticSize)
			if err != nil {
				if !isSkippable(err) {
					return err
				}
				m.log.Printf("tick %d: static cache site %d skipped: %v", tick, i, err)
				skipped = append(skipped, i)
				continue
			}
			c, err := tx.CreateCache(arena.CacheSpec{Center: tx.CellCenter(cc), Blocks: ids, Tick: tick, Static: true})
			if err != nil {
				return fmt.Errorf("static cache site %d: %w", i, err)
			}
			al.claim(ids)
			done = append(done, formed{site: i, id: c.ID})
			rep.Created = append(rep.Created, c.ID)
		}
		if !m.cfg.Dynamic {
			return nil
		}
		for _, cl := range clusters(tx.Blocks(), m.cfg.ClusterDist) {
			if len(cl) < arena.MinBlocks {
				continue
			}
			cc, ids, err := al.forCluster(cl, m.cfg.MinDist)
			if err != nil {
				if !isSkippable(err) {
					return err
				}
				discarded++
				continue
			}
			c, err := tx.CreateCache(arena.CacheSpec{Center: tx.CellCenter(cc), Blocks: ids, Tick: tick})
			if err != nil {
				return fmt.Errorf("dynamic cache at %s: %w", cc, err)
			}
			al.claim(ids)
			rep.Created = append(rep.Created, c.ID)
		}
		return nil
	})

	m.mu.Lock()
	for _, f := range done {
		m.step(f.site, evCreated, tick)
		m.sites[f.site].Cache = f.id
		m.sites[f.site].Formed++
	}
	for _, i := range skipped {
		m.step(i, evSkipped, tick)
	}
	rep.Discarded = discarded + len(skipped)
	m.stats.Created += len(rep.Created)
	m.stats.Active += len(rep.Created)
	m.stats.Discarded += rep.Discarded
	m.mu.Unlock()

	if err != nil {
		return rep, err
	}
	if len(rep.Created) > 0 || rep.Depleted > 0 {
		if err := m.arena.Verify(m.total); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// pickSites chooses the empty sites to form this tick. Every site forms on the
// first pass; afterwards each empty site is retried against the respawn
// probability. Called with m.mu held.
func (m *Manager) pickSites(tick uint64) []int {
	var out []int
	p := 1.0
	if m.started {
		h, c := 0, 0
		if m.counter != nil {
			h, c = m.counter.TaskCounts()
		}
		p = m.policy.Probability(h, c)
	}
	for i := range m.sites {
		if m.sites[i].State != NoCache {
			continue
		}
		if !m.started || mathx.Roll(m.cfg.Seed, int(tick), i, 0x5eed, p) {
			out = append(out, i)
		}
	}
	return out
}

// isSkippable reports whether a candidate failure is ordinary resource or
// space exhaustion rather than a broken arena.
func isSkippable(err error) bool {
	return errors.Is(err, arena.ErrTooFewBlocks) ||
		errors.Is(err, arena.ErrSpatialConflict) ||
		errors.Is(err, arena.ErrOutOfBounds) ||
		errors.Is(err, errClaimed)
}
