// Package engine owns the tick loop. Each tick runs four phases: robots decide
// and move in parallel against a read-only view, robots interact with the
// arena, the cache lifecycle runs single-threaded, and results are published.
package engine

import (
	"fmt"
	"io"
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"foragearena.ai/internal/persistence/snapshot"
	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/assert"
	"foragearena.ai/internal/sim/caches"
	"foragearena.ai/internal/sim/distributor"
	"foragearena.ai/internal/sim/events"
	"foragearena.ai/internal/sim/interactor"
	"foragearena.ai/internal/sim/metrics"
	"foragearena.ai/internal/sim/penalty"
	"foragearena.ai/internal/sim/robots"
	"foragearena.ai/internal/sim/tuning"
)

// TickLogger receives one entry per tick.
type TickLogger interface {
	WriteTick(entry TickEntry) error
}

// IntervalSink receives each closed metrics interval.
type IntervalSink interface {
	WriteInterval(runID string, iv metrics.Interval) error
}

type Sim struct {
	log   *log.Logger
	tun   tuning.Tuning
	runID string
	total int

	arena   *arena.Arena
	dist    arena.Distributor
	sched   *penalty.Scheduler
	disp    *events.Dispatcher
	inter   *interactor.Interactor
	caches  *caches.Manager
	team    *robots.Team
	metrics *metrics.Collector

	tick atomic.Uint64
	// robotStates is the robot view published at the end of each tick.
	robotStates atomic.Pointer[[]robots.State]

	tickLogger   TickLogger
	intervals    IntervalSink
	snapshotSink chan<- snapshot.SnapshotV1

	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient
	stop          chan struct{}
	stopOnce      sync.Once
}

// New builds a fresh run: blocks are populated by the configured distributor,
// every component is wired, and robots spawn in the nest.
func New(t tuning.Tuning, logger *log.Logger) (*Sim, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	a, err := arena.New(t.ArenaConfig())
	if err != nil {
		return nil, err
	}
	dist, err := distributor.New(t.DistributorConfig())
	if err != nil {
		return nil, err
	}
	if err := a.Populate(t.Shapes(), dist); err != nil {
		return nil, fmt.Errorf("populate: %w", err)
	}
	durations, err := t.Durations()
	if err != nil {
		return nil, err
	}

	s := &Sim{
		log:           logger,
		tun:           t,
		runID:         uuid.NewString(),
		total:         t.Blocks.Count,
		arena:         a,
		dist:          dist,
		sched:         penalty.NewScheduler(t.Penalties.Deconflict),
		metrics:       metrics.New(uint64(t.Sim.MetricsInterval), uint64(t.Sim.MetricsInterval)*10),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerClient{},
		stop:          make(chan struct{}),
	}
	s.disp = events.NewDispatcher(a, dist, t.EventsConfig(), logger)
	s.caches = caches.NewManager(a, t.CacheConfig(), s.total, logger)
	s.team = robots.NewTeam(robots.Config{
		Seed:        t.Sim.Seed,
		Speed:       t.Robots.Speed,
		SenseRadius: t.Robots.SenseRadius,
		AbortProb:   t.Robots.AbortProb,
		Mix:         robots.Mix{Generalist: t.Robots.Mix.Generalist, Harvester: t.Robots.Mix.Harvester, Collector: t.Robots.Mix.Collector},
	}, t.Robots.Count, a.Nest())
	s.caches.SetRespawn(t.RespawnPolicy(), s.team)
	s.disp.SetDepletionHook(s.caches)
	s.disp.SetMapObserver(s.metrics)
	s.inter = interactor.New(interactor.Env{
		Log:        logger,
		Arena:      a,
		Penalties:  s.sched,
		Dispatcher: s.disp,
		Durations:  durations,
		Metrics:    s.metrics,
	})
	if assert.Enabled {
		s.disp.VerifyEach(s.total)
	}
	if err := a.Verify(s.total); err != nil {
		return nil, err
	}
	s.publishRobots()
	return s, nil
}

func (s *Sim) SetTickLogger(l TickLogger)                    { s.tickLogger = l }
func (s *Sim) SetIntervalSink(i IntervalSink)                { s.intervals = i }
func (s *Sim) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapshotSink = ch }

func (s *Sim) RunID() string                  { return s.runID }
func (s *Sim) CurrentTick() uint64            { return s.tick.Load() }
func (s *Sim) Tuning() tuning.Tuning          { return s.tun }
func (s *Sim) Arena() *arena.Arena            { return s.arena }
func (s *Sim) Team() *robots.Team             { return s.team }
func (s *Sim) Caches() *caches.Manager        { return s.caches }
func (s *Sim) Penalties() *penalty.Scheduler  { return s.sched }
func (s *Sim) Dispatcher() *events.Dispatcher { return s.disp }
func (s *Sim) Metrics() metrics.Snapshot      { return s.metrics.Snapshot() }

// RobotStates returns the robots as of the last completed tick. It is safe to
// call while Run is stepping.
func (s *Sim) RobotStates() []robots.State {
	if p := s.robotStates.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Sim) publishRobots() {
	st := s.team.States()
	s.robotStates.Store(&st)
}

func (s *Sim) ObserverJoin() chan<- ObserverJoinRequest           { return s.observerJoin }
func (s *Sim) ObserverSubscribe() chan<- ObserverSubscribeRequest { return s.observerSub }
func (s *Sim) ObserverLeave() chan<- string                       { return s.observerLeave }

func (s *Sim) Stop() { s.stopOnce.Do(func() { close(s.stop) }) }

func (s *Sim) workers() int {
	if s.tun.Sim.Workers > 0 {
		return s.tun.Sim.Workers
	}
	return runtime.GOMAXPROCS(0)
}
