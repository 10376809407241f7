package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/interactor"
	"foragearena.ai/internal/sim/metrics"
	"foragearena.ai/internal/sim/penalty"
)

type Interaction struct {
	Robot  arena.RobotID `json:"robot_id"`
	Status string        `json:"status"`
}

// TickEntry is one line of the tick log.
type TickEntry struct {
	RunID          string          `json:"run_id"`
	Tick           uint64          `json:"tick"`
	Interactions   []Interaction   `json:"interactions,omitempty"`
	CachesCreated  []arena.CacheID `json:"caches_created,omitempty"`
	CachesDepleted int             `json:"caches_depleted,omitempty"`
	Discarded      int             `json:"discarded,omitempty"`
	Blocks         arena.Counts    `json:"blocks"`
	Serving        int             `json:"serving"`
	StepMS         float64         `json:"step_ms"`
	Digest         string          `json:"digest,omitempty"`
}

// Step advances the simulation by one tick. A non-nil error means the arena
// can no longer be trusted; *arena.SanityError carries the details.
func (s *Sim) Step(ctx context.Context) (TickEntry, error) {
	tick := s.tick.Load()
	start := time.Now()
	s.metrics.Begin(tick)

	if err := s.control(ctx, tick); err != nil {
		return TickEntry{}, fmt.Errorf("tick %d control: %w", tick, err)
	}
	statuses, err := s.interact(ctx, tick)
	if err != nil {
		return TickEntry{}, fmt.Errorf("tick %d interact: %w", tick, err)
	}
	rep, err := s.caches.Update(tick)
	if err != nil {
		return TickEntry{}, fmt.Errorf("tick %d caches: %w", tick, err)
	}
	if err := s.arena.Verify(s.total); err != nil {
		return TickEntry{}, fmt.Errorf("tick %d: %w", tick, err)
	}
	for _, id := range rep.Created {
		s.log.Printf("tick %d: cache %d created", tick, id)
	}

	entry := TickEntry{
		RunID:          s.runID,
		Tick:           tick,
		CachesCreated:  rep.Created,
		CachesDepleted: rep.Depleted,
		Discarded:      rep.Discarded,
		Blocks:         s.arena.Counts(),
		Serving:        s.sched.Len(),
	}
	if s.tun.Sim.Deterministic {
		entry.Digest = s.Digest()
	}
	for i, st := range statuses {
		if st != interactor.NoEvent {
			entry.Interactions = append(entry.Interactions, Interaction{Robot: arena.RobotID(i), Status: st.String()})
		}
	}
	entry.StepMS = float64(time.Since(start).Microseconds()) / 1000
	s.publish(tick, entry)
	s.tick.Store(tick + 1)
	return entry, nil
}

// control lets every robot sense, decide and move. Robots only read the arena,
// so one read lock covers the whole phase.
func (s *Sim) control(ctx context.Context, tick uint64) error {
	var err error
	s.arena.Read(func(v arena.View) {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(s.workers())
		for _, r := range s.team.Robots() {
			r := r
			serving := s.sched.IsServing(r.ID())
			g.Go(func() error { return r.Control(v, tick, serving) })
		}
		err = g.Wait()
	})
	return err
}

// interact runs the interaction procedure for every robot. Robots finishing a
// penalty or aborting their task run one at a time in (start tick, robot id)
// order; the rest can only begin penalties and run concurrently, or in id
// order when the run is deterministic.
func (s *Sim) interact(ctx context.Context, tick uint64) ([]interactor.Status, error) {
	team := s.team.Robots()
	out := make([]interactor.Status, len(team))
	ordered := s.serialOrder(tick)
	serial := make(map[arena.RobotID]bool, len(ordered))
	for _, rec := range ordered {
		serial[rec.Robot] = true
		if r, ok := s.team.Robot(rec.Robot); ok {
			out[rec.Robot] = s.inter.Step(r, tick)
		}
	}

	if s.tun.Sim.Deterministic {
		for i, r := range team {
			if !serial[r.ID()] {
				out[i] = s.inter.Step(r, tick)
			}
		}
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, r := range team {
		if serial[r.ID()] {
			continue
		}
		i, r := i, r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.inter.Step(r, tick)
			return nil
		})
	}
	return out, g.Wait()
}

func (s *Sim) serialOrder(tick uint64) []penalty.Record {
	due := s.sched.Due(tick)
	seen := make(map[arena.RobotID]bool, len(due))
	for _, rec := range due {
		seen[rec.Robot] = true
	}
	for _, r := range s.team.Robots() {
		if !r.TaskAborted() || seen[r.ID()] {
			continue
		}
		rec, ok := s.sched.Peek(r.ID())
		if !ok {
			rec = penalty.Record{Robot: r.ID(), Start: tick}
		}
		due = append(due, rec)
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Start != due[j].Start {
			return due[i].Start < due[j].Start
		}
		return due[i].Robot < due[j].Robot
	})
	return due
}

// publish is the last phase: metrics, logs, snapshots and observers.
func (s *Sim) publish(tick uint64, entry TickEntry) {
	h, c := s.team.TaskCounts()
	iv, closed := s.metrics.Sample(tick, metrics.Inputs{
		Blocks:     entry.Blocks,
		Events:     s.disp.Counts(),
		Penalties:  s.sched.Stats(),
		Caches:     s.caches.Stats(),
		Serving:    entry.Serving,
		Harvesters: h,
		Collectors: c,
		StepMS:     entry.StepMS,
	})
	if closed {
		if s.intervals != nil {
			if err := s.intervals.WriteInterval(s.runID, iv); err != nil {
				s.log.Printf("tick %d: write interval: %v", tick, err)
			}
		}
		s.log.Printf("tick %d: free=%d carried=%d cached=%d caches=%d delivered=%d",
			tick, iv.Blocks.Free, iv.Blocks.Carried, iv.Blocks.Cached, iv.Blocks.Caches, iv.Events.NestBlockDrops)
	}
	if s.tickLogger != nil {
		if err := s.tickLogger.WriteTick(entry); err != nil {
			s.log.Printf("tick %d: write tick: %v", tick, err)
		}
	}
	if every := uint64(s.tun.Sim.SnapshotEveryTicks); s.snapshotSink != nil && every > 0 && tick != 0 && tick%every == 0 {
		snap := s.ExportSnapshot(tick)
		select {
		case s.snapshotSink <- snap:
		default:
			s.log.Printf("tick %d: snapshot sink full, dropped", tick)
		}
	}
	s.publishRobots()
	s.stepObservers(tick, entry, s.metrics.TakeDirty())
}

