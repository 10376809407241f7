package engine

import (
	"context"
	"time"
)

// Run steps the simulation until ctx ends, Stop is called, max_ticks is
// reached, or a step fails. With tick_rate_hz 0 ticks run back to back.
func (s *Sim) Run(ctx context.Context) error {
	var tc <-chan time.Time
	if hz := s.tun.Sim.TickRateHz; hz > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(hz))
		defer ticker.Stop()
		tc = ticker.C
	}

	for {
		if s.done() {
			s.log.Printf("run %s reached max_ticks=%d", s.runID, s.tun.Sim.MaxTicks)
			return nil
		}
		if tc == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.stop:
				return nil
			default:
			}
			s.drainObservers()
			if _, err := s.Step(ctx); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.observerJoin:
			s.handleObserverJoin(req)
		case req := <-s.observerSub:
			s.handleObserverSubscribe(req)
		case id := <-s.observerLeave:
			s.handleObserverLeave(id)
		case <-tc:
			if _, err := s.Step(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Sim) done() bool {
	return s.tun.Sim.MaxTicks > 0 && s.CurrentTick() >= uint64(s.tun.Sim.MaxTicks)
}

// StepN runs n ticks back to back, for tools and tests.
func (s *Sim) StepN(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		s.drainObservers()
		if _, err := s.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}
