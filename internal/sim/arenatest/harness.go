package arenatest

import (
	"context"
	"encoding/json"
	"testing"

	"foragearena.ai/internal/observerproto"
	"foragearena.ai/internal/persistence/snapshot"
	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/tuning"
)

// Harness is a small black-box test helper for driving a simulation through its
// exported API:
// - Step()/StepFor() advance the tick loop via engine.Sim.Step
// - an observer session captures the latest TICK and MAP messages
// - Snapshot/Resume exercise the persistence round trip
//
// It avoids touching engine internals so scenarios can live outside the engine
// package.
type Harness struct {
	T   *testing.T
	Tun tuning.Tuning
	S   *engine.Sim

	tickOut chan []byte
	dataOut chan []byte

	lastTick observerproto.TickMsg
	lastMap  observerproto.MapMsg
	maps     int
	entries  []engine.TickEntry
}

// Tuning returns the defaults shrunk for fast deterministic scenarios.
func Tuning() tuning.Tuning {
	t := tuning.Defaults()
	t.Sim.MaxTicks = 0
	t.Sim.Deterministic = true
	t.Sim.MetricsInterval = 50
	t.Sim.SnapshotEveryTicks = 0
	t.Sim.Workers = 2
	return t
}

func NewHarness(t *testing.T, tun tuning.Tuning) *Harness {
	t.Helper()
	s, err := engine.New(tun, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return NewHarnessWithSim(t, s)
}

// NewHarnessWithSim is like NewHarness, but uses an already-built simulation,
// e.g. one that resumed from a snapshot.
func NewHarnessWithSim(t *testing.T, s *engine.Sim) *Harness {
	t.Helper()
	if s == nil {
		t.Fatalf("NewHarnessWithSim: nil sim")
	}
	h := &Harness{
		T:       t,
		Tun:     s.Tuning(),
		S:       s,
		tickOut: make(chan []byte, 4),
		dataOut: make(chan []byte, 4),
	}
	s.ObserverJoin() <- engine.ObserverJoinRequest{
		SessionID: "harness",
		TickOut:   h.tickOut,
		DataOut:   h.dataOut,
		Robots:    true,
	}
	s.SetTickLogger(h)
	return h
}

// WriteTick records the entry; the harness is the simulation's tick logger.
func (h *Harness) WriteTick(e engine.TickEntry) error {
	h.entries = append(h.entries, e)
	return nil
}

func (h *Harness) Step() engine.TickEntry {
	h.T.Helper()
	if err := h.S.StepN(context.Background(), 1); err != nil {
		h.T.Fatalf("step %d: %v", h.S.CurrentTick(), err)
	}
	h.drain()
	return h.entries[len(h.entries)-1]
}

func (h *Harness) StepFor(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// StepUntil steps until cond holds or limit ticks pass, reporting whether cond
// was met.
func (h *Harness) StepUntil(limit int, cond func(h *Harness) bool) bool {
	h.T.Helper()
	for i := 0; i < limit; i++ {
		h.Step()
		if cond(h) {
			return true
		}
	}
	return false
}

func (h *Harness) LastTick() observerproto.TickMsg { return h.lastTick }
func (h *Harness) LastMap() observerproto.MapMsg   { return h.lastMap }
func (h *Harness) MapsSeen() int                   { return h.maps }
func (h *Harness) Counts() arena.Counts            { return h.S.Arena().Counts() }

// Entries returns the tick entries recorded so far, oldest first.
func (h *Harness) Entries() []engine.TickEntry { return h.entries }

func (h *Harness) Snapshot() snapshot.SnapshotV1 {
	h.T.Helper()
	// Export at currentTick-1 so a resume restarts at currentTick.
	cur := h.S.CurrentTick()
	if cur == 0 {
		return h.S.ExportSnapshot(0)
	}
	return h.S.ExportSnapshot(cur - 1)
}

// Resume builds a new simulation from snap with the same tuning.
func (h *Harness) Resume(snap snapshot.SnapshotV1) *Harness {
	h.T.Helper()
	s, err := engine.New(h.Tun, nil)
	if err != nil {
		h.T.Fatalf("engine.New: %v", err)
	}
	if err := s.Resume(snap); err != nil {
		h.T.Fatalf("Resume: %v", err)
	}
	return NewHarnessWithSim(h.T, s)
}

func (h *Harness) drain() {
	h.T.Helper()
	for {
		select {
		case b := <-h.dataOut:
			if err := json.Unmarshal(b, &h.lastMap); err != nil {
				h.T.Fatalf("unmarshal MAP: %v", err)
			}
			h.maps++
			continue
		default:
		}
		break
	}
	var last []byte
	for {
		select {
		case b := <-h.tickOut:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	var msg observerproto.TickMsg
	if err := json.Unmarshal(last, &msg); err != nil {
		h.T.Fatalf("unmarshal TICK: %v", err)
	}
	h.lastTick = msg
}
