package penalty

import (
	"errors"
	"sync"
	"testing"

	"foragearena.ai/internal/sim/arena"
)

func TestBeginSatisfiedTakeNext(t *testing.T) {
	s := NewScheduler(false)
	if _, err := s.Begin(1, FreeBlockPickup, 7, 10, 5); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !s.IsServing(1) {
		t.Fatalf("expected robot 1 serving")
	}
	if s.IsSatisfied(1, 14) {
		t.Fatalf("satisfied too early at 14")
	}
	if !s.IsSatisfied(1, 15) {
		t.Fatalf("not satisfied at 15")
	}
	rec, ok := s.TakeNext(1)
	if !ok || rec.Kind != FreeBlockPickup || rec.Target != 7 || rec.Start != 10 || rec.Duration != 5 {
		t.Fatalf("TakeNext=%+v,%v", rec, ok)
	}
	if s.IsServing(1) {
		t.Fatalf("record not removed")
	}
	st := s.Stats()[FreeBlockPickup]
	if st.Begun != 1 || st.Served != 1 || st.Ticks != 5 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestAtMostOnePenaltyPerRobot(t *testing.T) {
	s := NewScheduler(false)
	if _, err := s.Begin(1, CacheBlockPickup, 3, 0, 2); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, err := s.Begin(1, CacheBlockDrop, 3, 1, 2)
	if !errors.Is(err, ErrAlreadyServing) {
		t.Fatalf("expected ErrAlreadyServing, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("len=%d", s.Len())
	}
}

func TestAbortFlushesWithoutServing(t *testing.T) {
	s := NewScheduler(false)
	_, _ = s.Begin(4, NestBlockDrop, 1, 0, 10)
	if !s.Abort(4) {
		t.Fatalf("Abort returned false")
	}
	if s.Abort(4) {
		t.Fatalf("second Abort should be a no-op")
	}
	st := s.Stats()[NestBlockDrop]
	if st.Aborted != 1 || st.Served != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestDueOrderIsStartThenRobot(t *testing.T) {
	s := NewScheduler(false)
	_, _ = s.Begin(9, CacheBlockPickup, 1, 5, 1)
	_, _ = s.Begin(2, CacheBlockPickup, 1, 5, 1)
	_, _ = s.Begin(5, CacheBlockPickup, 1, 3, 3)
	_, _ = s.Begin(1, FreeBlockPickup, 4, 6, 10)

	due := s.Due(6)
	if len(due) != 3 {
		t.Fatalf("due=%+v", due)
	}
	want := []int{5, 2, 9}
	for i, r := range due {
		if int(r.Robot) != want[i] {
			t.Fatalf("due order=%+v", due)
		}
	}
}

func TestConcurrentPenaltiesOnSameTarget(t *testing.T) {
	s := NewScheduler(false)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := s.Begin(arena.RobotID(id), CacheBlockPickup, 0, 1, 2); err != nil {
				t.Errorf("Begin %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()
	if got := len(s.Due(3)); got != 32 {
		t.Fatalf("due=%d", got)
	}
}

func TestDeconflictStretchesSameFinish(t *testing.T) {
	s := NewScheduler(true)
	a, _ := s.Begin(1, CacheBlockPickup, 3, 10, 4)
	b, _ := s.Begin(2, CacheBlockPickup, 3, 10, 4)
	c, _ := s.Begin(3, CacheBlockPickup, 4, 10, 4)
	if a.Finish() != 14 || b.Finish() != 15 || c.Finish() != 14 {
		t.Fatalf("finishes a=%d b=%d c=%d", a.Finish(), b.Finish(), c.Finish())
	}
}

func TestWaveforms(t *testing.T) {
	if got := Constant(3).DurationAt(100); got != 3 {
		t.Fatalf("constant=%d", got)
	}
	st := Step{Before: 2, After: 9, At: 50}
	if st.DurationAt(49) != 2 || st.DurationAt(50) != 9 {
		t.Fatalf("step mismatch")
	}
	sq := Square{Low: 1, High: 5, Period: 10}
	if sq.DurationAt(0) != 5 || sq.DurationAt(4) != 5 || sq.DurationAt(5) != 1 || sq.DurationAt(10) != 5 {
		t.Fatalf("square mismatch")
	}
	sn := Sine{Amplitude: 4, Offset: 4, Period: 8}
	if sn.DurationAt(0) != 4 || sn.DurationAt(2) != 8 || sn.DurationAt(6) != 0 {
		t.Fatalf("sine mismatch: %d %d %d", sn.DurationAt(0), sn.DurationAt(2), sn.DurationAt(6))
	}
}

func TestNewWaveform(t *testing.T) {
	w, err := NewWaveform(Spec{Type: "step", Value: 1, After: 4, At: 10})
	if err != nil {
		t.Fatalf("NewWaveform: %v", err)
	}
	if w.DurationAt(11) != 4 {
		t.Fatalf("step after=%d", w.DurationAt(11))
	}
	if _, err := NewWaveform(Spec{Type: "constant", Value: -1}); err == nil {
		t.Fatalf("expected error for negative constant")
	}
	if _, err := NewWaveform(Spec{Type: "sawtooth"}); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	d := Durations{FreePickup: Constant(2), CacheUsage: Constant(7)}
	if d.At(NestBlockDrop, 0) != 0 || d.At(CacheSiteBlockDrop, 0) != 7 || d.At(FreeBlockPickup, 0) != 2 {
		t.Fatalf("durations mismatch")
	}
}
