package robots

import (
	"testing"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/events"
	"foragearena.ai/internal/sim/interactor"
	"foragearena.ai/internal/sim/penalty"
)

func newArena(t *testing.T, blocks int) *arena.Arena {
	t.Helper()
	a, err := arena.New(arena.Config{
		Width:      20,
		Height:     20,
		Resolution: 1,
		Nest:       arena.Nest{Center: arena.Vec2{X: 2, Y: 2}, Span: arena.Vec2{X: 2, Y: 2}},
		CacheDim:   3,
	})
	if err != nil {
		t.Fatalf("arena.New: %v", err)
	}
	if err := a.Populate(make([]arena.Shape, blocks), nil); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	// Park every block along the far edge; tests move the ones they need.
	if err := a.Update(func(tx *arena.Txn) error {
		for i := 0; i < blocks; i++ {
			if err := tx.PlaceBlock(arena.BlockID(i), arena.Vec2{X: float64(i) + 0.5, Y: 19.5}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("park: %v", err)
	}
	return a
}

func place(t *testing.T, a *arena.Arena, id arena.BlockID, x, y float64) {
	t.Helper()
	if err := a.Update(func(tx *arena.Txn) error { return tx.PlaceBlock(id, arena.Vec2{X: x, Y: y}) }); err != nil {
		t.Fatalf("PlaceBlock %d: %v", id, err)
	}
}

func control(t *testing.T, a *arena.Arena, r *Robot, tick uint64, serving bool) {
	t.Helper()
	var err error
	a.Read(func(v arena.View) { err = r.Control(v, tick, serving) })
	if err != nil {
		t.Fatalf("Control: %v", err)
	}
}

func only(k TaskKind) Mix {
	switch k {
	case Harvester:
		return Mix{Harvester: 1}
	case Collector:
		return Mix{Collector: 1}
	default:
		return Mix{Generalist: 1}
	}
}

func TestTeamIsSeeded(t *testing.T) {
	nest := arena.Nest{Center: arena.Vec2{X: 5, Y: 5}, Span: arena.Vec2{X: 4, Y: 4}}
	cfg := Config{Seed: 9, Speed: 0.5, SenseRadius: 3, Mix: Mix{Generalist: 1, Harvester: 1, Collector: 1}}
	a, b := NewTeam(cfg, 24, nest), NewTeam(cfg, 24, nest)
	for i, r := range a.Robots() {
		o := b.Robots()[i]
		if r.Position() != o.Position() || r.Task() != o.Task() {
			t.Fatalf("robot %d differs: %v/%s vs %v/%s", i, r.Position(), r.Task(), o.Position(), o.Task())
		}
		if !nest.Contains(r.Position()) {
			t.Fatalf("robot %d spawned outside the nest at %s", i, r.Position())
		}
		if !r.HasTask() {
			t.Fatalf("robot %d has no task", i)
		}
	}
	h, c := a.TaskCounts()
	if h == 0 || c == 0 || h+c > a.Len() {
		t.Fatalf("harvesters=%d collectors=%d of %d", h, c, a.Len())
	}
}

func TestGoalTransitions(t *testing.T) {
	cases := []struct {
		from goalState
		ev   goalEvent
		want goalState
	}{
		{goalIdle, evSelect, goalVectoring},
		{goalIdle, evArrive, goalIdle},
		{goalVectoring, evArrive, goalArrived},
		{goalArrived, evDepart, goalVectoring},
		{goalVectoring, evDepart, goalVectoring},
		{goalArrived, evSelect, goalVectoring},
		{goalArrived, evLost, goalIdle},
		{goalVectoring, evDone, goalIdle},
	}
	for _, tc := range cases {
		if got := transitionGoal(tc.from, tc.ev); got != tc.want {
			t.Fatalf("%s + %d = %s, want %s", tc.from, tc.ev, got, tc.want)
		}
	}
}

func TestGeneralistAcquiresSeenBlock(t *testing.T) {
	a := newArena(t, 1)
	place(t, a, 0, 6.5, 2.5)
	r := New(1, arena.Vec2{X: 3.5, Y: 2.5}, Config{Speed: 1, SenseRadius: 5, Mix: only(Generalist)})

	for tick := uint64(0); tick < 10 && !r.Goal().Acquired; tick++ {
		control(t, a, r, tick, false)
	}
	g := r.Goal()
	if !g.Acquired || g.Kind != interactor.GoalBlock || g.Block != 0 {
		t.Fatalf("goal=%+v", g)
	}
	if got := a.Discretize(r.Position()); got != (arena.Coord{X: 6, Y: 2}) {
		t.Fatalf("robot at %s", got)
	}
}

func TestVanishedBlockDropsGoalAndBelief(t *testing.T) {
	a := newArena(t, 1)
	place(t, a, 0, 6.5, 2.5)
	r := New(1, arena.Vec2{X: 6.5, Y: 2.5}, Config{Speed: 1, SenseRadius: 5, Mix: only(Generalist)})
	control(t, a, r, 0, false)
	if !r.Goal().Acquired {
		t.Fatalf("goal=%+v", r.Goal())
	}
	d := events.NewDispatcher(a, nil, events.Config{}, nil)
	d.BlockVanished(r, 0, 1)
	if g := r.Goal(); g.Kind != interactor.GoalNone || g.Acquired {
		t.Fatalf("goal=%+v", g)
	}
	if _, ok := r.mem.blocks[0]; ok {
		t.Fatalf("vanished block still believed")
	}
	if r.acq.lost != 1 {
		t.Fatalf("lost=%d", r.acq.lost)
	}
}

func TestVanishedUntrackedIDsKeepGoal(t *testing.T) {
	a := newArena(t, 2)
	place(t, a, 0, 6.5, 2.5)
	r := New(1, arena.Vec2{X: 6.5, Y: 2.5}, Config{Speed: 1, SenseRadius: 5, Mix: only(Generalist)})
	control(t, a, r, 0, false)
	want := r.Goal()
	if !want.Acquired || want.Block != 0 {
		t.Fatalf("goal=%+v", want)
	}
	d := events.NewDispatcher(a, nil, events.Config{}, nil)
	d.BlockVanished(r, 1, 1)
	d.CacheVanished(r, 7, 1)
	if g := r.Goal(); g != want {
		t.Fatalf("goal=%+v want %+v", g, want)
	}
	if r.acq.lost != 0 {
		t.Fatalf("lost=%d", r.acq.lost)
	}
}

func TestGeneralistDeliversToNest(t *testing.T) {
	a := newArena(t, 1)
	place(t, a, 0, 6.5, 2.5)
	sched := penalty.NewScheduler(false)
	disp := events.NewDispatcher(a, nil, events.Config{}, nil)
	in := interactor.New(interactor.Env{Arena: a, Penalties: sched, Dispatcher: disp})
	r := New(1, arena.Vec2{X: 3.5, Y: 2.5}, Config{Speed: 1, SenseRadius: 5, Mix: only(Generalist)})

	for tick := uint64(0); tick < 60 && r.Stats().Delivered == 0; tick++ {
		control(t, a, r, tick, sched.IsServing(r.ID()))
		in.Step(r, tick)
		if err := a.Verify(1); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
	}
	st := r.Stats()
	if st.Harvested != 1 || st.Delivered != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if _, ok := r.CarriedBlock(); ok {
		t.Fatalf("still carrying")
	}
	b, _ := a.Block(0)
	if b.State != arena.Free || a.Nest().Contains(b.Pos) || b.Transporters != 0 {
		t.Fatalf("block=%+v", b)
	}
}

func TestHarvesterStartsCacheNextToKnownBlock(t *testing.T) {
	a := newArena(t, 2)
	place(t, a, 1, 8.5, 8.5)
	if err := a.Update(func(tx *arena.Txn) error { return tx.PickupBlock(0, 1, 0) }); err != nil {
		t.Fatalf("PickupBlock: %v", err)
	}
	r := New(1, arena.Vec2{X: 6.5, Y: 8.5}, Config{Speed: 0.5, SenseRadius: 5, Mix: only(Harvester)})
	r.SetCarried(0)
	control(t, a, r, 1, false)

	if g := r.Goal(); g.Kind != interactor.GoalNewCache {
		t.Fatalf("goal=%+v", g)
	}
	if want := (arena.Vec2{X: 9.5, Y: 8.5}); r.acq.target != want {
		t.Fatalf("target=%s want %s", r.acq.target, want)
	}
}

func TestHarvesterPrefersKnownCache(t *testing.T) {
	a := newArena(t, 4)
	var c arena.Cache
	if err := a.Update(func(tx *arena.Txn) error {
		var err error
		if c, err = tx.CreateCache(arena.CacheSpec{Center: arena.Vec2{X: 10.5, Y: 10.5}, Blocks: []arena.BlockID{1, 2}}); err != nil {
			return err
		}
		return tx.PickupBlock(0, 1, 0)
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	place(t, a, 3, 7.5, 12.5)
	r := New(1, arena.Vec2{X: 8.5, Y: 10.5}, Config{Speed: 0.5, SenseRadius: 5, Mix: only(Harvester)})
	r.SetCarried(0)
	control(t, a, r, 1, false)

	if g := r.Goal(); g.Kind != interactor.GoalCache || g.Cache != c.ID {
		t.Fatalf("goal=%+v", g)
	}
}

func TestCollectorIgnoresFreeBlocks(t *testing.T) {
	a := newArena(t, 1)
	place(t, a, 0, 5.5, 5.5)
	r := New(1, arena.Vec2{X: 5.5, Y: 6.5}, Config{Speed: 0.5, SenseRadius: 5, Mix: only(Collector)})
	control(t, a, r, 1, false)
	if g := r.Goal(); g.Kind != interactor.GoalNone {
		t.Fatalf("goal=%+v", g)
	}
	if r.acq.state == goalIdle {
		t.Fatalf("collector not exploring")
	}
}

func TestAbortResetsGoal(t *testing.T) {
	a := newArena(t, 1)
	place(t, a, 0, 6.5, 2.5)
	r := New(1, arena.Vec2{X: 6.5, Y: 2.5}, Config{Speed: 1, SenseRadius: 5, AbortProb: 1, Mix: only(Generalist)})
	control(t, a, r, 0, false)
	if !r.TaskAborted() || r.Stats().Aborts != 1 {
		t.Fatalf("aborted=%v stats=%+v", r.TaskAborted(), r.Stats())
	}
	if g := r.Goal(); g.Kind != interactor.GoalNone {
		t.Fatalf("goal=%+v", g)
	}
	if !r.HasTask() {
		t.Fatalf("no task after reallocation")
	}
}

func TestServingRobotHoldsStill(t *testing.T) {
	a := newArena(t, 1)
	place(t, a, 0, 9.5, 2.5)
	r := New(1, arena.Vec2{X: 5.5, Y: 2.5}, Config{Speed: 1, SenseRadius: 5, Mix: only(Generalist)})
	control(t, a, r, 0, true)
	if r.Position() != (arena.Vec2{X: 5.5, Y: 2.5}) {
		t.Fatalf("moved to %s while serving", r.Position())
	}
	if _, ok := r.mem.blocks[0]; !ok {
		t.Fatalf("did not sense while serving")
	}
}
