package robots

import (
	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/mathx"
)

const saltSpawn = 0x5a1

// Team is every robot in the arena, ordered by id.
type Team struct {
	robots []*Robot
}

// NewTeam spawns n robots at points spread over the nest.
func NewTeam(cfg Config, n int, nest arena.Nest) *Team {
	t := &Team{robots: make([]*Robot, 0, n)}
	for i := 0; i < n; i++ {
		h := mathx.Hash2(cfg.Seed, i, saltSpawn)
		pos := arena.Vec2{
			X: nest.Center.X + (mathx.Unit(h)-0.5)*nest.Span.X*0.9,
			Y: nest.Center.Y + (mathx.Unit(h>>21)-0.5)*nest.Span.Y*0.9,
		}
		t.robots = append(t.robots, New(arena.RobotID(i), pos, cfg))
	}
	return t
}

func (t *Team) Robots() []*Robot { return t.robots }
func (t *Team) Len() int         { return len(t.robots) }

func (t *Team) Robot(id arena.RobotID) (*Robot, bool) {
	if id < 0 || int(id) >= len(t.robots) {
		return nil, false
	}
	return t.robots[id], true
}

// TaskCounts reports how many robots currently run each cache-related task.
func (t *Team) TaskCounts() (harvesters, collectors int) {
	for _, r := range t.robots {
		switch r.task.kind {
		case Harvester:
			harvesters++
		case Collector:
			collectors++
		}
	}
	return harvesters, collectors
}

func (t *Team) States() []State {
	out := make([]State, 0, len(t.robots))
	for _, r := range t.robots {
		out = append(out, r.State())
	}
	return out
}
