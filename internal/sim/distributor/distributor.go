// Package distributor chooses where blocks land when they enter or re-enter the
// arena. Placement is drawn from a seeded hash so runs with the same seed and
// the same sequence of calls produce the same layout.
package distributor

import (
	"fmt"
	"strings"
	"sync/atomic"

	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/mathx"
)

const defaultAttempts = 64

// Random scatters blocks uniformly over empty cells outside the nest.
type Random struct {
	Seed     int64
	Attempts int

	calls atomic.Int64
}

func (r *Random) Distribute(v arena.View, id arena.BlockID) (arena.Vec2, error) {
	w, h := v.Dims()
	n := int(r.calls.Add(1))
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	for i := 0; i < attempts; i++ {
		hv := mathx.Hash3(r.Seed, int(id), n, i)
		c := arena.Coord{X: int(hv % uint64(w)), Y: int((hv >> 32) % uint64(h))}
		if open(v, c) {
			return v.CellCenter(c), nil
		}
	}
	return arena.Vec2{}, fmt.Errorf("random distribution of block %d: %w", id, arena.ErrNoSpace)
}

// Cluster is a square region blocks are distributed into.
type Cluster struct {
	Center arena.Vec2 `yaml:"center" json:"center"`
	Radius int        `yaml:"radius" json:"radius"`
}

// Clustered assigns each block to one cluster by id and places it on an empty
// cell inside that cluster, falling back to a scan of the cluster's cells.
type Clustered struct {
	Seed     int64
	Clusters []Cluster
	Attempts int

	calls atomic.Int64
}

func (d *Clustered) Distribute(v arena.View, id arena.BlockID) (arena.Vec2, error) {
	if len(d.Clusters) == 0 {
		return arena.Vec2{}, fmt.Errorf("clustered distribution: no clusters: %w", arena.ErrNoSpace)
	}
	cl := d.Clusters[int(id)%len(d.Clusters)]
	center := v.Discretize(cl.Center)
	side := 2*cl.Radius + 1
	n := int(d.calls.Add(1))
	attempts := d.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	for i := 0; i < attempts; i++ {
		hv := mathx.Hash3(d.Seed, int(id), n, i)
		c := center.Add(int(hv%uint64(side))-cl.Radius, int((hv>>32)%uint64(side))-cl.Radius)
		if open(v, c) {
			return v.CellCenter(c), nil
		}
	}
	for dy := -cl.Radius; dy <= cl.Radius; dy++ {
		for dx := -cl.Radius; dx <= cl.Radius; dx++ {
			if c := center.Add(dx, dy); open(v, c) {
				return v.CellCenter(c), nil
			}
		}
	}
	return arena.Vec2{}, fmt.Errorf("cluster %s full for block %d: %w", cl.Center, id, arena.ErrNoSpace)
}

func open(v arena.View, c arena.Coord) bool {
	return v.InBounds(c) && !v.CellInNest(c) && v.CellAt(c).State == arena.Empty
}

// Config selects a distributor by name.
type Config struct {
	Kind     string    `yaml:"kind"`
	Seed     int64     `yaml:"seed"`
	Attempts int       `yaml:"attempts"`
	Clusters []Cluster `yaml:"clusters"`
}

func New(cfg Config) (arena.Distributor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "random":
		return &Random{Seed: cfg.Seed, Attempts: cfg.Attempts}, nil
	case "cluster", "clustered":
		if len(cfg.Clusters) == 0 {
			return nil, fmt.Errorf("cluster distributor needs at least one cluster")
		}
		for i, c := range cfg.Clusters {
			if c.Radius < 0 {
				return nil, fmt.Errorf("cluster %d: negative radius", i)
			}
		}
		return &Clustered{Seed: cfg.Seed, Clusters: cfg.Clusters, Attempts: cfg.Attempts}, nil
	default:
		return nil, fmt.Errorf("unknown distributor kind %q", cfg.Kind)
	}
}
