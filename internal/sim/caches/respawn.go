package caches

import "foragearena.ai/internal/sim/mathx"

// TaskCounter reports how many robots are currently executing the harvester
// and collector tasks.
type TaskCounter interface {
	TaskCounts() (harvesters, collectors int)
}

// RespawnPolicy decides how likely a depleted static cache is to be recreated
// on a given tick.
type RespawnPolicy interface {
	Probability(harvesters, collectors int) float64
}

// RatioPolicy raises the respawn probability with the share of harvesters once
// they outnumber collectors. Otherwise Floor applies.
type RatioPolicy struct {
	Scale float64
	Floor float64
}

func (p RatioPolicy) Probability(harvesters, collectors int) float64 {
	if harvesters <= collectors || harvesters+collectors == 0 {
		return mathx.Clamp01(p.Floor)
	}
	return mathx.Clamp01(p.Scale * float64(harvesters) / float64(harvesters+collectors))
}

// Always respawns immediately.
type Always struct{}

func (Always) Probability(int, int) float64 { return 1 }
