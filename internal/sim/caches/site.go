package caches

import (
	"fmt"

	"foragearena.ai/internal/sim/arena"
)

type SiteState uint8

const (
	NoCache SiteState = iota
	Forming
	Active
	Depleting
)

func (s SiteState) String() string {
	switch s {
	case NoCache:
		return "no_cache"
	case Forming:
		return "forming"
	case Active:
		return "active"
	case Depleting:
		return "depleting"
	default:
		return fmt.Sprintf("site(%d)", uint8(s))
	}
}

type siteEvent uint8

const (
	evForm siteEvent = iota
	evCreated
	evSkipped
	evDepleted
	evCleared
)

// transition is the site state machine. ok is false for events that are not
// valid in the current state.
func transition(s SiteState, ev siteEvent) (next SiteState, ok bool) {
	switch {
	case s == NoCache && ev == evForm:
		return Forming, true
	case s == Forming && ev == evCreated:
		return Active, true
	case s == Forming && ev == evSkipped:
		return NoCache, true
	case s == Active && ev == evDepleted:
		return Depleting, true
	case s == Depleting && ev == evCleared:
		return NoCache, true
	}
	return s, false
}

// Site is a fixed location where a static cache lives.
type Site struct {
	Center arena.Vec2    `json:"center"`
	State  SiteState     `json:"state"`
	Cache  arena.CacheID `json:"cache"`
	Since  uint64        `json:"since"`
	Formed int           `json:"formed"`
}
