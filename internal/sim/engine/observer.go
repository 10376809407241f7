package engine

import (
	"encoding/json"

	"foragearena.ai/internal/observerproto"
	"foragearena.ai/internal/sim/arena"
)

// ObserverJoinRequest registers a read-only observer session. MAP messages go
// to DataOut, TICK messages to TickOut. All observer state is owned by the tick
// loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte

	Robots        bool
	MapEveryTicks int
}

type ObserverSubscribeRequest struct {
	SessionID     string
	Robots        bool
	MapEveryTicks int
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	robots   bool
	mapEvery uint64
	// needsMap forces a MAP on the next tick, e.g. after join or a dropped send.
	needsMap bool
	lastMap  uint64
}

func (s *Sim) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}
	if old := s.observers[req.SessionID]; old != nil {
		close(old.tickOut)
		close(old.dataOut)
	}
	s.observers[req.SessionID] = &observerClient{
		id:       req.SessionID,
		tickOut:  req.TickOut,
		dataOut:  req.DataOut,
		robots:   req.Robots,
		mapEvery: uint64(clampInt(req.MapEveryTicks, 0, 100000, 0)),
		needsMap: true,
	}
}

func (s *Sim) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := s.observers[req.SessionID]
	if c == nil {
		return
	}
	c.robots = req.Robots
	c.mapEvery = uint64(clampInt(req.MapEveryTicks, 0, 100000, int(c.mapEvery)))
}

func (s *Sim) handleObserverLeave(sessionID string) {
	c := s.observers[sessionID]
	if c == nil {
		return
	}
	delete(s.observers, sessionID)
	close(c.tickOut)
	close(c.dataOut)
}

func (s *Sim) drainObservers() {
	for {
		select {
		case req := <-s.observerJoin:
			s.handleObserverJoin(req)
		case req := <-s.observerSub:
			s.handleObserverSubscribe(req)
		case id := <-s.observerLeave:
			s.handleObserverLeave(id)
		default:
			return
		}
	}
}

func (s *Sim) stepObservers(tick uint64, entry TickEntry, mapChanged bool) {
	if len(s.observers) == 0 {
		return
	}
	var mapMsg, tickPlain, tickRobots []byte
	for _, c := range s.observers {
		if mapChanged || c.needsMap || (c.mapEvery > 0 && tick-c.lastMap >= c.mapEvery) {
			if mapMsg == nil {
				mapMsg = s.mapMsg(tick)
			}
			select {
			case c.dataOut <- mapMsg:
				c.needsMap = false
				c.lastMap = tick
			default:
				c.needsMap = true
			}
		}

		var b []byte
		if c.robots {
			if tickRobots == nil {
				tickRobots = s.tickMsg(entry, true)
			}
			b = tickRobots
		} else {
			if tickPlain == nil {
				tickPlain = s.tickMsg(entry, false)
			}
			b = tickPlain
		}
		select {
		case c.tickOut <- b:
		default:
			// Slow observer; it catches up on the next tick.
		}
	}
}

func (s *Sim) tickMsg(entry TickEntry, withRobots bool) []byte {
	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            entry.Tick,
		Counts: observerproto.Counts{
			Free:    entry.Blocks.Free,
			Carried: entry.Blocks.Carried,
			Cached:  entry.Blocks.Cached,
			Caches:  entry.Blocks.Caches,
		},
		Serving: entry.Serving,
	}
	for _, it := range entry.Interactions {
		msg.Interactions = append(msg.Interactions, observerproto.Interaction{RobotID: int(it.Robot), Status: it.Status})
	}
	if withRobots {
		for _, st := range s.team.States() {
			msg.Robots = append(msg.Robots, observerproto.RobotState{
				ID:      int(st.ID),
				Pos:     st.Pos.ToArray(),
				Carried: int(st.Carried),
				Task:    st.Task,
				Goal:    st.Goal,
			})
		}
	}
	b, _ := json.Marshal(msg)
	return b
}

func (s *Sim) mapMsg(tick uint64) []byte {
	msg := observerproto.MapMsg{
		Type:            "MAP",
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Blocks:          []observerproto.BlockState{},
		Caches:          []observerproto.CacheState{},
	}
	s.arena.Read(func(v arena.View) {
		for _, b := range v.Blocks() {
			if b.State != arena.Free {
				continue
			}
			msg.Blocks = append(msg.Blocks, observerproto.BlockState{ID: int(b.ID), Cell: b.Cell.ToArray(), Shape: b.Shape.String()})
		}
		for _, c := range v.Caches() {
			msg.Caches = append(msg.Caches, observerproto.CacheState{
				ID:      int(c.ID),
				Center:  c.Center.ToArray(),
				Cell:    c.CenterCell.ToArray(),
				Blocks:  c.Count(),
				Static:  c.Static,
				Created: c.CreatedTick,
			})
		}
	})
	b, _ := json.Marshal(msg)
	return b
}

// Bootstrap describes the run for observers connecting over HTTP.
func (s *Sim) Bootstrap() observerproto.BootstrapResponse {
	t := s.tun
	w, h := s.arena.Dims()
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           s.runID,
		Tick:            s.CurrentTick(),
		ArenaParams: observerproto.ArenaParams{
			TickRateHz: t.Sim.TickRateHz,
			Seed:       t.Sim.Seed,
			Size:       s.arena.Size().ToArray(),
			Grid:       [2]int{w, h},
			Resolution: s.arena.Resolution(),
			NestCenter: s.arena.Nest().Center.ToArray(),
			NestSpan:   s.arena.Nest().Span.ToArray(),
			CacheDim:   s.arena.CacheDim(),
			Blocks:     s.total,
		},
	}
}

func clampInt(v, min, max, def int) int {
	if v == 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
