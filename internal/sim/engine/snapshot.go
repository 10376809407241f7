package engine

import (
	"fmt"
	"math"

	"foragearena.ai/internal/persistence/snapshot"
	"foragearena.ai/internal/sim/arena"
)

// ExportSnapshot captures the arena and cache lifecycle at tick. Robots are
// recorded for inspection only.
func (s *Sim) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	t := s.tun
	return snapshot.SnapshotV1{
		Header:     snapshot.Header{RunID: s.runID, Tick: tick},
		Seed:       t.Sim.Seed,
		Width:      t.Arena.Width,
		Height:     t.Arena.Height,
		Resolution: t.Arena.Resolution,
		CacheDim:   t.Caches.Dimension,
		Arena:      s.arena.Export(),
		Sites:      s.caches.Sites(),
		CacheStats: s.caches.Stats(),
		Events:     s.disp.Counts(),
		Robots:     s.team.States(),
	}
}

// Resume loads snap into a freshly built Sim. Robots restart empty-handed in
// the nest, so blocks that were carried at snapshot time are redistributed.
// The run continues at the tick after the snapshot under the original run id.
func (s *Sim) Resume(snap snapshot.SnapshotV1) error {
	t := s.tun
	if snap.Width != t.Arena.Width || snap.Height != t.Arena.Height ||
		math.Abs(snap.Resolution-t.Arena.Resolution) > 1e-9 || snap.CacheDim != t.Caches.Dimension {
		return fmt.Errorf("snapshot arena %.2fx%.2f res %.3f dim %d does not match tuning",
			snap.Width, snap.Height, snap.Resolution, snap.CacheDim)
	}
	if len(snap.Arena.Blocks) != s.total {
		return fmt.Errorf("snapshot has %d blocks, tuning wants %d", len(snap.Arena.Blocks), s.total)
	}
	if err := s.arena.Import(snap.Arena); err != nil {
		return err
	}
	if err := s.arena.Update(func(tx *arena.Txn) error {
		for _, b := range tx.Blocks() {
			if b.State != arena.Carried {
				continue
			}
			if err := tx.DistributeBlock(b.ID, s.dist); err != nil {
				return fmt.Errorf("redistribute block %d: %w", b.ID, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := s.arena.Verify(s.total); err != nil {
		return err
	}

	next := snap.Header.Tick + 1
	if snap.Header.RunID != "" {
		s.runID = snap.Header.RunID
	}
	s.caches.Resync(next, snap.CacheStats)
	s.metrics.Resume(next)
	s.tick.Store(next)
	s.log.Printf("resumed run %s at tick %d (%d blocks, %d caches)", s.runID, next, len(snap.Arena.Blocks), len(snap.Arena.Caches))
	return nil
}
