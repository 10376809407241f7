package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"foragearena.ai/internal/sim/arena"
)

// Digest hashes block placement, cache contents and robot poses. Two runs with
// the same seed and tuning in deterministic mode produce the same digest at
// every tick.
func (s *Sim) Digest() string {
	h := sha256.New()
	var buf [8]byte
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	i64 := func(v int) { u64(uint64(int64(v))) }
	f64 := func(v float64) { u64(math.Float64bits(v)) }

	s.arena.Read(func(v arena.View) {
		for _, b := range v.Blocks() {
			i64(int(b.ID))
			i64(b.Cell.X)
			i64(b.Cell.Y)
			u64(uint64(b.State))
			i64(int(b.Robot))
			i64(int(b.Cache))
		}
		for _, c := range v.Caches() {
			i64(int(c.ID))
			i64(c.CenterCell.X)
			i64(c.CenterCell.Y)
			for _, id := range c.Blocks {
				i64(int(id))
			}
		}
	})
	for _, st := range s.team.States() {
		i64(int(st.ID))
		f64(st.Pos.X)
		f64(st.Pos.Y)
		i64(int(st.Carried))
	}
	return hex.EncodeToString(h.Sum(nil))
}
