package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"foragearena.ai/internal/persistence/snapshot"
	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/metrics"
	"foragearena.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: engine.TickEntry{Tick: 1}}

	_ = s.WriteTick(engine.TickEntry{Tick: 2})
	_ = s.WriteInterval("r1", metrics.Interval{End: 99})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropIntervalTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if st.QueueDepth != 1 {
		t.Fatalf("QueueDepth=%d want=1", st.QueueDepth)
	}
}

func TestSQLiteIndex_WritesRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := idx.UpsertRun("r1", tuning.Defaults()); err != nil {
		t.Fatalf("UpsertRun: %v", err)
	}
	for tick := uint64(0); tick < 5; tick++ {
		e := engine.TickEntry{
			RunID:  "r1",
			Tick:   tick,
			Blocks: arena.Counts{Total: 10, Free: 8, Carried: 2},
		}
		if tick == 3 {
			e.CachesCreated = []arena.CacheID{7}
			e.Interactions = []engine.Interaction{{Robot: 1, Status: "free_block_pickup"}}
		}
		_ = idx.WriteTick(e)
	}
	_ = idx.WriteInterval("r1", metrics.Interval{
		Start:  0,
		End:    4,
		Counts: metrics.Bucket{FreeBlockPickups: 3, NestBlockDrops: 1},
	})
	idx.RecordSnapshot("/data/000000000004.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, RunID: "r1", Tick: 4},
		Seed:   42,
		Arena: arena.State{Blocks: []arena.Block{
			{ID: 0, State: arena.Free},
			{ID: 1, State: arena.Carried},
		}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE run_id='r1'`).Scan(&n); err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if n != 5 {
		t.Fatalf("ticks=%d want=5", n)
	}

	var interactions int
	if err := db.QueryRow(`SELECT interactions FROM ticks WHERE run_id='r1' AND tick=3`).Scan(&interactions); err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	if interactions != 1 {
		t.Fatalf("interactions=%d want=1", interactions)
	}

	var created uint64
	if err := db.QueryRow(`SELECT tick FROM caches_created WHERE run_id='r1' AND cache_id=7`).Scan(&created); err != nil {
		t.Fatalf("caches_created: %v", err)
	}
	if created != 3 {
		t.Fatalf("created tick=%d want=3", created)
	}

	var pickups, drops int
	if err := db.QueryRow(`SELECT free_block_pickups, nest_block_drops FROM intervals WHERE run_id='r1' AND end_tick=4`).Scan(&pickups, &drops); err != nil {
		t.Fatalf("intervals: %v", err)
	}
	if pickups != 3 || drops != 1 {
		t.Fatalf("pickups=%d drops=%d", pickups, drops)
	}

	var (
		path         string
		blocks, free int
		seed         int64
	)
	if err := db.QueryRow(`SELECT path, blocks, free, seed FROM snapshots WHERE run_id='r1' AND tick=4`).Scan(&path, &blocks, &free, &seed); err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if path != "/data/000000000004.snap.zst" || blocks != 2 || free != 1 || seed != 42 {
		t.Fatalf("snapshot row path=%q blocks=%d free=%d seed=%d", path, blocks, free, seed)
	}

	var digest string
	if err := db.QueryRow(`SELECT tuning_digest FROM runs WHERE run_id='r1'`).Scan(&digest); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("digest=%q", digest)
	}
}

func TestSQLiteIndex_WritesAfterCloseAreIgnored(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = idx.WriteTick(engine.TickEntry{Tick: 1})
	if err := idx.Sync(context.Background()); err != nil {
		t.Fatalf("Sync after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
