package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"foragearena.ai/internal/persistence/snapshot"
	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/metrics"
	"foragearena.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index over a run. Writes are queued to
// one writer goroutine and batched into transactions; the JSONL logs remain
// the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropInterval atomic.Uint64
	dropSnapshot atomic.Uint64
}

// Stats reports queue pressure. Writes are dropped, not blocked, when the
// writer falls behind.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropIntervalTotal uint64 `json:"drop_interval_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqInterval
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	tick     engine.TickEntry
	runID    string
	interval metrics.Interval
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	RunID  string
	Tick   uint64
	Path   string
	Seed   int64
	Blocks int
	Caches int
	Free   int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			tuning_digest TEXT NOT NULL,
			tuning_json TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			interactions INTEGER NOT NULL,
			free INTEGER NOT NULL,
			carried INTEGER NOT NULL,
			cached INTEGER NOT NULL,
			caches INTEGER NOT NULL,
			serving INTEGER NOT NULL,
			caches_depleted INTEGER NOT NULL,
			step_ms REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS caches_created (
			run_id TEXT NOT NULL,
			cache_id INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			PRIMARY KEY (run_id, cache_id, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_interactions ON ticks(run_id, interactions);`,
		`CREATE TABLE IF NOT EXISTS intervals (
			run_id TEXT NOT NULL,
			start_tick INTEGER NOT NULL,
			end_tick INTEGER NOT NULL,
			free_block_pickups INTEGER NOT NULL,
			nest_block_drops INTEGER NOT NULL,
			cache_pickups INTEGER NOT NULL,
			cache_drops INTEGER NOT NULL,
			new_cache_block_drops INTEGER NOT NULL,
			cache_site_block_drops INTEGER NOT NULL,
			task_aborts INTEGER NOT NULL,
			penalties_begun INTEGER NOT NULL,
			caches_created INTEGER NOT NULL,
			caches_depleted INTEGER NOT NULL,
			avg_cache_lifetime REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, end_tick)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			caches INTEGER NOT NULL,
			free INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropIntervalTotal: s.dropInterval.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		switch r.kind {
		case reqTick:
			s.dropTick.Add(1)
		case reqInterval:
			s.dropInterval.Add(1)
		case reqSnapshot:
			s.dropSnapshot.Add(1)
		}
	}
}

func (s *SQLiteIndex) WriteTick(entry engine.TickEntry) error {
	s.enqueue(req{kind: reqTick, tick: entry})
	return nil
}

func (s *SQLiteIndex) WriteInterval(runID string, iv metrics.Interval) error {
	s.enqueue(req{kind: reqInterval, runID: runID, interval: iv})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	free := 0
	for _, b := range snap.Arena.Blocks {
		if b.State == arena.Free {
			free++
		}
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		RunID:  snap.Header.RunID,
		Tick:   snap.Header.Tick,
		Path:   path,
		Seed:   snap.Seed,
		Blocks: len(snap.Arena.Blocks),
		Caches: len(snap.Arena.Caches),
		Free:   free,
	}})
}

// Sync blocks until every write queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertRun records the run and the tuning it applies.
func (s *SQLiteIndex) UpsertRun(runID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO runs(run_id,seed,tuning_digest,tuning_json,started_at) VALUES(?,?,?,?,?)
		ON CONFLICT(run_id) DO UPDATE SET tuning_digest=excluded.tuning_digest, tuning_json=excluded.tuning_json`,
		runID, tune.Sim.Seed, hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,interactions,free,carried,cached,caches,serving,caches_depleted,step_ms,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertCacheCreated, _ := s.db.Prepare(`INSERT OR REPLACE INTO caches_created(run_id,cache_id,tick) VALUES(?,?,?)`)
	insertInterval, _ := s.db.Prepare(`INSERT OR REPLACE INTO intervals(run_id,start_tick,end_tick,free_block_pickups,nest_block_drops,cache_pickups,cache_drops,new_cache_block_drops,cache_site_block_drops,task_aborts,penalties_begun,caches_created,caches_depleted,avg_cache_lifetime,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,tick,path,seed,blocks,caches,free) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCacheCreated, insertInterval, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			b, _ := json.Marshal(e)
			if !exec(insertTick, e.RunID, int64(e.Tick), len(e.Interactions),
				e.Blocks.Free, e.Blocks.Carried, e.Blocks.Cached, e.Blocks.Caches, e.Serving, e.CachesDepleted, e.StepMS, string(b)) {
				continue
			}
			for _, id := range e.CachesCreated {
				if !exec(insertCacheCreated, e.RunID, int(id), int64(e.Tick)) {
					break
				}
			}

		case reqInterval:
			iv := r.interval
			raw, _ := json.Marshal(iv)
			c := iv.Counts
			exec(insertInterval, r.runID, int64(iv.Start), int64(iv.End),
				c.FreeBlockPickups, c.NestBlockDrops, c.CachePickups, c.CacheDrops,
				c.NewCacheBlockDrops, c.CacheSiteBlockDrops, c.TaskAborts, c.PenaltiesBegun,
				iv.Caches.Created, iv.Caches.Depleted, iv.AvgCacheLifetime, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.RunID, int64(sn.Tick), sn.Path, sn.Seed, sn.Blocks, sn.Caches, sn.Free)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
