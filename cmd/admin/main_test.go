package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"foragearena.ai/internal/persistence/indexdb"
	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/tuning"
)

func TestListRuns(t *testing.T) {
	dir := t.TempDir()
	for _, r := range []string{"run_b", "run_a"} {
		if err := os.MkdirAll(filepath.Join(dir, "runs", r), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "runs", "stray.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := listRuns(dir)
	if err != nil {
		t.Fatalf("listRuns: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"run_a", "run_b"}) {
		t.Fatalf("runs=%v", got)
	}

	got, err = listRuns(filepath.Join(dir, "missing"))
	if err != nil || got != nil {
		t.Fatalf("missing dir: %v %v", got, err)
	}
}

func TestPrintRowsFromIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.UpsertRun("r1", tuning.Defaults())
	_ = idx.WriteTick(engine.TickEntry{RunID: "r1", Tick: 4, CachesCreated: []arena.CacheID{2}})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var buf bytes.Buffer
	q := `SELECT run_id, cache_id, tick FROM caches_created ORDER BY tick DESC LIMIT ?`
	if err := printRows(context.Background(), &buf, db, q, 10); err != nil {
		t.Fatalf("printRows: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output=%q", buf.String())
	}
	if f := strings.Fields(lines[0]); !reflect.DeepEqual(f, []string{"run_id", "cache_id", "tick"}) {
		t.Fatalf("header=%v", f)
	}
	if f := strings.Fields(lines[1]); !reflect.DeepEqual(f, []string{"r1", "2", "4"}) {
		t.Fatalf("row=%v", f)
	}
}
