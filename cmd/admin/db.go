package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	_ "modernc.org/sqlite"
)

// dbCmd queries the run index written by the server.
func dbCmd(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: admin db <runs|intervals|caches|snapshots> [flags]")
	}
	what := args[0]
	fs := flag.NewFlagSet("db "+what, flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	run := fs.String("run", "arena_1", "run name")
	limit := fs.Int("limit", 50, "max rows")
	_ = fs.Parse(args[1:])

	path := filepath.Join(*dataDir, "runs", *run, "index", "run.sqlite")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var q string
	switch what {
	case "runs":
		q = `SELECT run_id, seed, substr(tuning_digest, 1, 12), started_at FROM runs ORDER BY started_at DESC LIMIT ?`
	case "intervals":
		q = `SELECT run_id, start_tick, end_tick, free_block_pickups, nest_block_drops, cache_pickups, cache_drops,
			task_aborts, caches_created, caches_depleted, printf('%.1f', avg_cache_lifetime)
			FROM intervals ORDER BY end_tick DESC LIMIT ?`
	case "caches":
		q = `SELECT run_id, cache_id, tick FROM caches_created ORDER BY tick DESC, cache_id LIMIT ?`
	case "snapshots":
		q = `SELECT run_id, tick, seed, blocks, caches, free, path FROM snapshots ORDER BY tick DESC LIMIT ?`
	default:
		return fmt.Errorf("unknown table %q", what)
	}
	return printRows(ctx, os.Stdout, db, q, *limit)
}

func printRows(ctx context.Context, w io.Writer, db *sql.DB, q string, args ...any) error {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		cells := make([]string, len(vals))
		for i, v := range vals {
			cells[i] = v.String
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return tw.Flush()
}

// stateCmd fetches /v1/state from a running server.
func stateCmd(args []string) error {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}
