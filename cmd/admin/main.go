package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"foragearena.ai/internal/persistence/snapshot"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <list|snapshots|db|state> [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "list":
		err = listCmd(args)
	case "snapshots":
		err = snapshotsCmd(args)
	case "db":
		err = dbCmd(args)
	case "state":
		err = stateCmd(args)
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, os.Args[1]+":", err)
		os.Exit(1)
	}
}

// listCmd prints every run directory with its newest snapshot tick.
func listCmd(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	runs, err := listRuns(*dataDir)
	if err != nil {
		return err
	}
	for _, r := range runs {
		latest := "-"
		p, err := snapshot.Latest(filepath.Join(*dataDir, "runs", r, "snapshots"))
		switch {
		case err == nil:
			if h, herr := snapshot.ReadHeader(p); herr == nil {
				latest = fmt.Sprintf("%d", h.Tick)
			}
		case !errors.Is(err, snapshot.ErrNoSnapshot):
			return err
		}
		fmt.Printf("%s\tlatest_snapshot=%s\n", r, latest)
	}
	return nil
}

func listRuns(dataDir string) ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(dataDir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// snapshotsCmd prints the header of every snapshot of a run.
func snapshotsCmd(args []string) error {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	run := fs.String("run", "arena_1", "run name")
	_ = fs.Parse(args)

	paths, err := snapshot.List(filepath.Join(*dataDir, "runs", *run, "snapshots"))
	if err != nil {
		return err
	}
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		fmt.Printf("tick=%d run_id=%s blocks=%d caches=%d path=%s\n", h.Tick, h.RunID, h.Blocks, h.Caches, p)
	}
	return nil
}
