package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	persistlog "foragearena.ai/internal/persistence/log"
	"foragearena.ai/internal/persistence/snapshot"
	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/tuning"
)

// replay has two modes. With -snapshot it decodes the snapshot, resumes a
// simulation from it and verifies the arena. With -ticks it re-runs a
// deterministic run from tick 0 and checks every logged digest.
func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional)")
		ticksDir   = flag.String("ticks", "", "ticks dir containing ticks-*.jsonl.zst (optional)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to the tuning.yaml the run used")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" && *ticksDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -ticks")
		os.Exit(2)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	if *snapPath != "" {
		if err := inspectSnapshot(*snapPath, tune); err != nil {
			fmt.Fprintln(os.Stderr, "snapshot:", err)
			os.Exit(1)
		}
	}
	if *ticksDir != "" {
		checked, err := replayTicks(*ticksDir, tune, *toTick)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		fmt.Printf("replay ok: checked=%d ticks\n", checked)
	}
}

func inspectSnapshot(path string, tune tuning.Tuning) error {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot v%d run=%s tick=%d seed=%d arena=%.1fx%.1f res=%.2f blocks=%d caches=%d robots=%d\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.Tick, snap.Seed, snap.Width, snap.Height, snap.Resolution,
		len(snap.Arena.Blocks), len(snap.Arena.Caches), len(snap.Robots))

	tune.Sim.Seed = snap.Seed
	sim, err := engine.New(tune, nil)
	if err != nil {
		return err
	}
	if err := sim.Resume(snap); err != nil {
		return err
	}
	c := sim.Arena().Counts()
	fmt.Printf("resume ok: next tick=%d free=%d cached=%d caches=%d\n", sim.CurrentTick(), c.Free, c.Cached, c.Caches)
	return nil
}

func replayTicks(dir string, tune tuning.Tuning, toTick uint64) (uint64, error) {
	tune.Sim.Deterministic = true
	tune.Sim.SnapshotEveryTicks = 0
	sim, err := engine.New(tune, nil)
	if err != nil {
		return 0, err
	}
	ctx := context.Background()

	var checked uint64
	err = persistlog.ReadLines(dir, "ticks", func(line []byte) error {
		var want engine.TickEntry
		if err := json.Unmarshal(line, &want); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if toTick != 0 && want.Tick > toTick {
			return io.EOF
		}
		if want.Digest == "" {
			return fmt.Errorf("tick %d has no digest; the run was not deterministic", want.Tick)
		}
		if want.Tick != sim.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", sim.CurrentTick(), want.Tick)
		}
		got, err := sim.Step(ctx)
		if err != nil {
			return err
		}
		if got.Digest != want.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", got.Tick, got.Digest, want.Digest)
		}
		checked++
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return checked, err
	}
	return checked, nil
}
