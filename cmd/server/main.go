package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "foragearena.ai/internal/persistence/log"
	"foragearena.ai/internal/persistence/snapshot"
	"foragearena.ai/internal/sim/arena"
	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/robots"
	"foragearena.ai/internal/sim/tuning"
	"foragearena.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "http listen address (empty disables http)")
		runName    = flag.String("run", "arena_1", "run directory name under <data>/runs")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		seed       = flag.Int64("seed", 0, "override tuning seed (fresh runs only)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to resume from (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", false, "resume from the latest snapshot in the run directory when -snapshot is empty")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[arena] ", log.LstdFlags|log.Lmicroseconds)

	runDir := filepath.Join(*dataDir, "runs", *runName)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("run dir: %v", err)
	}
	snapDir := filepath.Join(runDir, "snapshots")

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Sim.Seed = *seed
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		p, err := snapshot.Latest(snapDir)
		switch {
		case err == nil:
			snapshotToLoad = p
		case errors.Is(err, snapshot.ErrNoSnapshot):
		default:
			logger.Fatalf("latest snapshot: %v", err)
		}
	}

	sim, err := engine.New(tune, logger)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Seed != tune.Sim.Seed {
			logger.Printf("snapshot seed %d overrides tuning seed %d", snap.Seed, tune.Sim.Seed)
			tune.Sim.Seed = snap.Seed
			if sim, err = engine.New(tune, logger); err != nil {
				logger.Fatalf("engine: %v", err)
			}
		}
		if err := sim.Resume(snap); err != nil {
			logger.Fatalf("resume: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), sim.CurrentTick())
	}

	// Optional read-model index (does not affect the simulation).
	idx, err := openRuntimeIndex(runDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertRun(sim.RunID(), tune); err != nil {
			logger.Printf("index backend: upsert run: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(runDir)
	metricsLog := persistlog.NewMetricsLogger(runDir)
	defer tickLog.Close()
	defer metricsLog.Close()
	sim.SetTickLogger(multiTickLogger{tickLog, idx})
	sim.SetIntervalSink(multiIntervalSink{metricsLog, idx})

	ctx, cancel := signalContext()
	defer cancel()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	sim.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				writeSnapshot(logger, idx, snapDir, snap)
			}
		}
	}()

	var srv *http.Server
	if strings.TrimSpace(*addr) != "" {
		srv = &http.Server{
			Addr:              *addr,
			Handler:           newMux(sim, idx, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
				cancel()
			}
		}()
	}

	logger.Printf("run %s: %d robots, %d blocks, seed %d", sim.RunID(), tune.Robots.Count, tune.Blocks.Count, tune.Sim.Seed)
	runErr := sim.Run(ctx)
	var sanity *arena.SanityError
	switch {
	case runErr == nil, errors.Is(runErr, context.Canceled):
	case errors.As(runErr, &sanity):
		logger.Printf("simulation halted: %v", runErr)
	default:
		logger.Printf("simulation stopped: %v", runErr)
	}

	// Final snapshot so the run can be resumed where it stopped.
	if last := sim.CurrentTick(); last > 0 && (runErr == nil || errors.Is(runErr, context.Canceled)) {
		writeSnapshot(logger, idx, snapDir, sim.ExportSnapshot(last-1))
	}
	cancel()
	<-snapDone

	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
}

func writeSnapshot(logger *log.Logger, idx runtimeIndex, dir string, snap snapshot.SnapshotV1) {
	path := filepath.Join(dir, snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}
}

func newMux(sim *engine.Sim, idx runtimeIndex, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(sim, idx))
	mux.HandleFunc("/v1/state", observer.LoopbackOnly(stateHandler(sim)))
	observer.NewServer(sim, logger).Routes(mux)

	if envBool("FA_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// stateHandler serves counts and the robots published at the end of the last
// tick; it never touches live robot state.
func stateHandler(sim *engine.Sim) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			RunID  string         `json:"run_id"`
			Tick   uint64         `json:"tick"`
			Counts arena.Counts   `json:"counts"`
			Robots []robots.State `json:"robots"`
		}{
			RunID:  sim.RunID(),
			Tick:   sim.CurrentTick(),
			Counts: sim.Arena().Counts(),
			Robots: sim.RobotStates(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// metricsHandler writes a minimal Prometheus exposition.
func metricsHandler(sim *engine.Sim, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		run := sim.RunID()
		m := sim.Metrics()
		c := sim.Arena().Counts()
		cs := sim.Caches().Stats()

		fmt.Fprintf(rw, "# HELP foragearena_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE foragearena_tick gauge\n")
		fmt.Fprintf(rw, "foragearena_tick{run=%q} %d\n", run, sim.CurrentTick())

		fmt.Fprintf(rw, "# HELP foragearena_blocks Blocks by carrying state.\n")
		fmt.Fprintf(rw, "# TYPE foragearena_blocks gauge\n")
		fmt.Fprintf(rw, "foragearena_blocks{run=%q,state=%q} %d\n", run, "free", c.Free)
		fmt.Fprintf(rw, "foragearena_blocks{run=%q,state=%q} %d\n", run, "carried", c.Carried)
		fmt.Fprintf(rw, "foragearena_blocks{run=%q,state=%q} %d\n", run, "cached", c.Cached)

		fmt.Fprintf(rw, "# HELP foragearena_caches Active caches.\n")
		fmt.Fprintf(rw, "# TYPE foragearena_caches gauge\n")
		fmt.Fprintf(rw, "foragearena_caches{run=%q} %d\n", run, c.Caches)

		fmt.Fprintf(rw, "# HELP foragearena_cache_lifecycle_total Cache lifecycle counters.\n")
		fmt.Fprintf(rw, "# TYPE foragearena_cache_lifecycle_total counter\n")
		fmt.Fprintf(rw, "foragearena_cache_lifecycle_total{run=%q,event=%q} %d\n", run, "created", cs.Created)
		fmt.Fprintf(rw, "foragearena_cache_lifecycle_total{run=%q,event=%q} %d\n", run, "depleted", cs.Depleted)
		fmt.Fprintf(rw, "foragearena_cache_lifecycle_total{run=%q,event=%q} %d\n", run, "discarded", cs.Discarded)

		fmt.Fprintf(rw, "# HELP foragearena_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE foragearena_step_ms gauge\n")
		fmt.Fprintf(rw, "foragearena_step_ms{run=%q} %.3f\n", run, m.StepMS)

		fmt.Fprintf(rw, "# HELP foragearena_window Interactions over the rolling window.\n")
		fmt.Fprintf(rw, "# TYPE foragearena_window gauge\n")
		w := m.Window
		for _, kv := range []struct {
			name string
			v    int
		}{
			{"free_block_pickup", w.FreeBlockPickups},
			{"nest_block_drop", w.NestBlockDrops},
			{"cache_pickup", w.CachePickups},
			{"cache_drop", w.CacheDrops},
			{"new_cache_block_drop", w.NewCacheBlockDrops},
			{"cache_site_block_drop", w.CacheSiteBlockDrops},
			{"task_abort", w.TaskAborts},
			{"penalty_begun", w.PenaltiesBegun},
		} {
			fmt.Fprintf(rw, "foragearena_window{run=%q,metric=%q} %d\n", run, kv.name, kv.v)
		}
		fmt.Fprintf(rw, "# HELP foragearena_window_ticks Rolling window size in ticks.\n")
		fmt.Fprintf(rw, "# TYPE foragearena_window_ticks gauge\n")
		fmt.Fprintf(rw, "foragearena_window_ticks{run=%q} %d\n", run, m.WindowTicks)

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP foragearena_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE foragearena_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "foragearena_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP foragearena_index_dropped_total Index writes dropped under backpressure.\n")
			fmt.Fprintf(rw, "# TYPE foragearena_index_dropped_total counter\n")
			fmt.Fprintf(rw, "foragearena_index_dropped_total{kind=%q} %d\n", "tick", st.DropTickTotal)
			fmt.Fprintf(rw, "foragearena_index_dropped_total{kind=%q} %d\n", "interval", st.DropIntervalTotal)
			fmt.Fprintf(rw, "foragearena_index_dropped_total{kind=%q} %d\n", "snapshot", st.DropSnapshotTotal)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
