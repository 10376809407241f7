package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"foragearena.ai/internal/persistence/indexdb"
	"foragearena.ai/internal/persistence/snapshot"
	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/metrics"
	"foragearena.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	engine.TickLogger
	engine.IntervalSink
	Close() error
	UpsertRun(runID string, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

func openRuntimeIndex(runDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("FA_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(runDir, "index", "run.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported FA_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger []engine.TickLogger

func (m multiTickLogger) WriteTick(entry engine.TickEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteTick(entry)
		}
	}
	return nil
}

type multiIntervalSink []engine.IntervalSink

func (m multiIntervalSink) WriteInterval(runID string, iv metrics.Interval) error {
	for _, s := range m {
		if s != nil {
			_ = s.WriteInterval(runID, iv)
		}
	}
	return nil
}
