package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"foragearena.ai/internal/sim/engine"
	"foragearena.ai/internal/sim/metrics"
)

// DefaultSegmentTicks is how many ticks share one compressed file.
const DefaultSegmentTicks = 10000

// JSONLZstdWriter appends JSON lines to zstd files, starting a new file every
// segment of ticks so replays can seek without decompressing the whole run.
type JSONLZstdWriter struct {
	baseDir  string
	prefix   string
	segTicks uint64

	mu     sync.Mutex
	curSeg uint64
	open   bool
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, segmentTicks uint64) *JSONLZstdWriter {
	if segmentTicks == 0 {
		segmentTicks = DefaultSegmentTicks
	}
	return &JSONLZstdWriter{
		baseDir:  baseDir,
		prefix:   prefix,
		segTicks: segmentTicks,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(tick uint64, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := tick / w.segTicks
	if !w.open || seg != w.curSeg {
		if err := w.rotateLocked(seg); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines through the encoder.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(seg uint64) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForSegment(seg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = seg
	w.open = true
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.open = false
	return err1
}

func (w *JSONLZstdWriter) pathForSegment(seg uint64) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%08d.jsonl.zst", w.prefix, seg))
}

// TickLogger writes one JSONL entry per tick (compressed).
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(runDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "ticks"), "ticks", DefaultSegmentTicks)}
}

func (l *TickLogger) WriteTick(e engine.TickEntry) error { return l.w.Write(e.Tick, e) }
func (l *TickLogger) Flush() error                       { return l.w.Flush() }
func (l *TickLogger) Close() error                       { return l.w.Close() }

// MetricsLogger writes one JSONL entry per closed metrics interval.
type MetricsLogger struct{ w *JSONLZstdWriter }

func NewMetricsLogger(runDir string) *MetricsLogger {
	return &MetricsLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "metrics"), "metrics", DefaultSegmentTicks)}
}

type metricsLine struct {
	RunID string `json:"run_id"`
	metrics.Interval
}

func (l *MetricsLogger) WriteInterval(runID string, iv metrics.Interval) error {
	return l.w.Write(iv.End, metricsLine{RunID: runID, Interval: iv})
}
func (l *MetricsLogger) Flush() error { return l.w.Flush() }
func (l *MetricsLogger) Close() error { return l.w.Close() }

// ReadLines decodes every line under dir whose file name starts with prefix,
// in segment order, calling fn with the raw JSON. fn returning io.EOF stops
// the scan without error.
func ReadLines(dir, prefix string, fn func(line []byte) error) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix+"-") && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := readFile(filepath.Join(dir, name), fn); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func readFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
