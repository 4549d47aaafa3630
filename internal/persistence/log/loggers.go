package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/policy"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

const (
	RecordsFile = "records.jsonl.zst"
	TracesFile  = "traces.jsonl.zst"
)

// BatchDir is where a batch's logs and snapshot live under dataDir.
func BatchDir(dataDir, batchID string) string {
	return filepath.Join(dataDir, "batches", batchID)
}

// JSONLZstdWriter appends one JSON value per line to a zstd stream. The file
// is created on first write.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
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

// Flush pushes buffered lines through the encoder without ending the frame.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
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
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		err1 = w.w.Flush()
	}
	if w.enc != nil {
		if err := w.enc.Close(); err1 == nil {
			err1 = err
		}
		w.enc = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err1 == nil {
			err1 = err
		}
		w.f = nil
	}
	w.w = nil
	return err1
}

// ReadJSONL calls fn with each line of a zstd JSONL file.
func ReadJSONL(path string, fn func(line []byte) error) error {
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
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		if err := fn(sc.Bytes()); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), n, err)
		}
	}
	return sc.Err()
}

// RecordEntry is one finished replication. Violation holds the contract
// error text of an aborted replication.
type RecordEntry struct {
	BatchID   string     `json:"batch_id"`
	Record    run.Record `json:"record"`
	Violation string     `json:"violation,omitempty"`
}

// RecordLogger writes one entry per replication (compressed).
type RecordLogger struct {
	batchID string
	w       *JSONLZstdWriter
}

func NewRecordLogger(batchDir, batchID string) *RecordLogger {
	return &RecordLogger{batchID: batchID, w: NewJSONLZstdWriter(filepath.Join(batchDir, RecordsFile))}
}

func (l *RecordLogger) WriteRecord(rec run.Record, violation error) error {
	e := RecordEntry{BatchID: l.batchID, Record: rec}
	if violation != nil {
		e.Violation = violation.Error()
	}
	return l.w.Write(e)
}

func (l *RecordLogger) Close() error { return l.w.Close() }

// ReadRecords decodes every entry of a records file.
func ReadRecords(path string, fn func(RecordEntry) error) error {
	return ReadJSONL(path, func(line []byte) error {
		var e RecordEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		return fn(e)
	})
}

// TraceEntry is one applied action and the state it produced.
type TraceEntry struct {
	Index  int              `json:"index"`
	Step   int              `json:"step"`
	Action policy.Action    `json:"action"`
	Points uint32           `json:"points"`
	Streak uint32           `json:"streak"`
	Task   slayer.TaskState `json:"task"`
}

// TraceLogger writes per-action traces of selected replications (compressed).
type TraceLogger struct{ w *JSONLZstdWriter }

func NewTraceLogger(batchDir string) *TraceLogger {
	return &TraceLogger{w: NewJSONLZstdWriter(filepath.Join(batchDir, TracesFile))}
}

// Func returns a run.TraceFunc that logs replication index. Write errors are
// reported to onErr.
func (l *TraceLogger) Func(index int, onErr func(error)) run.TraceFunc {
	return func(step int, a policy.Action, st *slayer.State) {
		err := l.w.Write(TraceEntry{Index: index, Step: step, Action: a, Points: st.Points, Streak: st.Streak, Task: st.Task})
		if err != nil && onErr != nil {
			onErr(err)
		}
	}
}

func (l *TraceLogger) Close() error { return l.w.Close() }
