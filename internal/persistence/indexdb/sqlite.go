package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/montecarlo"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
)

// SQLiteIndex is a secondary, queryable index of batches and their
// replications. All writes go through one goroutine; the JSONL logs remain
// the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	runsWritten atomic.Uint64
	writeErrors atomic.Uint64
}

type reqKind int

const (
	reqBatch reqKind = iota + 1
	reqRun
	reqFinish
	reqCatalogs
	reqFlush
)

type req struct {
	kind reqKind

	batch    BatchRow
	run      RunRow
	finish   finishRow
	catalogs []catalogRow
	done     chan struct{}
}

// BatchRow is the static description of a batch, written when it starts.
type BatchRow struct {
	BatchID        string
	Policy         string
	Era            string
	Seed           uint64
	Replications   int
	Workers        int
	MaxSteps       int
	CatalogsDigest string
	CostsDigest    string
	StartedAt      time.Time
}

// RunRow is one replication.
type RunRow struct {
	BatchID      string
	Index        int
	Seed         uint64
	Outcome      string
	Steps        int
	ElapsedNs    int64
	EndPoints    uint32
	MinPoints    uint32
	MaxPoints    uint32
	TotalPoints  uint64
	TasksStarted uint64
	TasksDone    uint64
	Kills        uint64
	Digest       string
	Violation    string
}

type finishRow struct {
	BatchID      string
	FinishedAt   time.Time
	SnapshotPath string
	Report       montecarlo.Report
}

type catalogRow struct {
	name   string
	digest string
	json   []byte
}

// Stats reports writer progress.
type Stats struct {
	QueueDepth    int
	QueueCapacity int
	RunsWritten   uint64
	WriteErrors   uint64
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
		ch: make(chan req, 16384),
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			batch_id TEXT PRIMARY KEY,
			policy TEXT NOT NULL,
			era TEXT NOT NULL,
			seed INTEGER NOT NULL,
			replications INTEGER NOT NULL,
			workers INTEGER NOT NULL,
			max_steps INTEGER NOT NULL,
			catalogs_digest TEXT NOT NULL,
			costs_digest TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			successes INTEGER,
			failures INTEGER,
			step_limited INTEGER,
			violations INTEGER,
			success_rate REAL,
			mean_hours_success REAL,
			snapshot_path TEXT,
			report_json TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			batch_id TEXT NOT NULL REFERENCES batches(batch_id),
			idx INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			steps INTEGER NOT NULL,
			elapsed_ns INTEGER NOT NULL,
			end_points INTEGER NOT NULL,
			min_points INTEGER NOT NULL,
			max_points INTEGER NOT NULL,
			total_points INTEGER NOT NULL,
			tasks_started INTEGER NOT NULL,
			tasks_done INTEGER NOT NULL,
			kills INTEGER NOT NULL,
			digest TEXT NOT NULL,
			violation TEXT,
			PRIMARY KEY (batch_id, idx)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(batch_id, outcome);`,
		`CREATE INDEX IF NOT EXISTS idx_batches_started ON batches(started_at);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains pending writes and closes the database.
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
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		RunsWritten:   s.runsWritten.Load(),
		WriteErrors:   s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) send(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	s.ch <- r
}

func (s *SQLiteIndex) BeginBatch(b BatchRow) {
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now()
	}
	s.send(req{kind: reqBatch, batch: b})
}

// WriteRun queues one replication. It blocks when the queue is full so that
// every replication is indexed.
func (s *SQLiteIndex) WriteRun(batchID string, rec run.Record, violation error) {
	r := RunRowFromRecord(batchID, rec)
	if violation != nil {
		r.Outcome = run.OutcomeViolation.String()
		r.Violation = violation.Error()
	}
	s.send(req{kind: reqRun, run: r})
}

func (s *SQLiteIndex) FinishBatch(batchID string, rep montecarlo.Report, snapshotPath string) {
	s.send(req{kind: reqFinish, finish: finishRow{
		BatchID:      batchID,
		FinishedAt:   time.Now(),
		SnapshotPath: snapshotPath,
		Report:       rep,
	}})
}

// UpsertCatalogs records the balance tables and tuning a batch ran with.
func (s *SQLiteIndex) UpsertCatalogs(data fs.FS, tune tuning.Tuning) {
	var rows []catalogRow
	for _, name := range []string{"creatures", "task_givers", "costs"} {
		b, err := fs.ReadFile(data, name+".json")
		if err != nil {
			continue
		}
		rows = append(rows, catalogRow{name: name, digest: sha256Hex(b), json: b})
	}
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, catalogRow{name: "tuning", digest: sha256Hex(b), json: b})
	}
	s.send(req{kind: reqCatalogs, catalogs: rows})
}

// Flush blocks until every write queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	s.send(req{kind: reqFlush, done: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunRowFromRecord flattens a record into its index row.
func RunRowFromRecord(batchID string, rec run.Record) RunRow {
	acc := &rec.State.Acc
	return RunRow{
		BatchID:      batchID,
		Index:        rec.Index,
		Seed:         rec.Seed,
		Outcome:      rec.Outcome.String(),
		Steps:        rec.Steps,
		ElapsedNs:    int64(rec.Elapsed),
		EndPoints:    rec.State.Points,
		MinPoints:    acc.MinPoints,
		MaxPoints:    acc.MaxPoints,
		TotalPoints:  acc.TotalPoints,
		TasksStarted: acc.TotalStarted(),
		TasksDone:    acc.TotalDone(),
		Kills:        acc.TotalKills(),
		Digest:       rec.Digest,
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertBatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO batches(batch_id,policy,era,seed,replications,workers,max_steps,catalogs_digest,costs_digest,started_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(batch_id,idx,seed,outcome,steps,elapsed_ns,end_points,min_points,max_points,total_points,tasks_started,tasks_done,kills,digest,violation) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	updateBatch, _ := s.db.Prepare(`UPDATE batches SET finished_at=?,successes=?,failures=?,step_limited=?,violations=?,success_rate=?,mean_hours_success=?,snapshot_path=?,report_json=? WHERE batch_id=?`)
	upsertCatalog, _ := s.db.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertBatch, insertRun, updateBatch, upsertCatalog} {
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
			s.writeErrors.Add(1)
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
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrors.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			s.writeErrors.Add(1)
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
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqBatch:
			b := r.batch
			exec(insertBatch,
				b.BatchID, b.Policy, b.Era,
				int64(b.Seed), // bit-preserving; read back with uint64()
				b.Replications, b.Workers, b.MaxSteps,
				b.CatalogsDigest, b.CostsDigest,
				formatTime(b.StartedAt),
			)

		case reqRun:
			ru := r.run
			if exec(insertRun,
				ru.BatchID, ru.Index, int64(ru.Seed), ru.Outcome, ru.Steps, ru.ElapsedNs,
				int64(ru.EndPoints), int64(ru.MinPoints), int64(ru.MaxPoints), int64(ru.TotalPoints),
				int64(ru.TasksStarted), int64(ru.TasksDone), int64(ru.Kills),
				ru.Digest, nullString(ru.Violation),
			) {
				s.runsWritten.Add(1)
			}

		case reqFinish:
			f := r.finish
			raw, _ := json.Marshal(f.Report)
			exec(updateBatch,
				formatTime(f.FinishedAt),
				f.Report.Successes, f.Report.Failures, f.Report.StepLimited, f.Report.Violations,
				f.Report.SuccessRate, f.Report.MeanHoursSuccess,
				nullString(f.SnapshotPath), string(raw),
				f.BatchID,
			)

		case reqCatalogs:
			now := formatTime(time.Now())
			for _, c := range r.catalogs {
				if !exec(upsertCatalog, c.name, c.digest, string(c.json), now) {
					break
				}
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
