package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/costs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/montecarlo"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/policy"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
)

func record(i int, o run.Outcome) run.Record {
	st := slayer.NewState(uint32(100+i), 0, slayer.CompletedTask(catalogs.Cows))
	st.Acc.Kills[catalogs.Cows] = 12
	return run.Record{Index: i, Seed: ^uint64(0) - uint64(i), Outcome: o, Steps: 3, Elapsed: time.Minute, State: st, Digest: "d"}
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteIndex_BatchLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "batches.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.BeginBatch(BatchRow{BatchID: "b1", Policy: "superiors", Era: "LIMP_2026", Seed: ^uint64(0), Replications: 3, Workers: 2})
	idx.WriteRun("b1", record(0, run.OutcomeSuccess), nil)
	idx.WriteRun("b1", record(1, run.OutcomeFailure), nil)
	idx.WriteRun("b1", record(2, run.OutcomeViolation), errors.New("slayer skip: E_INVALID_SKIP: cows"))
	idx.UpsertCatalogs(catalogs.DataFS, tuning.Defaults())
	idx.FinishBatch("b1", montecarlo.Report{Successes: 1, Failures: 1, Violations: 1, SuccessRate: 1.0 / 3}, "/tmp/b1/report.snap.zst")
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if st := idx.Stats(); st.RunsWritten != 3 || st.WriteErrors != 0 {
		t.Fatalf("stats=%+v", st)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openDB(t, path)
	var (
		seed       int64
		succ       int
		snap       string
		finishedAt sql.NullString
	)
	row := db.QueryRow(`SELECT seed,successes,snapshot_path,finished_at FROM batches WHERE batch_id='b1'`)
	if err := row.Scan(&seed, &succ, &snap, &finishedAt); err != nil {
		t.Fatalf("Scan batch: %v", err)
	}
	if uint64(seed) != ^uint64(0) || succ != 1 || snap != "/tmp/b1/report.snap.zst" || !finishedAt.Valid {
		t.Fatalf("batch row: seed=%d succ=%d snap=%q finished=%v", seed, succ, snap, finishedAt)
	}

	var failures int
	if err := db.QueryRow(`SELECT COUNT(*) FROM runs WHERE batch_id='b1' AND outcome='FAILURE'`).Scan(&failures); err != nil {
		t.Fatalf("count: %v", err)
	}
	if failures != 1 {
		t.Fatalf("failure runs=%d want=1", failures)
	}

	var violation sql.NullString
	var kills int64
	if err := db.QueryRow(`SELECT violation,kills FROM runs WHERE batch_id='b1' AND idx=2`).Scan(&violation, &kills); err != nil {
		t.Fatalf("scan run: %v", err)
	}
	if !violation.Valid || kills != 12 {
		t.Fatalf("run 2: violation=%v kills=%d", violation, kills)
	}

	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&tables); err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	if tables != 4 {
		t.Fatalf("catalog rows=%d want=4", tables)
	}
}

// completeAlways asks to complete whatever the state is.
type completeAlways struct{}

func (completeAlways) Name() string { return "complete_always" }

func (completeAlways) ShouldTerminate(*slayer.State, *slayer.Progression) policy.Verdict {
	return policy.Continue
}

func (completeAlways) SelectAction(*slayer.State, *slayer.Progression) policy.Action {
	return policy.Action{Kind: policy.Complete}
}

func TestSQLiteIndex_ViolationsAreNotFailures(t *testing.T) {
	cat, err := catalogs.Default(catalogs.Limp2026)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	cost, err := costs.Default()
	if err != nil {
		t.Fatalf("costs: %v", err)
	}
	env := run.Env{Catalogs: cat, Costs: cost}
	start := run.DefaultStart(catalogs.Limp2026)
	start.Task = slayer.CompletedTask(catalogs.Cows)

	rec, verr := run.Run(env, completeAlways{}, start, 3, run.Options{Index: 0})
	if verr == nil {
		t.Fatalf("completing a finished task was accepted")
	}
	if rec.Outcome != run.OutcomeViolation {
		t.Fatalf("outcome=%s want=%s", rec.Outcome, run.OutcomeViolation)
	}

	path := filepath.Join(t.TempDir(), "batches.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.BeginBatch(BatchRow{BatchID: "b", Policy: "complete_always", Era: "LIMP_2026", Replications: 3})
	idx.WriteRun("b", rec, verr)
	idx.WriteRun("b", record(1, run.OutcomeFailure), nil)
	// A caller that passes a violation with a stale outcome still lands in VIOLATION.
	idx.WriteRun("b", record(2, run.OutcomeFailure), errors.New("slayer store: E_STORAGE_LOCKED"))
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openDB(t, path)
	rows, err := db.Query(`SELECT outcome,COUNT(*) FROM runs WHERE batch_id='b' GROUP BY outcome ORDER BY outcome`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	got := map[string]int{}
	for rows.Next() {
		var o string
		var n int
		if err := rows.Scan(&o, &n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got[o] = n
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(got) != 2 || got["FAILURE"] != 1 || got["VIOLATION"] != 2 {
		t.Fatalf("outcomes=%v want FAILURE=1 VIOLATION=2", got)
	}
}

func TestSQLiteIndex_NilAndClosedAreNoops(t *testing.T) {
	var idx *SQLiteIndex
	idx.WriteRun("b", record(0, run.OutcomeSuccess), nil)
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("nil flush: %v", err)
	}

	live, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := live.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	live.WriteRun("b", record(0, run.OutcomeSuccess), nil)
	if err := live.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRunRowFromRecord(t *testing.T) {
	r := RunRowFromRecord("b", record(4, run.OutcomeStepLimit))
	if r.Outcome != "STEP_LIMIT" || r.EndPoints != 104 || r.Kills != 12 || r.ElapsedNs != int64(time.Minute) {
		t.Fatalf("row=%+v", r)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("empty path accepted")
	}
}
