// Package batch runs one configured Monte Carlo batch end to end: it loads
// the tables, replicates, reduces, and persists logs, index rows and the
// report snapshot.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MortenLohne/simulate-limpwurt/internal/persistence/indexdb"
	persistlog "github.com/MortenLohne/simulate-limpwurt/internal/persistence/log"
	"github.com/MortenLohne/simulate-limpwurt/internal/persistence/snapshot"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/costs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/montecarlo"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
)

const ManifestFile = "manifest.json"

// Manifest is written before the first replication so a batch can be
// replayed even if it never finishes.
type Manifest struct {
	BatchID        string        `json:"batch_id"`
	Tuning         tuning.Tuning `json:"tuning"`
	CatalogsDigest string        `json:"catalogs_digest"`
	CostsDigest    string        `json:"costs_digest"`
	StartedAt      time.Time     `json:"started_at"`
}

// Progress counts finished replications.
type Progress struct {
	BatchID     string
	Done        int
	Total       int
	Successes   int
	Failures    int
	StepLimited int
	Violations  int
}

// Hooks observe a batch. All callbacks run on the batch goroutine, never
// concurrently.
type Hooks struct {
	OnStart    func(m Manifest)
	OnProgress func(p Progress)
}

type Result struct {
	Manifest     Manifest
	Dir          string
	Batch        *montecarlo.Batch
	Report       montecarlo.Report
	SnapshotPath string
}

// Runner persists under DataDir when it is set. Index may be nil.
type Runner struct {
	DataDir string
	Index   *indexdb.SQLiteIndex
	Logger  *log.Logger

	// TraceFirst logs every action of the first N replications.
	TraceFirst int
}

// LoadEnv loads the tables t names, bound to t's era.
func LoadEnv(t tuning.Tuning) (run.Env, fs.FS, error) {
	var data fs.FS = catalogs.DataFS
	if t.DataDir != "" {
		data = os.DirFS(t.DataDir)
	}
	cat, err := catalogs.Load(data)
	if err != nil {
		return run.Env{}, nil, fmt.Errorf("load catalogs: %w", err)
	}
	cost, err := costs.Load(data)
	if err != nil {
		return run.Env{}, nil, fmt.Errorf("load costs: %w", err)
	}
	return run.Env{Catalogs: cat.WithEra(t.EraValue()), Costs: cost}, data, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}

// Run executes t. A cancelled ctx returns ctx.Err() and leaves the partial
// logs on disk.
func (r *Runner) Run(ctx context.Context, t tuning.Tuning, h Hooks) (Result, error) {
	env, data, err := LoadEnv(t)
	if err != nil {
		return Result{}, err
	}
	start, err := t.StartPoint()
	if err != nil {
		return Result{}, err
	}

	res := Result{Manifest: Manifest{
		BatchID:        uuid.NewString(),
		Tuning:         t,
		CatalogsDigest: env.Catalogs.Digest(),
		CostsDigest:    env.Costs.Digest(),
		StartedAt:      time.Now().UTC(),
	}}
	id := res.Manifest.BatchID

	var (
		records *persistlog.RecordLogger
		traces  *persistlog.TraceLogger
	)
	if r.DataDir != "" {
		res.Dir = persistlog.BatchDir(r.DataDir, id)
		if err := writeManifest(res.Dir, res.Manifest); err != nil {
			return res, err
		}
		records = persistlog.NewRecordLogger(res.Dir, id)
		defer func() {
			if err := records.Close(); err != nil {
				r.logf("batch %s: close records: %v", id, err)
			}
		}()
		if r.TraceFirst > 0 {
			traces = persistlog.NewTraceLogger(res.Dir)
			defer func() {
				if err := traces.Close(); err != nil {
					r.logf("batch %s: close traces: %v", id, err)
				}
			}()
		}
	}

	if r.Index != nil {
		r.Index.UpsertCatalogs(data, t)
		r.Index.BeginBatch(indexdb.BatchRow{
			BatchID:        id,
			Policy:         t.Policy,
			Era:            t.Era,
			Seed:           t.Seed,
			Replications:   t.Replications,
			Workers:        t.Workers,
			MaxSteps:       t.MaxSteps,
			CatalogsDigest: res.Manifest.CatalogsDigest,
			CostsDigest:    res.Manifest.CostsDigest,
			StartedAt:      res.Manifest.StartedAt,
		})
	}
	if h.OnStart != nil {
		h.OnStart(res.Manifest)
	}
	r.logf("batch %s: start policy=%s era=%s replications=%d seed=%d", id, t.Policy, t.Era, t.Replications, t.Seed)

	prog := Progress{BatchID: id, Total: t.Replications}
	every := max(t.ProgressEvery, 1)
	opts := montecarlo.Options{
		Replications: t.Replications,
		Workers:      t.Workers,
		Seed:         t.Seed,
		Policy:       t.Policy,
		Start:        start,
		MaxSteps:     t.MaxSteps,
		OnRecord: func(rec run.Record, verr error) {
			prog.count(rec, verr)
			if records != nil {
				if err := records.WriteRecord(rec, verr); err != nil {
					r.logf("batch %s: write record %d: %v", id, rec.Index, err)
				}
			}
			r.Index.WriteRun(id, rec, verr)
			if h.OnProgress != nil && (prog.Done%every == 0 || prog.Done == prog.Total) {
				h.OnProgress(prog)
			}
		},
	}
	if traces != nil {
		onErr := func(err error) { r.logf("batch %s: write trace: %v", id, err) }
		opts.Trace = func(i int) run.TraceFunc {
			if i >= r.TraceFirst {
				return nil
			}
			return traces.Func(i, onErr)
		}
	}

	b, err := montecarlo.Run(ctx, env, opts)
	if err != nil {
		r.logf("batch %s: aborted after %d replications: %v", id, prog.Done, err)
		return res, err
	}
	res.Batch = b
	res.Report = montecarlo.Reduce(b, opts, env.Catalogs.Era)

	if res.Dir != "" {
		res.SnapshotPath = filepath.Join(res.Dir, snapshot.FileName)
		err := snapshot.WriteSnapshot(res.SnapshotPath, snapshot.ReportSnapshotV1{
			Header: snapshot.Header{
				BatchID:      id,
				Policy:       t.Policy,
				Era:          t.Era,
				Replications: t.Replications,
				CreatedAt:    time.Now().UTC(),
			},
			Tuning:         t,
			CatalogsDigest: res.Manifest.CatalogsDigest,
			CostsDigest:    res.Manifest.CostsDigest,
			Report:         res.Report,
		})
		if err != nil {
			r.logf("batch %s: write snapshot: %v", id, err)
			res.SnapshotPath = ""
		}
	}
	r.Index.FinishBatch(id, res.Report, res.SnapshotPath)
	r.logf("batch %s: done successes=%d failures=%d step_limited=%d violations=%d",
		id, res.Report.Successes, res.Report.Failures, res.Report.StepLimited, res.Report.Violations)
	return res, nil
}

func (p *Progress) count(rec run.Record, verr error) {
	p.Done++
	if verr != nil {
		p.Violations++
		return
	}
	switch rec.Outcome {
	case run.OutcomeSuccess:
		p.Successes++
	case run.OutcomeFailure:
		p.Failures++
	case run.OutcomeStepLimit:
		p.StepLimited++
	}
}

func writeManifest(dir string, m Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), append(b, '\n'), 0o644)
}

// ReadManifest loads dir/manifest.json.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%s: %w", ManifestFile, err)
	}
	return m, nil
}
