package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MortenLohne/simulate-limpwurt/internal/batch"
	persistlog "github.com/MortenLohne/simulate-limpwurt/internal/persistence/log"
	"github.com/MortenLohne/simulate-limpwurt/internal/persistence/snapshot"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/montecarlo"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/policy"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
)

func main() {
	var (
		batchDir  = flag.String("batch", "", "batch directory containing manifest.json and records.jsonl.zst")
		dataDir   = flag.String("data", "./data", "runtime data directory (with -id)")
		batchID   = flag.String("id", "", "batch id under -data (alternative to -batch)")
		fromIndex = flag.Int("from", 0, "first replication index to verify (inclusive)")
		toIndex   = flag.Int("to", -1, "last replication index to verify (inclusive, -1 = all)")
	)
	flag.Parse()

	dir := *batchDir
	if dir == "" && *batchID != "" {
		dir = persistlog.BatchDir(*dataDir, *batchID)
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "missing -batch or -id")
		os.Exit(2)
	}

	man, err := batch.ReadManifest(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read manifest:", err)
		os.Exit(1)
	}
	tune := man.Tuning
	env, _, err := batch.LoadEnv(tune)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tables:", err)
		os.Exit(1)
	}
	if d := env.Catalogs.Digest(); d != man.CatalogsDigest {
		fmt.Fprintf(os.Stderr, "warning: catalogs digest changed since the batch ran: got=%s want=%s\n", d, man.CatalogsDigest)
	}
	if d := env.Costs.Digest(); d != man.CostsDigest {
		fmt.Fprintf(os.Stderr, "warning: costs digest changed since the batch ran: got=%s want=%s\n", d, man.CostsDigest)
	}
	start, err := tune.StartPoint()
	if err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}

	fmt.Printf("batch %s policy=%s era=%s replications=%d seed=%d\n",
		man.BatchID, tune.Policy, tune.Era, tune.Replications, tune.Seed)

	if h, err := snapshot.ReadHeader(filepath.Join(dir, snapshot.FileName)); err == nil {
		fmt.Printf("snapshot v%d created=%s\n", h.Version, h.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	var checked, skipped int
	err = persistlog.ReadRecords(filepath.Join(dir, persistlog.RecordsFile), func(e persistlog.RecordEntry) error {
		rec := e.Record
		if rec.Index < *fromIndex || (*toIndex >= 0 && rec.Index > *toIndex) {
			return nil
		}
		if want := montecarlo.SeedFor(tune.Seed, rec.Index); rec.Seed != want {
			return fmt.Errorf("replication %d: seed mismatch: got=%d want=%d", rec.Index, rec.Seed, want)
		}
		pol, err := policy.New(rec.Policy, env.Catalogs)
		if err != nil {
			return fmt.Errorf("replication %d: %w", rec.Index, err)
		}
		got, verr := run.Run(env, pol, start, rec.Seed, run.Options{Index: rec.Index, MaxSteps: tune.MaxSteps})
		if (verr != nil) != (e.Violation != "") {
			return fmt.Errorf("replication %d: violation mismatch: got=%v want=%q", rec.Index, verr, e.Violation)
		}
		if e.Violation != "" {
			skipped++
			return nil
		}
		if got.Digest != rec.Digest {
			return fmt.Errorf("digest mismatch at replication %d: got=%s want=%s", rec.Index, got.Digest, rec.Digest)
		}
		checked++
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d replications (violations reproduced=%d)\n", checked, skipped)
}
