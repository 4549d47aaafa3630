package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MortenLohne/simulate-limpwurt/internal/batch"
	"github.com/MortenLohne/simulate-limpwurt/internal/persistence/indexdb"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
)

func main() {
	var (
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (optional)")
		era          = flag.String("era", "", "LIMP_2024, LIMP_2025 or LIMP_2026")
		pol          = flag.String("policy", "", "minimize_lock or superiors")
		replications = flag.Int("replications", 0, "number of replications")
		workers      = flag.Int("workers", 0, "parallel workers (0 = GOMAXPROCS)")
		seed         = flag.Uint64("seed", 0, "batch seed")
		maxSteps     = flag.Int("max_steps", 0, "per-replication action ceiling")
		dataDir      = flag.String("data", "", "persist logs, index and snapshot under this directory (optional)")
		disableDB    = flag.Bool("disable_db", false, "skip the sqlite index when -data is set")
		traceFirst   = flag.Int("trace_first", 0, "log every action of the first N replications")
		asJSON       = flag.Bool("json", false, "print the report as JSON")
		quiet        = flag.Bool("quiet", false, "no progress lines")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[simulate] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	// Flags given on the command line win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "era":
			tune.Era = *era
		case "policy":
			tune.Policy = *pol
		case "replications":
			tune.Replications = *replications
		case "workers":
			tune.Workers = *workers
		case "seed":
			tune.Seed = *seed
		case "max_steps":
			tune.MaxSteps = *maxSteps
		}
	})
	tune.Normalize()
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if *dataDir != "" && !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "batches.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner := &batch.Runner{DataDir: *dataDir, Index: idx, Logger: logger, TraceFirst: *traceFirst}
	started := time.Now()
	hooks := batch.Hooks{}
	if !*quiet {
		hooks.OnProgress = func(p batch.Progress) {
			logger.Printf("%s", formatProgress(p, time.Since(started)))
		}
	}
	res, err := runner.Run(ctx, tune, hooks)
	if idx != nil {
		if cerr := idx.Close(); cerr != nil {
			logger.Printf("close index: %v", cerr)
		}
	}
	if err != nil {
		logger.Fatalf("batch: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Report); err != nil {
			logger.Fatalf("encode: %v", err)
		}
	} else {
		printReport(os.Stdout, res.Report, res.Manifest.BatchID, time.Since(started))
		if res.Dir != "" {
			fmt.Printf("\nbatch dir: %s\n", res.Dir)
		}
	}
	if err := res.Batch.Err(); err != nil {
		logger.Printf("contract violations:\n%v", err)
		os.Exit(3)
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
