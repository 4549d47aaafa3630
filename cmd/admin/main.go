package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/MortenLohne/simulate-limpwurt/internal/batch"
	persistlog "github.com/MortenLohne/simulate-limpwurt/internal/persistence/log"
	"github.com/MortenLohne/simulate-limpwurt/internal/persistence/snapshot"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "report":
			reportCmd(os.Args[2:])
			return
		case "records":
			recordsCmd(os.Args[2:])
			return
		case "health":
			healthCmd(os.Args[2:])
			return
		case "metrics":
			metricsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "batches")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	type row struct {
		id   string
		man  batch.Manifest
		done bool
	}
	var rows []row
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(base, e.Name())
		man, err := batch.ReadManifest(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", e.Name(), err)
			continue
		}
		_, err = os.Stat(filepath.Join(dir, snapshot.FileName))
		rows = append(rows, row{id: e.Name(), man: man, done: err == nil})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].man.StartedAt.Before(rows[j].man.StartedAt) })
	for _, r := range rows {
		state := "partial"
		if r.done {
			state = "done"
		}
		fmt.Printf("%s  %-14s %-9s %8s reps  %-7s started %s\n",
			r.id, r.man.Tuning.Policy, r.man.Tuning.Era, humanize.Comma(int64(r.man.Tuning.Replications)),
			state, humanize.Time(r.man.StartedAt))
	}
}

// batchFlags registers -data, -id and -batch on fs. The returned func
// resolves the batch directory after fs has been parsed.
func batchFlags(fs *flag.FlagSet) func() string {
	dataDir := fs.String("data", "./data", "runtime data directory")
	batchID := fs.String("id", "", "batch id")
	dir := fs.String("batch", "", "batch directory (alternative to -id)")
	return func() string {
		if strings.TrimSpace(*dir) != "" {
			return *dir
		}
		if strings.TrimSpace(*batchID) == "" {
			fmt.Fprintln(os.Stderr, "missing -id or -batch")
			os.Exit(2)
		}
		return persistlog.BatchDir(*dataDir, *batchID)
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to the batch snapshot)")
	batchDir := batchFlags(fs)
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = filepath.Join(batchDir(), snapshot.FileName)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(snap)
}

func recordsCmd(args []string) {
	fs := flag.NewFlagSet("records", flag.ExitOnError)
	outcome := fs.String("outcome", "", "SUCCESS, FAILURE, STEP_LIMIT or VIOLATION (optional)")
	violations := fs.Bool("violations", false, "only replications that hit a contract violation")
	limit := fs.Int("limit", 20, "result limit (0 = all)")
	batchDir := batchFlags(fs)
	_ = fs.Parse(args)
	dir := batchDir()

	var want run.Outcome
	if *outcome != "" {
		if err := want.UnmarshalText([]byte(strings.ToUpper(*outcome))); err != nil {
			fmt.Fprintln(os.Stderr, "bad -outcome:", err)
			os.Exit(2)
		}
	}

	n := 0
	stop := errors.New("limit")
	err := persistlog.ReadRecords(filepath.Join(dir, persistlog.RecordsFile), func(e persistlog.RecordEntry) error {
		if *violations && e.Violation == "" {
			return nil
		}
		if *outcome != "" && e.Record.Outcome != want {
			return nil
		}
		r := struct {
			Index     int    `json:"index"`
			Seed      uint64 `json:"seed"`
			Outcome   string `json:"outcome"`
			Steps     int    `json:"steps"`
			Hours     string `json:"hours"`
			Points    uint32 `json:"points"`
			MinPoints uint32 `json:"min_points"`
			Tasks     uint64 `json:"tasks"`
			Digest    string `json:"digest"`
			Violation string `json:"violation,omitempty"`
		}{
			Index:     e.Record.Index,
			Seed:      e.Record.Seed,
			Outcome:   e.Record.Outcome.String(),
			Steps:     e.Record.Steps,
			Hours:     humanize.FtoaWithDigits(e.Record.Elapsed.Hours(), 2),
			Points:    e.Record.State.Points,
			MinPoints: e.Record.State.Acc.MinPoints,
			Tasks:     e.Record.State.Acc.TotalStarted(),
			Digest:    e.Record.Digest,
			Violation: e.Violation,
		}
		printJSON(r)
		n++
		if *limit > 0 && n >= *limit {
			return stop
		}
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		fmt.Fprintln(os.Stderr, "read records:", err)
		os.Exit(1)
	}
}
