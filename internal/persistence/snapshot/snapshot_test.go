package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/montecarlo"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b1", FileName)
	gc := slayer.GiverCreature{Giver: catalogs.Vannaka, Creature: catalogs.Hellhounds}
	median := run.Record{Index: 3, Seed: 11, Outcome: run.OutcomeSuccess, Elapsed: 90 * time.Hour}
	in := ReportSnapshotV1{
		Header: Header{BatchID: "b1", Policy: "superiors", Era: "LIMP_2026", Replications: 10, CreatedAt: time.Unix(1700000000, 0).UTC()},
		Tuning: tuning.Defaults(),
		Report: montecarlo.Report{
			Policy:        "superiors",
			Era:           catalogs.Limp2026,
			Replications:  10,
			Successes:     7,
			SuccessRate:   0.7,
			Kills:         map[catalogs.Creature]uint64{catalogs.Hellhounds: 400},
			MeanTasksDone: map[slayer.GiverCreature]float64{gc: 2.5},
			Drops:         slayer.Drops{ImbuedHeart: 2},
			Median:        &median,
		},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Version != Version || h.BatchID != "b1" || h.Replications != 10 {
		t.Fatalf("header=%+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	rep := out.Report
	if rep.Era != catalogs.Limp2026 || rep.Successes != 7 || rep.SuccessRate != 0.7 || rep.Drops.ImbuedHeart != 2 {
		t.Fatalf("report=%+v", rep)
	}
	if rep.Kills[catalogs.Hellhounds] != 400 || rep.MeanTasksDone[gc] != 2.5 {
		t.Fatalf("maps kills=%v done=%v", rep.Kills, rep.MeanTasksDone)
	}
	if rep.Median == nil || rep.Median.Index != 3 || rep.Median.Elapsed != 90*time.Hour {
		t.Fatalf("median=%+v", rep.Median)
	}
	if out.Tuning.Replications != in.Tuning.Replications || out.Tuning.Policy != in.Tuning.Policy {
		t.Fatalf("tuning=%+v", out.Tuning)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("missing snapshot read")
	}
}
