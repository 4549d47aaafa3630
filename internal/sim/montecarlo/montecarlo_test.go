package montecarlo

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/costs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/policy"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

func testEnv(t *testing.T) run.Env {
	t.Helper()
	cat, err := catalogs.Default(catalogs.Limp2026)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	cost, err := costs.Default()
	if err != nil {
		t.Fatalf("load costs: %v", err)
	}
	return run.Env{Catalogs: cat, Costs: cost}
}

func testOptions(pol string) Options {
	return Options{
		Replications: 24,
		Workers:      4,
		Seed:         7,
		Policy:       pol,
		Start:        run.DefaultStart(catalogs.Limp2026),
		MaxSteps:     20_000,
	}
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	env := testEnv(t)
	for _, pol := range policy.Names() {
		t.Run(pol, func(t *testing.T) {
			opts := testOptions(pol)
			par, err := Run(context.Background(), env, opts)
			if err != nil {
				t.Fatalf("parallel: %v", err)
			}
			seq, err := RunSequential(env, opts)
			if err != nil {
				t.Fatalf("sequential: %v", err)
			}
			for i := range seq.Records {
				if par.Records[i].Digest != seq.Records[i].Digest {
					t.Fatalf("record %d digest differs", i)
				}
			}
			a := Reduce(par, opts, env.Catalogs.Era)
			b := Reduce(seq, opts, env.Catalogs.Era)
			if !reflect.DeepEqual(a, b) {
				t.Fatalf("reports differ:\n%+v\n%+v", a, b)
			}
			if a.Successes+a.Failures+a.StepLimited+a.Violations != opts.Replications {
				t.Fatalf("counts do not add up: %+v", a)
			}
		})
	}
}

func TestRun_OnRecordOncePerReplication(t *testing.T) {
	env := testEnv(t)
	opts := testOptions(policy.NameMinimizeLock)
	seen := map[int]int{}
	opts.OnRecord = func(rec run.Record, err error) { seen[rec.Index]++ }
	if _, err := Run(context.Background(), env, opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seen) != opts.Replications {
		t.Fatalf("seen=%d want=%d", len(seen), opts.Replications)
	}
	for i, n := range seen {
		if n != 1 {
			t.Fatalf("index %d seen %d times", i, n)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	env := testEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, env, testOptions(policy.NameMinimizeLock)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want canceled", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	cases := []Options{
		{Replications: 0, Policy: policy.NameMinimizeLock},
		{Replications: 1, Workers: -1, Policy: policy.NameMinimizeLock},
		{Replications: 1, Policy: "greedy"},
	}
	for _, o := range cases {
		if err := o.validate(); err == nil {
			t.Fatalf("validate(%+v) succeeded", o)
		}
	}
}

func TestSeedFor_DistinctPerIndex(t *testing.T) {
	seen := map[uint64]bool{}
	for i := 0; i < 1000; i++ {
		s := SeedFor(7, i)
		if seen[s] {
			t.Fatalf("seed collision at %d", i)
		}
		seen[s] = true
	}
	if SeedFor(7, 3) == SeedFor(8, 3) {
		t.Fatalf("batch seed ignored")
	}
}

func record(i int, o run.Outcome, points uint32, elapsed time.Duration) run.Record {
	st := slayer.NewState(points, 0, slayer.CompletedTask(catalogs.Cows))
	st.Acc.TasksStarted = map[slayer.GiverCreature]uint64{{Giver: catalogs.Vannaka, Creature: catalogs.Cows}: 2}
	st.Acc.TasksDone = map[slayer.GiverCreature]uint64{{Giver: catalogs.Vannaka, Creature: catalogs.Cows}: 2}
	st.Acc.Kills = map[catalogs.Creature]uint64{catalogs.Cows: 10}
	st.Acc.MaxPoints = points + 5
	return run.Record{Index: i, Outcome: o, Elapsed: elapsed, State: st}
}

func TestReduce_ViolationsAreNotFailures(t *testing.T) {
	b := &Batch{
		Records: []run.Record{
			record(0, run.OutcomeSuccess, 1000, 3*time.Hour),
			record(1, run.OutcomeFailure, 40, time.Hour),
			record(2, run.OutcomeViolation, 10, 2*time.Hour),
			record(3, run.OutcomeSuccess, 1010, time.Hour),
			record(4, run.OutcomeStepLimit, 500, 9*time.Hour),
		},
		Violations: []Violation{{Index: 2, Seed: 1, Err: errors.New("boom")}},
	}
	rep := Reduce(b, Options{Policy: policy.NameMinimizeLock, Replications: 5}, catalogs.Limp2026)

	if rep.Successes != 2 || rep.Failures != 1 || rep.StepLimited != 1 || rep.Violations != 1 {
		t.Fatalf("counts=%+v", rep)
	}
	if rep.SuccessRate != 0.4 {
		t.Fatalf("success rate=%v want=0.4", rep.SuccessRate)
	}
	if len(rep.ViolationSamples) != 1 || rep.ViolationSamples[0] != "boom" {
		t.Fatalf("samples=%v", rep.ViolationSamples)
	}
	if rep.MaxPointsLocked != 45 {
		t.Fatalf("max points locked=%d want=45", rep.MaxPointsLocked)
	}
	if rep.Kills[catalogs.Cows] != 40 {
		t.Fatalf("kills=%d want=40", rep.Kills[catalogs.Cows])
	}
	if rep.MeanTasksReceived != 2 {
		t.Fatalf("mean tasks=%v want=2", rep.MeanTasksReceived)
	}
	if rep.MeanHoursSuccess != 2 {
		t.Fatalf("mean hours=%v want=2", rep.MeanHoursSuccess)
	}
	if rep.Median == nil || rep.Median.Index != 0 {
		t.Fatalf("median=%+v want index 0", rep.Median)
	}
	want := Order[uint32]{N: 2, Min: 1000, Median: 1010, Max: 1010}
	if rep.Success.EndPoints != want {
		t.Fatalf("success end points=%+v want=%+v", rep.Success.EndPoints, want)
	}
	gc := slayer.GiverCreature{Giver: catalogs.Vannaka, Creature: catalogs.Cows}
	if rep.MeanTasksDone[gc] != 2 {
		t.Fatalf("mean done=%v", rep.MeanTasksDone)
	}
}

func TestReduce_RateUsesRequestedReplications(t *testing.T) {
	// A cancelled batch holds fewer records than were requested.
	b := &Batch{Records: []run.Record{
		record(0, run.OutcomeSuccess, 1000, time.Hour),
		record(1, run.OutcomeFailure, 40, time.Hour),
	}}
	rep := Reduce(b, Options{Policy: policy.NameMinimizeLock, Replications: 8}, catalogs.Limp2026)
	if rep.Replications != 8 {
		t.Fatalf("replications=%d want=8", rep.Replications)
	}
	if rep.SuccessRate != 0.125 {
		t.Fatalf("success rate=%v want=0.125", rep.SuccessRate)
	}
}

func TestReduce_Empty(t *testing.T) {
	rep := Reduce(&Batch{}, Options{}, catalogs.Limp2026)
	if rep.Median != nil || rep.SuccessRate != 0 || rep.Success.Tasks.N != 0 {
		t.Fatalf("empty report=%+v", rep)
	}
}
