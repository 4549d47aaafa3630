package montecarlo

import (
	"cmp"
	"slices"
	"time"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/costs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

// MaxViolationSamples caps the violation messages kept in a Report.
const MaxViolationSamples = 10

// Order holds order statistics of one sample. Median is the upper median.
type Order[T cmp.Ordered] struct {
	N      int `json:"n"`
	Min    T   `json:"min"`
	Median T   `json:"median"`
	Max    T   `json:"max"`
}

func orderOf[T cmp.Ordered](xs []T) Order[T] {
	if len(xs) == 0 {
		return Order[T]{}
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	return Order[T]{N: len(s), Min: s[0], Median: s[len(s)/2], Max: s[len(s)-1]}
}

// Partition summarizes the runs that ended one way.
type Partition struct {
	Tasks       Order[uint64]        `json:"tasks"`
	EndPoints   Order[uint32]        `json:"end_points"`
	MinPoints   Order[uint32]        `json:"min_points"`
	MaxPoints   Order[uint32]        `json:"max_points"`
	TotalPoints Order[uint64]        `json:"total_points"`
	Elapsed     Order[time.Duration] `json:"elapsed_ns"`
}

type partitionSamples struct {
	tasks, totalPoints              []uint64
	endPoints, minPoints, maxPoints []uint32
	elapsed                         []time.Duration
}

func (p *partitionSamples) add(r *run.Record) {
	p.tasks = append(p.tasks, r.State.Acc.TotalStarted())
	p.totalPoints = append(p.totalPoints, r.State.Acc.TotalPoints)
	p.endPoints = append(p.endPoints, r.State.Points)
	p.minPoints = append(p.minPoints, r.State.Acc.MinPoints)
	p.maxPoints = append(p.maxPoints, r.State.Acc.MaxPoints)
	p.elapsed = append(p.elapsed, r.Elapsed)
}

func (p *partitionSamples) reduce() Partition {
	return Partition{
		Tasks:       orderOf(p.tasks),
		EndPoints:   orderOf(p.endPoints),
		MinPoints:   orderOf(p.minPoints),
		MaxPoints:   orderOf(p.maxPoints),
		TotalPoints: orderOf(p.totalPoints),
		Elapsed:     orderOf(p.elapsed),
	}
}

// Report is the reduction of a batch.
type Report struct {
	Policy       string       `json:"policy"`
	Era          catalogs.Era `json:"era"`
	Seed         uint64       `json:"seed"`
	Replications int          `json:"replications"`

	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	StepLimited int     `json:"step_limited"`
	Violations  int     `json:"violations"`
	SuccessRate float64 `json:"success_rate"`

	ViolationSamples []string `json:"violation_samples,omitempty"`

	Success Partition `json:"success"`
	Failure Partition `json:"failure"`

	MeanTasksReceived float64 `json:"mean_tasks_received"`
	MaxPointsLocked   uint32  `json:"max_points_locked"`
	MeanHoursSuccess  float64 `json:"mean_hours_success"`

	Drops    slayer.Drops                 `json:"drops"`
	Supplies costs.Supplies               `json:"supplies"`
	Kills    map[catalogs.Creature]uint64 `json:"kills"`

	// MeanTasksDone averages per-(giver, creature) completions over successful runs.
	MeanTasksDone map[slayer.GiverCreature]float64 `json:"mean_tasks_done,omitempty"`

	// Median is the successful run at the median elapsed time, if any succeeded.
	Median *run.Record `json:"median,omitempty"`
}

// Reduce folds a batch into a Report. The result depends only on the set of
// records, not on the order replications finished in.
func Reduce(b *Batch, opts Options, era catalogs.Era) Report {
	rep := Report{
		Policy:       opts.Policy,
		Era:          era,
		Seed:         opts.Seed,
		Replications: opts.Replications,
		Violations:   len(b.Violations),
		Kills:        map[catalogs.Creature]uint64{},
	}

	violated := make(map[int]bool, len(b.Violations))
	for _, v := range b.Violations {
		violated[v.Index] = true
	}
	vs := slices.Clone(b.Violations)
	slices.SortFunc(vs, func(x, y Violation) int { return cmp.Compare(x.Index, y.Index) })
	for _, v := range vs {
		if len(rep.ViolationSamples) == MaxViolationSamples {
			break
		}
		rep.ViolationSamples = append(rep.ViolationSamples, v.Err.Error())
	}

	recs := make([]*run.Record, 0, len(b.Records))
	for i := range b.Records {
		if !violated[b.Records[i].Index] {
			recs = append(recs, &b.Records[i])
		}
	}
	slices.SortFunc(recs, func(x, y *run.Record) int { return cmp.Compare(x.Index, y.Index) })

	var succ, fail partitionSamples
	var successes []*run.Record
	var tasksReceived uint64
	var successTime time.Duration
	doneSums := map[slayer.GiverCreature]uint64{}

	for _, r := range recs {
		acc := &r.State.Acc
		tasksReceived += acc.TotalStarted()
		rep.Drops = rep.Drops.Add(acc.Drops)
		rep.Supplies = rep.Supplies.Add(acc.Supplies)
		for c, n := range acc.Kills {
			rep.Kills[c] += n
		}

		switch r.Outcome {
		case run.OutcomeSuccess:
			rep.Successes++
			succ.add(r)
			successes = append(successes, r)
			successTime += r.Elapsed
			for k, n := range acc.TasksDone {
				doneSums[k] += n
			}
		case run.OutcomeFailure:
			rep.Failures++
			fail.add(r)
			rep.MaxPointsLocked = max(rep.MaxPointsLocked, acc.MaxPoints)
		case run.OutcomeStepLimit:
			rep.StepLimited++
		}
	}

	if n := len(recs); n > 0 {
		rep.MeanTasksReceived = float64(tasksReceived) / float64(n)
	}
	if rep.Replications > 0 {
		rep.SuccessRate = float64(rep.Successes) / float64(rep.Replications)
	}
	rep.Success = succ.reduce()
	rep.Failure = fail.reduce()

	if len(successes) > 0 {
		ns := float64(len(successes))
		rep.MeanHoursSuccess = successTime.Hours() / ns
		rep.MeanTasksDone = make(map[slayer.GiverCreature]float64, len(doneSums))
		for k, n := range doneSums {
			rep.MeanTasksDone[k] = float64(n) / ns
		}

		slices.SortStableFunc(successes, func(x, y *run.Record) int { return cmp.Compare(x.Elapsed, y.Elapsed) })
		median := *successes[len(successes)/2]
		rep.Median = &median
	}
	return rep
}
